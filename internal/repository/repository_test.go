package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinResolve/internal/domain/models"
	pkgkafka "FinResolve/pkg/kafka"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	calls   []execCall
	execErr error
}

func (f *fakeDB) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: q, args: args})
	return nil, f.execErr
}

func (f *fakeDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) PingContext(context.Context) error { return nil }

func resolved(name, isin string, partial bool) models.ResolvedInstrument {
	return models.ResolvedInstrument{
		Query:       models.InstrumentQuery{Name: name},
		Record:      models.InstrumentRecord{Name: models.Str(name), ISIN: models.Str(isin), AssetClass: models.Str("ETF")},
		ResolvedBy:  models.ResolvedBy{PrimarySource: models.SourceLocalFactsheet, Strategy: models.StrategyDirect, Attempts: 1},
		Confidence:  0.9,
		DataQuality: models.DataQuality{Overall: 0.8},
		Partial:     partial,
	}
}

func TestResolutionStoreInsertsRows(t *testing.T) {
	db := &fakeDB{}
	s, err := newResolutionStore(db, "finresolve.instrument_resolutions", nil)
	require.NoError(t, err)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	err = s.RecordResolutions(context.Background(), "run-1", []models.ResolvedInstrument{
		resolved("iShares Core MSCI World", "IE00B4L5Y983", false),
		resolved("Some Bond", "", true),
	})
	require.NoError(t, err)

	require.Len(t, db.calls, 1)
	c := db.calls[0]
	assert.True(t, strings.HasPrefix(c.query, "INSERT INTO finresolve.instrument_resolutions ("))
	assert.Equal(t, 2, strings.Count(c.query, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"))
	require.Len(t, c.args, 24)
	assert.Equal(t, "run-1", c.args[0])
	assert.Equal(t, at, c.args[1])
	assert.Equal(t, "IE00B4L5Y983", c.args[5])
	assert.Equal(t, "local_factsheet", c.args[7])
	assert.Equal(t, uint8(0), c.args[11])
	assert.Equal(t, uint8(1), c.args[23])
}

func TestResolutionStoreWrapsErrors(t *testing.T) {
	db := &fakeDB{execErr: errors.New("code: 60, table does not exist")}
	s, err := newResolutionStore(db, "", nil)
	require.NoError(t, err)

	err = s.RecordResolutions(context.Background(), "r", []models.ResolvedInstrument{resolved("A", "", false)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert resolutions")

	assert.Error(t, s.Init(context.Background()))
	assert.Contains(t, db.calls[len(db.calls)-1].query, "CREATE TABLE IF NOT EXISTS instrument_resolutions")
}

func TestResolutionStoreRejectsBadTable(t *testing.T) {
	_, err := newResolutionStore(&fakeDB{}, "x; DROP TABLE y", nil)
	assert.Error(t, err)
}

func TestResolutionStoreSkipsEmptyRun(t *testing.T) {
	db := &fakeDB{}
	s, err := newResolutionStore(db, "", nil)
	require.NoError(t, err)
	require.NoError(t, s.RecordResolutions(context.Background(), "r", nil))
	assert.Empty(t, db.calls)
}

type captureBatch struct {
	topic string
	msgs  []pkgkafka.Message
}

func (c *captureBatch) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	c.topic = topic
	c.msgs = msgs
	return nil
}

func TestKafkaPublisherKeysByISIN(t *testing.T) {
	cb := &captureBatch{}
	p := &KafkaResolutionPublisher{producer: cb, topic: "instrument.resolutions", now: time.Now}

	err := p.RecordResolutions(context.Background(), "run-9", []models.ResolvedInstrument{
		resolved("iShares Core MSCI World", "IE00B4L5Y983", false),
		resolved("Unknown Fund", "", true),
	})
	require.NoError(t, err)

	assert.Equal(t, "instrument.resolutions", cb.topic)
	require.Len(t, cb.msgs, 2)
	assert.Equal(t, []byte("IE00B4L5Y983"), cb.msgs[0].Key)
	assert.Equal(t, []byte(models.InstrumentQuery{Name: "Unknown Fund"}.Key()), cb.msgs[1].Key)
	assert.Equal(t, "run-9", cb.msgs[0].Headers["run_id"])

	b, err := json.Marshal(cb.msgs[1].Value)
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(b, &ev))
	assert.Equal(t, "run-9", ev["run_id"])
	assert.Equal(t, true, ev["partial"])
}

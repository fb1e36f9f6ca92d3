package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holdings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadPortfolio(t *testing.T) {
	path := writeFile(t, `holdings:
  - name: iShares Core MSCI World UCITS ETF
    isin: ie00b4l5y983
    value: 12000.50
  - name: Apple Inc
    value: 800
`)
	p, err := readPortfolio(path)
	require.NoError(t, err)
	assert.Equal(t, path, p.ID)
	require.Len(t, p.Holdings, 2)
	assert.Equal(t, "12000.5", p.Holdings[0].Value.String())

	queries := p.Queries()
	assert.Equal(t, "IE00B4L5Y983", queries[0].ISIN)
	assert.Equal(t, "Apple Inc", queries[1].Name)
}

func TestReadPortfolioErrors(t *testing.T) {
	_, err := readPortfolio(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read holdings")

	_, err = readPortfolio(writeFile(t, "holdings: [\n"))
	assert.ErrorContains(t, err, "parse holdings")

	_, err = readPortfolio(writeFile(t, "id: empty\nholdings: []\n"))
	assert.ErrorContains(t, err, "no holdings")
}

func TestWriteJSONIndents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, map[string]int{"total": 2}))
	assert.Equal(t, "{\n  \"total\": 2\n}\n", buf.String())
}

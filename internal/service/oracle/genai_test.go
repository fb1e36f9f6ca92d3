package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiServer(t *testing.T, reply string) (*httptest.Server, *string) {
	t.Helper()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "Identify")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": reply}},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &gotPath
}

func TestGenAIOracleGenerate(t *testing.T) {
	srv, path := geminiServer(t, `{"name":"Apple Inc."}`)
	ctx := context.Background()

	o, err := NewGenAIOracle(ctx, "test-key", WithBaseURL(srv.URL), WithModel("gemini-test"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-test", o.Model())

	text, err := o.Generate(ctx, "Identify Apple", 128)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Apple Inc."}`, text)
	assert.True(t, strings.HasSuffix(*path, "gemini-test:generateContent"), *path)
}

func TestGenAIOracleEmptyReply(t *testing.T) {
	srv, _ := geminiServer(t, "  ")
	ctx := context.Background()

	o, err := NewGenAIOracle(ctx, "test-key", WithBaseURL(srv.URL))
	require.NoError(t, err)
	_, err = o.Generate(ctx, "Identify nothing", 16)
	assert.Error(t, err)
}

func TestGenAIOracleRequiresKey(t *testing.T) {
	_, err := NewGenAIOracle(context.Background(), "")
	assert.Error(t, err)
}

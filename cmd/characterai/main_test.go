package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"ai-agent-character-demo/characterai-client/characterai"
	"ai-agent-character-demo/characterai-client/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyBody = `{"external_id":"hist-1","participants":[` +
	`{"is_human":true,"user":{"username":"me"}},` +
	`{"is_human":false,"user":{"username":"internal_id:42"}}]}`

func setupEnv(t *testing.T) *testutil.FakeService {
	t.Helper()
	f := testutil.NewFakeService(t)
	f.Handle(http.MethodPost, characterai.PathAuth, http.StatusOK, `{"key":"session-key"}`)

	t.Setenv("CHARACTERAI_BASE_URL", f.URL())
	t.Setenv("CHARACTERAI_TOKEN", "access-token")
	t.Setenv("CHARACTERAI_CHARID", "char-1")
	t.Setenv("VAULT_ENABLED", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("METRICS_ADDR", "")
	t.Setenv("TRACING_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
	return f
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestSendPrintsFinalReply(t *testing.T) {
	f := setupEnv(t)
	f.Handle(http.MethodPost, characterai.PathContinueHistory, http.StatusOK, historyBody)
	f.Handle(http.MethodPost, characterai.PathStreaming, http.StatusOK,
		`{"replies":[{"text":"Hel"}],"src_char":{"participant":{"name":"Ada"}},"is_final_chunk":false}`+"\n"+
			`{"replies":[{"text":"Hello!"}],"src_char":{"participant":{"name":"Ada"}},"is_final_chunk":true}`)

	out, err := execute(t, "send", "-m", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Ada: Hello!\n", out)

	req, ok := f.Last(http.MethodPost, characterai.PathStreaming)
	require.True(t, ok)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "hi", payload["text"])
	assert.Equal(t, "internal_id:42", payload["tgt"])
}

func TestSendRequiresMessage(t *testing.T) {
	f := setupEnv(t)

	_, err := execute(t, "send")

	require.Error(t, err)
	assert.Empty(t, f.Requests())
}

func TestHistoryPage(t *testing.T) {
	f := setupEnv(t)
	f.Handle(http.MethodPost, characterai.PathContinueHistory, http.StatusOK, historyBody)
	f.Handle(http.MethodGet, characterai.PathHistoryMessages, http.StatusOK,
		`{"has_more":true,"next_page":3,"messages":[{"id":1,"text":"hello","src__name":"Ada","src__is_human":false}]}`)

	out, err := execute(t, "history", "--page", "2")
	require.NoError(t, err)

	assert.Equal(t, "Ada: hello\n(more: --page 3)\n", out)
	req, _ := f.Last(http.MethodGet, characterai.PathHistoryMessages)
	assert.Equal(t, "history_external_id=hist-1&page_num=2", req.RawQuery)
}

func TestCategoriesJSON(t *testing.T) {
	f := setupEnv(t)
	f.Handle(http.MethodGet, characterai.PathCategories, http.StatusOK, `[{"name":"Anime","description":"Anime characters"}]`)

	out, err := execute(t, "categories", "--json")
	require.NoError(t, err)

	var categories []characterai.Category
	require.NoError(t, json.Unmarshal([]byte(out), &categories))
	assert.Equal(t, []characterai.Category{{Name: "Anime", Description: "Anime characters"}}, categories)
	assert.Equal(t, 0, f.Calls(http.MethodPost, characterai.PathAuth))
}

func TestCharacterInfo(t *testing.T) {
	f := setupEnv(t)
	f.Handle(http.MethodPost, characterai.PathCharacterInfo, http.StatusOK,
		`{"character":{"external_id":"a","name":"Ada","title":"Analyst","greeting":"Hello"}}`)

	out, err := execute(t, "character", "a")
	require.NoError(t, err)

	assert.Equal(t, "Ada (a)\nAnalyst\n> Hello\n", out)
}

func TestAuthenticationFailureIsReported(t *testing.T) {
	setupEnv(t)
	f := testutil.NewFakeService(t)
	f.Handle(http.MethodPost, characterai.PathAuth, http.StatusUnauthorized, `{"detail":"bad token"}`)
	t.Setenv("CHARACTERAI_BASE_URL", f.URL())

	_, err := execute(t, "featured")

	require.Error(t, err)
	assert.Equal(t, 0, f.Calls(http.MethodGet, characterai.PathFeatured))
}

func TestHealth(t *testing.T) {
	f := setupEnv(t)
	f.Handle(http.MethodGet, characterai.PathCategories, http.StatusOK, `[]`)

	out, err := execute(t, "health")
	require.NoError(t, err)

	assert.Contains(t, out, "remote-categories")
	assert.Contains(t, out, "session")
}

func TestHealthReportsOutage(t *testing.T) {
	f := setupEnv(t)
	f.Handle(http.MethodGet, characterai.PathCategories, http.StatusBadGateway, `bad gateway`)

	_, err := execute(t, "health")

	assert.Error(t, err)
}

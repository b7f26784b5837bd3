package characterai

import (
	"context"
	"net/http"
	"testing"

	"ai-agent-character-demo/characterai-client/internal/testutil"
	"ai-agent-character-demo/characterai-client/pkg/errors"
	"ai-agent-character-demo/characterai-client/shared/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const historyBody = `{"external_id":"hist-1","participants":[` +
	`{"is_human":true,"user":{"username":"me"}},` +
	`{"is_human":false,"user":{"username":"internal_id:42"}}],` +
	`"last_interaction":"2026-01-01T00:00:00Z"}`

func TestNewChat_ResolvesAIParticipant(t *testing.T) {
	chat, err := newChat(NewClient(), "char-1", []byte(historyBody))
	require.NoError(t, err)

	assert.Equal(t, "char-1", chat.CharacterID)
	assert.Equal(t, "hist-1", chat.ExternalID)
	assert.Equal(t, "internal_id:42", chat.AIID)
}

func TestNewChat_RejectsParticipantCounts(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no participants", `{"external_id":"h","participants":[]}`},
		{"only humans", `{"external_id":"h","participants":[{"is_human":true,"user":{"username":"me"}}]}`},
		{"two characters", `{"external_id":"h","participants":[` +
			`{"is_human":false,"user":{"username":"a"}},` +
			`{"is_human":false,"user":{"username":"b"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newChat(NewClient(), "char-1", []byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrProtocolShape))
		})
	}
}

func TestNewChat_RejectsMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>502</html>`},
		{"missing external id", `{"participants":[{"is_human":false,"user":{"username":"a"}}]}`},
		{"participant without flag", `{"external_id":"h","participants":[{"user":{"username":"a"}}]}`},
		{"status only", `{"status":"OK"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newChat(NewClient(), "char-1", []byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrProtocolShape))
		})
	}
}

func openChat(t *testing.T) (*Chat, *testutil.FakeService) {
	t.Helper()
	f := testutil.NewFakeService(t)
	c := authenticatedClient(t, f)
	f.Handle(http.MethodPost, PathContinueHistory, http.StatusOK, historyBody)

	chat, err := c.ContinueOrCreateChat(context.Background(), "char-1")
	require.NoError(t, err)
	return chat, f
}

func TestChat_SendAndAwaitResponse(t *testing.T) {
	chat, f := openChat(t)
	f.Handle(http.MethodPost, PathStreaming, http.StatusOK,
		`{"replies":[{"text":"Hel"}],"src_char":{"participant":{"name":"Ada"}},"is_final_chunk":false}`+"\n"+
			`: keep-alive`+"\n"+
			`event: message {"replies":[{"text":"Hello!"}],"src_char":{"participant":{"name":"Ada"}},"is_final_chunk":true}`+"\n")

	events, err := chat.SendAndAwaitResponse(context.Background(), "Greetings! What are your plans for today?")
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, "Hel", events[0].Text())
	assert.True(t, events[1].IsFinalChunk)
	assert.Equal(t, "Ada", events[1].CharacterName())

	req, ok := f.Last(http.MethodPost, PathStreaming)
	require.True(t, ok)
	assert.Equal(t, "Token session-key", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	want, err := marshalPayload(NewStreamingRequest("hist-1", "char-1", "internal_id:42", "Greetings! What are your plans for today?"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(req.Body))
}

func TestChat_Send_ReportsCounts(t *testing.T) {
	chat, f := openChat(t)
	chat.client.stream = StreamOptions{SkipMalformed: true}
	f.Handle(http.MethodPost, PathStreaming, http.StatusOK,
		`{"replies":[{"text":"a"}],"is_final_chunk":false}`+"\n"+
			`{broken`+"\n"+
			`: ping`+"\n"+
			`{"replies":[{"text":"b"}],"is_final_chunk":true}`)

	result, err := chat.Send(context.Background(), "hi")
	require.NoError(t, err)

	assert.Len(t, result.Events, 2)
	assert.Equal(t, 1, result.Malformed)
	assert.Equal(t, 1, result.Skipped)
}

func TestChat_SendAndAwaitResponse_MalformedAborts(t *testing.T) {
	chat, f := openChat(t)
	f.Handle(http.MethodPost, PathStreaming, http.StatusOK,
		`{"replies":[{"text":"a"}],"is_final_chunk":false}`+"\n"+`{broken`)

	events, err := chat.SendAndAwaitResponse(context.Background(), "hi")

	require.Error(t, err)
	assert.Nil(t, events)
	assert.True(t, errors.Is(err, errors.ErrMalformedStreamRecord))
}

func TestChat_SendAndAwaitResponse_RemoteStatus(t *testing.T) {
	chat, f := openChat(t)
	f.Handle(http.MethodPost, PathStreaming, http.StatusInternalServerError, `{"detail":"overloaded"}`)

	_, err := chat.SendAndAwaitResponse(context.Background(), "hi")

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRemoteStatus))
	assert.Equal(t, http.StatusInternalServerError, errors.GetStatusCode(err))
}

func TestChat_FetchHistory(t *testing.T) {
	chat, f := openChat(t)
	f.Handle(http.MethodGet, PathHistoryMessages, http.StatusOK,
		`{"has_more":true,"next_page":2,"messages":[`+
			`{"id":1,"text":"hello","src__name":"Ada","src__is_human":false,"src_char":{"avatar_file_name":null,"participant":{"name":"Ada"}},"image_rel_path":"","responsible_user__username":null},`+
			`{"id":2,"text":"hi","src__name":"me","src__is_human":true,"src_char":{"avatar_file_name":null,"participant":{"name":"me"}}}]}`)

	history, err := chat.FetchHistory(context.Background())
	require.NoError(t, err)

	assert.True(t, history.HasMore)
	assert.Equal(t, 2, history.NextPage)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "hello", history.Messages[0].Text)
	assert.Equal(t, "Ada", history.Messages[0].SrcChar.Participant.Name)
	assert.True(t, bool(history.Messages[1].SrcIsHuman))

	req, ok := f.Last(http.MethodGet, PathHistoryMessages)
	require.True(t, ok)
	assert.Equal(t, "history_external_id=hist-1", req.RawQuery)
	assert.Equal(t, "Token session-key", req.Header.Get("Authorization"))

	_, err = chat.FetchHistoryPage(context.Background(), 2)
	require.NoError(t, err)
	req, _ = f.Last(http.MethodGet, PathHistoryMessages)
	assert.Equal(t, "history_external_id=hist-1&page_num=2", req.RawQuery)
}

func TestChat_FetchHistory_ShapeError(t *testing.T) {
	chat, f := openChat(t)
	f.Handle(http.MethodGet, PathHistoryMessages, http.StatusOK, `{"has_more":false}`)

	_, err := chat.FetchHistory(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProtocolShape))
}

func TestChat_FetchHistory_TolerantFlags(t *testing.T) {
	chat, f := openChat(t)
	f.Handle(http.MethodGet, PathHistoryMessages, http.StatusOK,
		`{"has_more":false,"messages":[`+
			`{"id":1,"text":"a","src__is_human":"true"},`+
			`{"id":2,"text":"b","src__is_human":"false"},`+
			`{"id":3,"text":"c","src__is_human":true},`+
			`{"id":4,"text":"d","src__is_human":null}]}`)

	history, err := chat.FetchHistory(context.Background())
	require.NoError(t, err)

	require.Len(t, history.Messages, 4)
	assert.True(t, bool(history.Messages[0].SrcIsHuman))
	assert.False(t, bool(history.Messages[1].SrcIsHuman))
	assert.True(t, bool(history.Messages[2].SrcIsHuman))
	assert.False(t, bool(history.Messages[3].SrcIsHuman))
}

func TestChat_Send_RecordsLineKinds(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind string
	}{
		{"broken json", `{broken`, observability.LineMalformed},
		{"wrong shape", `{"replies":[{"text":"x"}]}`, observability.LineInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := sdkmetric.NewManualReader()
			inst, err := observability.NewInstruments(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
			require.NoError(t, err)

			f := testutil.NewFakeService(t)
			c := authenticatedClient(t, f, WithInstruments(inst))
			f.Handle(http.MethodPost, PathContinueHistory, http.StatusOK, historyBody)
			f.Handle(http.MethodPost, PathStreaming, http.StatusOK, tt.body)
			chat, err := c.ContinueOrCreateChat(context.Background(), "char-1")
			require.NoError(t, err)

			_, err = chat.Send(context.Background(), "hi")
			require.Error(t, err)

			var rm metricdata.ResourceMetrics
			require.NoError(t, reader.Collect(context.Background(), &rm))
			kinds := streamLineKinds(rm)
			assert.Equal(t, int64(1), kinds[tt.wantKind])
			assert.Len(t, kinds, 1)
		})
	}
}

func streamLineKinds(rm metricdata.ResourceMetrics) map[string]int64 {
	kinds := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "characterai.client.stream.lines" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("kind"); ok && dp.Value > 0 {
					kinds[v.AsString()] += dp.Value
				}
			}
		}
	}
	return kinds
}

package characterai

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"ai-agent-character-demo/characterai-client/pkg/errors"
	"ai-agent-character-demo/characterai-client/pkg/logger"
	"ai-agent-character-demo/characterai-client/shared/observability"
)

// Chat is one ongoing conversation with a character. It is created by
// Client.ContinueOrCreateChat and is immutable afterwards.
type Chat struct {
	// CharacterID is the character's external id
	CharacterID string
	// ExternalID is the history's external id
	ExternalID string
	// AIID is the username of the single non-human participant
	AIID string

	client *Client
	log    *logger.Logger
}

func newChat(client *Client, characterID string, body []byte) (*Chat, error) {
	var history historyResponse
	if err := decodeValidated(body, historyResponseSchema, "history response", &history); err != nil {
		return nil, err
	}

	aiID, err := resolveAIParticipant(history.Participants)
	if err != nil {
		return nil, err
	}

	return &Chat{
		CharacterID: characterID,
		ExternalID:  history.ExternalID,
		AIID:        aiID,
		client:      client,
		log:         client.log.WithCharacter(characterID).WithHistory(history.ExternalID),
	}, nil
}

// resolveAIParticipant returns the username of the only non-human participant
func resolveAIParticipant(participants []Participant) (string, error) {
	var found []string
	for _, p := range participants {
		if !p.IsHuman {
			found = append(found, p.User.Username)
		}
	}
	if len(found) != 1 {
		return "", errors.NewProtocolShapeError("history must have exactly one non-human participant", nil).
			WithDetails(map[string]int{"non_human_participants": len(found)})
	}
	return found[0], nil
}

// FetchHistory returns the first page of the conversation
func (ch *Chat) FetchHistory(ctx context.Context) (*MessageHistory, error) {
	return ch.FetchHistoryPage(ctx, 0)
}

// FetchHistoryPage returns the page named by a previous NextPage cursor.
// page <= 0 requests the first page.
func (ch *Chat) FetchHistoryPage(ctx context.Context, page int) (*MessageHistory, error) {
	query := url.Values{}
	query.Set("history_external_id", ch.ExternalID)
	if page > 0 {
		query.Set("page_num", strconv.Itoa(page))
	}

	body, err := ch.client.call(ctx, http.MethodGet, PathHistoryMessages+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var history MessageHistory
	if err := decodeValidated(body, messageHistorySchema, "message history", &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// Payload builds the streaming request for text
func (ch *Chat) Payload(text string) StreamingRequest {
	return NewStreamingRequest(ch.ExternalID, ch.CharacterID, ch.AIID, text)
}

// Send posts text and parses the full reply body. The call is one blocking
// round trip; nothing is decoded before the response closes.
func (ch *Chat) Send(ctx context.Context, text string) (*StreamResult, error) {
	body, err := ch.client.call(ctx, http.MethodPost, PathStreaming, ch.Payload(text))
	if err != nil {
		return nil, err
	}

	result, err := ParseReplyStream(body, ch.client.stream)
	if err != nil {
		kind := observability.LineInvalid
		if errors.Is(err, errors.ErrMalformedStreamRecord) {
			kind = observability.LineMalformed
		}
		ch.client.instruments.RecordStreamLines(ctx, kind, 1)
		ch.log.LogError(err, "reply stream rejected")
		return nil, err
	}

	inst := ch.client.instruments
	inst.RecordStreamLines(ctx, observability.LineBare, result.Bare)
	inst.RecordStreamLines(ctx, observability.LinePrefixed, result.Prefixed)
	inst.RecordStreamLines(ctx, observability.LineSkipped, result.Skipped)
	inst.RecordStreamLines(ctx, observability.LineMalformed, result.Malformed)
	if result.Malformed > 0 {
		ch.log.Warn("dropped malformed reply records", "count", result.Malformed)
	}
	ch.log.Debug("reply stream parsed",
		"events", len(result.Events),
		"skipped", result.Skipped,
	)

	return result, nil
}

// SendAndAwaitResponse posts text and returns every reply event in arrival order
func (ch *Chat) SendAndAwaitResponse(ctx context.Context, text string) ([]ReplyEvent, error) {
	result, err := ch.Send(ctx, text)
	if err != nil {
		return nil, err
	}
	return result.Events, nil
}

package characterai

import (
	"bytes"
	"encoding/json"
)

// Fixed values the streaming endpoint expects
const (
	defaultRankingMethod     = "random"
	defaultStreamEveryNSteps = 16
	defaultChunksToPad       = 8
)

// StreamingRequest is the body of POST /chat/streaming/. Field order and the
// null defaults are part of the wire contract.
type StreamingRequest struct {
	HistoryExternalID   string          `json:"history_external_id"`
	CharacterExternalID string          `json:"character_external_id"`
	Text                string          `json:"text"`
	Tgt                 string          `json:"tgt"`
	RankingMethod       string          `json:"ranking_method"`
	FauxChat            bool            `json:"faux_chat"`
	Staging             bool            `json:"staging"`
	ModelServerAddress  json.RawMessage `json:"model_server_address"`
	OverridePrefix      json.RawMessage `json:"override_prefix"`
	OverrideRank        json.RawMessage `json:"override_rank"`
	RankCandidates      json.RawMessage `json:"rank_candidates"`
	FilterCandidates    json.RawMessage `json:"filter_candidates"`
	PrefixLimit         json.RawMessage `json:"prefix_limit"`
	PrefixTokenLimit    json.RawMessage `json:"prefix_token_limit"`
	LivetuneCoeff       json.RawMessage `json:"livetune_coeff"`
	StreamParams        json.RawMessage `json:"stream_params"`
	EnableTTI           bool            `json:"enable_tti"`
	InitialTimeout      json.RawMessage `json:"initial_timeout"`
	InsertBeginning     json.RawMessage `json:"insert_beginning"`
	TranslateCandidates json.RawMessage `json:"translate_candidates"`
	StreamEveryNSteps   int             `json:"stream_every_n_steps"`
	ChunksToPad         int             `json:"chunks_to_pad"`
	IsProactive         bool            `json:"is_proactive"`
}

// NewStreamingRequest fills the protocol defaults around the message and identity.
// The nullable tuning fields are left nil and encode as null.
func NewStreamingRequest(historyID, characterID, targetID, text string) StreamingRequest {
	return StreamingRequest{
		HistoryExternalID:   historyID,
		CharacterExternalID: characterID,
		Text:                text,
		Tgt:                 targetID,
		RankingMethod:       defaultRankingMethod,
		EnableTTI:           true,
		StreamEveryNSteps:   defaultStreamEveryNSteps,
		ChunksToPad:         defaultChunksToPad,
	}
}

// marshalPayload encodes v without HTML escaping and without the encoder's
// trailing newline, so text containing <, > or & goes out verbatim.
func marshalPayload(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

package characterai

import (
	"bytes"
	"encoding/json"
	"strings"

	"ai-agent-character-demo/characterai-client/pkg/errors"
)

// LineKind classifies one line of a streaming reply body
type LineKind int

const (
	// LineUnrecognized carries no record: blank lines, keep-alives, bare event names
	LineUnrecognized LineKind = iota
	// LineBare is a line that starts with a JSON object
	LineBare
	// LinePrefixed is a token, a space, then a JSON object
	LinePrefixed
)

func (k LineKind) String() string {
	switch k {
	case LineBare:
		return "bare"
	case LinePrefixed:
		return "prefixed"
	default:
		return "unrecognized"
	}
}

// ClassifyLine reports the kind of line and, for record lines, the JSON text.
// A prefixed record starts at the first "{" that directly follows a space.
func ClassifyLine(line string) (LineKind, string) {
	if strings.HasPrefix(line, "{") {
		return LineBare, line
	}
	if i := strings.Index(line, " {"); i >= 0 {
		return LinePrefixed, line[i+1:]
	}
	return LineUnrecognized, ""
}

// StreamOptions selects the policy for record lines that fail to decode
type StreamOptions struct {
	// SkipMalformed drops undecodable or mis-shaped records and counts them
	// instead of failing the whole body.
	SkipMalformed bool
}

// StreamResult is the outcome of parsing one streaming reply body
type StreamResult struct {
	Events    []ReplyEvent
	Bare      int
	Prefixed  int
	Skipped   int // non-blank unrecognized lines
	Malformed int // record lines dropped under SkipMalformed
}

// ParseReplyStream decodes every record line of body in order. It is pure:
// the same body always yields the same result.
//
// By default the first record line that is not valid JSON aborts the parse
// with a MalformedStreamRecord error, and a record missing replies or
// is_final_chunk aborts with a ProtocolShapeError.
func ParseReplyStream(body []byte, opts StreamOptions) (*StreamResult, error) {
	result := &StreamResult{}

	for n, raw := range bytes.Split(body, []byte("\n")) {
		lineNo := n + 1
		line := string(raw)

		kind, text := ClassifyLine(line)
		if kind == LineUnrecognized {
			if strings.TrimSpace(line) != "" {
				result.Skipped++
			}
			continue
		}

		event, err := decodeReplyRecord(lineNo, text)
		if err != nil {
			if opts.SkipMalformed {
				result.Malformed++
				continue
			}
			return nil, err
		}

		switch kind {
		case LineBare:
			result.Bare++
		case LinePrefixed:
			result.Prefixed++
		}
		result.Events = append(result.Events, event)
	}

	return result, nil
}

func decodeReplyRecord(lineNo int, text string) (ReplyEvent, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return ReplyEvent{}, errors.NewMalformedStreamRecordError(lineNo, err)
	}
	if err := replyRecordSchema.VisitJSON(value); err != nil {
		return ReplyEvent{}, errors.NewProtocolShapeError("reply record does not match the expected shape", err).
			WithDetails(map[string]int{"line": lineNo})
	}

	var event ReplyEvent
	if err := json.Unmarshal([]byte(text), &event); err != nil {
		return ReplyEvent{}, errors.NewProtocolShapeError("reply record has mistyped fields", err).
			WithDetails(map[string]int{"line": lineNo})
	}
	event.Raw = json.RawMessage(strings.TrimSpace(text))
	return event, nil
}

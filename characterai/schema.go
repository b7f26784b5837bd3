package characterai

import (
	"encoding/json"

	"ai-agent-character-demo/characterai-client/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
)

// Response schemas. Only the fields this client relies on are required;
// everything else passes through.
var (
	replyRecordSchema = func() *openapi3.Schema {
		reply := openapi3.NewObjectSchema().
			WithProperty("text", openapi3.NewStringSchema())
		reply.Required = []string{"text"}

		s := openapi3.NewObjectSchema().
			WithProperty("replies", openapi3.NewArraySchema().WithItems(reply)).
			WithProperty("is_final_chunk", openapi3.NewBoolSchema())
		s.Required = []string{"replies", "is_final_chunk"}
		return s
	}()

	historyResponseSchema = func() *openapi3.Schema {
		user := openapi3.NewObjectSchema().
			WithProperty("username", openapi3.NewStringSchema())
		user.Required = []string{"username"}

		participant := openapi3.NewObjectSchema().
			WithProperty("is_human", openapi3.NewBoolSchema()).
			WithProperty("user", user)
		participant.Required = []string{"is_human", "user"}

		s := openapi3.NewObjectSchema().
			WithProperty("external_id", openapi3.NewStringSchema()).
			WithProperty("participants", openapi3.NewArraySchema().WithItems(participant))
		s.Required = []string{"external_id", "participants"}
		return s
	}()

	messageHistorySchema = func() *openapi3.Schema {
		s := openapi3.NewObjectSchema().
			WithProperty("messages", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema())).
			WithProperty("has_more", openapi3.NewBoolSchema())
		s.Required = []string{"messages"}
		return s
	}()
)

// decodeValidated parses data, checks it against schema and decodes it into out.
// Invalid JSON and schema violations are ProtocolShapeErrors.
func decodeValidated(data []byte, schema *openapi3.Schema, what string, out any) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return errors.NewProtocolShapeError(what+" is not valid JSON", err)
	}
	if err := schema.VisitJSON(value); err != nil {
		return errors.NewProtocolShapeError(what+" does not match the expected shape", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewProtocolShapeError(what+" has mistyped fields", err)
	}
	return nil
}

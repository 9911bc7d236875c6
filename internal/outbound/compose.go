package outbound

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmehdipour/wa-relay/internal/model"
)

// ValidationError is a malformed send request. It maps to 400.
type ValidationError struct {
	Fields []string // missing fields, in request order
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	msg := "missing required field(s): " + strings.Join(e.Fields, ", ")
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func missing(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Compose derives the platform wire payload for req. It is the only place a
// payload for the messages endpoint is built.
func Compose(req Request) ([]byte, error) {
	switch r := req.(type) {
	case Text:
		return composeText(r)
	case Template:
		return composeTemplate(r)
	case Media:
		if _, err := ValidateMediaEnvelope(r.Payload); err != nil {
			return nil, err
		}
		return r.Payload, nil
	default:
		panic(fmt.Sprintf("outbound: unhandled request type %T", req))
	}
}

func composeText(r Text) ([]byte, error) {
	var fields []string
	if strings.TrimSpace(r.To) == "" {
		fields = append(fields, "to")
	}
	if strings.TrimSpace(r.Body) == "" {
		fields = append(fields, "message")
	}
	if len(fields) > 0 {
		return nil, missing(fields...)
	}

	return json.Marshal(model.TextPayload{
		MessagingProduct: model.MessagingProduct,
		To:               r.To,
		Type:             "text",
		Text:             model.TextBody{Body: r.Body},
	})
}

func composeTemplate(r Template) ([]byte, error) {
	var fields []string
	if strings.TrimSpace(r.To) == "" {
		fields = append(fields, "to")
	}
	if strings.TrimSpace(r.Name) == "" {
		fields = append(fields, "template_name")
	}
	if len(fields) > 0 {
		return nil, missing(fields...)
	}

	lang := strings.TrimSpace(r.Language)
	if lang == "" {
		lang = DefaultTemplateLanguage
	}

	body := model.TemplateBody{Name: r.Name, Language: model.TemplateLanguage{Code: lang}}
	if len(r.Params) > 0 {
		params := make([]model.TemplateParameter, len(r.Params))
		for i, p := range r.Params {
			params[i] = model.TemplateParameter{Type: "text", Text: p}
		}
		body.Components = []model.TemplateComponent{{Type: "body", Parameters: params}}
	}

	return json.Marshal(model.TemplatePayload{
		MessagingProduct: model.MessagingProduct,
		To:               r.To,
		Type:             "template",
		Template:         body,
	})
}

// ValidateMediaEnvelope checks that payload is a JSON object carrying
// messaging_product, to and type as non-empty strings. Media-specific fields
// are not inspected.
func ValidateMediaEnvelope(payload json.RawMessage) (model.MediaEnvelope, error) {
	var env model.MediaEnvelope
	if len(payload) == 0 || string(payload) == "null" {
		return env, missing("payload")
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, &ValidationError{Fields: []string{"payload"}, Reason: "payload must be a JSON object with string envelope fields"}
	}

	var fields []string
	if strings.TrimSpace(env.MessagingProduct) == "" {
		fields = append(fields, "messaging_product")
	}
	if strings.TrimSpace(env.To) == "" {
		fields = append(fields, "to")
	}
	if strings.TrimSpace(env.Type) == "" {
		fields = append(fields, "type")
	}
	if len(fields) > 0 {
		return env, missing(fields...)
	}
	return env, nil
}

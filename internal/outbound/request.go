package outbound

import (
	"encoding/json"
	"strings"

	"github.com/jmehdipour/wa-relay/internal/model"
)

// DefaultTemplateLanguage is used when a template request names no language.
const DefaultTemplateLanguage = "en"

type Kind string

const (
	KindText     Kind = "text"
	KindTemplate Kind = "template"
	KindMedia    Kind = "media"
)

// Request is one of Text, Template or Media. The set is closed.
type Request interface {
	Kind() Kind
	Key() string
	sealed()
}

type Text struct {
	RoutingKey string
	To         string
	Body       string
}

type Template struct {
	RoutingKey string
	To         string
	Name       string
	Language   string
	Params     []string // positional, order is kept
}

// Media carries a payload that is already in platform shape.
type Media struct {
	RoutingKey string
	Payload    json.RawMessage
}

func (Text) Kind() Kind     { return KindText }
func (Template) Kind() Kind { return KindTemplate }
func (Media) Kind() Kind    { return KindMedia }

func (r Text) Key() string     { return r.RoutingKey }
func (r Template) Key() string { return r.RoutingKey }
func (r Media) Key() string    { return r.RoutingKey }

func (Text) sealed()     {}
func (Template) sealed() {}
func (Media) sealed()    {}

// Parse selects the variant of a /send body. Exactly one of message and
// template_name must be present; a present but empty value still selects
// its variant and fails later as a missing field.
func Parse(req model.SendRequest) (Request, error) {
	key := strings.TrimSpace(req.RoutingKey)
	hasText := req.Message != nil
	hasTemplate := req.TemplateName != nil

	switch {
	case hasText && hasTemplate:
		return nil, &ValidationError{Reason: "message and template_name are mutually exclusive"}
	case !hasText && !hasTemplate:
		fields := []string{"message|template_name"}
		if key == "" {
			fields = append([]string{"phone_number_id"}, fields...)
		}
		return nil, &ValidationError{Fields: fields}
	case key == "":
		return nil, missing("phone_number_id")
	case hasText:
		return Text{RoutingKey: key, To: req.To, Body: *req.Message}, nil
	default:
		return Template{
			RoutingKey: key,
			To:         req.To,
			Name:       *req.TemplateName,
			Language:   req.TemplateLanguage,
			Params:     req.TemplateParams,
		}, nil
	}
}

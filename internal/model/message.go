package model

import "encoding/json"

const MessagingProduct = "whatsapp"

// SendRequest is the body accepted on POST /send.
// Message and TemplateName are pointers so that presence can be told apart from empty.
type SendRequest struct {
	RoutingKey       string   `json:"phone_number_id"`
	To               string   `json:"to"`
	Message          *string  `json:"message,omitempty"`
	TemplateName     *string  `json:"template_name,omitempty"`
	TemplateLanguage string   `json:"template_language,omitempty"`
	TemplateParams   []string `json:"template_params,omitempty"`
}

// SendMediaRequest is the body accepted on POST /send-media.
type SendMediaRequest struct {
	RoutingKey string          `json:"phone_number_id"`
	Payload    json.RawMessage `json:"payload"`
}

// ---- platform wire format (messages endpoint) ----

type TextPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             TextBody `json:"text"`
}

type TextBody struct {
	Body string `json:"body"`
}

type TemplatePayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         TemplateBody `json:"template"`
}

type TemplateBody struct {
	Name       string              `json:"name"`
	Language   TemplateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type TemplateLanguage struct {
	Code string `json:"code"`
}

type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters"`
}

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MediaEnvelope is the minimal structure a pre-built media payload must carry.
type MediaEnvelope struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
}

// MediaInfo is the platform response for a media id lookup.
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

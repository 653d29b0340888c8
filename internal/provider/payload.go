package provider

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
)

// TemplateRequest sends an approved template to one recipient.
type TemplateRequest struct {
	To           string
	TemplateName string
	LanguageCode string
	Components   []Component
}

// TextRequest sends free text; only valid inside an open conversation window.
type TextRequest struct {
	To         string
	Body       string
	PreviewURL bool
}

type Component struct {
	Type       string      `json:"type"`               // header, body, button
	SubType    string      `json:"sub_type,omitempty"` // buttons only: quick_reply, url
	Index      *int        `json:"index,omitempty"`    // buttons only
	Parameters []Parameter `json:"parameters,omitempty"`
}

type Parameter struct {
	Type    string `json:"type"` // text, payload, image, ...
	Text    string `json:"text,omitempty"`
	Payload string `json:"payload,omitempty"`
}

// BodyComponent builds a body component from positional text parameters.
func BodyComponent(values ...string) Component {
	params := make([]Parameter, 0, len(values))
	for _, v := range values {
		params = append(params, Parameter{Type: "text", Text: v})
	}
	return Component{Type: "body", Parameters: params}
}

type SendResult struct {
	MessageIDs []string `json:"message_ids"`
	Simulated  bool     `json:"simulated,omitempty"`
}

// MessageID returns the first provider message id.
func (r *SendResult) MessageID() string {
	if r == nil || len(r.MessageIDs) == 0 {
		return ""
	}
	return r.MessageIDs[0]
}

// wire shapes

type messagePayload struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         *templatePayload `json:"template,omitempty"`
	Text             *textPayload     `json:"text,omitempty"`
}

type templatePayload struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

type language struct {
	Code string `json:"code"`
}

type textPayload struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

func templateMessage(req TemplateRequest) *messagePayload {
	return &messagePayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               req.To,
		Type:             "template",
		Template: &templatePayload{
			Name:       req.TemplateName,
			Language:   language{Code: req.LanguageCode},
			Components: req.Components,
		},
	}
}

func textMessage(req TextRequest) *messagePayload {
	return &messagePayload{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               req.To,
		Type:             "text",
		Text:             &textPayload{Body: req.Body, PreviewURL: req.PreviewURL},
	}
}

// NormalizePhone returns the number in international format without leading symbols,
// e.g. "+44 7911 123456" and "0044 7911 123456" both become "447911123456".
func NormalizePhone(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		s = "+" + s
	}
	num, err := phonenumbers.Parse(s, "ZZ")
	if err != nil {
		return "", &appErrors.InvalidPhoneError{Phone: raw, Err: err}
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", &appErrors.InvalidPhoneError{Phone: raw, Err: fmt.Errorf("not a possible number")}
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}

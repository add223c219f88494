package meta

import "encoding/json"

// Webhook envelope as delivered by the WhatsApp Business Platform. Only the
// parts this service consumes are modeled; unknown message types keep their
// raw JSON for auditing.

type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         ChannelMetadata  `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []IncomingMessage `json:"messages,omitempty"`
	Statuses         []MessageStatus   `json:"statuses,omitempty"`
}

type ChannelMetadata struct {
	PhoneNumberID      string `json:"phone_number_id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type IncomingMessage struct {
	ID        string        `json:"id"`
	From      string        `json:"from"`
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Text      *TextBody     `json:"text,omitempty"`
	Image     *MediaBody    `json:"image,omitempty"`
	Audio     *MediaBody    `json:"audio,omitempty"`
	Document  *MediaBody    `json:"document,omitempty"`
	Video     *MediaBody    `json:"video,omitempty"`
	Sticker   *MediaBody    `json:"sticker,omitempty"`
	Context   *ReplyContext `json:"context,omitempty"`

	// Raw keeps the verbatim message for types this service does not model.
	Raw json.RawMessage `json:"-"`
}

type TextBody struct {
	Body string `json:"body"`
}

type MediaBody struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Filename string `json:"filename,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type ReplyContext struct {
	From string `json:"from,omitempty"`
	ID   string `json:"id"`
}

// UnmarshalJSON keeps the verbatim bytes next to the decoded fields.
func (m *IncomingMessage) UnmarshalJSON(data []byte) error {
	type alias IncomingMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = IncomingMessage(a)
	m.Raw = append([]byte(nil), data...)
	return nil
}

// Media returns the media block matching the message type, if any.
func (m *IncomingMessage) Media() *MediaBody {
	switch m.Type {
	case "image":
		return m.Image
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	case "video":
		return m.Video
	case "sticker":
		return m.Sticker
	}
	return nil
}

type MessageStatus struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Timestamp   string        `json:"timestamp"`
	RecipientID string        `json:"recipient_id"`
	Errors      []StatusError `json:"errors,omitempty"`
}

type StatusError struct {
	Code      int    `json:"code"`
	Title     string `json:"title"`
	Message   string `json:"message,omitempty"`
	ErrorData *struct {
		Details string `json:"details"`
	} `json:"error_data,omitempty"`
}

// Outbound send payloads.

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             TextBody `json:"text"`
}

type sendTemplateRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Template         templatePayload `json:"template"`
}

type templatePayload struct {
	Name     string           `json:"name"`
	Language templateLanguage `json:"language"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type sendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error graphError `json:"error"`
}

type graphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode,omitempty"`
	ErrorData *struct {
		Details string `json:"details"`
	} `json:"error_data,omitempty"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

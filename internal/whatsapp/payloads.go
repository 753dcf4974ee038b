package whatsapp

import (
	"errors"
	"strings"
)

// Button is one quick-reply option. WhatsApp caps interactive messages at
// three buttons; senders needing more use SendList.
type Button struct {
	ID    string
	Title string
}

// ListRow is one selectable row of a list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under an optional header.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// SendResult carries the provider-assigned id of an accepted message.
type SendResult struct {
	MessageID string
}

type textRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type interactiveRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	RecipientType    string          `json:"recipient_type"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Interactive      interactiveBody `json:"interactive"`
}

type interactiveBody struct {
	Type   string             `json:"type"`
	Header *interactiveHeader `json:"header,omitempty"`
	Body   interactiveText    `json:"body"`
	Footer *interactiveText   `json:"footer,omitempty"`
	Action interactiveAction  `json:"action"`
}

type interactiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type interactiveText struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Buttons  []interactiveButton `json:"buttons,omitempty"`
	Button   string              `json:"button,omitempty"`
	Sections []listSectionBody   `json:"sections,omitempty"`
}

type interactiveButton struct {
	Type  string      `json:"type"`
	Reply buttonReply `json:"reply"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type listSectionBody struct {
	Title string        `json:"title,omitempty"`
	Rows  []listRowBody `json:"rows"`
}

type listRowBody struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type markReadRequest struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type mediaResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

func validateRecipient(to string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("whatsapp: recipient phone required")
	}
	return nil
}

func validateButtons(buttons []Button) error {
	if len(buttons) == 0 {
		return errors.New("whatsapp: at least one button required")
	}
	if len(buttons) > 3 {
		return errors.New("whatsapp: interactive messages allow at most 3 buttons")
	}
	for _, b := range buttons {
		if strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.Title) == "" {
			return errors.New("whatsapp: button id and title required")
		}
	}
	return nil
}

func validateSections(sections []ListSection) error {
	if len(sections) == 0 {
		return errors.New("whatsapp: at least one list section required")
	}
	total := 0
	for _, s := range sections {
		total += len(s.Rows)
		for _, row := range s.Rows {
			if strings.TrimSpace(row.ID) == "" || strings.TrimSpace(row.Title) == "" {
				return errors.New("whatsapp: list row id and title required")
			}
		}
	}
	if total == 0 {
		return errors.New("whatsapp: list sections need at least one row")
	}
	if total > 10 {
		return errors.New("whatsapp: list messages allow at most 10 rows")
	}
	return nil
}

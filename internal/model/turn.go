package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	PartTypeText  = "text"
	PartTypeImage = "image_url"
)

// MediaOnlyPlaceholder stands in for the query text when a turn carries no text part.
const MediaOnlyPlaceholder = "User sent media without text"

type ImageURL struct {
	URL string `json:"url"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Content is either plain text or a list of multimodal parts. The JSON form is a
// string in the first case and an array in the second.
type Content struct {
	Text  string
	Parts []ContentPart
}

func TextContent(text string) Content {
	return Content{Text: text}
}

func PartsContent(parts ...ContentPart) Content {
	return Content{Parts: parts}
}

func (c Content) IsMultiModal() bool {
	return c.Parts != nil
}

// PlainText returns the string content, or the first text part of a multimodal
// content. ok is false when there is no text at all.
func (c Content) PlainText() (string, bool) {
	if !c.IsMultiModal() {
		return c.Text, true
	}
	for _, p := range c.Parts {
		if p.Type == PartTypeText {
			return p.Text, true
		}
	}
	return "", false
}

func (c Content) HasImage() bool {
	for _, p := range c.Parts {
		if p.Type == PartTypeImage {
			return true
		}
	}
	return false
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsMultiModal() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = Content{Text: s}
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		if parts == nil {
			parts = []ContentPart{}
		}
		*c = Content{Parts: parts}
		return nil
	default:
		return errors.New("content must be a string or an array of parts")
	}
}

type ChatTurn struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// QueryText extracts the plain-text query of a turn, falling back to the media
// placeholder when the turn has no text part.
func (t ChatTurn) QueryText() string {
	text, ok := t.Content.PlainText()
	if !ok {
		return MediaOnlyPlaceholder
	}
	return text
}

// WithContent returns a copy of the turn carrying new plain-text content. Image
// parts of a multimodal turn are kept after the replaced text.
func (t ChatTurn) WithContent(text string) ChatTurn {
	if !t.Content.IsMultiModal() {
		return ChatTurn{Role: t.Role, Content: TextContent(text)}
	}
	parts := make([]ContentPart, 0, len(t.Content.Parts)+1)
	parts = append(parts, ContentPart{Type: PartTypeText, Text: text})
	for _, p := range t.Content.Parts {
		if p.Type != PartTypeText {
			parts = append(parts, p)
		}
	}
	return ChatTurn{Role: t.Role, Content: PartsContent(parts...)}
}

// RedactImages replaces every image part with a text marker.
func RedactImages(turns []ChatTurn) []ChatTurn {
	out := make([]ChatTurn, len(turns))
	for i, t := range turns {
		if !t.Content.IsMultiModal() {
			out[i] = t
			continue
		}
		parts := make([]ContentPart, len(t.Content.Parts))
		for j, p := range t.Content.Parts {
			if p.Type == PartTypeImage {
				parts[j] = ContentPart{Type: PartTypeText, Text: "[Image]"}
				continue
			}
			parts[j] = p
		}
		out[i] = ChatTurn{Role: t.Role, Content: PartsContent(parts...)}
	}
	return out
}

// DeriveTitle names a new session after its first user text turn.
func DeriveTitle(turns []ChatTurn) string {
	sawMedia := false
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		text, ok := t.Content.PlainText()
		text = strings.TrimSpace(text)
		if ok && text != "" {
			runes := []rune(text)
			if len(runes) > 30 {
				runes = runes[:30]
			}
			return string(runes)
		}
		if t.Content.HasImage() {
			sawMedia = true
		}
	}
	if sawMedia {
		return "File Analysis"
	}
	return "New Chat"
}

package model

import (
	"encoding/json"
	"testing"
)

func TestChatTurnUnmarshalStringContent(t *testing.T) {
	var turn ChatTurn
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &turn); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if turn.Content.IsMultiModal() {
		t.Fatalf("expected plain text content")
	}
	if got := turn.QueryText(); got != "hello" {
		t.Fatalf("query text: got=%q want=%q", got, "hello")
	}
}

func TestChatTurnUnmarshalParts(t *testing.T) {
	raw := `{"role":"user","content":[{"type":"image_url","image_url":{"url":"data:image/png;base64,AA"}},{"type":"text","text":"what is this"}]}`
	var turn ChatTurn
	if err := json.Unmarshal([]byte(raw), &turn); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !turn.Content.IsMultiModal() || len(turn.Content.Parts) != 2 {
		t.Fatalf("expected 2 parts, got %+v", turn.Content)
	}
	if got := turn.QueryText(); got != "what is this" {
		t.Fatalf("query text: got=%q", got)
	}

	out, err := json.Marshal(turn)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("unmarshal back: %v", err)
	}
	if _, ok := back["content"].([]any); !ok {
		t.Fatalf("content should stay an array, got %T", back["content"])
	}
}

func TestChatTurnMediaOnlyPlaceholder(t *testing.T) {
	turn := ChatTurn{Role: RoleUser, Content: PartsContent(ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: "x"}})}
	if got := turn.QueryText(); got != MediaOnlyPlaceholder {
		t.Fatalf("got=%q want=%q", got, MediaOnlyPlaceholder)
	}
}

func TestContentRejectsObject(t *testing.T) {
	var c Content
	if err := json.Unmarshal([]byte(`{"text":"x"}`), &c); err == nil {
		t.Fatalf("expected error for object content")
	}
}

func TestWithContentKeepsImages(t *testing.T) {
	turn := ChatTurn{Role: RoleUser, Content: PartsContent(
		ContentPart{Type: PartTypeText, Text: "old"},
		ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: "img"}},
	)}
	got := turn.WithContent("new")
	if text, _ := got.Content.PlainText(); text != "new" {
		t.Fatalf("text: got=%q", text)
	}
	if !got.Content.HasImage() {
		t.Fatalf("image part dropped")
	}
	if text, _ := turn.Content.PlainText(); text != "old" {
		t.Fatalf("original turn mutated: %q", text)
	}
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name  string
		turns []ChatTurn
		want  string
	}{
		{"empty", nil, "New Chat"},
		{"short", []ChatTurn{{Role: RoleUser, Content: TextContent("hi there")}}, "hi there"},
		{"long", []ChatTurn{{Role: RoleUser, Content: TextContent("abcdefghijklmnopqrstuvwxyz0123456789")}}, "abcdefghijklmnopqrstuvwxyz0123"},
		{"media", []ChatTurn{{Role: RoleUser, Content: PartsContent(ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: "x"}})}}, "File Analysis"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.turns); got != tc.want {
				t.Fatalf("got=%q want=%q", got, tc.want)
			}
		})
	}
}

func TestRedactImages(t *testing.T) {
	turns := []ChatTurn{{Role: RoleUser, Content: PartsContent(
		ContentPart{Type: PartTypeText, Text: "look"},
		ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: "secret"}},
	)}}
	out := RedactImages(turns)
	if out[0].Content.HasImage() {
		t.Fatalf("image not redacted")
	}
	if !turns[0].Content.HasImage() {
		t.Fatalf("input mutated")
	}
}

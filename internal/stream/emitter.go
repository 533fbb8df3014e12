package stream

import (
	"encoding/json"
	"net/http"
	"strings"
)

const (
	ContentTypeText   = "text/plain; charset=utf-8"
	ContentTypeNDJSON = "application/x-ndjson"
)

// NewEmitter picks the wire format from the Accept header. Raw text is the default.
func NewEmitter(w http.ResponseWriter, accept string) Emitter {
	if strings.Contains(strings.ToLower(accept), ContentTypeNDJSON) {
		return NewNDJSONEmitter(w)
	}
	return NewTextEmitter(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func setStreamHeaders(w http.ResponseWriter, contentType string) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// TextEmitter writes bare text bytes. It cannot frame a failure; the caller
// has to break the connection instead.
type TextEmitter struct {
	w http.ResponseWriter
}

func NewTextEmitter(w http.ResponseWriter) *TextEmitter {
	return &TextEmitter{w: w}
}

func (e *TextEmitter) Open() error {
	setStreamHeaders(e.w, ContentTypeText)
	e.w.WriteHeader(http.StatusOK)
	flush(e.w)
	return nil
}

func (e *TextEmitter) WriteDelta(text string) error {
	if _, err := e.w.Write([]byte(text)); err != nil {
		return err
	}
	flush(e.w)
	return nil
}

func (e *TextEmitter) Finish() error { return nil }

func (e *TextEmitter) Fail(error) error { return nil }

type Frame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// NDJSONEmitter writes one JSON frame per line so clients can tell a finished
// stream from a dropped one.
type NDJSONEmitter struct {
	w   http.ResponseWriter
	enc *json.Encoder
}

func NewNDJSONEmitter(w http.ResponseWriter) *NDJSONEmitter {
	return &NDJSONEmitter{w: w, enc: json.NewEncoder(w)}
}

func (e *NDJSONEmitter) Open() error {
	setStreamHeaders(e.w, ContentTypeNDJSON)
	e.w.WriteHeader(http.StatusOK)
	flush(e.w)
	return nil
}

func (e *NDJSONEmitter) write(f Frame) error {
	if err := e.enc.Encode(f); err != nil {
		return err
	}
	flush(e.w)
	return nil
}

func (e *NDJSONEmitter) WriteDelta(text string) error {
	return e.write(Frame{Type: "delta", Text: text})
}

func (e *NDJSONEmitter) Finish() error {
	return e.write(Frame{Type: "done"})
}

func (e *NDJSONEmitter) Fail(err error) error {
	return e.write(Frame{Type: "error", Error: err.Error()})
}

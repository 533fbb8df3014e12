package ai

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// ChatStream reads text deltas from an SSE completion body.
type ChatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner

	finished  atomic.Bool
	closed    atomic.Bool
	aborted   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func NewChatStream(body io.ReadCloser) *ChatStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	return &ChatStream{body: body, scanner: scanner}
}

// Recv returns the next non-empty delta. It returns io.EOF once the provider
// signals completion or the body ends.
func (s *ChatStream) Recv() (string, error) {
	if s.finished.Load() {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.finished.Store(true)
			return "", io.EOF
		}

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
			Error *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return "", &ProviderError{Body: chunk.Error.Message}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		if s.closed.Load() {
			return "", ErrStreamClosed
		}
		return "", fmt.Errorf("scan llm stream failed: %w", err)
	}
	if s.closed.Load() {
		return "", ErrStreamClosed
	}
	s.finished.Store(true)
	return "", io.EOF
}

// Close releases the upstream body. Closing before io.EOF marks the stream aborted.
func (s *ChatStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if !s.finished.Load() {
			s.aborted.Store(true)
		}
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

func (s *ChatStream) Aborted() bool {
	return s.aborted.Load()
}

var ErrStreamClosed = errors.New("llm stream closed")

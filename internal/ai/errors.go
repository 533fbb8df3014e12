package ai

import "fmt"

// ProviderError is a failure reported by the completion provider, either as a
// non-2xx status before streaming or as an error payload mid-stream (StatusCode 0).
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("llm stream error: %s", e.Body)
	}
	return fmt.Sprintf("llm response status %d: %s", e.StatusCode, e.Body)
}

type EmbeddingError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *EmbeddingError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("embedding failed: %s: %v", e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("embedding response status %d: %s", e.StatusCode, e.Message)
	default:
		return "embedding failed: " + e.Message
	}
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

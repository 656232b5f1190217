package tts

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredential = errors.New("tts provider credential missing")
	ErrEmptyAudio        = errors.New("tts provider returned empty audio")
	ErrUnknownProvider   = errors.New("unknown tts provider")
)

// maxBodyInError bounds how much of a provider response body is kept in a
// ProviderError. Provider error pages can be large; the job error list only
// needs the lead of the message.
const maxBodyInError = 512

// ProviderError reports a non-2xx response from a TTS backend. The body is
// truncated to maxBodyInError bytes.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Body)
}

// NewProviderError builds a ProviderError, truncating the body.
func NewProviderError(provider string, statusCode int, body []byte) *ProviderError {
	b := string(body)
	if len(b) > maxBodyInError {
		b = b[:maxBodyInError]
	}
	return &ProviderError{Provider: provider, StatusCode: statusCode, Body: b}
}

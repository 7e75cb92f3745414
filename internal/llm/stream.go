package llm

import "context"

// Stream carries completion tokens from a connector's producer goroutine to
// the consumer. Tokens() closes when the provider signals end-of-stream or
// fails; Err() is only meaningful after that close.
type Stream struct {
	tokens chan string
	err    error
}

// NewStream builds an open stream. The connector producing into it must call
// Close exactly once when the provider finishes or fails.
func NewStream() *Stream {
	return &Stream{tokens: make(chan string, 32)}
}

// Tokens returns the token channel. It is closed exactly once, after which
// Err reports how the stream ended.
func (s *Stream) Tokens() <-chan string {
	return s.tokens
}

// Err returns the terminal error, or nil for a clean end-of-stream. Callers
// must drain Tokens() before reading it.
func (s *Stream) Err() error {
	return s.err
}

// Send delivers one token, honoring cancellation. It reports false when the
// context ended before the consumer took the token.
func (s *Stream) Send(ctx context.Context, token string) bool {
	select {
	case s.tokens <- token:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close records the terminal error and closes the token channel. The err
// write happens before the close, so consumers observing the closed channel
// see it without further synchronization.
func (s *Stream) Close(err error) {
	s.err = err
	close(s.tokens)
}

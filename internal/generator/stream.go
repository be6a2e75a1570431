package generator

import (
	"context"
	"io"
	"sync"

	"knowledgehub/internal/domain"
)

// Generator produces answers grounded in retrieved chunks.
type Generator interface {
	Generate(ctx context.Context, question string, chunks []domain.SearchResult, systemPrompt string) (domain.Answer, error)
	Stream(ctx context.Context, question string, chunks []domain.SearchResult, systemPrompt string) (*Stream, error)
	Analyze(ctx context.Context, text string, maxChars int) (domain.Analysis, error)
	Model() string
}

// Stream yields answer text in order. Recv returns io.EOF once the answer is
// complete. After Close, Recv returns domain.ErrStreamCancelled. A Stream is
// not restartable.
type Stream struct {
	next  func() (string, error)
	close func() error

	mu     sync.Mutex
	closed bool
	done   bool
}

func newStream(next func() (string, error), close func() error) *Stream {
	return &Stream{next: next, close: close}
}

// Recv returns the next non-empty delta.
func (s *Stream) Recv() (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", domain.ErrStreamCancelled
	}
	if s.done {
		s.mu.Unlock()
		return "", io.EOF
	}
	s.mu.Unlock()

	for {
		delta, err := s.next()
		s.mu.Lock()
		closed := s.closed
		if err == io.EOF {
			s.done = true
		}
		s.mu.Unlock()
		if closed {
			return "", domain.ErrStreamCancelled
		}
		if err != nil {
			return "", err
		}
		if delta != "" {
			return delta, nil
		}
	}
}

// Close releases the underlying connection. It is safe to call more than once
// and from another goroutine than Recv.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.close != nil {
		return s.close()
	}
	return nil
}

// Collect drains s into a single string.
func Collect(ctx context.Context, s *Stream) (string, error) {
	defer s.Close()
	var out []byte
	for {
		if err := ctx.Err(); err != nil {
			return string(out), err
		}
		delta, err := s.Recv()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, delta...)
	}
}

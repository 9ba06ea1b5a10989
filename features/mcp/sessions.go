package mcp

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// sessionHub maps SSE session ids to their outbound message queues.
type sessionHub struct {
	mu      sync.RWMutex
	streams map[string]chan string
}

func newSessionHub() *sessionHub {
	return &sessionHub{streams: make(map[string]chan string)}
}

// open registers a new session and returns its id and queue.
func (s *sessionHub) open() (string, <-chan string) {
	id := uuid.New().String()
	ch := make(chan string, sessionBuffer)

	s.mu.Lock()
	s.streams[id] = ch
	s.mu.Unlock()
	return id, ch
}

func (s *sessionHub) close(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.streams[id]; ok {
		delete(s.streams, id)
		close(ch)
	}
}

func (s *sessionHub) exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.streams[id]
	return ok
}

// deliver queues msg without blocking. It holds the read lock while sending
// so close cannot race the send.
func (s *sessionHub) deliver(ctx context.Context, id, msg string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.streams[id]
	if !ok {
		slog.WarnContext(ctx, "session closed before response", "session_id", id)
		return
	}
	select {
	case ch <- msg:
	default:
		slog.WarnContext(ctx, "session queue full, dropping message", "session_id", id)
	}
}

package source

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionClosed    = errors.New("recording session already stopped")
	ErrRecordingTooLong = errors.New("recording exceeds the session byte budget")
	ErrSessionNotFound  = errors.New("recording session not found")
)

// RecordingSession is a bounded live-capture session. Media chunks are
// buffered in arrival order and concatenated into one payload on stop.
type RecordingSession struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	maxBytes int64
	chunks   [][]byte
	total    int64
	stopped  bool
}

// Append buffers one media chunk. Empty chunks are ignored.
func (s *RecordingSession) Append(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSessionClosed
	}
	if s.total+int64(len(chunk)) > s.maxBytes {
		return ErrRecordingTooLong
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
	s.total += int64(len(chunk))
	return nil
}

// Stop closes the session and returns the concatenated payload. Stopping an
// already-stopped session returns the same payload again.
func (s *RecordingSession) Stop() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true

	out := make([]byte, 0, s.total)
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}

// Stats returns the chunk count and buffered byte total.
func (s *RecordingSession) Stats() (int, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks), s.total
}

// SessionRegistry tracks open recording sessions by ID.
type SessionRegistry struct {
	mu       sync.Mutex
	maxBytes int64
	sessions map[string]*RecordingSession
}

// NewSessionRegistry creates a registry whose sessions share one byte budget.
func NewSessionRegistry(maxBytes int64) *SessionRegistry {
	return &SessionRegistry{
		maxBytes: maxBytes,
		sessions: make(map[string]*RecordingSession),
	}
}

// Start opens a new recording session.
func (r *SessionRegistry) Start() *RecordingSession {
	sess := &RecordingSession{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		maxBytes:  r.maxBytes,
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	return sess
}

// Get returns an open session by ID.
func (r *SessionRegistry) Get(id string) (*RecordingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Remove drops a session from the registry, typically after its payload has
// been acquired as a VideoSource.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

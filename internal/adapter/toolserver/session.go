package toolserver

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// sessionState tracks the protocol handshake per connection:
// CONNECTED -> INITIALIZED -> READY, then CLOSED on disconnect.
type sessionState int

const (
	stateConnected sessionState = iota
	stateInitialized
	stateReady
	stateClosed
)

var errSessionClosed = errors.New("session closed")

// session is one client connection: its handshake state and the
// outbound queue drained by the event stream.
type session struct {
	id    string
	queue chan rpcResponse

	mu     sync.Mutex
	state  sessionState
	closed bool
}

func newSession(queueCapacity int) *session {
	if queueCapacity < 1 {
		queueCapacity = 16
	}
	return &session{
		id:    uuid.NewString(),
		queue: make(chan rpcResponse, queueCapacity),
	}
}

// enqueue buffers a response for delivery over the session stream.
// Returns errSessionClosed once the session is torn down.
func (s *session) enqueue(resp rpcResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	select {
	case s.queue <- resp:
		return nil
	default:
		return errors.New("session queue full")
	}
}

// close tears the session down and disposes its queue. Safe to call
// more than once.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.state = stateClosed
	close(s.queue)
}

func (s *session) setState(st sessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.state = st
	}
}

func (s *session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// sessionRegistry tracks live sessions by token.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) add(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

func (r *sessionRegistry) get(id string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// remove deletes and closes the session. Idempotent.
func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.close()
	}
}

func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

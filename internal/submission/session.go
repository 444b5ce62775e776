package submission

import (
	"sync"

	"github.com/google/uuid"
)

// State is where a session sits in the staging protocol.
type State string

const (
	StateInit   State = "INIT"
	StateStaged State = "STAGED"
	StateDone   State = "DONE"
)

// Session holds the staging state for one signup. It is shared by reference
// between the wizard and the client.
type Session struct {
	ID string

	mu          sync.Mutex
	state       State
	affiliateID string
}

func NewSession() *Session {
	return &Session{ID: uuid.New().String(), state: StateInit}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AffiliateID is empty until Stage A succeeds.
func (s *Session) AffiliateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.affiliateID
}

// stage records the affiliate id. Only the first id is kept.
func (s *Session) stage(affiliateID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInit || affiliateID == "" {
		return false
	}
	s.affiliateID = affiliateID
	s.state = StateStaged
	return true
}

// Complete marks the session finished. Further final submissions are refused.
func (s *Session) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDone
}

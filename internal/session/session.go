// Package session holds in-progress admin wizard state. Sessions are
// process-local and deliberately unpersisted: a restart drops every
// in-flight wizard.
package session

import (
	"errors"
	"sync"
)

// ErrActive is returned by Begin when the owner already has a wizard in
// progress.
var ErrActive = errors.New("session: a wizard is already active")

// Flow names a wizard variant.
type Flow string

const (
	FlowStoreAccount Flow = "store_account"
	FlowAdjustDate   Flow = "adjust_date"
)

// Step is the current prompt a session is waiting on.
type Step string

const (
	StepAskAccountKey Step = "ask_account_key"
	StepAskPlanName   Step = "ask_plan_name"
	StepAskPlanPrice  Step = "ask_plan_price"
	StepAskMorePlans  Step = "ask_more_plans"
	StepAskEmail      Step = "ask_email"
	StepAskPassword   Step = "ask_password"

	StepAskUser    Step = "ask_user"
	StepAskAccount Step = "ask_account"
	StepAskDate    Step = "ask_date"
)

// AccountDraft accumulates the record the store-account wizard is
// building. PendingPlan holds a plan name waiting for its price.
type AccountDraft struct {
	Key         string
	Plans       map[string]float64
	PendingPlan string
	Email       string
}

// DateDraft accumulates the target of a date-correction wizard.
type DateDraft struct {
	UserID     int64
	AccountKey string
}

// Session is one owner's in-progress wizard. Mutation is last-write-wins
// per owner; handlers for a single chat run effectively sequentially.
type Session struct {
	OwnerID int64
	Flow    Flow
	Step    Step
	Draft   AccountDraft
	Date    DateDraft
}

// Store maps operator chat IDs to their active session. Injected as a
// constructor dependency so tests get a fresh instance per case.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Begin creates a session for the owner. Starting a second wizard while
// one is active is rejected rather than silently overwriting it.
func (s *Store) Begin(ownerID int64, flow Flow, step Step) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[ownerID]; ok {
		return nil, ErrActive
	}

	sess := &Session{OwnerID: ownerID, Flow: flow, Step: step}
	s.sessions[ownerID] = sess
	return sess, nil
}

// Get returns the owner's active session, if any.
func (s *Store) Get(ownerID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ownerID]
	return sess, ok
}

// End deletes the owner's session. Reports whether one existed.
func (s *Store) End(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[ownerID]
	delete(s.sessions, ownerID)
	return ok
}

package controlplane

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sven-run/sven/internal/agent"
	"github.com/sven-run/sven/internal/approval"
	"github.com/sven-run/sven/pkg/models"
)

// DefaultApprovalTTL bounds how long an ApprovalRequest stays Pending
// before it is treated as expired, mirroring the teacher's
// DefaultApprovalPolicy.RequestTTL.
const DefaultApprovalTTL = 5 * time.Minute

// AgentFactory builds a fresh Agent for a new session, wired to approver
// for Ask-policy tool calls. Bootstrap supplies the concrete
// implementation, closing over the shared provider, registry, and policy
// every control-plane session reuses.
type AgentFactory func(mode models.AgentMode, workingDir string, approver agent.ApprovalRequester) (*agent.Agent, error)

// approverFunc adapts a plain function to agent.ApprovalRequester.
type approverFunc func(ctx context.Context, toolName string, call models.ToolCall) (bool, error)

func (f approverFunc) RequestApproval(ctx context.Context, toolName string, call models.ToolCall) (bool, error) {
	return f(ctx, toolName, call)
}

// Subscriber receives every ControlEvent broadcast by the sessions it has
// subscribed to (§4.8's "subscription is implicit on connection" for
// WebSocket, explicit Subscribe/Unsubscribe for P2P).
type Subscriber struct {
	events  chan ControlEvent
	dropped atomic.Int64
}

// Events returns the channel events arrive on.
func (s *Subscriber) Events() <-chan ControlEvent { return s.events }

// Session wraps one Agent with the §4.8 state machine and its connected
// subscribers.
type Session struct {
	ID   string
	Mode string

	ag *agent.Agent

	store approval.ApprovalStore
	ttl   time.Duration

	mu          sync.Mutex
	state       SessionState
	subscribers map[*Subscriber]struct{}
	approvals   map[string]chan bool
	cancel      context.CancelFunc
}

func newSession(id string, mode models.AgentMode, ag *agent.Agent, store approval.ApprovalStore, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultApprovalTTL
	}
	return &Session{
		ID:          id,
		Mode:        string(mode),
		ag:          ag,
		store:       store,
		ttl:         ttl,
		state:       StateIdle,
		subscribers: make(map[*Subscriber]struct{}),
		approvals:   make(map[string]chan bool),
	}
}

// State returns the session's current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.broadcast(ControlEvent{Kind: EvtSessionState, SessionID: s.ID, State: state})
}

// Subscribe registers a new Subscriber for this session's events.
func (s *Session) Subscribe() *Subscriber {
	sub := &Subscriber{events: make(chan ControlEvent, 64)}
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (s *Session) Unsubscribe(sub *Subscriber) {
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
	close(sub.events)
}

// broadcast never blocks the turn on a slow subscriber: a full channel
// drops the event. Once that happens, it also evicts the subscriber's
// oldest buffered event to make room for a gateway_error{code:503} signal,
// so a lagging operator client learns it missed output instead of silently
// falling behind the session's real state.
func (s *Session) broadcast(evt ControlEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers {
		select {
		case sub.events <- evt:
		default:
			n := sub.dropped.Add(1)
			select {
			case <-sub.events:
			default:
			}
			select {
			case sub.events <- ControlEvent{
				Kind:      EvtGatewayError,
				SessionID: s.ID,
				Code:      "503",
				Message:   fmt.Sprintf("subscriber lagged, dropped %d event(s)", n),
			}:
			default:
			}
		}
	}
}

// SendInput submits text to the session's Agent, translating every engine
// Event into a ControlEvent broadcast to subscribers (§4.8 "SendInput ->
// running"). It blocks until the turn completes, is cancelled, or a tool
// requires approval and is decided.
func (s *Session) SendInput(ctx context.Context, text string) error {
	if s.State().Terminal() {
		return fmt.Errorf("controlplane: session %s is %s, cannot accept input", s.ID, s.State())
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	s.setState(StateRunning)

	sink := agent.NewCallbackSink(func(_ context.Context, e agent.Event) {
		s.onAgentEvent(e)
	})

	_, err := s.ag.Submit(runCtx, text, sink)
	if err != nil {
		s.broadcast(ControlEvent{Kind: EvtAgentError, SessionID: s.ID, Message: err.Error()})
	}

	if s.State() != StateCancelled {
		s.setState(StateIdle)
	}
	return err
}

func (s *Session) onAgentEvent(e agent.Event) {
	switch e.Kind {
	case agent.EventTextDelta:
		s.broadcast(ControlEvent{Kind: EvtOutputDelta, SessionID: s.ID, Delta: e.Text, Role: "assistant"})
	case agent.EventTextComplete:
		s.broadcast(ControlEvent{Kind: EvtOutputComplete, SessionID: s.ID, Text: e.Text, Role: "assistant"})
	case agent.EventToolCallStarted:
		s.broadcast(ControlEvent{Kind: EvtToolCall, SessionID: s.ID, CallID: e.CallID, ToolName: e.ToolName})
	case agent.EventToolCallFinished:
		s.broadcast(ControlEvent{Kind: EvtToolResult, SessionID: s.ID, CallID: e.CallID, ToolName: e.ToolName, Output: e.Output, IsError: e.IsError})
	case agent.EventError:
		s.broadcast(ControlEvent{Kind: EvtAgentError, SessionID: s.ID, Message: e.Err})
	}
}

// Cancel aborts the in-flight turn, if any, and moves the session to the
// terminal Cancelled state (§4.8: "CancelSession -> cancelled").
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.setState(StateCancelled)
}

// awaitApproval blocks until callID is approved, denied, or expires,
// broadcasting ToolNeedsApproval and moving to the AwaitingApproval state
// while it waits (§4.8: "tool needing approval -> awaiting_approval"). It
// persists a durable ApprovalRequest record to s.store for the duration so
// ApproveTool/DenyTool can resolve it asynchronously and an operator can
// list what is still pending.
func (s *Session) awaitApproval(ctx context.Context, toolName string, call models.ToolCall) (bool, error) {
	decision := make(chan bool, 1)
	s.mu.Lock()
	s.approvals[call.ID] = decision
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.approvals, call.ID)
		s.mu.Unlock()
	}()

	req := &approval.ApprovalRequest{
		ID:        approvalRequestID(s.ID, call.ID),
		SessionID: s.ID,
		CallID:    call.ID,
		ToolName:  toolName,
		Command:   call.Args,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(s.ttl),
		Decision:  approval.DecisionPending,
	}
	if s.store != nil {
		_ = s.store.Create(ctx, req)
	}

	s.setState(StateAwaitingApproval)
	s.broadcast(ControlEvent{Kind: EvtToolNeedsApproval, SessionID: s.ID, CallID: call.ID, ToolName: toolName})

	timer := time.NewTimer(s.ttl)
	defer timer.Stop()

	select {
	case approved := <-decision:
		s.setState(StateRunning)
		s.recordDecision(ctx, req, approved)
		return approved, nil
	case <-timer.C:
		s.recordExpiry(ctx, req)
		return false, fmt.Errorf("controlplane: approval request %s expired after %s", call.ID, s.ttl)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Session) recordDecision(ctx context.Context, req *approval.ApprovalRequest, approved bool) {
	if s.store == nil {
		return
	}
	req.Decision = approval.DecisionDenied
	if approved {
		req.Decision = approval.DecisionAllowed
	}
	req.DecidedAt = time.Now()
	_ = s.store.Update(ctx, req)
}

func (s *Session) recordExpiry(ctx context.Context, req *approval.ApprovalRequest) {
	if s.store == nil {
		return
	}
	req.Decision = approval.DecisionExpired
	req.DecidedAt = time.Now()
	_ = s.store.Update(ctx, req)
}

// approvalRequestID derives a stable ApprovalStore key from a session and
// call id pair.
func approvalRequestID(sessionID, callID string) string {
	return sessionID + ":" + callID
}

// Approve resolves a pending approval affirmatively (§4.8's ApproveTool).
func (s *Session) Approve(callID string) bool {
	return s.resolve(callID, true)
}

// Deny resolves a pending approval negatively (§4.8's DenyTool).
func (s *Session) Deny(callID string) bool {
	return s.resolve(callID, false)
}

func (s *Session) resolve(callID string, approved bool) bool {
	s.mu.Lock()
	ch, ok := s.approvals[callID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	ch <- approved
	return true
}

// PendingApprovals returns this session's currently outstanding approval
// requests from the durable store.
func (s *Session) PendingApprovals(ctx context.Context) ([]*approval.ApprovalRequest, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListPending(ctx, s.ID)
}

// Store owns every live Session, keyed by ID, and the ApprovalStore shared
// by all of them.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	factory     AgentFactory
	approvals   approval.ApprovalStore
	approvalTTL time.Duration
}

// NewStore builds an empty Store using factory to construct each new
// session's Agent, backed by an in-memory ApprovalStore with
// DefaultApprovalTTL. Use NewStoreWithApprovals to supply a different
// store or TTL (e.g. a durable one shared across processes).
func NewStore(factory AgentFactory) *Store {
	return NewStoreWithApprovals(factory, approval.NewMemoryApprovalStore(), DefaultApprovalTTL)
}

// NewStoreWithApprovals builds a Store whose sessions persist pending tool
// approvals to approvals with the given ttl.
func NewStoreWithApprovals(factory AgentFactory, approvals approval.ApprovalStore, ttl time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*Session),
		factory:     factory,
		approvals:   approvals,
		approvalTTL: ttl,
	}
}

// PruneApprovals removes approval requests older than olderThan from the
// shared store and returns the count removed, for an operator-triggered or
// scheduled cleanup job.
func (st *Store) PruneApprovals(ctx context.Context, olderThan time.Duration) (int64, error) {
	if st.approvals == nil {
		return 0, nil
	}
	return st.approvals.Prune(ctx, olderThan)
}

// NewSession creates a session, generating an ID if id is empty (§4.8:
// "NewSession{id, mode, working_dir?}").
func (st *Store) NewSession(id string, mode models.AgentMode, workingDir string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	// sess is referenced by the approver closure below before it exists;
	// the closure only runs once an Ask-policy tool call arrives, by
	// which point sess has been assigned (mirrors internal/delegate's
	// Owner-closure pattern for the same construction-order problem).
	var sess *Session
	ag, err := st.factory(mode, workingDir, approverFunc(func(ctx context.Context, toolName string, call models.ToolCall) (bool, error) {
		return sess.awaitApproval(ctx, toolName, call)
	}))
	if err != nil {
		return nil, fmt.Errorf("controlplane: build agent for session %s: %w", id, err)
	}
	sess = newSession(id, mode, ag, st.approvals, st.approvalTTL)

	st.mu.Lock()
	st.sessions[id] = sess
	st.mu.Unlock()
	return sess, nil
}

// Get returns the session registered under id.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// List summarizes every known session (§4.8: "ListSessions").
func (st *Store) List() []SessionInfo {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]SessionInfo, 0, len(st.sessions))
	for _, sess := range st.sessions {
		out = append(out, SessionInfo{ID: sess.ID, Mode: sess.Mode, State: sess.State()})
	}
	return out
}

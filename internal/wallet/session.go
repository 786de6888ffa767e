package wallet

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"daoup/internal/chain"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DisabledID is the keystore id of a session that must not connect.
const DisabledID int64 = -1

// Human-readable connection failure reasons.
const (
	ReasonNotInstalled = "Wallet not installed. Provide a key file to connect."
	ReasonRejected     = "Wallet rejected the connection request."
)

// ExecutorFactory builds a signing client for a connected signer.
type ExecutorFactory func(signer chain.Signer) (chain.Executor, error)

// Session tracks the connected account and its signing client.
type Session struct {
	keystore    Keystore
	chainID     string
	newExecutor ExecutorFactory
	logger      *zap.Logger

	mu         sync.RWMutex
	state      State
	keystoreID int64
	reason     string
	address    string
	executor   chain.Executor

	subMu sync.Mutex
	subs  map[int]chan int64
	next  int
}

// NewSession creates a disconnected session. Its keystore id starts disabled.
func NewSession(keystore Keystore, chainID string, newExecutor ExecutorFactory, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		keystore:    keystore,
		chainID:     chainID,
		newExecutor: newExecutor,
		logger:      logger,
		state:       StateDisconnected,
		keystoreID:  DisabledID,
		subs:        make(map[int]chan int64),
	}
}

// Connect enables the keystore and derives a signing client. On success the keystore
// id is incremented; on failure it is set to DisabledID and Reason explains why.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateConnecting
	s.reason = ""
	s.mu.Unlock()

	executor, err := s.connect(ctx)
	if err != nil {
		reason := failureReason(err)
		s.mu.Lock()
		s.state = StateError
		s.reason = reason
		s.keystoreID = DisabledID
		s.address = ""
		s.executor = nil
		s.mu.Unlock()

		s.logger.Warn("wallet connect failed", zap.String("reason", reason), zap.Error(err))
		s.notify(DisabledID)
		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.address = executor.Address()
	s.executor = executor
	if s.keystoreID < 0 {
		s.keystoreID = 0
	} else {
		s.keystoreID++
	}
	id := s.keystoreID
	s.mu.Unlock()

	s.logger.Info("wallet connected", zap.String("wallet", executor.Address()), zap.Int64("keystore_id", id))
	s.notify(id)
	return nil
}

func (s *Session) connect(ctx context.Context) (chain.Executor, error) {
	if s.keystore == nil {
		return nil, ErrNotInstalled
	}
	if err := s.keystore.Enable(ctx, s.chainID); err != nil {
		return nil, err
	}
	signer, err := s.keystore.OfflineSigner(ctx, s.chainID)
	if err != nil {
		return nil, err
	}
	if s.newExecutor == nil {
		return nil, errors.New("no signing client factory")
	}
	return s.newExecutor(signer)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNotInstalled):
		return ReasonNotInstalled
	case chain.CodeOf(err) == chain.CodeRequestRejected:
		return ReasonRejected
	default:
		return chain.Message(err, nil)
	}
}

// Disable drops the signing client and stops dependents from connecting.
func (s *Session) Disable() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.keystoreID = DisabledID
	s.reason = ""
	s.address = ""
	s.executor = nil
	s.mu.Unlock()
	s.notify(DisabledID)
}

// Watch reconnects whenever the keystore reports a change. It blocks until ctx is done.
func (s *Session) Watch(ctx context.Context) {
	if s.keystore == nil {
		return
	}
	changes := s.keystore.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			s.logger.Info("keystore changed, reconnecting")
			_ = s.Connect(ctx)
		}
	}
}

// SuggestToken asks the keystore to track a cw20 token.
func (s *Session) SuggestToken(ctx context.Context, token string) error {
	if s.keystore == nil {
		return ErrNotInstalled
	}
	return s.keystore.SuggestToken(ctx, s.chainID, token)
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// KeystoreID returns the current keystore id; DisabledID when no connection is allowed.
func (s *Session) KeystoreID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keystoreID
}

// Reason returns the last connection failure reason.
func (s *Session) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Address returns the connected account address.
func (s *Session) Address() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address, s.address != ""
}

// Executor returns the signing client, if connected and enabled.
func (s *Session) Executor() (chain.Executor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keystoreID < 0 || s.executor == nil {
		return nil, false
	}
	return s.executor, true
}

// Subscribe returns a channel receiving each new keystore id and a cancel func.
// Slow subscribers only see the latest id.
func (s *Session) Subscribe() (<-chan int64, func()) {
	ch := make(chan int64, 1)
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify(id int64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- id:
		default:
		}
	}
}

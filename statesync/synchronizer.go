// Package statesync sends System.SynchronizeState after every new
// connection and tells observers whether device state is in sync upstream.
package statesync

import (
	"context"
	"reflect"
	"sync"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-directive"
	"github.com/goliatone/go-directive/runner"
)

const (
	Namespace = "System"
	Name      = "SynchronizeState"
)

const (
	ErrCodeNilCollaborator = "NIL_COLLABORATOR"
	ErrCodeContextFailed   = "CONTEXT_UNAVAILABLE"
	ErrCodeSendFailed      = "SYNCHRONIZE_SEND_FAILED"
)

// State is the synchronization state reported to observers.
type State int

const (
	NotSynchronized State = iota
	Synchronized
)

func (s State) String() string {
	if s == Synchronized {
		return "synchronized"
	}
	return "not_synchronized"
}

// ConnectionStatus is the transport connection state.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Pending
	Connected
)

func (c ConnectionStatus) String() string {
	switch c {
	case Pending:
		return "pending"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Observer is told about every state change. Implementations must be
// comparable; they are deduplicated by identity.
type Observer interface {
	OnStateChanged(State)
}

// ContextProvider returns the current device context as a JSON array of
// context entries.
type ContextProvider interface {
	Context(ctx context.Context) ([]byte, error)
}

// MessageSender delivers an event body upstream. A nil error means the
// service accepted it.
type MessageSender interface {
	Send(ctx context.Context, messageID string, body []byte) error
}

// Synchronizer tracks whether device state has been sent on the current
// connection. Retries follow the configured strategy until they succeed, the
// connection drops or Shutdown is called.
type Synchronizer struct {
	provider ContextProvider
	sender   MessageSender
	logger   directive.Logger
	strategy runner.RetryStrategy

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown bool

	obsMu     sync.Mutex
	observers []Observer
}

type Option func(*Synchronizer)

func WithLogger(l directive.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = l
	}
}

// WithRetryStrategy replaces the default retry table.
func WithRetryStrategy(strategy runner.RetryStrategy) Option {
	return func(s *Synchronizer) {
		if strategy != nil {
			s.strategy = strategy
		}
	}
}

func New(provider ContextProvider, sender MessageSender, opts ...Option) (*Synchronizer, error) {
	if directive.IsNil(provider) {
		return nil, errors.New("context provider cannot be nil", errors.CategoryBadInput).
			WithTextCode(ErrCodeNilCollaborator)
	}
	if directive.IsNil(sender) {
		return nil, errors.New("message sender cannot be nil", errors.CategoryBadInput).
			WithTextCode(ErrCodeNilCollaborator)
	}

	s := &Synchronizer{
		provider: provider,
		sender:   sender,
		strategy: runner.NewTableStrategy(),
		state:    NotSynchronized,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = directive.WithLoggerFields(directive.NormalizeLogger(s.logger), map[string]any{
		"component": "state_synchronizer",
	})
	return s, nil
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddObserver registers o and immediately reports the current state to it.
// Adding the same observer twice is a no-op.
func (s *Synchronizer) AddObserver(o Observer) bool {
	if directive.IsNil(o) {
		s.logger.Error("add observer failed: nil observer")
		return false
	}
	if !reflect.TypeOf(o).Comparable() {
		s.logger.Error("add observer failed: observer type %T is not comparable", o)
		return false
	}

	s.obsMu.Lock()
	for _, existing := range s.observers {
		if existing == o {
			s.obsMu.Unlock()
			s.logger.Debug("observer already added")
			return false
		}
	}
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()

	o.OnStateChanged(s.State())
	return true
}

func (s *Synchronizer) RemoveObserver(o Observer) bool {
	if directive.IsNil(o) || !reflect.TypeOf(o).Comparable() {
		return false
	}
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return true
		}
	}
	return false
}

// OnConnectionStatusChanged starts a synchronization when a connection is
// established and resets the state when it is lost.
func (s *Synchronizer) OnConnectionStatusChanged(status ConnectionStatus, reason string) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}

	if status == Connected {
		switch {
		case s.state == Synchronized:
			s.mu.Unlock()
			s.logger.Error("unexpected connect while synchronized reason=%s", reason)
		case s.cancel != nil:
			s.mu.Unlock()
			s.logger.Debug("synchronization already in progress")
		default:
			s.startLocked()
			s.mu.Unlock()
		}
		return
	}

	s.stopLocked()
	if s.state == NotSynchronized {
		s.mu.Unlock()
		s.logger.Info("connection status %s while not synchronized reason=%s", status, reason)
		return
	}
	s.state = NotSynchronized
	s.mu.Unlock()
	s.notify(NotSynchronized)
}

// Shutdown stops pending retries and releases observers.
func (s *Synchronizer) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	s.stopLocked()
	s.mu.Unlock()

	s.wg.Wait()

	s.obsMu.Lock()
	s.observers = nil
	s.obsMu.Unlock()
}

func (s *Synchronizer) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	h := runner.NewHandler(
		runner.WithMaxRetries(-1),
		runner.WithRetryStrategy(s.strategy),
		runner.WithLogger(s.logger),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := h.Run(ctx, s.synchronize)
		s.finish(ctx, err)
	}()
}

func (s *Synchronizer) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// synchronize is one attempt: fetch context, build the event, send it.
func (s *Synchronizer) synchronize(ctx context.Context) error {
	deviceContext, err := s.provider.Context(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "context retrieval failed").
			WithTextCode(ErrCodeContextFailed)
	}

	messageID, body, err := directive.BuildEvent(Namespace, Name, "", nil, deviceContext)
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, messageID, body); err != nil {
		return errors.Wrap(err, errors.CategoryExternal, "synchronize state send failed").
			WithTextCode(ErrCodeSendFailed).
			WithMetadata(map[string]any{"message_id": messageID})
	}
	return nil
}

func (s *Synchronizer) finish(ctx context.Context, err error) {
	s.mu.Lock()
	if ctx.Err() != nil {
		// superseded by a disconnect or shutdown
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("synchronization abandoned: %v", err)
		return
	}
	if s.state == Synchronized {
		s.mu.Unlock()
		return
	}
	s.state = Synchronized
	s.mu.Unlock()

	s.logger.Info("device state synchronized")
	s.notify(Synchronized)
}

func (s *Synchronizer) notify(state State) {
	s.obsMu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.Unlock()

	for _, o := range observers {
		o.OnStateChanged(state)
	}
}

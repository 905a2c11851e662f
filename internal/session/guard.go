// Package session decides whether protected views may be shown. A guard
// activation first requires a well-formed local credential and then a
// successful liveness probe against the authority; it fails closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wesm/minutes/internal/apperr"
	"github.com/wesm/minutes/internal/credential"
)

// State is the guard's position in its state machine.
type State int

const (
	Checking State = iota
	Allowed
	Denied
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Prober confirms that the stored token is still accepted. It must clear
// the credential store itself when the authority rejects the token;
// remote.Client does.
type Prober interface {
	Probe(ctx context.Context) error
}

// Result is the outcome of one activation.
type Result struct {
	State   State
	Err     error
	Message string
}

// Guard gates protected views.
type Guard struct {
	store  credential.Store
	prober Prober
	logger *slog.Logger

	mu    sync.Mutex
	state State
	user  *credential.UserProfile
}

// NewGuard creates a guard.
func NewGuard(store credential.Store, prober Prober, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, prober: prober, logger: logger, state: Checking}
}

// State returns the state of the most recent activation.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// User returns the profile confirmed by the last allowed activation.
func (g *Guard) User() *credential.UserProfile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.user
}

func (g *Guard) set(s State, user *credential.UserProfile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = s
	g.user = user
}

// Check runs one activation. It never reuses an earlier Allowed result.
// onFail, when non-nil, is called at most once, only when the activation
// ends Denied.
func (g *Guard) Check(ctx context.Context, onFail func(Result)) Result {
	g.set(Checking, nil)

	var once sync.Once
	deny := func(err error) Result {
		res := Result{State: Denied, Err: err, Message: apperr.UserMessage(err)}
		g.set(Denied, nil)
		g.logger.Debug("session denied", "kind", apperr.KindOf(err).String(), "err", err)
		if onFail != nil {
			once.Do(func() { onFail(res) })
		}
		return res
	}

	cred, err := g.store.Get(ctx)
	if err != nil {
		// An unreadable store is treated like a missing credential.
		return deny(fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err))
	}
	if cred == nil {
		return deny(apperr.ErrUnauthenticated)
	}

	if err := g.prober.Probe(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return deny(fmt.Errorf("%w: %v", apperr.ErrConnectivity, err))
		}
		return deny(err)
	}

	profile := cred.Profile
	g.set(Allowed, &profile)
	return Result{State: Allowed}
}

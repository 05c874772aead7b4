package lifecycle

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrBusy is returned when an action is submitted while another one is
	// still outstanding. The action is rejected, not queued.
	ErrBusy = errors.New("lifecycle: an action is already in progress")
	// ErrSuperseded reports that a response arrived after the session had
	// already moved on. Its result was discarded; callers can ignore it.
	ErrSuperseded = errors.New("lifecycle: session moved on before the response arrived")
)

// Identity is the authenticated account as seen by a client.
type Identity struct {
	AccountID int64
	Token     string
	// Recovery marks a session opened from a password recovery link.
	Recovery bool
}

// Authenticator is the auth provider as the client uses it.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context, token string) error
	OpenRecovery(ctx context.Context, resetToken string) (Identity, error)
	UpdatePassword(ctx context.Context, token, newPassword string) error
}

// CivilizationLookup answers whether an account already founded its
// civilization.
type CivilizationLookup interface {
	HasCivilization(ctx context.Context, id Identity) (bool, error)
}

// Founder runs the founding transaction.
type Founder interface {
	Found(ctx context.Context, id Identity, name string) error
}

// Signal is a push notification from the auth provider's event stream.
type Signal string

const (
	SignalRecovery  Signal = "password-recovery"
	SignalSignedOut Signal = "signed-out"
)

// Session drives one client through the machine. It allows one outstanding
// action at a time and drops responses that land after a recovery signal
// or another transition changed the state.
type Session struct {
	auth    Authenticator
	civs    CivilizationLookup
	founder Founder
	logger  *zap.Logger

	mu       sync.Mutex
	state    State
	identity *Identity
	busy     bool
	gen      uint64
}

// NewSession creates a Session in the Login state.
func NewSession(auth Authenticator, civs CivilizationLookup, founder Founder, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{auth: auth, civs: civs, founder: founder, logger: logger, state: Login}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the signed-in account, if any.
func (s *Session) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Busy reports whether an action is outstanding.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Switch toggles between Login and Register.
func (s *Session) Switch() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return s.state, ErrBusy
	}
	to, err := Next(s.state, Switch, false)
	if err != nil {
		return s.state, err
	}
	s.move(to)
	return to, nil
}

// SignIn authenticates and routes to Setup or Game.
func (s *Session) SignIn(ctx context.Context, email, password string) (State, error) {
	gen, err := s.begin(CredentialsAccepted)
	if err != nil {
		return s.State(), err
	}
	defer s.end()

	id, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return s.State(), err
	}
	return s.accept(ctx, gen, id)
}

// Resume routes a client that already holds a session, as on page load.
func (s *Session) Resume(ctx context.Context, id Identity) (State, error) {
	if id.Recovery {
		return s.Recover(id), nil
	}
	gen, err := s.begin(CredentialsAccepted)
	if err != nil {
		return s.State(), err
	}
	defer s.end()
	return s.accept(ctx, gen, id)
}

// accept runs the single existence check of an authentication event. A
// failed check falls back to Setup.
func (s *Session) accept(ctx context.Context, gen uint64, id Identity) (State, error) {
	has, err := s.civs.HasCivilization(ctx, id)
	if err != nil {
		s.logger.Warn("civilization lookup failed, falling back to setup",
			zap.Int64("account_id", id.AccountID), zap.Error(err))
		has = false
	}
	return s.commit(gen, CredentialsAccepted, has, func() { s.identity = &id })
}

// SignUp creates an account and goes straight to Setup.
func (s *Session) SignUp(ctx context.Context, email, password string) (State, error) {
	gen, err := s.begin(AccountCreated)
	if err != nil {
		return s.State(), err
	}
	defer s.end()

	id, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return s.State(), err
	}
	return s.commit(gen, AccountCreated, false, func() { s.identity = &id })
}

// Found runs the founding transaction and enters the game. When founding
// fails the existence check is repeated: Setup is also reached after a failed
// lookup, so the account may already own a civilization.
func (s *Session) Found(ctx context.Context, name string) (State, error) {
	gen, err := s.begin(Founded)
	if err != nil {
		return s.State(), err
	}
	defer s.end()

	id, _ := s.Identity()
	if err := s.founder.Found(ctx, id, name); err != nil {
		has, lookupErr := s.civs.HasCivilization(ctx, id)
		if lookupErr != nil || !has {
			return s.State(), err
		}
		s.logger.Info("civilization already founded, entering game",
			zap.Int64("account_id", id.AccountID), zap.Error(err))
	}
	return s.commit(gen, Founded, false, nil)
}

// SignOut leaves the game or the setup screen. A provider failure is
// logged; the client is signed out locally regardless.
func (s *Session) SignOut(ctx context.Context) (State, error) {
	gen, err := s.begin(SignOut)
	if err != nil {
		return s.State(), err
	}
	defer s.end()

	id, _ := s.Identity()
	if err := s.auth.SignOut(ctx, id.Token); err != nil {
		s.logger.Warn("sign out failed at provider", zap.Int64("account_id", id.AccountID), zap.Error(err))
	}
	return s.commit(gen, SignOut, false, func() { s.identity = nil })
}

// OpenRecovery exchanges a reset token from a recovery e-mail for a
// recovery session and enters ResetPassword.
func (s *Session) OpenRecovery(ctx context.Context, resetToken string) (State, error) {
	id, err := s.auth.OpenRecovery(ctx, resetToken)
	if err != nil {
		return s.State(), err
	}
	return s.Recover(id), nil
}

// Recover forces ResetPassword from any state. An outstanding action's
// response is discarded when it lands.
func (s *Session) Recover(id Identity) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	id.Recovery = true
	s.identity = &id
	s.move(ResetPassword)
	return s.state
}

// UpdatePassword sets a new password with the recovery session. The provider
// invalidates every session of the account, so the client must sign in again.
func (s *Session) UpdatePassword(ctx context.Context, newPassword string) (State, error) {
	gen, err := s.begin(PasswordUpdated)
	if err != nil {
		return s.State(), err
	}
	defer s.end()

	id, _ := s.Identity()
	if err := s.auth.UpdatePassword(ctx, id.Token, newPassword); err != nil {
		return s.State(), err
	}
	return s.commit(gen, PasswordUpdated, false, func() { s.identity = nil })
}

// Watch applies provider signals until ctx is done or signals is closed.
// A recovery signal without a token only moves the screen; the token
// arrives with OpenRecovery.
func (s *Session) Watch(ctx context.Context, signals <-chan Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			s.apply(sig)
		}
	}
}

func (s *Session) apply(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch sig {
	case SignalRecovery:
		s.move(ResetPassword)
	case SignalSignedOut:
		if s.state == Setup || s.state == Game {
			s.identity = nil
			s.move(Login)
		}
	}
}

// begin takes the loading guard for an action that will fire ev.
func (s *Session) begin(ev Event) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return 0, ErrBusy
	}
	if _, err := Next(s.state, ev, false); err != nil {
		return 0, err
	}
	s.busy = true
	return s.gen, nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// commit applies ev if nothing moved the session since gen was taken.
func (s *Session) commit(gen uint64, ev Event, hasCivilization bool, apply func()) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug("dropping late response", zap.String("event", string(ev)), zap.String("state", string(s.state)))
		return s.state, ErrSuperseded
	}
	to, err := Next(s.state, ev, hasCivilization)
	if err != nil {
		return s.state, err
	}
	if apply != nil {
		apply()
	}
	s.move(to)
	return to, nil
}

// move must be called with mu held.
func (s *Session) move(to State) {
	if to != s.state {
		s.logger.Debug("lifecycle transition", zap.String("from", string(s.state)), zap.String("to", string(to)))
	}
	s.state = to
	s.gen++
}

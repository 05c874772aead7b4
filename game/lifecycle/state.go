// Package lifecycle decides which screen a client session may show.
//
// The five states form an explicit machine. Next is the transition table;
// Route is the stateless decision used when a client reconnects with
// whatever credentials it holds; Session drives one client through the
// machine against the auth and civilization collaborators.
package lifecycle

import "github.com/kasuganosora/civmanager/game/errs"

// State is one screen of the client.
type State string

const (
	Login         State = "login"
	Register      State = "register"
	ResetPassword State = "reset-password"
	Setup         State = "setup"
	Game          State = "game"
)

// Event is an input to the machine.
type Event string

const (
	CredentialsAccepted Event = "credentials-accepted"
	Switch              Event = "switch"
	AccountCreated      Event = "account-created"
	RecoveryDetected    Event = "recovery-detected"
	PasswordUpdated     Event = "password-updated"
	Founded             Event = "founded"
	SignOut             Event = "sign-out"
)

// table lists the fixed transitions. CredentialsAccepted is resolved by the
// civilization lookup and RecoveryDetected applies from every state, so
// neither appears here.
var table = map[State]map[Event]State{
	Login:         {Switch: Register},
	Register:      {Switch: Login, AccountCreated: Setup},
	ResetPassword: {PasswordUpdated: Login},
	Setup:         {Founded: Game, SignOut: Login},
	Game:          {SignOut: Login},
}

// Next returns the state reached from "from" on ev. hasCivilization is only
// consulted for CredentialsAccepted. A transition the machine does not
// define fails with errs.ErrInvalidOperation.
func Next(from State, ev Event, hasCivilization bool) (State, error) {
	switch ev {
	case RecoveryDetected:
		return ResetPassword, nil
	case CredentialsAccepted:
		if from != Login {
			break
		}
		if hasCivilization {
			return Game, nil
		}
		return Setup, nil
	default:
		if to, ok := table[from][ev]; ok {
			return to, nil
		}
	}
	return from, errs.Invalid("%s not allowed in state %s", ev, from)
}

// Lookup is the outcome of the civilization existence check.
type Lookup struct {
	Exists bool
	Err    error
}

// Route decides the state of a client from the credentials it presents.
// An active recovery session preempts everything else. A failed lookup
// routes to Setup so the player can retry founding.
func Route(authenticated, recovery bool, lookup Lookup) State {
	switch {
	case recovery:
		return ResetPassword
	case !authenticated:
		return Login
	case lookup.Err != nil:
		return Setup
	case lookup.Exists:
		return Game
	default:
		return Setup
	}
}

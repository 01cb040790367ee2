package sphereauth

// GuardState classifies a navigation attempt. Unknown lasts only until
// Initialize completes; afterwards every evaluation lands in exactly one of
// the other three states.
type GuardState int

const (
	// StateUnknown means the session has not been determined yet.
	StateUnknown GuardState = iota
	// StateUnauthenticated means no session exists.
	StateUnauthenticated
	// StateAuthenticatedAllowed means the session may see the destination.
	StateAuthenticatedAllowed
	// StateAuthenticatedDenied means the session role is outside the
	// destination's allow-list.
	StateAuthenticatedDenied
)

// DecisionKind is the terminal outcome of one guard evaluation.
type DecisionKind int

const (
	// DecisionPending renders nothing; evaluation happened before
	// Initialize completed. Re-evaluate once the store is ready.
	DecisionPending DecisionKind = iota
	// DecisionRender renders the requested destination.
	DecisionRender
	// DecisionRedirectLogin redirects to the login entry point; From holds
	// the originally requested destination for the post-login return.
	DecisionRedirectLogin
	// DecisionRedirectDenied redirects an authenticated session of the
	// wrong role to the not-authorized destination.
	DecisionRedirectDenied
)

// Decision is the outcome of guarding one navigation attempt.
type Decision struct {
	Kind       DecisionKind
	State      GuardState
	RedirectTo string
	// From is the destination the user originally asked for, carried along
	// login redirects so the login flow can return there.
	From string
}

// EvaluateRoute is the pure route-guard decision function. Given the
// current session (nil for none), the destination's role allow-list (nil
// or empty means any authenticated session), and whether initialization
// has completed, it returns exactly one terminal decision. It has no side
// effects and must be re-evaluated whenever the session or destination
// changes.
func EvaluateRoute(sess *Session, allowed []Role, ready bool, guard GuardConfig, destination string) Decision {
	if !ready {
		return Decision{Kind: DecisionPending, State: StateUnknown, From: destination}
	}
	if sess == nil {
		return Decision{
			Kind:       DecisionRedirectLogin,
			State:      StateUnauthenticated,
			RedirectTo: guard.LoginPath,
			From:       destination,
		}
	}
	if len(allowed) > 0 && !roleAllowed(sess.Role, allowed) {
		return Decision{
			Kind:       DecisionRedirectDenied,
			State:      StateAuthenticatedDenied,
			RedirectTo: guard.DeniedPath,
			From:       destination,
		}
	}
	return Decision{Kind: DecisionRender, State: StateAuthenticatedAllowed, From: destination}
}

// GuardRoute evaluates the route guard against the store's current state.
func (s *Store) GuardRoute(destination string, allowed ...Role) Decision {
	s.mu.RLock()
	sess := s.session
	ready := s.ready
	s.mu.RUnlock()

	return EvaluateRoute(sess, allowed, ready, s.config.Guard, destination)
}

func roleAllowed(role Role, allowed []Role) bool {
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}

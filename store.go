package sphereauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alumnisphere/sphereauth/internal/audit"
	"github.com/alumnisphere/sphereauth/internal/metrics"
	"github.com/alumnisphere/sphereauth/password"
	"github.com/alumnisphere/sphereauth/storage"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventSignupSuccess    = "signup_success"
	auditEventSignupDuplicate  = "signup_duplicate"
	auditEventSignupFailure    = "signup_failure"
	auditEventLogout           = "logout"
	auditEventSessionRestore   = "session_restore"
	auditEventRequestSubmitted = "request_submitted"
)

// SessionEventType tags a session change notification.
type SessionEventType string

const (
	// EventInitialized fires once Initialize has determined the session.
	EventInitialized SessionEventType = "initialized"
	// EventLogin fires after a successful Login.
	EventLogin SessionEventType = "login"
	// EventSignup fires after a successful Signup.
	EventSignup SessionEventType = "signup"
	// EventLogout fires after Logout clears an active session.
	EventLogout SessionEventType = "logout"
)

// SessionEvent is delivered to [Store.Subscribe] channels whenever the
// current session changes. Session is nil when the store is logged out.
type SessionEvent struct {
	Type    SessionEventType
	Session *Session
}

// Store is the single source of truth for "who is the current user" and
// "who may ever log in". Construct one through [Builder.Build], call
// [Store.Initialize] once at startup, then read through
// [Store.CurrentUser] and mutate through Login, Signup, and Logout.
//
// Store methods are safe for concurrent use, although the intended caller
// is a single event-driven UI loop.
type Store struct {
	config  Config
	backend storage.Backend
	hasher  *password.Argon2
	metrics *metrics.Metrics
	audit   *audit.Dispatcher
	now     func() time.Time

	mu      sync.RWMutex
	session *Session
	ready   bool

	subMu   sync.Mutex
	subs    map[int]chan SessionEvent
	nextSub int
}

func (s *Store) sessionKey() string {
	return s.config.Storage.KeyPrefix + ":session"
}

func (s *Store) accountsKey() string {
	return s.config.Storage.KeyPrefix + ":accounts"
}

func (s *Store) requestsKey(accountID string) string {
	return s.config.Storage.KeyPrefix + ":requests:" + accountID
}

// Initialize reads the persisted session projection and makes it current.
// Missing, malformed, or unreadable durable state all resolve to "logged
// out" rather than an error; after Initialize returns, [Store.Ready]
// reports true and CurrentUser stops reporting loading.
//
// Initialize is safe to call again (a restart simulation re-reads storage)
// and returns a non-nil error only when ctx is already done.
func (s *Store) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var restored *Session
	data, err := s.backend.Get(ctx, s.sessionKey())
	switch {
	case err == nil:
		var sess Session
		if jsonErr := json.Unmarshal(data, &sess); jsonErr != nil {
			s.metrics.Inc(metrics.MetricSessionRestoreCorrupt)
			s.emitAudit(ctx, audit.Event{
				EventType: auditEventSessionRestore,
				Error:     fmt.Errorf("%w: %v", ErrCorruptState, jsonErr).Error(),
			})
		} else {
			restored = &sess
		}
	case errors.Is(err, storage.ErrNotFound):
		s.metrics.Inc(metrics.MetricSessionRestoreEmpty)
	default:
		s.metrics.Inc(metrics.MetricStorageError)
		s.emitAudit(ctx, audit.Event{
			EventType: auditEventSessionRestore,
			Error:     err.Error(),
		})
	}

	s.mu.Lock()
	s.session = restored
	s.ready = true
	s.mu.Unlock()

	if restored != nil {
		s.metrics.Inc(metrics.MetricSessionRestored)
		s.emitAudit(ctx, audit.Event{
			EventType: auditEventSessionRestore,
			AccountID: restored.ID,
			Email:     restored.Email,
			Role:      string(restored.Role),
			Success:   true,
		})
	}

	s.notify(EventInitialized, restored)
	return nil
}

// Ready reports whether Initialize has completed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// CurrentUser returns the current session (nil when logged out) and a
// loading flag that stays true until Initialize completes. The returned
// session is a copy; mutating it does not affect the store.
func (s *Store) CurrentUser() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil, !s.ready
	}
	sess := *s.session
	return &sess, !s.ready
}

// Login matches email and secret against the durable registry, seeding the
// demo accounts if the registry has never been written. The email match is
// exact and case-sensitive. On success the session projection is persisted
// and becomes current; on any failure the previous session is untouched.
func (s *Store) Login(ctx context.Context, email, secret string) (*Session, error) {
	if !s.Ready() {
		return nil, ErrStoreNotReady
	}
	if email == "" || secret == "" {
		s.metrics.Inc(metrics.MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	reg, _, err := s.loadRegistry(ctx)
	if err != nil {
		s.metrics.Inc(metrics.MetricStorageError)
		return nil, err
	}

	acct, found := reg.findByEmail(email)
	match := false
	if found {
		match, err = s.hasher.Verify(secret, acct.SecretHash)
		if err != nil {
			// Unparseable stored hash. Indistinguishable from a wrong
			// secret for the caller; the detail goes to audit.
			s.emitAudit(ctx, audit.Event{
				EventType: auditEventLoginFailure,
				Email:     email,
				Error:     err.Error(),
			})
			match = false
		}
	}
	if !match {
		s.metrics.Inc(metrics.MetricLoginFailure)
		s.emitAudit(ctx, audit.Event{
			EventType: auditEventLoginFailure,
			Email:     email,
			Error:     ErrInvalidCredentials.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	sess := acct.Session()
	if err := s.persistSession(ctx, sess); err != nil {
		s.metrics.Inc(metrics.MetricStorageError)
		s.emitAudit(ctx, audit.Event{
			EventType: auditEventLoginFailure,
			AccountID: acct.ID,
			Email:     email,
			Error:     err.Error(),
		})
		return nil, err
	}

	s.setSession(&sess)
	s.metrics.Inc(metrics.MetricLoginSuccess)
	s.emitAudit(ctx, audit.Event{
		EventType: auditEventLoginSuccess,
		AccountID: sess.ID,
		Email:     sess.Email,
		Role:      string(sess.Role),
		Success:   true,
	})
	s.notify(EventLogin, &sess)

	out := sess
	return &out, nil
}

// Signup registers a new account and logs it in. The email must not be
// registered yet; the uniqueness check and the registry append commit as
// one compare-and-swap, retried a bounded number of times when another
// context writes the registry concurrently.
func (s *Store) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	if !s.Ready() {
		return nil, ErrStoreNotReady
	}
	if req.Email == "" || req.Secret == "" || req.DisplayName == "" {
		return nil, ErrSignupInvalid
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrRoleInvalid, req.Role)
	}
	if req.Profile != nil && req.Profile.ProfileRole() != req.Role {
		return nil, fmt.Errorf("%w: profile variant does not match %s", ErrRoleInvalid, req.Role)
	}
	if min := s.config.Password.MinSecretLength; min > 0 && len(req.Secret) < min {
		return nil, fmt.Errorf("%w: secret shorter than %d bytes", ErrSecretPolicy, min)
	}

	secretHash, err := s.hasher.Hash(req.Secret)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.config.Storage.CASMaxRetries; attempt++ {
		reg, version, err := s.loadRegistry(ctx)
		if err != nil {
			s.metrics.Inc(metrics.MetricStorageError)
			return nil, err
		}

		if _, exists := reg.findByEmail(req.Email); exists {
			s.metrics.Inc(metrics.MetricSignupDuplicate)
			s.emitAudit(ctx, audit.Event{
				EventType: auditEventSignupDuplicate,
				Email:     req.Email,
				Error:     ErrDuplicateAccount.Error(),
			})
			return nil, ErrDuplicateAccount
		}

		id := uuid.NewString()
		acct := Account{
			ID:          id,
			Email:       req.Email,
			DisplayName: req.DisplayName,
			Role:        req.Role,
			SecretHash:  secretHash,
			AvatarURL:   avatarURL(id),
			CreatedAt:   s.now().Unix(),
			Profile:     req.Profile,
		}
		reg.Accounts = append(reg.Accounts, acct)

		data, err := json.Marshal(reg)
		if err != nil {
			return nil, err
		}

		if _, err := s.backend.CompareAndSwap(ctx, s.accountsKey(), version, data); err != nil {
			if errors.Is(err, storage.ErrVersionMismatch) {
				continue
			}
			s.metrics.Inc(metrics.MetricStorageError)
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}

		sess := acct.Session()
		if err := s.persistSession(ctx, sess); err != nil {
			// The account is registered but the session write failed; the
			// caller can log in normally afterwards.
			s.metrics.Inc(metrics.MetricStorageError)
			s.emitAudit(ctx, audit.Event{
				EventType: auditEventSignupFailure,
				AccountID: acct.ID,
				Email:     acct.Email,
				Error:     err.Error(),
			})
			return nil, err
		}

		s.setSession(&sess)
		s.metrics.Inc(metrics.MetricSignupSuccess)
		s.emitAudit(ctx, audit.Event{
			EventType: auditEventSignupSuccess,
			AccountID: sess.ID,
			Email:     sess.Email,
			Role:      string(sess.Role),
			Success:   true,
		})
		s.notify(EventSignup, &sess)

		out := sess
		return &out, nil
	}

	s.metrics.Inc(metrics.MetricSignupConflict)
	return nil, ErrRegistryConflict
}

// Logout clears the current session from memory and durable storage. It is
// idempotent and never fails visibly; a storage error still leaves the
// store logged out and is only recorded in metrics and audit.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	prev := s.session
	s.session = nil
	s.mu.Unlock()

	if err := s.backend.Delete(ctx, s.sessionKey()); err != nil {
		s.metrics.Inc(metrics.MetricStorageError)
		s.emitAudit(ctx, audit.Event{
			EventType: auditEventLogout,
			Error:     err.Error(),
		})
	}

	if prev == nil {
		return
	}

	s.metrics.Inc(metrics.MetricLogout)
	s.emitAudit(ctx, audit.Event{
		EventType: auditEventLogout,
		AccountID: prev.ID,
		Email:     prev.Email,
		Role:      string(prev.Role),
		Success:   true,
	})
	s.notify(EventLogout, nil)
}

// Subscribe registers a listener for session changes. The channel is
// buffered and never blocks the store; a slow listener loses events rather
// than stalling mutations. The returned cancel func closes the channel.
func (s *Store) Subscribe() (<-chan SessionEvent, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++

	ch := make(chan SessionEvent, 8)
	s.subs[id] = ch

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Close shuts down the audit dispatcher and closes all subscriptions.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.audit.Close()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (s *Store) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped by a full buffer.
func (s *Store) AuditDropped() uint64 {
	return s.audit.Dropped()
}

func (s *Store) setSession(sess *Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

func (s *Store) persistSession(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.backend.Set(ctx, s.sessionKey(), data); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// loadRegistry reads the durable account registry and its version stamp,
// seeding the demo accounts on first use.
func (s *Store) loadRegistry(ctx context.Context) (registry, uint64, error) {
	v, err := s.backend.GetVersioned(ctx, s.accountsKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.seedRegistry(ctx)
		}
		return registry{}, 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var reg registry
	if err := json.Unmarshal(v.Value, &reg); err != nil {
		return registry{}, 0, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return reg, v.Version, nil
}

func (s *Store) seedRegistry(ctx context.Context) (registry, uint64, error) {
	if s.config.Seed.Disabled || len(s.config.Seed.Accounts) == 0 {
		return registry{}, 0, nil
	}

	reg := registry{Accounts: make([]Account, 0, len(s.config.Seed.Accounts))}
	for _, seed := range s.config.Seed.Accounts {
		hash, err := s.hasher.Hash(seed.Secret)
		if err != nil {
			return registry{}, 0, err
		}
		id := uuid.NewString()
		avatar := seed.AvatarURL
		if avatar == "" {
			avatar = avatarURL(id)
		}
		reg.Accounts = append(reg.Accounts, Account{
			ID:          id,
			Email:       seed.Email,
			DisplayName: seed.DisplayName,
			Role:        seed.Role,
			SecretHash:  hash,
			AvatarURL:   avatar,
			CreatedAt:   s.now().Unix(),
		})
	}

	data, err := json.Marshal(reg)
	if err != nil {
		return registry{}, 0, err
	}

	version, err := s.backend.CompareAndSwap(ctx, s.accountsKey(), 0, data)
	if err != nil {
		if errors.Is(err, storage.ErrVersionMismatch) {
			// Another context seeded first; use its registry.
			v, getErr := s.backend.GetVersioned(ctx, s.accountsKey())
			if getErr != nil {
				return registry{}, 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, getErr)
			}
			var existing registry
			if err := json.Unmarshal(v.Value, &existing); err != nil {
				return registry{}, 0, fmt.Errorf("%w: %v", ErrCorruptState, err)
			}
			return existing, v.Version, nil
		}
		return registry{}, 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return reg, version, nil
}

func (s *Store) emitAudit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.Timestamp = s.now()
	s.audit.Emit(ctx, event)
}

func (s *Store) notify(eventType SessionEventType, sess *Session) {
	var copied *Session
	if sess != nil {
		c := *sess
		copied = &c
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- SessionEvent{Type: eventType, Session: copied}:
		default:
		}
	}
}

func avatarURL(id string) string {
	return "https://i.pravatar.cc/150?u=" + id
}

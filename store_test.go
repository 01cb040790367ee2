package sphereauth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alumnisphere/sphereauth/storage"
)

func fastPasswordConfig() PasswordConfig {
	return PasswordConfig{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password = fastPasswordConfig()
	return cfg
}

func newTestStore(t *testing.T, backend storage.Backend) *Store {
	t.Helper()

	store, err := New().
		WithConfig(testConfig()).
		WithStorage(backend).
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(store.Close)

	return store
}

func newInitializedStore(t *testing.T, backend storage.Backend) *Store {
	t.Helper()

	store := newTestStore(t, backend)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return store
}

func mustSignup(t *testing.T, store *Store, req SignupRequest) *Session {
	t.Helper()

	sess, err := store.Signup(context.Background(), req)
	if err != nil {
		t.Fatalf("Signup(%s) failed: %v", req.Email, err)
	}
	return sess
}

func TestCurrentUserBeforeInitialize(t *testing.T) {
	store := newTestStore(t, storage.NewMemory())

	sess, loading := store.CurrentUser()
	if sess != nil {
		t.Fatalf("expected nil session before Initialize, got %v", sess)
	}
	if !loading {
		t.Fatal("expected loading=true before Initialize")
	}
	if store.Ready() {
		t.Fatal("expected Ready=false before Initialize")
	}
}

func TestInitializeEmptyStorage(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())

	sess, loading := store.CurrentUser()
	if sess != nil {
		t.Fatalf("expected logged out after empty restore, got %v", sess)
	}
	if loading {
		t.Fatal("expected loading=false after Initialize")
	}

	snap := store.MetricsSnapshot()
	if got := snap.Counters[MetricSessionRestoreEmpty]; got != 1 {
		t.Fatalf("expected 1 empty restore, got %d", got)
	}
}

func TestLoginBeforeInitialize(t *testing.T) {
	store := newTestStore(t, storage.NewMemory())

	if _, err := store.Login(context.Background(), "alumni@example.com", "password"); !errors.Is(err, ErrStoreNotReady) {
		t.Fatalf("expected ErrStoreNotReady, got %v", err)
	}
}

func TestLoginSeededAccount(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())

	sess, err := store.Login(context.Background(), "alumni@example.com", "password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if sess.Email != "alumni@example.com" {
		t.Fatalf("unexpected email %q", sess.Email)
	}
	if sess.Role != RoleAlumni {
		t.Fatalf("expected alumni role, got %q", sess.Role)
	}
	if sess.DisplayName != "Alex Alumni" {
		t.Fatalf("unexpected display name %q", sess.DisplayName)
	}
	if sess.AvatarURL != "https://i.pravatar.cc/150?u=1" {
		t.Fatalf("unexpected avatar %q", sess.AvatarURL)
	}

	current, loading := store.CurrentUser()
	if loading {
		t.Fatal("expected loading=false")
	}
	if current == nil || current.ID != sess.ID {
		t.Fatalf("CurrentUser mismatch: %v vs %v", current, sess)
	}
}

func TestLoginWrongSecret(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())

	if _, err := store.Login(context.Background(), "alumni@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.Login(context.Background(), "unknown@example.com", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := store.Login(context.Background(), "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty input, got %v", err)
	}

	// Failed attempts never clobber the logged-out state into something else.
	sess, _ := store.CurrentUser()
	if sess != nil {
		t.Fatalf("expected no session after failed logins, got %v", sess)
	}
}

func TestLoginEmailIsCaseSensitive(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())

	if _, err := store.Login(context.Background(), "Alumni@Example.com", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for cased email, got %v", err)
	}
}

func TestLoginFailureKeepsExistingSession(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())

	first, err := store.Login(context.Background(), "student@example.com", "password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := store.Login(context.Background(), "alumni@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	current, _ := store.CurrentUser()
	if current == nil || current.ID != first.ID {
		t.Fatalf("expected original session to survive failed login, got %v", current)
	}
}

func TestSignupAndRelogin(t *testing.T) {
	backend := storage.NewMemory()
	store := newInitializedStore(t, backend)

	sess := mustSignup(t, store, SignupRequest{
		Email:       "nina@example.com",
		Secret:      "pw",
		DisplayName: "Nina New",
		Role:        RoleStudent,
		Profile:     StudentProfile{GraduationYear: 2027, Major: "CS"},
	})
	if sess.ID == "" {
		t.Fatal("expected generated account id")
	}
	if sess.Role != RoleStudent {
		t.Fatalf("expected student role, got %q", sess.Role)
	}
	if sess.AvatarURL != "https://i.pravatar.cc/150?u="+sess.ID {
		t.Fatalf("unexpected avatar %q", sess.AvatarURL)
	}
	profile, ok := sess.Profile.(StudentProfile)
	if !ok {
		t.Fatalf("expected StudentProfile, got %T", sess.Profile)
	}
	if profile.Major != "CS" || profile.GraduationYear != 2027 {
		t.Fatalf("profile fields lost: %+v", profile)
	}

	current, _ := store.CurrentUser()
	if current == nil || current.ID != sess.ID {
		t.Fatal("expected signup to log the new account in")
	}

	// The new account is durable: a later login against the same backend
	// finds it, and the seeds are still there.
	store.Logout(context.Background())

	again, err := store.Login(context.Background(), "nina@example.com", "pw")
	if err != nil {
		t.Fatalf("re-login failed: %v", err)
	}
	if again.ID != sess.ID {
		t.Fatalf("expected stable account id, got %q vs %q", again.ID, sess.ID)
	}
	if _, err := store.Login(context.Background(), "student@example.com", "password"); err != nil {
		t.Fatalf("seed login after signup failed: %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())

	req := SignupRequest{
		Email:       "dup@example.com",
		Secret:      "pw",
		DisplayName: "Dee Dup",
		Role:        RoleAlumni,
	}
	mustSignup(t, store, req)

	if _, err := store.Signup(context.Background(), req); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	// Seed emails count as taken too.
	req.Email = "alumni@example.com"
	if _, err := store.Signup(context.Background(), req); !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount for seed email, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())
	ctx := context.Background()

	cases := []struct {
		name string
		req  SignupRequest
		want error
	}{
		{
			name: "missing email",
			req:  SignupRequest{Secret: "pw", DisplayName: "X", Role: RoleStudent},
			want: ErrSignupInvalid,
		},
		{
			name: "missing secret",
			req:  SignupRequest{Email: "x@example.com", DisplayName: "X", Role: RoleStudent},
			want: ErrSignupInvalid,
		},
		{
			name: "missing name",
			req:  SignupRequest{Email: "x@example.com", Secret: "pw", Role: RoleStudent},
			want: ErrSignupInvalid,
		},
		{
			name: "unknown role",
			req:  SignupRequest{Email: "x@example.com", Secret: "pw", DisplayName: "X", Role: "faculty"},
			want: ErrRoleInvalid,
		},
		{
			name: "profile role mismatch",
			req: SignupRequest{
				Email: "x@example.com", Secret: "pw", DisplayName: "X",
				Role: RoleStudent, Profile: AlumniProfile{Company: "Acme"},
			},
			want: ErrRoleInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := store.Signup(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignupSecretPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.Password.MinSecretLength = 8

	store, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	_, err = store.Signup(context.Background(), SignupRequest{
		Email:       "short@example.com",
		Secret:      "pw",
		DisplayName: "Shorty",
		Role:        RoleStudent,
	})
	if !errors.Is(err, ErrSecretPolicy) {
		t.Fatalf("expected ErrSecretPolicy, got %v", err)
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	backend := storage.NewMemory()
	first := newInitializedStore(t, backend)

	sess, err := first.Login(context.Background(), "student@example.com", "password")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// A fresh store over the same backend simulates a page reload.
	second := newInitializedStore(t, backend)

	restored, loading := second.CurrentUser()
	if loading {
		t.Fatal("expected loading=false after restore")
	}
	if restored == nil {
		t.Fatal("expected restored session")
	}
	if restored.ID != sess.ID || restored.Email != sess.Email || restored.Role != sess.Role {
		t.Fatalf("restored session mismatch: %+v vs %+v", restored, sess)
	}

	snap := second.MetricsSnapshot()
	if got := snap.Counters[MetricSessionRestored]; got != 1 {
		t.Fatalf("expected 1 restored session, got %d", got)
	}
}

func TestLogoutSurvivesRestart(t *testing.T) {
	backend := storage.NewMemory()
	first := newInitializedStore(t, backend)

	if _, err := first.Login(context.Background(), "student@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	first.Logout(context.Background())

	second := newInitializedStore(t, backend)
	if sess, _ := second.CurrentUser(); sess != nil {
		t.Fatalf("expected logged out after restart, got %v", sess)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())

	store.Logout(context.Background())
	store.Logout(context.Background())

	if sess, _ := store.CurrentUser(); sess != nil {
		t.Fatalf("expected no session, got %v", sess)
	}
	if got := store.MetricsSnapshot().Counters[MetricLogout]; got != 0 {
		t.Fatalf("expected no logout events without a session, got %d", got)
	}
}

func TestInitializeCorruptSessionPayload(t *testing.T) {
	backend := storage.NewMemory()
	ctx := context.Background()

	if err := backend.Set(ctx, "as:session", []byte("{not json")); err != nil {
		t.Fatalf("seeding corrupt payload failed: %v", err)
	}

	store := newInitializedStore(t, backend)

	if sess, loading := store.CurrentUser(); sess != nil || loading {
		t.Fatalf("expected clean logged-out state, got sess=%v loading=%v", sess, loading)
	}
	if got := store.MetricsSnapshot().Counters[MetricSessionRestoreCorrupt]; got != 1 {
		t.Fatalf("expected 1 corrupt restore, got %d", got)
	}

	// A corrupt payload does not block a fresh login.
	if _, err := store.Login(ctx, "alumni@example.com", "password"); err != nil {
		t.Fatalf("Login after corrupt restore failed: %v", err)
	}
}

func TestInitializeReRunnable(t *testing.T) {
	backend := storage.NewMemory()
	store := newInitializedStore(t, backend)

	if _, err := store.Login(context.Background(), "student@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Re-initializing re-reads storage and keeps the persisted session.
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if sess, _ := store.CurrentUser(); sess == nil || sess.Email != "student@example.com" {
		t.Fatalf("expected persisted session after re-init, got %v", sess)
	}
}

func TestConcurrentSignupsAcrossStores(t *testing.T) {
	backend := storage.NewMemory()
	a := newInitializedStore(t, backend)
	b := newInitializedStore(t, backend)

	mustSignup(t, a, SignupRequest{
		Email: "a@example.com", Secret: "pw", DisplayName: "A", Role: RoleStudent,
	})
	mustSignup(t, b, SignupRequest{
		Email: "b@example.com", Secret: "pw", DisplayName: "B", Role: RoleAlumni,
	})

	// Both registrations land in one registry: each store can log into the
	// account the other created.
	if _, err := a.Login(context.Background(), "b@example.com", "pw"); err != nil {
		t.Fatalf("cross-store login failed: %v", err)
	}

	// The same email cannot be claimed twice, no matter which store asks.
	_, err := b.Signup(context.Background(), SignupRequest{
		Email: "a@example.com", Secret: "pw", DisplayName: "A2", Role: RoleStudent,
	})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}

// contested wraps a backend and fails every CompareAndSwap with a version
// mismatch, as if another context always wins the race.
type contested struct {
	storage.Backend
}

func (c contested) CompareAndSwap(context.Context, string, uint64, []byte) (uint64, error) {
	return 0, fmt.Errorf("%w: lost race", storage.ErrVersionMismatch)
}

func TestSignupGivesUpAfterRepeatedConflicts(t *testing.T) {
	backend := storage.NewMemory()
	// Seed the registry through a plain store first so the contested one
	// does not fight the seeding write.
	seeder := newInitializedStore(t, backend)
	if _, err := seeder.Login(context.Background(), "alumni@example.com", "password"); err != nil {
		t.Fatalf("seed login failed: %v", err)
	}

	store := newInitializedStore(t, contested{Backend: backend})

	_, err := store.Signup(context.Background(), SignupRequest{
		Email: "racer@example.com", Secret: "pw", DisplayName: "R", Role: RoleStudent,
	})
	if !errors.Is(err, ErrRegistryConflict) {
		t.Fatalf("expected ErrRegistryConflict, got %v", err)
	}
	if got := store.MetricsSnapshot().Counters[MetricSignupConflict]; got != 1 {
		t.Fatalf("expected 1 signup conflict, got %d", got)
	}
}

func TestSeedDisabled(t *testing.T) {
	store, err := New().
		WithConfig(testConfig()).
		WithSeedDisabled().
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := store.Login(context.Background(), "alumni@example.com", "password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected no demo accounts, got %v", err)
	}
}

func TestSubscribeReceivesLifecycleEvents(t *testing.T) {
	store := newTestStore(t, storage.NewMemory())

	events, cancel := store.Subscribe()
	defer cancel()

	ctx := context.Background()
	if err := store.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if _, err := store.Login(ctx, "student@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	store.Logout(ctx)

	want := []SessionEventType{EventInitialized, EventLogin, EventLogout}
	for i, typ := range want {
		select {
		case ev := <-events:
			if ev.Type != typ {
				t.Fatalf("event %d: expected %s, got %s", i, typ, ev.Type)
			}
			if typ == EventLogin && (ev.Session == nil || ev.Session.Email != "student@example.com") {
				t.Fatalf("login event missing session: %+v", ev)
			}
			if typ == EventLogout && ev.Session != nil {
				t.Fatalf("logout event carries a session: %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d (%s)", i, typ)
		}
	}
}

func TestSubscribeCancelCloses(t *testing.T) {
	store := newInitializedStore(t, storage.NewMemory())

	events, cancel := store.Subscribe()
	cancel()
	cancel() // second cancel is a no-op

	if _, ok := <-events; ok {
		t.Fatal("expected closed channel after cancel")
	}

	// Mutations after cancel must not panic on the removed channel.
	if _, err := store.Login(context.Background(), "student@example.com", "password"); err != nil {
		t.Fatalf("Login after cancel failed: %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig())
	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestAuditTrail(t *testing.T) {
	sink := NewChannelSink(16)

	store, err := New().
		WithConfig(testConfig()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if _, err := store.Login(context.Background(), "alumni@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.Login(context.Background(), "alumni@example.com", "password"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Close drains the dispatcher before the asserts.
	store.Close()

	var types []string
	for {
		select {
		case ev := <-sink.Events():
			types = append(types, ev.EventType)
			continue
		default:
		}
		break
	}

	if len(types) != 2 {
		t.Fatalf("expected 2 audit events, got %v", types)
	}
	if types[0] != auditEventLoginFailure || types[1] != auditEventLoginSuccess {
		t.Fatalf("unexpected audit order: %v", types)
	}
}

package sphereauth

import (
	"errors"
	"time"

	"github.com/alumnisphere/sphereauth/internal/audit"
	"github.com/alumnisphere/sphereauth/internal/metrics"
	"github.com/alumnisphere/sphereauth/password"
	"github.com/alumnisphere/sphereauth/storage"
)

// Builder assembles a [Store]. Configure it with the With* methods and call
// [Builder.Build] exactly once; a Builder is not reusable.
type Builder struct {
	config  Config
	backend storage.Backend
	sink    AuditSink
	now     func() time.Time

	built bool
}

// New returns a Builder primed with the default configuration, including
// the demo seed registry.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage sets the durable backend. When omitted, Build falls back to
// an in-memory backend that forgets everything on restart.
func (b *Builder) WithStorage(backend storage.Backend) *Builder {
	b.backend = backend
	return b
}

// WithAuditSink sets the audit sink and enables audit dispatch.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	b.config.Audit.Enabled = true
	return b
}

// WithClock overrides the time source. Tests use this to pin timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithSeedDisabled turns off demo seeding of an empty registry.
func (b *Builder) WithSeedDisabled() *Builder {
	b.config.Seed.Disabled = true
	return b
}

// Build validates the configuration and constructs the Store. No I/O
// happens here; the first storage access is [Store.Initialize].
func (b *Builder) Build() (*Store, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	backend := b.backend
	if backend == nil {
		backend = storage.NewMemory()
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	return &Store{
		config:  cfg,
		backend: backend,
		hasher:  hasher,
		now:     now,
		metrics: metrics.New(metrics.Config{Enabled: cfg.Metrics.Enabled}),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sink),
		subs: map[int]chan SessionEvent{},
	}, nil
}

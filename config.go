package sphereauth

import "errors"

// Config defines the tunable behavior of a [Store]. Zero values are filled
// in by [defaultConfig]; construct one with [New] and override through the
// builder rather than mutating a Config after Build.
type Config struct {
	Storage  StorageConfig
	Password PasswordConfig
	Seed     SeedConfig
	Guard    GuardConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig controls the durable key layout and write-conflict behavior.
type StorageConfig struct {
	// KeyPrefix namespaces every durable key ("<prefix>:session",
	// "<prefix>:accounts", ...).
	KeyPrefix string
	// CASMaxRetries bounds how often a registry compare-and-swap is retried
	// after losing a race before Signup gives up with ErrRegistryConflict.
	CASMaxRetries int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the argon2id parameters used for secret hashing.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// MinSecretLength rejects short secrets at signup. Zero disables the
	// check; the demo registry relies on that.
	MinSecretLength int
}

/*
====================================
SEED CONFIG
====================================
*/

// SeedAccount is one demo account seeded into a never-written registry.
// The Secret is hashed before it is persisted.
type SeedAccount struct {
	Email       string
	Secret      string
	DisplayName string
	Role        Role
	AvatarURL   string
}

// SeedConfig controls demo seeding of an empty registry. This is a demo
// convenience, not a production credential source.
type SeedConfig struct {
	Disabled bool
	Accounts []SeedAccount
}

/*
====================================
GUARD CONFIG
====================================
*/

// GuardConfig fixes the route-guard redirect policy. An authenticated
// session with a role outside a destination's allow-list is always sent to
// DeniedPath; rendering nothing was rejected as inconsistent.
type GuardConfig struct {
	LoginPath  string
	DeniedPath string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			KeyPrefix:     "as",
			CASMaxRetries: 4,
		},
		Password: PasswordConfig{
			Memory:      16 * 1024,
			Time:        2,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Seed: SeedConfig{
			Accounts: []SeedAccount{
				{
					Email:       "alumni@example.com",
					Secret:      "password",
					DisplayName: "Alex Alumni",
					Role:        RoleAlumni,
					AvatarURL:   "https://i.pravatar.cc/150?u=1",
				},
				{
					Email:       "student@example.com",
					Secret:      "password",
					DisplayName: "Sam Student",
					Role:        RoleStudent,
					AvatarURL:   "https://i.pravatar.cc/150?u=2",
				},
			},
		},
		Guard: GuardConfig{
			LoginPath:  "/login",
			DeniedPath: "/unauthorized",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Seed.Accounts = append([]SeedAccount(nil), cfg.Seed.Accounts...)
	return out
}

func validateConfig(cfg *Config) error {
	if cfg.Storage.KeyPrefix == "" {
		cfg.Storage.KeyPrefix = "as"
	}
	if cfg.Storage.CASMaxRetries <= 0 {
		cfg.Storage.CASMaxRetries = 4
	}
	if cfg.Password.Memory == 0 {
		cfg.Password.Memory = 16 * 1024
	}
	if cfg.Password.Time == 0 {
		cfg.Password.Time = 2
	}
	if cfg.Password.Parallelism == 0 {
		cfg.Password.Parallelism = 1
	}
	if cfg.Password.SaltLength == 0 {
		cfg.Password.SaltLength = 16
	}
	if cfg.Password.KeyLength == 0 {
		cfg.Password.KeyLength = 32
	}
	if cfg.Guard.LoginPath == "" {
		cfg.Guard.LoginPath = "/login"
	}
	if cfg.Guard.DeniedPath == "" {
		cfg.Guard.DeniedPath = "/unauthorized"
	}
	for _, seed := range cfg.Seed.Accounts {
		if seed.Email == "" || seed.Secret == "" {
			return errors.New("seed account email and secret are required")
		}
		if !seed.Role.Valid() {
			return errors.New("seed account role must be student or alumni")
		}
	}
	return nil
}

package sphereauth

import "errors"

var (
	// ErrInvalidCredentials is returned by Login when no account matches the
	// supplied email and secret.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateAccount is returned by Signup when the email is already
	// registered.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrSignupInvalid is returned by Signup when a required field is missing.
	ErrSignupInvalid = errors.New("invalid signup request")
	// ErrRoleInvalid is returned when a role is outside {student, alumni} or
	// a profile variant does not match the declared role.
	ErrRoleInvalid = errors.New("invalid account role")
	// ErrStorageUnavailable wraps durable storage read/write failures.
	ErrStorageUnavailable = errors.New("durable storage unavailable")
	// ErrCorruptState wraps unparseable durable storage payloads.
	ErrCorruptState = errors.New("corrupt durable state")
	// ErrRegistryConflict is returned when the signup critical section loses
	// the compare-and-swap race too many times in a row.
	ErrRegistryConflict = errors.New("registry write conflict")
	// ErrStoreNotReady is returned when an operation runs before Initialize
	// has completed.
	ErrStoreNotReady = errors.New("session store not initialized")
	// ErrNotAuthenticated is returned by operations that require a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPermissionDenied is returned when the session role is not allowed to
	// perform an operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrSecretPolicy is returned by Signup when the secret violates the
	// configured minimum length.
	ErrSecretPolicy = errors.New("secret policy violation")
)

package sphereauth

import (
	"encoding/json"
	"fmt"
)

// Role gates which destinations and operations are visible to a session.
type Role string

const (
	// RoleStudent identifies a current student account.
	RoleStudent Role = "student"
	// RoleAlumni identifies a graduated alumni account.
	RoleAlumni Role = "alumni"
)

// Valid reports whether r is one of the two AlumniSphere roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAlumni
}

// Profile is the role-specific attribute set attached to an account at
// signup time. Exactly two variants exist, [StudentProfile] and
// [AlumniProfile], and the variant must match the account role.
type Profile interface {
	// ProfileRole returns the role the variant belongs to.
	ProfileRole() Role
}

// StudentProfile carries the student signup fields.
type StudentProfile struct {
	GraduationYear int    `json:"graduationYear,omitempty"`
	Major          string `json:"major,omitempty"`
}

// ProfileRole implements [Profile].
func (StudentProfile) ProfileRole() Role { return RoleStudent }

// AlumniProfile carries the alumni signup fields.
type AlumniProfile struct {
	GraduationYear int    `json:"graduationYear,omitempty"`
	Company        string `json:"company,omitempty"`
	Position       string `json:"position,omitempty"`
	Location       string `json:"location,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

// ProfileRole implements [Profile].
func (AlumniProfile) ProfileRole() Role { return RoleAlumni }

// Account is a durable registered identity. Accounts live in the registry
// list under a single storage key; the email is the login key and is unique
// across the registry. The secret is stored only as an argon2id PHC hash.
//
// Account instances are written once at signup and treated as immutable.
type Account struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	SecretHash  string
	AvatarURL   string
	CreatedAt   int64
	Profile     Profile
}

type accountJSON struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"name"`
	Role        Role            `json:"role"`
	SecretHash  string          `json:"secretHash,omitempty"`
	AvatarURL   string          `json:"avatar,omitempty"`
	CreatedAt   int64           `json:"createdAt,omitempty"`
	Profile     json.RawMessage `json:"profile,omitempty"`
}

// MarshalJSON encodes the profile variant in a shape keyed by the account
// role, so the stored registry stays self-describing.
func (a Account) MarshalJSON() ([]byte, error) {
	raw, err := encodeProfile(a.Profile)
	if err != nil {
		return nil, err
	}
	return json.Marshal(accountJSON{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		SecretHash:  a.SecretHash,
		AvatarURL:   a.AvatarURL,
		CreatedAt:   a.CreatedAt,
		Profile:     raw,
	})
}

// UnmarshalJSON decodes the profile variant selected by the role field.
func (a *Account) UnmarshalJSON(data []byte) error {
	var shadow accountJSON
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}
	profile, err := decodeProfile(shadow.Role, shadow.Profile)
	if err != nil {
		return err
	}
	*a = Account{
		ID:          shadow.ID,
		Email:       shadow.Email,
		DisplayName: shadow.DisplayName,
		Role:        shadow.Role,
		SecretHash:  shadow.SecretHash,
		AvatarURL:   shadow.AvatarURL,
		CreatedAt:   shadow.CreatedAt,
		Profile:     profile,
	}
	return nil
}

// Session is the public projection of exactly one account, with the secret
// hash stripped. It is what the rest of the application sees as "the current
// user" and what persists across restarts.
type Session struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	AvatarURL   string
	CreatedAt   int64
	Profile     Profile
}

type sessionJSON struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"name"`
	Role        Role            `json:"role"`
	AvatarURL   string          `json:"avatar,omitempty"`
	CreatedAt   int64           `json:"createdAt,omitempty"`
	Profile     json.RawMessage `json:"profile,omitempty"`
}

// MarshalJSON encodes the session with its role-keyed profile variant.
func (s Session) MarshalJSON() ([]byte, error) {
	raw, err := encodeProfile(s.Profile)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sessionJSON{
		ID:          s.ID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Role:        s.Role,
		AvatarURL:   s.AvatarURL,
		CreatedAt:   s.CreatedAt,
		Profile:     raw,
	})
}

// UnmarshalJSON decodes the profile variant selected by the role field.
func (s *Session) UnmarshalJSON(data []byte) error {
	var shadow sessionJSON
	if err := json.Unmarshal(data, &shadow); err != nil {
		return err
	}
	profile, err := decodeProfile(shadow.Role, shadow.Profile)
	if err != nil {
		return err
	}
	*s = Session{
		ID:          shadow.ID,
		Email:       shadow.Email,
		DisplayName: shadow.DisplayName,
		Role:        shadow.Role,
		AvatarURL:   shadow.AvatarURL,
		CreatedAt:   shadow.CreatedAt,
		Profile:     profile,
	}
	return nil
}

// Session builds the public projection of the account.
func (a Account) Session() Session {
	return Session{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		AvatarURL:   a.AvatarURL,
		CreatedAt:   a.CreatedAt,
		Profile:     a.Profile,
	}
}

func encodeProfile(p Profile) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s profile: %w", p.ProfileRole(), err)
	}
	return raw, nil
}

func decodeProfile(role Role, raw json.RawMessage) (Profile, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch role {
	case RoleStudent:
		var p StudentProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case RoleAlumni:
		var p AlumniProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrRoleInvalid, role)
	}
}

// SignupRequest is the input for [Store.Signup]. Email, Secret, DisplayName,
// and Role are required; Profile is optional but must match Role when set.
type SignupRequest struct {
	Email       string
	Secret      string
	DisplayName string
	Role        Role
	Profile     Profile
}

// registry is the durable ordered list of all accounts. It is stored as one
// JSON document and rewritten through compare-and-swap so that concurrent
// signups from separate contexts cannot both claim the same email.
type registry struct {
	Accounts []Account `json:"accounts"`
}

func (r registry) findByEmail(email string) (Account, bool) {
	// Exact, case-sensitive match. Normalizing email case is an open
	// question inherited from the original behavior.
	for _, acct := range r.Accounts {
		if acct.Email == email {
			return acct, true
		}
	}
	return Account{}, false
}

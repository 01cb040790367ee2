package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	sphereauth "github.com/alumnisphere/sphereauth"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email  string `json:"email"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload", "unknown")
		return
	}

	sess, err := s.store.Login(r.Context(), payload.Email, payload.Secret)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	tok, err := s.tokens.Generate(sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issuance failed", "unknown")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "user": sess})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email   string          `json:"email"`
		Secret  string          `json:"secret"`
		Name    string          `json:"name"`
		Role    sphereauth.Role `json:"role"`
		Profile json.RawMessage `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload", "unknown")
		return
	}

	profile, err := decodeProfile(payload.Role, payload.Profile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "unknown")
		return
	}

	sess, err := s.store.Signup(r.Context(), sphereauth.SignupRequest{
		Email:       payload.Email,
		Secret:      payload.Secret,
		DisplayName: payload.Name,
		Role:        payload.Role,
		Profile:     profile,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}

	tok, err := s.tokens.Generate(sess.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token issuance failed", "unknown")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"token": tok, "user": sess})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.store.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	sess, _ := s.store.CurrentUser()
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated", "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": sess})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.store.ListRequests(r.Context())
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (s *Server) handleSubmitMentorship(w http.ResponseWriter, r *http.Request) {
	var payload sphereauth.MentorshipRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload", "unknown")
		return
	}

	req, err := s.store.SubmitMentorshipRequest(r.Context(), payload)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request": req})
}

func (s *Server) handleSubmitReferral(w http.ResponseWriter, r *http.Request) {
	var payload sphereauth.ReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload", "unknown")
		return
	}

	req, err := s.store.SubmitReferralRequest(r.Context(), payload)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request": req})
}

func decodeProfile(role sphereauth.Role, raw json.RawMessage) (sphereauth.Profile, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch role {
	case sphereauth.RoleStudent:
		var p sphereauth.StudentProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case sphereauth.RoleAlumni:
		var p sphereauth.AlumniProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, errors.New("unknown role")
	}
}

// writeAuthError maps store errors to HTTP statuses and the coarse error
// kinds the client branches on.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sphereauth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or secret", "invalid_credentials")
	case errors.Is(err, sphereauth.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, "account already exists", "duplicate_account")
	case errors.Is(err, sphereauth.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not authenticated", "unauthorized")
	case errors.Is(err, sphereauth.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "forbidden", "forbidden")
	case errors.Is(err, sphereauth.ErrSignupInvalid),
		errors.Is(err, sphereauth.ErrRoleInvalid),
		errors.Is(err, sphereauth.ErrSecretPolicy):
		writeError(w, http.StatusBadRequest, err.Error(), "unknown")
	case errors.Is(err, sphereauth.ErrStorageUnavailable),
		errors.Is(err, sphereauth.ErrCorruptState),
		errors.Is(err, sphereauth.ErrRegistryConflict),
		errors.Is(err, sphereauth.ErrStoreNotReady):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable", "unknown")
	default:
		writeError(w, http.StatusInternalServerError, "something went wrong", "unknown")
	}
}

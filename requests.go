package sphereauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alumnisphere/sphereauth/internal/audit"
	"github.com/alumnisphere/sphereauth/internal/metrics"
	"github.com/alumnisphere/sphereauth/storage"
)

// RequestKind tags the two request flows a student can submit.
type RequestKind string

const (
	// RequestMentorship asks an alumni mentor for guidance on a topic.
	RequestMentorship RequestKind = "mentorship"
	// RequestReferral asks for a referral to a company and position.
	RequestReferral RequestKind = "referral"
)

// MentorshipRequest is the student-submitted mentorship form.
type MentorshipRequest struct {
	MentorID string `json:"mentorId,omitempty"`
	Topic    string `json:"topic"`
	Message  string `json:"message,omitempty"`
}

// ReferralRequest is the student-submitted referral form.
type ReferralRequest struct {
	Company  string `json:"company"`
	Position string `json:"position"`
	Message  string `json:"message,omitempty"`
}

// Request is one submitted request, stored per account in durable storage.
// Exactly one of Mentorship and Referral is set, matching Kind.
type Request struct {
	ID          string             `json:"id"`
	Kind        RequestKind        `json:"kind"`
	SubmittedAt int64              `json:"submittedAt"`
	Mentorship  *MentorshipRequest `json:"mentorship,omitempty"`
	Referral    *ReferralRequest   `json:"referral,omitempty"`
}

type requestLog struct {
	Requests []Request `json:"requests"`
}

// SubmitMentorshipRequest records a mentorship request for the current
// session. Only students submit mentorship requests.
func (s *Store) SubmitMentorshipRequest(ctx context.Context, req MentorshipRequest) (*Request, error) {
	if req.Topic == "" {
		return nil, fmt.Errorf("%w: mentorship topic is required", ErrSignupInvalid)
	}
	entry := Request{Kind: RequestMentorship, Mentorship: &req}
	return s.submitRequest(ctx, entry)
}

// SubmitReferralRequest records a referral request for the current session.
// Only students submit referral requests.
func (s *Store) SubmitReferralRequest(ctx context.Context, req ReferralRequest) (*Request, error) {
	if req.Company == "" || req.Position == "" {
		return nil, fmt.Errorf("%w: referral company and position are required", ErrSignupInvalid)
	}
	entry := Request{Kind: RequestReferral, Referral: &req}
	return s.submitRequest(ctx, entry)
}

// ListRequests returns the current session's submitted requests,
// newest-first. A session that never submitted anything gets an empty list.
func (s *Store) ListRequests(ctx context.Context) ([]Request, error) {
	sess, err := s.requireSession()
	if err != nil {
		return nil, err
	}

	data, err := s.backend.Get(ctx, s.requestsKey(sess.ID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []Request{}, nil
		}
		s.metrics.Inc(metrics.MetricStorageError)
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var log requestLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	out := make([]Request, len(log.Requests))
	for i, r := range log.Requests {
		out[len(log.Requests)-1-i] = r
	}
	return out, nil
}

func (s *Store) submitRequest(ctx context.Context, entry Request) (*Request, error) {
	sess, err := s.requireSession()
	if err != nil {
		return nil, err
	}
	if sess.Role != RoleStudent {
		return nil, fmt.Errorf("%w: %s requests are student-only", ErrPermissionDenied, entry.Kind)
	}

	entry.ID = uuid.NewString()
	entry.SubmittedAt = s.now().Unix()

	key := s.requestsKey(sess.ID)
	for attempt := 0; attempt < s.config.Storage.CASMaxRetries; attempt++ {
		var log requestLog
		version := uint64(0)

		v, err := s.backend.GetVersioned(ctx, key)
		switch {
		case err == nil:
			if jsonErr := json.Unmarshal(v.Value, &log); jsonErr != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptState, jsonErr)
			}
			version = v.Version
		case errors.Is(err, storage.ErrNotFound):
			// first submission
		default:
			s.metrics.Inc(metrics.MetricStorageError)
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}

		log.Requests = append(log.Requests, entry)
		data, err := json.Marshal(log)
		if err != nil {
			return nil, err
		}

		if _, err := s.backend.CompareAndSwap(ctx, key, version, data); err != nil {
			if errors.Is(err, storage.ErrVersionMismatch) {
				continue
			}
			s.metrics.Inc(metrics.MetricStorageError)
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}

		s.metrics.Inc(metrics.MetricRequestSubmitted)
		s.emitAudit(ctx, audit.Event{
			EventType: auditEventRequestSubmitted,
			AccountID: sess.ID,
			Email:     sess.Email,
			Role:      string(sess.Role),
			Success:   true,
			Metadata:  map[string]string{"kind": string(entry.Kind)},
		})

		out := entry
		return &out, nil
	}

	return nil, ErrRegistryConflict
}

func (s *Store) requireSession() (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return nil, ErrStoreNotReady
	}
	if s.session == nil {
		return nil, ErrNotAuthenticated
	}
	sess := *s.session
	return &sess, nil
}

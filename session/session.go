// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
)

// DefaultExpiredRetention is how long stores keep expired sessions around.
const DefaultExpiredRetention = 5 * time.Minute

// Session is an authenticated browser session.
type Session struct {
	ID string `json:"id"`
	// Subject is the sub claim of the id_token.
	Subject string `json:"sub"`
	// SID is the provider's session ID, if it sent one.
	SID       string `json:"sid,omitempty"`
	Principal string `json:"principal"`

	// IDToken and AccessToken are stored raw so they survive encoding.
	IDToken     string `json:"id_token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`

	Claims    map[string]interface{} `json:"claims,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

// NewSession creates a session for subject that lasts maxAge.
//
// Supported options: WithSID, WithPrincipal, WithTokens, WithClaims, WithNow
func NewSession(subject string, maxAge time.Duration, opt ...Option) (*Session, error) {
	const op = "session.NewSession"
	if subject == "" {
		return nil, fmt.Errorf("%s: missing subject: %w", op, ErrInvalidParameter)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("%s: max age must be greater than zero: %w", op, ErrInvalidParameter)
	}
	opts := getSessionOpts(opt...)
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate session id: %w", op, err)
	}
	now := opts.withNow()
	principal := opts.withPrincipal
	if principal == "" {
		principal = subject
	}
	return &Session{
		ID:          id,
		Subject:     subject,
		SID:         opts.withSID,
		Principal:   principal,
		IDToken:     opts.withIDToken,
		AccessToken: opts.withAccessToken,
		Claims:      opts.withClaims,
		CreatedAt:   now,
		ExpiresAt:   now.Add(maxAge),
	}, nil
}

// IsExpired returns true when the session has expired at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) validate() error {
	const op = "Session.validate"
	switch {
	case s == nil:
		return fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	case s.ID == "":
		return fmt.Errorf("%s: missing id: %w", op, ErrInvalidParameter)
	case s.Subject == "":
		return fmt.Errorf("%s: missing subject: %w", op, ErrInvalidParameter)
	case s.ExpiresAt.IsZero():
		return fmt.Errorf("%s: missing expiration: %w", op, ErrInvalidParameter)
	}
	return nil
}

// Store persists sessions.
type Store interface {
	// Create stores a new session.
	Create(ctx context.Context, s *Session) error

	// Read returns the session for id. It returns ErrNotFound for unknown
	// sessions and ErrExpired (after removing it) for expired ones.
	Read(ctx context.Context, id string) (*Session, error)

	// Delete removes the session for id. Deleting an unknown session is not
	// an error.
	Delete(ctx context.Context, id string) error

	// DeleteBySID removes every session with the provider session ID sid
	// and returns them.
	DeleteBySID(ctx context.Context, sid string) ([]*Session, error)

	// DeleteBySubject removes every session of subject and returns them.
	DeleteBySubject(ctx context.Context, subject string) ([]*Session, error)
}

package goIdentity

import (
	"time"

	"github.com/MrEthical07/goIdentity/identity"
	"github.com/MrEthical07/goIdentity/session"
)

// RegisterRequest is the input of Engine.Register. WebID is optional; a
// placeholder under Config.Identity.WebIDBase is derived when empty.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	WebID    string
}

// LoginRequest is the input of Engine.Login.
type LoginRequest struct {
	Email    string
	Password string
	Metadata session.Metadata
}

// LoginResult is the outcome of a password or two-factor login.
//
// When TwoFactorRequired is set, only Challenge and ChallengeExpiresAt are
// populated and the caller must finish with CompleteTwoFactorLogin.
type LoginResult struct {
	TwoFactorRequired  bool
	Challenge          string
	ChallengeExpiresAt time.Time

	UserID      string
	WebID       string
	SessionID   string
	AccessToken string
	ExpiresAt   time.Time
}

// Principal is the identity behind a verified access token.
type Principal struct {
	UserID    string
	Email     string
	WebID     string
	SessionID string
	Session   session.Session
}

// Profile is the user-facing view of an account.
type Profile struct {
	ID                string
	Email             string
	Name              string
	WebID             string
	TwoFactorEnabled  bool
	Locked            bool
	CreatedAt         time.Time
	LastLoginAt       time.Time
	PasswordChangedAt time.Time
}

// ProfileUpdate carries optional profile edits. Nil fields are left alone.
type ProfileUpdate = identity.ProfileUpdate

// Enrollment is a pending two-factor enrollment. The secret is not stored
// until ConfirmTwoFactorEnrollment succeeds.
type Enrollment struct {
	Secret string
	URI    string
	// QRCode is a data: URL of the URI rendered as PNG. Empty when
	// TwoFactor.QRSize is zero.
	QRCode string
}

// ConsentDecision tells the interaction layer whether to show the consent
// prompt, and for which scopes.
type ConsentDecision struct {
	Prompt  bool
	Missing []string
}

// Account is what the provider library needs to answer for a subject.
type Account struct {
	Subject string
	// Claims holds released claims keyed by claim name.
	Claims map[string]any
}

func profileOf(u identity.User) Profile {
	return Profile{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		WebID:             u.WebID,
		TwoFactorEnabled:  u.TwoFactorEnabled,
		Locked:            u.Locked,
		CreatedAt:         u.CreatedAt,
		LastLoginAt:       u.LastLoginAt,
		PasswordChangedAt: u.PasswordChangedAt,
	}
}

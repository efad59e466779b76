package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind identifies the template of a message.
type Kind string

const (
	KindPasswordReset    Kind = "password_reset"
	KindPasswordChanged  Kind = "password_changed"
	KindNewSignIn        Kind = "new_sign_in"
	KindAccountLocked    Kind = "account_locked"
	KindTwoFactorEnabled Kind = "two_factor_enabled"
)

// Message is one outgoing email.
type Message struct {
	Kind    Kind
	To      string
	Subject string
	Body    string
	// Data carries template values such as the reset token or client IP.
	Data map[string]string
}

// Mailer sends a message synchronously.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// PasswordReset builds the reset mail. link may be empty, in which case
// the token is shown on its own.
func PasswordReset(to, token, link string, expiresAt time.Time) Message {
	target := token
	if link != "" {
		target = link
	}
	return Message{
		Kind:    KindPasswordReset,
		To:      to,
		Subject: "Reset your password",
		Body: fmt.Sprintf("Use the following to choose a new password before %s:\n\n%s\n\n"+
			"If you did not ask for this, ignore this message.", expiresAt.UTC().Format(time.RFC1123), target),
		Data: map[string]string{"token": token, "link": link, "expires_at": expiresAt.UTC().Format(time.RFC3339)},
	}
}

// PasswordChanged tells the owner the password was replaced.
func PasswordChanged(to string, at time.Time) Message {
	return Message{
		Kind:    KindPasswordChanged,
		To:      to,
		Subject: "Your password was changed",
		Body:    fmt.Sprintf("The password for %s was changed at %s.", to, at.UTC().Format(time.RFC1123)),
		Data:    map[string]string{"changed_at": at.UTC().Format(time.RFC3339)},
	}
}

// NewSignIn reports a completed login.
func NewSignIn(to, ip, userAgent string, at time.Time) Message {
	return Message{
		Kind:    KindNewSignIn,
		To:      to,
		Subject: "New sign-in to your account",
		Body: fmt.Sprintf("A new sign-in happened at %s from %s (%s).",
			at.UTC().Format(time.RFC1123), orUnknown(ip), orUnknown(userAgent)),
		Data: map[string]string{"ip": ip, "user_agent": userAgent, "at": at.UTC().Format(time.RFC3339)},
	}
}

// AccountLocked reports a lockout after repeated failures.
func AccountLocked(to string, failures int) Message {
	return Message{
		Kind:    KindAccountLocked,
		To:      to,
		Subject: "Your account was locked",
		Body: fmt.Sprintf("Your account was locked after %d failed sign-in attempts. "+
			"Reset your password to unlock it.", failures),
		Data: map[string]string{"failures": fmt.Sprint(failures)},
	}
}

// TwoFactorEnabled confirms enrollment.
func TwoFactorEnabled(to string) Message {
	return Message{
		Kind:    KindTwoFactorEnabled,
		To:      to,
		Subject: "Two-factor authentication enabled",
		Body:    "Two-factor authentication is now required when you sign in.",
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// LogMailer writes messages to a logger instead of sending them.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("mail",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Recorder keeps sent messages in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

// OfKind returns the recorded messages of kind k.
func (r *Recorder) OfKind(k Kind) []Message {
	var out []Message
	for _, m := range r.Sent() {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

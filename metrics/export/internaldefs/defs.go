package internaldefs

import (
	goIdentity "github.com/MrEthical07/goIdentity"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   goIdentity.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goIdentity.MetricLoginSuccess, Name: "goidentity_login_success_total", Help: "Logins that produced a session."},
	{ID: goIdentity.MetricLoginFailure, Name: "goidentity_login_failure_total", Help: "Failed login attempts, unknown emails included."},
	{ID: goIdentity.MetricLoginLocked, Name: "goidentity_login_locked_total", Help: "Logins refused because the account was locked."},
	{ID: goIdentity.MetricAccountLocked, Name: "goidentity_account_locked_total", Help: "Account lock transitions."},
	{ID: goIdentity.MetricAccountUnlocked, Name: "goidentity_account_unlocked_total", Help: "Account unlocks by reset or operator."},
	{ID: goIdentity.MetricTwoFactorRequired, Name: "goidentity_two_factor_required_total", Help: "Logins that stopped at a two-factor challenge."},
	{ID: goIdentity.MetricTwoFactorSuccess, Name: "goidentity_two_factor_success_total", Help: "Accepted two-factor codes at login."},
	{ID: goIdentity.MetricTwoFactorFailure, Name: "goidentity_two_factor_failure_total", Help: "Rejected two-factor codes."},
	{ID: goIdentity.MetricTwoFactorEnabled, Name: "goidentity_two_factor_enabled_total", Help: "Completed two-factor enrollments."},
	{ID: goIdentity.MetricTwoFactorDisabled, Name: "goidentity_two_factor_disabled_total", Help: "Two-factor removals."},
	{ID: goIdentity.MetricRegistrationSuccess, Name: "goidentity_registration_success_total", Help: "Created accounts."},
	{ID: goIdentity.MetricRegistrationDuplicate, Name: "goidentity_registration_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goIdentity.MetricRegistrationRateLimited, Name: "goidentity_registration_rate_limited_total", Help: "Throttled registrations."},
	{ID: goIdentity.MetricPasswordChangeSuccess, Name: "goidentity_password_change_success_total", Help: "Successful password changes."},
	{ID: goIdentity.MetricPasswordChangeInvalidOld, Name: "goidentity_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: goIdentity.MetricPasswordChangeReuseRejected, Name: "goidentity_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: goIdentity.MetricPasswordUpgraded, Name: "goidentity_password_upgraded_total", Help: "Stored hashes rewritten with the primary scheme."},
	{ID: goIdentity.MetricPasswordResetRequest, Name: "goidentity_password_reset_request_total", Help: "Password reset requests."},
	{ID: goIdentity.MetricPasswordResetRateLimited, Name: "goidentity_password_reset_rate_limited_total", Help: "Throttled password reset requests."},
	{ID: goIdentity.MetricPasswordResetConfirmSuccess, Name: "goidentity_password_reset_confirm_success_total", Help: "Redeemed password reset tokens."},
	{ID: goIdentity.MetricPasswordResetConfirmFailure, Name: "goidentity_password_reset_confirm_failure_total", Help: "Rejected password reset tokens."},
	{ID: goIdentity.MetricSessionCreated, Name: "goidentity_session_created_total", Help: "Created sessions."},
	{ID: goIdentity.MetricSessionRevoked, Name: "goidentity_session_revoked_total", Help: "Sessions revoked by their owner."},
	{ID: goIdentity.MetricLogout, Name: "goidentity_logout_total", Help: "Single-session logouts."},
	{ID: goIdentity.MetricLogoutOthers, Name: "goidentity_logout_others_total", Help: "Logout-other-sessions operations."},
	{ID: goIdentity.MetricAuthenticateFailure, Name: "goidentity_authenticate_failure_total", Help: "Rejected access tokens."},
	{ID: goIdentity.MetricConsentGranted, Name: "goidentity_consent_granted_total", Help: "Stored consent grants."},
	{ID: goIdentity.MetricConsentRevoked, Name: "goidentity_consent_revoked_total", Help: "Revoked consent grants."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goIdentity.MetricLoginLatency, Name: "goidentity_login_latency_seconds", Help: "Login latency, password KDF included."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets in
// seconds.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix names each bound where a label cannot be used.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// Names of the counters fed by the side channels rather than the snapshot.
const (
	AuditDroppedName = "goidentity_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped under dispatcher backpressure."
	MailSentName     = "goidentity_mail_sent_total"
	MailSentHelp     = "Delivered notification mails."
	MailFailedName   = "goidentity_mail_failed_total"
	MailFailedHelp   = "Notification mails the transport rejected."
	MailDroppedName  = "goidentity_mail_dropped_total"
	MailDroppedHelp  = "Notification mails dropped because the queue was full."
)

// NormalizeBuckets copies raw into a fixed-size bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

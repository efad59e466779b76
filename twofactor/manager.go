package twofactor

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"image/png"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	secretBytes = 20
	// Digits is the code length.
	Digits = 6
	// Period is the length of one time step.
	Period = 30 * time.Second
	// Skew is the number of adjacent steps accepted on each side.
	Skew = 1
	// DefaultIssuer labels enrollments when none is configured.
	DefaultIssuer = "Solid OIDC Provider"
	// DefaultQRSize is the edge length of rendered QR codes in pixels.
	DefaultQRSize = 200
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidURI is returned when a QR code is requested for a malformed URI.
var ErrInvalidURI = errors.New("invalid otpauth uri")

// Enrollment is a pending secret handed to the user. It is not persisted
// until a code generated from it verifies.
type Enrollment struct {
	Secret string
	URI    string
}

// Manager issues secrets and verifies codes.
type Manager struct {
	issuer string
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithIssuer sets the issuer label placed in enrollment URIs.
func WithIssuer(issuer string) Option {
	return func(m *Manager) {
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithClock replaces the time source used for verification.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New returns a Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issuer returns the configured issuer label.
func (m *Manager) Issuer() string {
	return m.issuer
}

// GenerateSecret returns 160 random bits as unpadded base32.
func (m *Manager) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return secretEncoding.EncodeToString(raw), nil
}

// BuildEnrollmentURI returns the otpauth URI for a secret. Label and query
// values are escaped.
func (m *Manager) BuildEnrollmentURI(email, secret, issuer string) string {
	if issuer == "" {
		issuer = m.issuer
	}
	// The first unescaped colon separates issuer from account.
	label := strings.ReplaceAll(url.PathEscape(issuer), ":", "%3A") + ":" + url.PathEscape(email)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", strconv.Itoa(Digits))
	v.Set("period", strconv.Itoa(int(Period/time.Second)))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// NewEnrollment issues a pending secret for email under the manager's issuer.
func (m *Manager) NewEnrollment(email string) (Enrollment, error) {
	secret, err := m.GenerateSecret()
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{
		Secret: secret,
		URI:    m.BuildEnrollmentURI(email, secret, m.issuer),
	}, nil
}

// VerifyCode checks code against secret at the current time.
func (m *Manager) VerifyCode(code, secret string) bool {
	return m.VerifyCodeAt(code, secret, m.now())
}

// VerifyCodeAt checks code against secret at t. Anything other than six
// ASCII digits is rejected before the secret is touched.
func (m *Manager) VerifyCodeAt(code, secret string, t time.Time) bool {
	if !codePattern.MatchString(code) || secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t, validateOpts())
	if err != nil {
		return false
	}
	return ok
}

// GenerateCode returns the code for secret at t.
func GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, validateOpts())
}

// QRCodePNG renders uri as a PNG QR code of size x size pixels.
func QRCodePNG(uri string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, ErrInvalidURI
	}
	img, err := key.Image(size, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// QRCodeDataURL renders uri as a data: URL suitable for an <img> tag.
func QRCodeDataURL(uri string, size int) (string, error) {
	raw, err := QRCodePNG(uri, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(Period / time.Second),
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

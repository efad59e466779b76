package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// DefaultChallengeTTL is the lifetime of a pending two-factor challenge.
const DefaultChallengeTTL = 10 * time.Minute

// Token kinds. A challenge never parses as an access token and vice versa.
const (
	KindAccess    = "at"
	KindChallenge = "2fa"
)

var (
	// ErrWrongKind is returned when a valid token of another kind is presented.
	ErrWrongKind = errors.New("jwt: wrong token kind")
	// ErrMissingSubject is returned for tokens without a user or session id.
	ErrMissingSubject = errors.New("jwt: missing subject")
)

// Config holds signing keys and validation rules.
type Config struct {
	AccessTTL     time.Duration
	ChallengeTTL  time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now overrides the clock for issuing and validating. Nil means time.Now.
	Now func() time.Time
}

// Manager signs and verifies access tokens and two-factor challenges.
type Manager struct {
	config Config
}

// AccessClaims bind a token to one session of one user.
type AccessClaims struct {
	UID   string `json:"uid"`
	SID   string `json:"sid"`
	Email string `json:"email,omitempty"`
	WebID string `json:"webid,omitempty"`
	Kind  string `json:"knd"`
	jwt.RegisteredClaims
}

// ChallengeClaims carry a login that passed the password check and still
// owes a TOTP code.
type ChallengeClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Kind  string `json:"knd"`
	jwt.RegisteredClaims
}

// NewManager validates cfg. Ed25519 keys may be raw bytes or PEM.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.ChallengeTTL == 0 {
		cfg.ChallengeTTL = DefaultChallengeTTL
	}
	if cfg.ChallengeTTL < 0 || cfg.ChallengeTTL > time.Hour {
		return nil, errors.New("invalid challenge TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a private key of at least 32 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg}, nil
}

// ChallengeTTL reports the configured challenge lifetime.
func (j *Manager) ChallengeTTL() time.Duration {
	return j.config.ChallengeTTL
}

func (j *Manager) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := j.config.Now()
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    j.config.Issuer,
	}
	if j.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{j.config.Audience}
	}
	return rc
}

// CreateAccess signs an access token for session sid of user uid.
func (j *Manager) CreateAccess(uid, sid, email, webID string) (string, error) {
	if uid == "" || sid == "" {
		return "", ErrMissingSubject
	}
	return j.sign(AccessClaims{
		UID:              uid,
		SID:              sid,
		Email:            email,
		WebID:            webID,
		Kind:             KindAccess,
		RegisteredClaims: j.registered(uid, j.config.AccessTTL),
	})
}

// CreateChallenge signs a pending two-factor challenge and returns its expiry.
func (j *Manager) CreateChallenge(uid, email string) (string, time.Time, error) {
	if uid == "" || email == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	rc := j.registered(uid, j.config.ChallengeTTL)
	rc.ID = uuid.NewString()
	token, err := j.sign(ChallengeClaims{
		UID:              uid,
		Email:            email,
		Kind:             KindChallenge,
		RegisteredClaims: rc,
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, rc.ExpiresAt.Time, nil
}

func (j *Manager) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(j.getMethod(), claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.getSignKey()
	if err != nil {
		return "", err
	}

	return token.SignedString(signKey)
}

// ParseAccess verifies an access token.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindAccess {
		return nil, ErrWrongKind
	}
	if claims.UID == "" || claims.SID == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// ParseChallenge verifies a pending two-factor challenge.
func (j *Manager) ParseChallenge(tokenStr string) (*ChallengeClaims, error) {
	claims := &ChallengeClaims{}
	if err := j.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Kind != KindChallenge {
		return nil, ErrWrongKind
	}
	if claims.UID == "" || claims.Email == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.config.Now),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, j.keyFunc)
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrTokenInvalidClaims
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return err
	}
	if iat != nil && j.config.MaxFutureIAT > 0 {
		if iat.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
			return errors.New("token iat too far in the future")
		}
	}
	return nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.getMethod().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.keyBytesToVerifyKey(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.getVerifyKey()
}

func (j *Manager) getMethod() jwt.SigningMethod {
	switch j.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (j *Manager) getSignKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) getVerifyKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

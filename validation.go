package goIdentity

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// checkPasswordPolicy applies Config.Password to a candidate password.
// Length is counted in characters, the byte cap guards the KDF.
func checkPasswordPolicy(cfg PasswordConfig, pw string) error {
	if strings.TrimSpace(pw) == "" {
		return fmt.Errorf("%w: password is empty", ErrPasswordPolicy)
	}
	if n := utf8.RuneCountInString(pw); n < cfg.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, cfg.MinLength)
	}
	if cfg.MaxPasswordBytes > 0 && len(pw) > cfg.MaxPasswordBytes {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPasswordPolicy, cfg.MaxPasswordBytes)
	}

	var lower, upper, number, special bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			number = true
		default:
			special = true
		}
	}

	var missing []string
	if cfg.RequireLower && !lower {
		missing = append(missing, "lowercase letter")
	}
	if cfg.RequireUpper && !upper {
		missing = append(missing, "uppercase letter")
	}
	if cfg.RequireNumber && !number {
		missing = append(missing, "number")
	}
	if cfg.RequireSpecial && !special {
		missing = append(missing, "special character")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: must include at least one %s", ErrPasswordPolicy, strings.Join(missing, ", "))
	}
	return nil
}

// validEmail accepts a bare address with a dotted domain.
func validEmail(email string) bool {
	if email == "" || email != strings.TrimSpace(email) || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || strings.ContainsAny(email, " \t") {
		return false
	}
	domain := email[at+1:]
	dot := strings.LastIndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1
}

// validWebID accepts absolute http(s) URLs.
func validWebID(webID string) bool {
	u, err := url.Parse(webID)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

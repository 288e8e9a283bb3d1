// Package identity turns a user-chosen label into the opaque identity sent
// with every backend request. It is a routing label, not authentication.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Header is the request header carrying the identity.
const Header = "X-Username"

var disallowed = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ErrInvalid is returned by Parse when nothing usable is left after sanitizing.
var ErrInvalid = errors.New("invalid username")

// Identity is a sanitized username.
type Identity string

// String returns the raw label.
func (i Identity) String() string { return string(i) }

// Empty reports whether no identity has been chosen yet.
func (i Identity) Empty() bool { return i == "" }

// Sanitize strips everything outside [a-zA-Z0-9_-] and lower-cases the rest.
// An input with nothing usable left becomes user_<unix-ms>.
func Sanitize(raw string) Identity {
	return sanitizeAt(raw, time.Now())
}

func sanitizeAt(raw string, now time.Time) Identity {
	clean := strings.ToLower(disallowed.ReplaceAllString(raw, ""))
	if clean == "" {
		return Identity(fmt.Sprintf("user_%d", now.UnixMilli()))
	}
	return Identity(clean)
}

// Valid reports whether raw is already a sanitized identity.
func Valid(raw string) bool {
	return raw != "" && !disallowed.MatchString(raw) && raw == strings.ToLower(raw)
}

// Parse sanitizes raw like Sanitize but refuses to invent a fallback name.
// Servers use it to validate the identity header.
func Parse(raw string) (Identity, error) {
	clean := strings.ToLower(disallowed.ReplaceAllString(raw, ""))
	if clean == "" {
		return "", ErrInvalid
	}
	return Identity(clean), nil
}

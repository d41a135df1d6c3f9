// Package provisioner logs batches of accounts in through validated proxies
// and records what happened to each of them.
package provisioner

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedCredential is returned for lines that are not exactly
// login:password:email:email_password.
var ErrMalformedCredential = errors.New("malformed credential line")

// Credential is one account submitted for provisioning.
type Credential struct {
	Username      string
	Password      string
	Email         string
	EmailPassword string
}

// ParseCredential splits a line on exactly three colons. Fields are not
// trimmed or unescaped, so String returns the original line.
func ParseCredential(line string) (Credential, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 4 {
		return Credential{}, fmt.Errorf("%w: expected 4 fields, got %d", ErrMalformedCredential, len(parts))
	}
	if parts[0] == "" {
		return Credential{}, fmt.Errorf("%w: empty login", ErrMalformedCredential)
	}
	return Credential{
		Username:      parts[0],
		Password:      parts[1],
		Email:         parts[2],
		EmailPassword: parts[3],
	}, nil
}

func (c Credential) String() string {
	return strings.Join([]string{c.Username, c.Password, c.Email, c.EmailPassword}, ":")
}

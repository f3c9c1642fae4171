package validation

import (
	"errors"
	"net/mail"
	"strings"
)

const maxEmailLength = 254

// NormalizeEmail returns the bare address of a receipt recipient with the
// domain lowercased. An empty input is not an error: the caller simply has no
// address on file.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}
	if len(email) > maxEmailLength {
		return "", errors.New("email address is too long (max 254 characters)")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", errors.New("invalid email address format")
	}

	at := strings.LastIndexByte(addr.Address, '@')
	return addr.Address[:at] + strings.ToLower(addr.Address[at:]), nil
}

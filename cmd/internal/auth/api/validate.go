package authapi

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	nameMinRunes     = 2
	nameMaxRunes     = 100
	passwordMinRunes = 8
	passwordMaxRunes = 100
	emailMaxBytes    = 254
)

// validateRegister returns field -> message for every invalid field.
func validateRegister(req registerRequest) map[string]string {
	out := map[string]string{}

	if msg := validateEmail(req.Email); msg != "" {
		out["email"] = msg
	}

	switch n := utf8.RuneCountInString(req.Password); {
	case n < passwordMinRunes:
		out["password"] = "must be at least 8 characters"
	case n > passwordMaxRunes:
		out["password"] = "must be at most 100 characters"
	}

	switch n := utf8.RuneCountInString(strings.TrimSpace(req.Name)); {
	case n < nameMinRunes:
		out["name"] = "must be at least 2 characters"
	case n > nameMaxRunes:
		out["name"] = "must be at most 100 characters"
	}

	return out
}

func validateLogin(req loginRequest) map[string]string {
	out := map[string]string{}
	if msg := validateEmail(req.Email); msg != "" {
		out["email"] = msg
	}
	if req.Password == "" {
		out["password"] = "is required"
	}
	return out
}

// validateEmail accepts a bare RFC 5322 address; display names are rejected.
func validateEmail(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "is required"
	}
	if len(s) > emailMaxBytes {
		return "is too long"
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return "must be a valid email address"
	}
	if !strings.Contains(addr.Address[strings.LastIndexByte(addr.Address, '@')+1:], ".") {
		return "must be a valid email address"
	}
	return ""
}

package validator

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// RequiredString fails on an empty or whitespace-only value.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool { return strings.TrimSpace(value) != "" },
		Error: ValidationError{Field: field, Message: "is required"},
	}
}

func RequiredUUID(field string, value uuid.UUID) Rule {
	return Rule{
		Check: func() bool { return value != uuid.Nil },
		Error: ValidationError{Field: field, Message: "is required"},
	}
}

// MaxLenString counts runes, not bytes.
func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool { return utf8.RuneCountInString(value) <= max },
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters long", max)},
	}
}

// ValidEmail accepts a bare address. Display names are rejected.
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if value == "" {
				return true
			}
			v := strings.TrimSpace(value)
			addr, err := mail.ParseAddress(v)
			return err == nil && addr.Address == v
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// AbsoluteURL requires an http or https URL with a host.
func AbsoluteURL(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if value == "" {
				return true
			}
			u, err := url.Parse(value)
			return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
		},
		Error: ValidationError{Field: field, Message: "must be an absolute http(s) URL"},
	}
}

// CountryCode requires an ISO 3166-1 alpha-2 code in either case.
func CountryCode(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if value == "" {
				return true
			}
			if len(value) != 2 {
				return false
			}
			for _, r := range value {
				if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
					return false
				}
			}
			return true
		},
		Error: ValidationError{Field: field, Message: "must be a two-letter country code"},
	}
}

// DateOnly requires a YYYY-MM-DD calendar date.
func DateOnly(field, value string) Rule {
	return Rule{
		Check: func() bool {
			if value == "" {
				return true
			}
			_, err := time.Parse(time.DateOnly, value)
			return err == nil
		},
		Error: ValidationError{Field: field, Message: "must be a date formatted as YYYY-MM-DD"},
	}
}

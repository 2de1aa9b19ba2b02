package user

import (
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/pinhaljunior/aventureiros/core"
)

const defaultRegion = "BR"

// NormalizeWhatsapp formats a phone number as E.164 whenever it is a valid number (e.g. +5511999999999).
// Otherwise the digits are kept, prefixed with "+" when they look like a full international number.
func NormalizeWhatsapp(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}

	raw := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '+' {
			return r
		}
		return -1
	}, value)
	if num, err := phonenumbers.Parse(raw, defaultRegion); err == nil && phonenumbers.IsValidNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164)
	}

	digits := core.DigitsOnly(value)
	if digits == "" {
		return ""
	}
	if !strings.HasPrefix(digits, "0") && len(digits) >= 10 {
		return "+" + digits
	}
	return digits
}

package whatsapp

import "strings"

// JIDSuffix is the channel-domain suffix for individual WhatsApp addresses.
const JIDSuffix = "@s.whatsapp.net"

// NormalizeRecipient turns a free-form recipient identifier into
// channel-native addressing: digits only, default country code prepended
// when the bare number is too short to already carry one, then the channel
// domain suffix. Identifiers that already look like a JID pass through.
func NormalizeRecipient(raw, defaultCountryCode string) string {
	if strings.Contains(raw, "@") {
		return raw
	}

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return ""
	}

	// National numbers run up to 11 digits; anything longer already carries
	// a country code.
	if len(number) <= 11 && !strings.HasPrefix(number, defaultCountryCode) {
		number = defaultCountryCode + number
	}

	return number + JIDSuffix
}

// PhoneFromJID extracts the E.164-ish phone number from a WhatsApp JID.
func PhoneFromJID(jid string) string {
	number := jid
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		number = jid[:i]
	}
	if number == "" {
		return ""
	}
	if !strings.HasPrefix(number, "+") {
		number = "+" + number
	}
	return number
}

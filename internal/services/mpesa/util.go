package mpesa

import (
	"encoding/base64"
	"strings"
	"time"
)

// NormalizePhone canonicalizes a Kenyan MSISDN to international 254 form.
// A leading "0" is replaced with the country code, an already-prefixed
// number passes through, anything else gets the prefix prepended.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.TrimPrefix(phone, "+")

	switch {
	case strings.HasPrefix(phone, "254"):
		return phone
	case strings.HasPrefix(phone, "0"):
		return "254" + phone[1:]
	default:
		return "254" + phone
	}
}

// Timestamp formats t the way Daraja expects (YYYYMMDDHHmmss).
func Timestamp(t time.Time) string {
	return t.Format("20060102150405")
}

// Password derives the request password from the short code, the pass key
// and the timestamp. It has to be recomputed on every call since the
// timestamp changes each time.
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

package adapters

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// ReadValue renders a loosely typed JSON field (string or number) as a
// trimmed string. Providers are inconsistent about quoting custom fields.
func ReadValue(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	switch cast := fields[key].(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		return strconv.FormatFloat(cast, 'f', -1, 64)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}

// VerifyHexHMAC compares a hex HMAC-SHA256 signature of payload in constant
// time. An optional "sha256=" prefix is accepted.
func VerifyHexHMAC(secret string, payload []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignHexHMAC produces the signature VerifyHexHMAC accepts.
func SignHexHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
)

// IdentityFields are hashed in this order to build a posting fingerprint.
var IdentityFields = []string{"code", "title", "description", "requirement"}

// Fingerprint returns the hex SHA-256 of the identity fields concatenated
// without separators. Missing fields contribute an empty string.
func Fingerprint(fields Fields) string {
	h := sha256.New()
	for _, key := range IdentityFields {
		h.Write([]byte(fieldString(fields[key])))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func fieldString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

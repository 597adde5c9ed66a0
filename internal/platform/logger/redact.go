package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/yungbote/neurobridge-cat/internal/platform/envutil"
)

// redactor rewrites log values by key. Keys are matched by lowercase
// substring.
type redactor struct {
	enabled bool
	salt    string
	redact  []string
	hash    []string
}

var (
	redactorOnce sync.Once
	shared       *redactor
)

// defaultRedactor reads LOG_REDACTION_ENABLED and LOG_HASH_SALT once.
func defaultRedactor() *redactor {
	redactorOnce.Do(func() {
		shared = &redactor{
			enabled: envutil.Bool("LOG_REDACTION_ENABLED", true),
			salt:    envutil.String("LOG_HASH_SALT", ""),
			redact:  []string{"password", "secret", "token", "dsn"},
			// respondent identity never reaches logs in clear text
			hash: []string{"respondent", "session_id"},
		}
	})
	return shared
}

func (r *redactor) apply(kv []any) []any {
	if len(kv) == 0 || !r.enabled {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := stringify(kv[i])
		out = append(out, key, r.value(strings.ToLower(strings.TrimSpace(key)), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func (r *redactor) value(key string, v any) any {
	switch {
	case key == "":
		return v
	case matchesAny(key, r.redact):
		return "[REDACTED]"
	case matchesAny(key, r.hash):
		return r.digest(stringify(v))
	}
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, inner := range m {
			out[k] = r.value(strings.ToLower(strings.TrimSpace(k)), inner)
		}
		return out
	}
	return v
}

func (r *redactor) digest(raw string) string {
	if raw == "" {
		return ""
	}
	h := sha256.New()
	_, _ = h.Write([]byte(r.salt))
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

// HashID is the digest hashed log keys use, so stores can persist a
// respondent reference that still correlates with the logs.
func HashID(raw string) string {
	return defaultRedactor().digest(raw)
}

func matchesAny(key string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(key, n) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

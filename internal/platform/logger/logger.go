package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
	scrub         *Scrubber
}

// New builds a logger for the given mode. "prod"/"production" emits JSON at
// info level; anything else emits console output at debug level. LOG_LEVEL
// overrides the level, LOG_REDACTION_ENABLED=false turns scrubbing off and
// LOG_HASH_SALT salts hashed user ids.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if lvl := strings.TrimSpace(os.Getenv("LOG_LEVEL")); lvl != "" {
		parsed, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
		}
		cfg.Level = parsed
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return FromZap(zapLogger, scrubberFromEnv()), nil
}

// FromZap wraps an existing zap logger. A nil scrubber logs values as given.
func FromZap(z *zap.Logger, s *Scrubber) *Logger {
	return &Logger{SugaredLogger: z.Sugar(), scrub: s}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, l.scrub.kvs(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, l.scrub.kvs(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, l.scrub.kvs(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, l.scrub.kvs(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, l.scrub.kvs(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(l.scrub.kvs(keysAndValues)...), scrub: l.scrub}
}

// Scrubber hides vendor credentials and pseudonymizes user and session ids. A nil
// Scrubber is a no-op.
type Scrubber struct {
	salt string
}

func NewScrubber(salt string) *Scrubber { return &Scrubber{salt: salt} }

func scrubberFromEnv() *Scrubber {
	switch strings.TrimSpace(strings.ToLower(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		return nil
	}
	return NewScrubber(strings.TrimSpace(os.Getenv("LOG_HASH_SALT")))
}

func (s *Scrubber) kvs(kv []interface{}) []interface{} {
	if s == nil || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := toString(kv[i])
		out = append(out, key, s.value(strings.ToLower(strings.TrimSpace(key)), kv[i+1]))
	}
	return out
}

func (s *Scrubber) value(key string, val interface{}) interface{} {
	switch {
	case isSecretKey(key):
		return "[REDACTED]"
	case isUserKey(key):
		return s.hash(val)
	}
	switch v := val.(type) {
	case string:
		return scrubString(v)
	case error:
		return scrubString(v.Error())
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = s.value(strings.ToLower(strings.TrimSpace(k)), inner)
		}
		return out
	default:
		return val
	}
}

func isSecretKey(key string) bool {
	for _, needle := range []string{"api_key", "apikey", "authorization", "password", "secret", "token", "dsn"} {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}

func isUserKey(key string) bool {
	switch key {
	case "user_id", "userid", "session_id", "sessionid":
		return true
	}
	return strings.HasSuffix(key, "_user_id")
}

func (s *Scrubber) hash(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	h := sha256.New()
	if s.salt != "" {
		_, _ = h.Write([]byte(s.salt))
	}
	_, _ = h.Write([]byte(raw))
	return "hash:" + hex.EncodeToString(h.Sum(nil))[:12]
}

var (
	bearerRe    = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`)
	openAIKeyRe = regexp.MustCompile(`sk-[A-Za-z0-9_\-]{16,}`)
	urlRe       = regexp.MustCompile(`[a-z][a-z0-9+.\-]*://[^\s"']+`)
)

// scrubString removes bearer tokens, OpenAI style keys and URL userinfo
// (redis://:pw@host, postgres://user:pw@host) from free text such as
// wrapped vendor errors.
func scrubString(s string) string {
	if s == "" {
		return s
	}
	s = bearerRe.ReplaceAllString(s, "Bearer [REDACTED]")
	s = openAIKeyRe.ReplaceAllString(s, "[REDACTED]")
	return urlRe.ReplaceAllStringFunc(s, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil || u.User == nil {
			return raw
		}
		u.User = url.User("redacted")
		return u.String()
	})
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

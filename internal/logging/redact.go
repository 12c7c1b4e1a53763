package logging

import (
	"io"
	"regexp"
	"strings"
	"sync"
)

const mask = "******"

// passwordPatterns match password-like fields in SQL, argv and env dumps.
// Group 1 and the optional group 2 are kept, the value between them is masked.
var passwordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(IDENTIFIED (?:WITH \S+ )?BY ')(?:[^'\\]|\\.)*(')`),
	regexp.MustCompile(`(?i)(USING PASSWORD\(')(?:[^'\\]|\\.)*(')`),
	regexp.MustCompile(`(?i)(define\(\s*['"]DB_PASSWORD['"]\s*,\s*['"])[^'"]*(['"])`),
	regexp.MustCompile(`(?i)(MYSQL_PWD=)\S+`),
	regexp.MustCompile(`(?i)(--(?:db-)?(?:root-)?pass(?:word)?[= ])\S+`),
	regexp.MustCompile(`(?i)((?:password|passwd|pwd)["']?\s*[=:]\s*["']?)[^\s"',&]+`),
}

// Redact masks password-like fields and the given secrets in s.
func Redact(s string, secrets ...string) string {
	for _, re := range passwordPatterns {
		s = re.ReplaceAllString(s, "${1}"+mask+"${2}")
	}
	for _, secret := range secrets {
		if len(secret) < 3 {
			continue
		}
		s = strings.ReplaceAll(s, secret, mask)
	}
	return s
}

// RedactingWriter scrubs secrets from everything written through it.
// zerolog writes one complete event per Write call, so line-level
// replacement is sufficient.
type RedactingWriter struct {
	mu      sync.Mutex
	out     io.Writer
	secrets []string
}

// NewRedactingWriter wraps out.
func NewRedactingWriter(out io.Writer, secrets ...string) *RedactingWriter {
	return &RedactingWriter{out: out, secrets: secrets}
}

// AddSecret registers a value to mask from now on.
func (w *RedactingWriter) AddSecret(secret string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.secrets = append(w.secrets, secret)
}

func (w *RedactingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	secrets := w.secrets
	w.mu.Unlock()

	clean := Redact(string(p), secrets...)
	if _, err := io.WriteString(w.out, clean); err != nil {
		return 0, err
	}
	return len(p), nil
}

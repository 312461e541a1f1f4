package log

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mattn/go-isatty"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = map[Level]string{Debug: "debug", Info: "info", Warn: "warn", Error: "error"}
var nameToLevel = map[string]Level{"debug": Debug, "info": Info, "warn": Warn, "error": Error}

// Format selects how records are rendered.
type Format int

const (
	FormatJSON Format = iota
	FormatText
)

type Logger struct {
	out    io.Writer
	level  Level
	format Format
	fields map[string]string
	mu     *sync.Mutex
	now    func() time.Time
}

// New returns a stderr logger. Level comes from CITERAG_LOG_LEVEL; records are
// JSON lines unless stderr is a terminal or CITERAG_LOG_FORMAT=text.
func New() *Logger {
	lvl := Info
	if v := strings.ToLower(os.Getenv("CITERAG_LOG_LEVEL")); v != "" {
		if l, ok := nameToLevel[v]; ok {
			lvl = l
		}
	}
	format := FormatJSON
	switch strings.ToLower(os.Getenv("CITERAG_LOG_FORMAT")) {
	case "text":
		format = FormatText
	case "json":
	default:
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = FormatText
		}
	}
	return NewWithWriter(os.Stderr, lvl, format)
}

// NewWithWriter builds a logger over an arbitrary writer.
func NewWithWriter(w io.Writer, level Level, format Format) *Logger {
	return &Logger{out: w, level: level, format: format, fields: make(map[string]string), mu: &sync.Mutex{}, now: time.Now}
}

// Discard returns a logger that drops everything.
func Discard() *Logger { return NewWithWriter(io.Discard, Error+1, FormatJSON) }

func (l *Logger) With(kv map[string]string) *Logger {
	child := &Logger{out: l.out, level: l.level, format: l.format, fields: make(map[string]string), mu: l.mu, now: l.now}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range kv {
		child.fields[k] = v
	}
	return child
}

func (l *Logger) write(level Level, msg string, kv map[string]any) {
	if l == nil || level < l.level {
		return
	}
	rec := make(map[string]any, 4+len(l.fields)+(len(kv)))
	for k, v := range l.fields {
		rec[k] = v
	}
	for k, v := range kv {
		rec[k] = v
	}
	maskSecrets(rec)
	ts := l.now().Format(time.RFC3339)

	var line []byte
	if l.format == FormatText {
		line = []byte(renderText(ts, levelNames[level], msg, rec))
	} else {
		rec["ts"] = ts
		rec["level"] = levelNames[level]
		rec["msg"] = msg
		line, _ = sonic.ConfigStd.Marshal(rec)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(line, '\n'))
}

func (l *Logger) Debug(msg string, kv ...any) { l.write(Debug, msg, toMap(kv...)) }
func (l *Logger) Info(msg string, kv ...any)  { l.write(Info, msg, toMap(kv...)) }
func (l *Logger) Warn(msg string, kv ...any)  { l.write(Warn, msg, toMap(kv...)) }
func (l *Logger) Error(msg string, kv ...any) { l.write(Error, msg, toMap(kv...)) }

func toMap(kv ...any) map[string]any {
	m := make(map[string]any)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, ok := kv[i+1].(error); ok {
			m[k] = err.Error()
			continue
		}
		m[k] = kv[i+1]
	}
	return m
}

func renderText(ts, level, msg string, rec map[string]any) string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", ts, strings.ToUpper(level), msg)
	for _, k := range keys {
		v := fmt.Sprint(rec[k])
		if strings.ContainsAny(v, " \t\"=") {
			v = fmt.Sprintf("%q", v)
		}
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	return b.String()
}

// maskSecrets redacts likely secret values in-place.
func maskSecrets(m map[string]any) {
	secretKeys := []string{"key", "token", "secret", "password", "authorization", "api_key", "apikey", "bearer"}
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lowerK := strings.ToLower(k)
		masked := false
		for _, p := range secretKeys {
			if strings.Contains(lowerK, p) {
				m[k] = redact(s)
				masked = true
				break
			}
		}
		if masked {
			continue
		}
		if strings.HasPrefix(strings.ToLower(s), "bearer ") {
			parts := strings.SplitN(s, " ", 2)
			if len(parts) == 2 {
				m[k] = "Bearer " + redact(parts[1])
			}
			continue
		}
		if strings.HasPrefix(s, "sk-") && secretLike.MatchString(s) {
			m[k] = redact(s)
		}
	}
}

var secretLike = regexp.MustCompile(`(?i)^sk-[a-z0-9_\-]{16,}$`)

func redact(s string) string {
	n := len(s)
	if n <= 8 {
		return "***"
	}
	head, tail := s[:4], s[n-4:]
	return fmt.Sprintf("%s***%s", head, tail)
}

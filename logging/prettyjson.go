// Package logging provides the slog handler the binaries log through.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// JSONHandler is a slog.Handler that writes one JSON object per record.
// With Indent set the object is pretty printed, which is easier to read when
// tailing a TUI's log file.
type JSONHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool
	indent    bool

	attrs  []scopedAttr
	groups []string
}

// scopedAttr remembers the groups that were open when WithAttrs was called.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// Options configure a JSONHandler.
type Options struct {
	Level     slog.Leveler
	AddSource bool
	Indent    bool
}

func NewJSONHandler(w io.Writer, opts *Options) *JSONHandler {
	h := &JSONHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
		h.indent = opts.Indent
	}
	return h
}

// Setup installs a JSONHandler as the slog default. The standard log package
// is routed through it as well, so log.Printf lines come out as JSON.
// A nil writer means stderr.
func Setup(w io.Writer, opts *Options) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := slog.New(NewJSONHandler(w, opts))
	slog.SetDefault(logger)
	log.SetFlags(0)
	return logger
}

// OpenFile opens path for appending log lines, creating it if needed.
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func (h *JSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JSONHandler) Handle(_ context.Context, r slog.Record) error {
	payload := make(map[string]any, 6)

	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	payload["time"] = when.Format(time.RFC3339Nano)
	payload["level"] = r.Level.String()
	payload["msg"] = r.Message

	if h.addSource {
		if src := sourceFromPC(r.PC); src != "" {
			payload["source"] = src
		}
	}

	for _, sa := range h.attrs {
		addAttr(payload, sa.groups, sa.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(payload, h.groups, a)
		return true
	})

	var b []byte
	var err error
	if h.indent {
		b, err = json.MarshalIndent(payload, "", "  ")
	} else {
		b, err = json.Marshal(payload)
	}
	if err != nil {
		// Never drop the message itself.
		b = []byte("{\"time\":" + strconv.Quote(payload["time"].(string)) + ",\"level\":" + strconv.Quote(payload["level"].(string)) + ",\"msg\":" + strconv.Quote(r.Message) + "}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *JSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]scopedAttr(nil), h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, scopedAttr{groups: h.groups, attr: a})
	}
	return &clone
}

func (h *JSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func addAttr(root map[string]any, groups []string, attr slog.Attr) {
	if attr.Key == "" {
		return
	}
	dst := root
	for _, g := range groups {
		m, ok := dst[g].(map[string]any)
		if !ok {
			m = map[string]any{}
			dst[g] = m
		}
		dst = m
	}
	addAttrToMap(dst, attr)
}

func addAttrToMap(dst map[string]any, attr slog.Attr) {
	v := attr.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		child := map[string]any{}
		for _, ga := range v.Group() {
			if ga.Key != "" {
				addAttrToMap(child, ga)
			}
		}
		dst[attr.Key] = child
		return
	}
	dst[attr.Key] = valueToAny(v)
}

func valueToAny(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.String()
	}
}

func sourceFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.File == "" {
		return ""
	}
	file := f.File
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return file + ":" + strconv.Itoa(f.Line)
}

package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
)

// NewJSONHandler returns a [slog.JSONHandler] writing to w. Records are indented if pretty is set,
// which is only meant for reading logs locally.
func NewJSONHandler(w io.Writer, level slog.Leveler, pretty bool) slog.Handler {
	if pretty {
		w = indentWriter{w}
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// indentWriter relies on [slog.JSONHandler] writing exactly one record per call to Write.
type indentWriter struct {
	w io.Writer
}

func (iw indentWriter) Write(p []byte) (int, error) {
	var b bytes.Buffer
	if err := json.Indent(&b, bytes.TrimSpace(p), "", "  "); err != nil {
		return 0, err
	}
	b.WriteByte('\n')

	if _, err := iw.w.Write(b.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

package observability

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLogger_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("prod", &buf)
	l.Info().Str("k", "v").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "hello" || line["k"] != "v" || line["svc"] != "metawatch" {
		t.Fatalf("unexpected fields: %v", line)
	}
}

func TestNewLogger_ConsoleInDev(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger("dev", &buf)
	l.Info().Msg("hello")
	if json.Valid(buf.Bytes()) {
		t.Fatalf("dev logger should not emit JSON: %q", buf.String())
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestJSONLoggerCarriesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(&buf, "debug", "json", "exstem-cbt"), "session")

	log.Info().Str("participant", "17").Msg("entered")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["service"] != "exstem-cbt" || entry["component"] != "session" {
		t.Fatalf("missing service/component fields: %v", entry)
	}
	if entry["message"] != "entered" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "verbose", "json", "")

	log.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}
	log.Info().Msg("shown")
	if buf.Len() == 0 {
		t.Fatal("info should be written")
	}
}

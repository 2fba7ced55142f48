package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestRingCapturesStructuredEntries(t *testing.T) {
	ring := NewRing(10)
	var out bytes.Buffer
	log := New("production", &out, ring)

	log.Info().Str("tx", "abc").Uint64("campaign", 7).Msg("executed tx")
	log.Error().Msg("snapshot failed")

	recent := ring.GetRecent(5)
	if len(recent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(recent))
	}
	if recent[0].Text != "snapshot failed" || recent[0].Level != "error" {
		t.Fatalf("newest entry = %+v", recent[0])
	}
	if recent[1].Fields["tx"] != "abc" || recent[1].Fields["campaign"] != float64(7) {
		t.Fatalf("fields not captured: %+v", recent[1].Fields)
	}
	if !strings.Contains(out.String(), `"message":"executed tx"`) {
		t.Fatalf("primary output missing entry: %s", out.String())
	}
}

func TestRingIsBounded(t *testing.T) {
	ring := NewRing(3)
	log := New("production", &bytes.Buffer{}, ring)
	for _, m := range []string{"one", "two", "three", "four", "five"} {
		log.Info().Msg(m)
	}

	all := ring.GetRecent(0)
	if len(all) != 3 {
		t.Fatalf("ring holds %d entries, want 3", len(all))
	}
	if all[0].Text != "five" || all[2].Text != "three" {
		t.Fatalf("unexpected order: %q %q", all[0].Text, all[2].Text)
	}
}

func TestRingKeepsNonJSONLines(t *testing.T) {
	ring := NewRing(2)
	if _, err := ring.Write([]byte("plain text")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := ring.GetRecent(1)[0].Text; got != "plain text" {
		t.Fatalf("text = %q", got)
	}
}

func TestDevelopmentLevelIncludesDebug(t *testing.T) {
	ring := NewRing(5)
	dev := New("development", &bytes.Buffer{}, ring)
	dev.Debug().Msg("verbose")
	prod := New("production", &bytes.Buffer{}, ring)
	prod.Debug().Msg("hidden")

	recent := ring.GetRecent(0)
	if len(recent) != 1 || recent[0].Text != "verbose" {
		t.Fatalf("unexpected entries: %+v", recent)
	}
}

func TestTMLoggerForwardsKeyvals(t *testing.T) {
	ring := NewRing(5)
	tm := NewTMLogger(New("production", &bytes.Buffer{}, ring)).With("module", "abci-server")
	tm.Info("Waiting for new connection...", "addr", "unix://cfl.sock")

	got := ring.GetRecent(1)[0]
	if got.Text != "Waiting for new connection..." {
		t.Fatalf("text = %q", got.Text)
	}
	if got.Fields["module"] != "abci-server" || got.Fields["addr"] != "unix://cfl.sock" {
		t.Fatalf("fields = %+v", got.Fields)
	}
}

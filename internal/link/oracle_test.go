package link

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeOracleDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "link_bandwidths.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing oracle doc: %v", err)
	}
	return path
}

func TestOracleCapacity(t *testing.T) {
	path := writeOracleDoc(t, `{"1-2": 10, "2-1": 10, "1-3": 1.5}`)
	o := NewOracle(path, 0, slog.New(slog.DiscardHandler))

	// 10 Mbps == 1,250,000 bytes/second.
	if got := o.CapacityBytes(1, 2); got != 1_250_000 {
		t.Errorf("CapacityBytes(1,2) = %v, want 1250000", got)
	}
	if got := o.CapacityBytes(1, 3); got != 187_500 {
		t.Errorf("CapacityBytes(1,3) = %v, want 187500", got)
	}
	// Missing direction means capacity 0.
	if got := o.CapacityBytes(3, 1); got != 0 {
		t.Errorf("CapacityBytes(3,1) = %v, want 0", got)
	}
}

func TestOracleUnreadable(t *testing.T) {
	o := NewOracle(filepath.Join(t.TempDir(), "absent.json"), 0, slog.New(slog.DiscardHandler))
	if got := o.CapacityBytes(1, 2); got != 0 {
		t.Errorf("CapacityBytes = %v for unreadable doc, want 0", got)
	}
}

func TestOracleMalformed(t *testing.T) {
	path := writeOracleDoc(t, `{"1-2": "fast"}`)
	o := NewOracle(path, 0, slog.New(slog.DiscardHandler))
	if got := o.CapacityBytes(1, 2); got != 0 {
		t.Errorf("CapacityBytes = %v for malformed doc, want 0", got)
	}
}

func TestOracleRereadsAfterFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bw.json")
	o := NewOracle(path, 0, slog.New(slog.DiscardHandler))

	if got := o.CapacityBytes(1, 2); got != 0 {
		t.Fatalf("CapacityBytes = %v before doc exists, want 0", got)
	}
	if err := os.WriteFile(path, []byte(`{"1-2": 8}`), 0644); err != nil {
		t.Fatalf("writing doc: %v", err)
	}
	if got := o.CapacityBytes(1, 2); got != 1_000_000 {
		t.Errorf("CapacityBytes = %v once doc exists, want 1000000", got)
	}
}

func TestOracleTTLCache(t *testing.T) {
	path := writeOracleDoc(t, `{"1-2": 8}`)
	o := NewOracle(path, time.Hour, slog.New(slog.DiscardHandler))

	if got := o.CapacityBytes(1, 2); got != 1_000_000 {
		t.Fatalf("CapacityBytes = %v, want 1000000", got)
	}
	// Within the TTL the cached document is served even after the file
	// changes on disk.
	if err := os.WriteFile(path, []byte(`{"1-2": 16}`), 0644); err != nil {
		t.Fatalf("rewriting doc: %v", err)
	}
	if got := o.CapacityBytes(1, 2); got != 1_000_000 {
		t.Errorf("CapacityBytes = %v within TTL, want cached 1000000", got)
	}
}

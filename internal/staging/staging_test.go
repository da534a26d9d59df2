package staging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/config"
)

func TestDecidePrefersForceDisk(t *testing.T) {
	s := &Stager{forceDisk: true, sizeThreshold: 1 << 30, latencyThreshold: time.Hour}
	d := s.Decide(10, time.Millisecond)
	if !d.Disk || d.Reason != "force_disk_enabled" {
		t.Fatalf("expected forced disk decision, got %+v", d)
	}
}

func TestDecideSizeThreshold(t *testing.T) {
	s := &Stager{sizeThreshold: 1000, latencyThreshold: time.Hour}
	d := s.Decide(2000, time.Millisecond)
	if !d.Disk || d.Reason != "size_threshold_exceeded" {
		t.Fatalf("expected size-threshold disk decision, got %+v", d)
	}
}

func TestDecideLatencyThreshold(t *testing.T) {
	s := &Stager{sizeThreshold: 1 << 30, latencyThreshold: 100 * time.Millisecond}
	d := s.Decide(10, 200*time.Millisecond)
	if !d.Disk || d.Reason != "fetch_latency_threshold_exceeded" {
		t.Fatalf("expected latency-threshold disk decision, got %+v", d)
	}
}

func TestDecideDefaultsToMemory(t *testing.T) {
	s := &Stager{sizeThreshold: 1 << 30, latencyThreshold: time.Hour}
	d := s.Decide(10, time.Millisecond)
	if d.Disk || d.Reason != "held_in_memory" {
		t.Fatalf("expected in-memory decision, got %+v", d)
	}
}

func TestSafeFileNameAcceptsWellFormedName(t *testing.T) {
	got := SafeFileName("claim-123.xml", []byte("irrelevant"))
	if got != "claim-123.xml" {
		t.Fatalf("expected declared name to be kept, got %q", got)
	}
}

func TestSafeFileNameRejectsPathTraversal(t *testing.T) {
	got := SafeFileName("../../etc/passwd.xml", []byte("payload"))
	if got == "../../etc/passwd.xml" {
		t.Fatalf("expected traversal attempt to be rejected, got %q", got)
	}
	if filepath.Ext(got) != ".xml" {
		t.Fatalf("expected fallback name to end in .xml, got %q", got)
	}
}

func TestSafeFileNameRejectsMissingXMLSuffix(t *testing.T) {
	got := SafeFileName("not-xml.txt", []byte("payload"))
	if got == "not-xml.txt" {
		t.Fatalf("expected non-.xml name to be rejected, got %q", got)
	}
}

func TestSafeFileNameIsDeterministicForEmptyName(t *testing.T) {
	a := SafeFileName("", []byte("same bytes"))
	b := SafeFileName("", []byte("same bytes"))
	if a != b {
		t.Fatalf("expected deterministic fallback name, got %q and %q", a, b)
	}
	c := SafeFileName("", []byte("different bytes"))
	if a == c {
		t.Fatalf("expected different contents to hash to different fallback names")
	}
}

func TestWriteDiskIsAtomicAndReadable(t *testing.T) {
	dir := t.TempDir()
	s := New(&config.Config{StageReadyDir: dir})

	path, err := s.WriteDisk("claim-1.xml", []byte("<Claim.Submission/>"))
	if err != nil {
		t.Fatalf("WriteDisk: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected file written under %q, got %q", dir, path)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if string(got) != "<Claim.Submission/>" {
		t.Fatalf("staged file contents = %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("expected no leftover temp file, found %q", e.Name())
		}
	}
}

package storage

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExportKeyStripsDirectories(t *testing.T) {
	if got := ExportKey("u1", "../../etc/report.pdf"); got != "exports/u1/report.pdf" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.PresignGet(ctx, "missing", "", time.Minute); err == nil {
		t.Fatalf("expected presign of a missing object to fail")
	}
	if err := s.Put(ctx, "exports/u1/a.pdf", strings.NewReader("%PDF-1.3"), 8, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	data, ct, ok := s.Object("exports/u1/a.pdf")
	if !ok || string(data) != "%PDF-1.3" || ct != "application/pdf" {
		t.Fatalf("unexpected object %q %q %v", data, ct, ok)
	}
	u, err := s.PresignGet(ctx, "exports/u1/a.pdf", "a.pdf", time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(u, "memory://objects/exports/u1/a.pdf?") || !strings.Contains(u, "filename=a.pdf") {
		t.Fatalf("unexpected url %q", u)
	}
	if err := s.Delete(ctx, "exports/u1/a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, ok := s.Object("exports/u1/a.pdf"); ok {
		t.Fatalf("expected object to be deleted")
	}
}

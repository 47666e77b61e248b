package webserver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSelfSignedTLSCachesCert(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	cfg, err := selfSignedTLS(dir)
	if err != nil {
		t.Fatalf("selfSignedTLS: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(cfg.Certificates))
	}

	first, err := os.ReadFile(filepath.Join(dir, "self-signed.crt"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := selfSignedTLS(dir); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(filepath.Join(dir, "self-signed.crt"))
	if string(first) != string(second) {
		t.Error("cert should be reused, not regenerated")
	}

	info, err := os.Stat(filepath.Join(dir, "self-signed.key"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key perms: got %v want 0600", info.Mode().Perm())
	}
}

func TestSelfSignedTLSRegeneratesCorruptCert(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "self-signed.crt"), []byte("garbage"), 0644)
	os.WriteFile(filepath.Join(dir, "self-signed.key"), []byte("garbage"), 0600)

	if _, err := selfSignedTLS(dir); err != nil {
		t.Fatalf("expected regeneration, got %v", err)
	}
}

package tenant

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "tenants.json"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 0 {
		t.Errorf("fresh registry has %d tenants", r.Len())
	}
}

func TestRegisterAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.json")

	r, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register("100", &Config{Folder: "main", Name: "Main", Channel: "telegram", Main: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("200", &Config{Folder: "family", Name: "Family", Channel: "telegram"}); err != nil {
		t.Fatal(err)
	}

	// Register persists; a fresh Load sees the same tenants.
	r2, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if r2.Len() != 2 {
		t.Fatalf("reloaded registry has %d tenants, want 2", r2.Len())
	}
	cfg, ok := r2.Get("200")
	if !ok {
		t.Fatal("chat 200 missing after reload")
	}
	if cfg.Folder != "family" || cfg.ChatID != "200" {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestRegisterDuplicateChat(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "tenants.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register("100", &Config{Folder: "main"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("100", &Config{Folder: "other"}); err == nil {
		t.Error("duplicate chat registration should fail")
	}
	if cfg, _ := r.Get("100"); cfg.Folder != "main" {
		t.Error("original registration was overwritten")
	}
}

func TestLookups(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "tenants.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register("100", &Config{Folder: "main", Main: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("200", &Config{Folder: "family"}); err != nil {
		t.Fatal(err)
	}

	if cfg, ok := r.ByFolder("family"); !ok || cfg.ChatID != "200" {
		t.Errorf("ByFolder(family) = %+v, %v", cfg, ok)
	}
	if _, ok := r.ByFolder("nowhere"); ok {
		t.Error("ByFolder should miss unknown folders")
	}
	if cfg, ok := r.Main(); !ok || cfg.Folder != "main" {
		t.Errorf("Main() = %+v, %v", cfg, ok)
	}
	if len(r.All()) != 2 {
		t.Errorf("All() = %d entries, want 2", len(r.All()))
	}
}

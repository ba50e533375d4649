package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "devices.toml"))
	if err := s.Load(); err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if len(s.All()) != 0 {
		t.Fatalf("missing file produced %d devices", len(s.All()))
	}
}

func TestLookupCreatesDefault(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "devices.toml"))

	ds, existed := s.Lookup("alsa:0,0", "Built-in Audio")
	if existed {
		t.Fatal("first lookup reported an existing entry")
	}
	if ds.UniqueID != "alsa:0,0" || ds.Name != "Built-in Audio" {
		t.Fatalf("default entry = %+v", ds)
	}
	if ds.CreatedAt.IsZero() {
		t.Error("CreatedAt not set on creation")
	}

	_, existed = s.Lookup("alsa:0,0", "Different Name")
	if !existed {
		t.Fatal("second lookup did not find the entry")
	}
}

func TestCommitAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "devices.toml")
	s := NewStore(path)

	ds, _ := s.Lookup("alsa:1,0", "USB Audio")
	ds.Gain.GainDB = -18
	ds.Gain.Muted = true
	ds.DisableAutoRouting = true
	s.Update(ds)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fresh := NewStore(path)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, existed := fresh.Lookup("alsa:1,0", "")
	if !existed {
		t.Fatal("committed entry not found after reload")
	}
	if got.Gain.GainDB != -18 || !got.Gain.Muted {
		t.Errorf("gain = %+v, want -18 dB muted", got.Gain)
	}
	if !got.DisableAutoRouting {
		t.Error("DisableAutoRouting not persisted")
	}
	if got.Name != "USB Audio" {
		t.Errorf("Name = %q, want original name kept", got.Name)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	content := `version = 1

[devices."alsa:0,0"]
unique_id = "alsa:0,0"
name = "Built-in Audio"

[devices."alsa:0,0".gain]
gain_db = -6.0
muted = false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	ds, ok := f.Devices["alsa:0,0"]
	if !ok {
		t.Fatal("device missing from parsed file")
	}
	if ds.Gain.GainDB != -6 {
		t.Errorf("GainDB = %v, want -6", ds.Gain.GainDB)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("LoadFile of a missing file should error for the watcher to skip")
	}
}

func TestLoadFileBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.toml")
	if err := os.WriteFile(path, []byte("version = [broken"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile accepted malformed TOML")
	}
}

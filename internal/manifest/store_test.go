package manifest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"audiopipe/internal/manifest"
	"audiopipe/internal/testsupport"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	inputs := writeInputs(t, t.TempDir(), "audio.flac", "room.wav")
	built := mustBuild(t, manifest.BuildRequest{
		Step:      "transcription",
		SessionID: "S1",
		Inputs:    inputs,
		Config:    map[string]any{"model": "large-v3"},
		Extra:     map[string]any{"checkpoint": "2024-11"},
	})

	outDir := filepath.Join(t.TempDir(), "nested", "transcription")
	store := manifest.NewFileStore("")
	if err := store.Write(context.Background(), outDir, built); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, manifest.DefaultFileName)); err != nil {
		t.Fatalf("expected manifest file: %v", err)
	}

	loaded, ok, err := store.Load(context.Background(), outDir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected manifest to exist")
	}
	if !built.Equal(loaded) {
		t.Fatalf("round trip changed fields %v", built.Diff(loaded))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the manifest in %s, found %d entries", outDir, len(entries))
	}
}

func TestFileStoreOverwritesPreviousManifest(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()
	store := manifest.NewFileStore("manifest.json")

	first := manifest.Manifest{Schema: manifest.SchemaVersion, Step: "transcription", SessionID: "S1"}
	second := first
	second.SessionID = "S2"

	for _, m := range []manifest.Manifest{first, second} {
		if err := store.Write(context.Background(), outDir, m); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}
	loaded, _, err := store.Load(context.Background(), outDir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.SessionID != "S2" {
		t.Fatalf("expected latest manifest, got session %q", loaded.SessionID)
	}
	if store.Path(outDir) != filepath.Join(outDir, "manifest.json") {
		t.Fatalf("unexpected path %s", store.Path(outDir))
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	t.Parallel()
	_, ok, err := manifest.NewFileStore("").Load(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if ok {
		t.Fatal("expected manifest to be missing")
	}

	_, ok, err = manifest.NewFileStore("").Load(context.Background(), filepath.Join(t.TempDir(), "never-created"))
	if err != nil || ok {
		t.Fatalf("missing directory must read as absent, got ok=%v err=%v", ok, err)
	}
}

func TestFileStoreLoadInvalid(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()
	testsupport.WriteString(t, filepath.Join(outDir, manifest.DefaultFileName), "{not json")

	_, ok, err := manifest.NewFileStore("").Load(context.Background(), outDir)
	if !errors.Is(err, manifest.ErrInvalidManifest) {
		t.Fatalf("expected ErrInvalidManifest, got %v", err)
	}
	if !ok {
		t.Fatal("expected invalid manifest to be reported as present")
	}
}

func TestFileStoreLoadFatalReadError(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(outDir, manifest.DefaultFileName), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	_, _, err := manifest.NewFileStore("").Load(context.Background(), outDir)
	if err == nil {
		t.Fatal("expected read error when the manifest path is a directory")
	}
	if errors.Is(err, manifest.ErrInvalidManifest) {
		t.Fatalf("read errors must not be reported as invalid manifests: %v", err)
	}
}

func TestFileStoreWriteFailure(t *testing.T) {
	t.Parallel()
	blocker := testsupport.WriteString(t, filepath.Join(t.TempDir(), "file"), "x")
	err := manifest.NewFileStore("").Write(context.Background(), filepath.Join(blocker, "out"), manifest.Manifest{Schema: manifest.SchemaVersion, Step: "s"})
	if !errors.Is(err, manifest.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
}

func TestFileStoreExists(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	present := testsupport.WriteString(t, filepath.Join(dir, "transcript.json"), "{}")
	store := manifest.NewFileStore("")

	ok, err := store.Exists(context.Background(), present)
	if err != nil || !ok {
		t.Fatalf("expected %s to exist, got ok=%v err=%v", present, ok, err)
	}
	ok, err = store.Exists(context.Background(), filepath.Join(dir, "missing.json"))
	if err != nil || ok {
		t.Fatalf("expected missing output, got ok=%v err=%v", ok, err)
	}
}

func TestPackageLevelLoadAndWrite(t *testing.T) {
	t.Parallel()
	outDir := t.TempDir()
	m := manifest.Manifest{Schema: manifest.SchemaVersion, Step: "preprocess", SessionID: "S9"}
	if err := manifest.WriteManifest(context.Background(), outDir, m); err != nil {
		t.Fatalf("WriteManifest returned error: %v", err)
	}
	loaded, ok, err := manifest.LoadManifest(context.Background(), outDir)
	if err != nil || !ok {
		t.Fatalf("LoadManifest returned ok=%v err=%v", ok, err)
	}
	if !m.Equal(loaded) {
		t.Fatalf("round trip changed fields %v", m.Diff(loaded))
	}
}

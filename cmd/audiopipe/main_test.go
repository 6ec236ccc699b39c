package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiopipe/internal/fingerprint"
	"audiopipe/internal/journal"
	"audiopipe/internal/manifest"
	"audiopipe/internal/stagerun"
	"audiopipe/internal/testsupport"
)

type cliTestEnv struct {
	baseDir     string
	configPath  string
	logDir      string
	journalPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	logDir := filepath.Join(base, "logs")
	journalPath := filepath.Join(base, "state", "journal.db")
	configPath := filepath.Join(base, "audiopipe.toml")
	content := fmt.Sprintf("[paths]\nlog_dir = %q\n\n[cache]\nlock_timeout_seconds = 1\n\n[journal]\npath = %q\n\n[logging]\nlevel = \"error\"\n", logDir, journalPath)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{baseDir: base, configPath: configPath, logDir: logDir, journalPath: journalPath}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if env != nil {
		args = append([]string{"--config", env.configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestFingerprintCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteString(t, filepath.Join(env.baseDir, "abc.wav"), "abc")

	out, _, err := runCLI(t, env, "fingerprint", "--json", path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	var fps []fingerprint.FileFingerprint
	if err := json.Unmarshal([]byte(out), &fps); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(fps) != 1 || fps[0].Name != "abc.wav" || fps[0].ContentHash != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected fingerprints %+v", fps)
	}

	out, _, err = runCLI(t, env, "fingerprint", path)
	if err != nil {
		t.Fatalf("fingerprint table: %v", err)
	}
	requireContains(t, out, "abc.wav")
	requireContains(t, out, "3 B")

	if _, _, err := runCLI(t, env, "fingerprint", filepath.Join(env.baseDir, "missing.wav")); !errors.Is(err, fingerprint.ErrInputUnavailable) {
		t.Fatalf("expected ErrInputUnavailable, got %v", err)
	}
}

func TestDigestCommandRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	first := testsupport.WriteString(t, filepath.Join(env.baseDir, "a.toml"), "model = \"large-v3\"\nhf_auth_token = \"secret123\"\n")
	second := testsupport.WriteString(t, filepath.Join(env.baseDir, "b.yaml"), "model: large-v3\nhf_auth_token: different456\n")

	a, _, err := runCLI(t, env, "digest", first)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	b, _, err := runCLI(t, env, "digest", second)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if a != b || len(strings.TrimSpace(a)) != 64 {
		t.Fatalf("digests differ or malformed: %q vs %q", a, b)
	}

	out, _, err := runCLI(t, env, "digest", "--canonical", first)
	if err != nil {
		t.Fatalf("digest --canonical: %v", err)
	}
	want := `{"auth":{"hf_token":""},"hf_auth_token":"","model":"large-v3"}`
	if strings.TrimSpace(out) != want {
		t.Fatalf("canonical = %s, want %s", out, want)
	}

	out, _, err = runCLI(t, env, "digest", "--canonical", "--secret", "", first)
	if err != nil {
		t.Fatalf("digest --secret: %v", err)
	}
	requireContains(t, out, "secret123")
}

func TestDigestCommandSection(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteString(t, filepath.Join(env.baseDir, "pipeline.toml"), "[transcription]\nmodel = \"large-v3\"\n\n[diarization]\nmin_speakers = 2\n")

	out, _, err := runCLI(t, env, "digest", "--canonical", "--section", "diarization", path)
	if err != nil {
		t.Fatalf("digest --section: %v", err)
	}
	requireContains(t, out, `"min_speakers":2`)
	if strings.Contains(out, "large-v3") {
		t.Fatalf("section output leaked other stages: %s", out)
	}

	if _, _, err := runCLI(t, env, "digest", "--section", "emotion", path); err == nil {
		t.Fatal("expected error for missing section")
	}
}

func TestManifestCheckRecordShow(t *testing.T) {
	env := setupCLITestEnv(t)
	audio := testsupport.WriteFile(t, filepath.Join(env.baseDir, "input", "audio.flac"), 64*1024)
	stageConfig := testsupport.WriteString(t, filepath.Join(env.baseDir, "transcription.json"), `{"model": "large-v3", "hf_auth_token": "secret123"}`)
	outDir := filepath.Join(env.baseDir, "out", "transcription")
	transcript := filepath.Join(outDir, "transcript.json")
	stageArgs := []string{outDir, "--step", "transcription", "--session", "S1", "--input", audio, "--stage-config", stageConfig, "--require", transcript, "--extra", "checkpoint=v3"}

	_, _, err := runCLI(t, env, append([]string{"manifest", "check", "--exit-code"}, stageArgs...)...)
	var exitErr *exitError
	if !errors.As(err, &exitErr) || exitErr.code != exitCodeMiss {
		t.Fatalf("expected exit code %d, got %v", exitCodeMiss, err)
	}

	if _, _, err := runCLI(t, env, append([]string{"manifest", "record"}, stageArgs...)...); !errors.Is(err, stagerun.ErrIncompleteOutputs) {
		t.Fatalf("expected ErrIncompleteOutputs, got %v", err)
	}

	testsupport.WriteString(t, transcript, `{"segments":[]}`)
	out, _, err := runCLI(t, env, append([]string{"manifest", "record"}, stageArgs...)...)
	if err != nil {
		t.Fatalf("manifest record: %v", err)
	}
	requireContains(t, out, "Recorded Transcription manifest")

	out, _, err = runCLI(t, env, append([]string{"manifest", "check", "--exit-code"}, stageArgs...)...)
	if err != nil {
		t.Fatalf("manifest check after record: %v", err)
	}
	requireContains(t, out, "reuse (manifest_match)")

	out, _, err = runCLI(t, env, "manifest", "show", "--json", outDir)
	if err != nil {
		t.Fatalf("manifest show: %v", err)
	}
	shown, err := manifest.Unmarshal([]byte(out))
	if err != nil {
		t.Fatalf("decode shown manifest: %v", err)
	}
	if shown.Step != "transcription" || shown.SessionID != "S1" || shown.Extra["checkpoint"] != "v3" {
		t.Fatalf("unexpected manifest %+v", shown)
	}

	out, _, err = runCLI(t, env, "manifest", "show", outDir)
	if err != nil {
		t.Fatalf("manifest show table: %v", err)
	}
	requireContains(t, out, "audio.flac")
	requireContains(t, out, "checkpoint")

	testsupport.WriteString(t, stageConfig, `{"model": "large-v2", "hf_auth_token": "secret123"}`)
	out, _, err = runCLI(t, env, append([]string{"manifest", "check", "--json"}, stageArgs...)...)
	if err != nil {
		t.Fatalf("manifest check --json: %v", err)
	}
	var decision checkOutput
	if err := json.Unmarshal([]byte(out), &decision); err != nil {
		t.Fatalf("decode decision %q: %v", out, err)
	}
	if decision.Skip || decision.Reason != "manifest_mismatch" || strings.Join(decision.ChangedFields, ",") != "config_hash" {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestManifestShowMissing(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "manifest", "show", t.TempDir()); !errors.Is(err, errNoManifest) {
		t.Fatalf("expected errNoManifest, got %v", err)
	}
}

func TestManifestCheckRequiresStep(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env, "manifest", "check", t.TempDir()); err == nil {
		t.Fatal("expected error without --step")
	}
}

func TestRunCommandSkipsSecondRun(t *testing.T) {
	env := setupCLITestEnv(t)
	audio := testsupport.WriteFile(t, filepath.Join(env.baseDir, "audio.flac"), 4096)
	outDir := filepath.Join(env.baseDir, "out", "emotion")
	counter := filepath.Join(env.baseDir, "runs.log")
	script := fmt.Sprintf(`echo run >> %q && echo "$AUDIOPIPE_STEP" > "$AUDIOPIPE_OUTPUT_DIR/emotion.json"`, counter)
	args := []string{"run", outDir, "--step", "emotion", "--input", audio, "--require", filepath.Join(outDir, "emotion.json"), "--", "sh", "-c", script}

	out, _, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	requireContains(t, out, "completed")

	out, _, err = runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	requireContains(t, out, "skipped, outputs reused")

	runs, err := os.ReadFile(counter)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if strings.Count(string(runs), "run") != 1 {
		t.Fatalf("command ran %d times", strings.Count(string(runs), "run"))
	}
	written, err := os.ReadFile(filepath.Join(outDir, "emotion.json"))
	if err != nil || strings.TrimSpace(string(written)) != "emotion" {
		t.Fatalf("unexpected stage output %q (err %v)", written, err)
	}
}

func TestRunCommandResolvesRelativeRequire(t *testing.T) {
	env := setupCLITestEnv(t)
	outDir := filepath.Join(env.baseDir, "out", "transcription")
	script := `echo '{"segments":[]}' > "$AUDIOPIPE_OUTPUT_DIR/transcript.json"`
	args := []string{"run", outDir, "--step", "transcription", "--require", "transcript.json", "--", "sh", "-c", script}

	if _, _, err := runCLI(t, env, args...); err != nil {
		t.Fatalf("first run: %v", err)
	}
	out, _, err := runCLI(t, env, args...)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	requireContains(t, out, "skipped, outputs reused")
}

func TestResolveOutputs(t *testing.T) {
	t.Parallel()
	got := resolveOutputs("/data/out/emotion", []string{"emotion.json", "sub/scores.json", "/abs/speakers.json", ""})
	want := []string{"/data/out/emotion/emotion.json", "/data/out/emotion/sub/scores.json", "/abs/speakers.json", ""}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("resolveOutputs = %v, want %v", got, want)
	}
	if got := resolveOutputs("/data/out", nil); len(got) != 0 {
		t.Fatalf("expected no outputs, got %v", got)
	}
}

func TestRunCommandFailureWritesNoManifest(t *testing.T) {
	env := setupCLITestEnv(t)
	outDir := filepath.Join(env.baseDir, "out", "embedding")

	if _, _, err := runCLI(t, env, "run", outDir, "--step", "embedding", "--", "sh", "-c", "exit 4"); err == nil {
		t.Fatal("expected failing command to fail the run")
	}
	if _, err := os.Stat(filepath.Join(outDir, manifest.DefaultFileName)); !os.IsNotExist(err) {
		t.Fatalf("manifest must not exist after failure, stat err=%v", err)
	}

	if _, _, err := runCLI(t, env, "run", outDir, "--step", "embedding"); err == nil {
		t.Fatal("expected usage error without a command")
	}
}

func TestConfigInitValidateShow(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, err := runCLI(t, nil, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}

	out, _, err = runCLI(t, env, "config", "show", "--output-dir", filepath.Join(env.baseDir, "out"))
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "cache.manifest_name")
	requireContains(t, out, "Readiness:")
	requireContains(t, out, "[OK]")
}

func TestGlobalOverridesAndMetricsFile(t *testing.T) {
	env := setupCLITestEnv(t)
	path := testsupport.WriteString(t, filepath.Join(env.baseDir, "a.wav"), "abcd")
	metricsPath := filepath.Join(env.baseDir, "audiopipe.prom")

	if _, _, err := runCLI(t, env, "--log-format", "xml", "fingerprint", path); err == nil {
		t.Fatal("expected invalid log format override to fail")
	}

	if _, _, err := runCLI(t, env, "--metrics-file", metricsPath, "fingerprint", path); err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	payload, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	requireContains(t, string(payload), "audiopipe_fingerprint_bytes_total 4")
}

func TestHistoryCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "history")
	if err != nil {
		t.Fatalf("history on empty journal: %v", err)
	}
	requireContains(t, out, "No stage history recorded")

	outDir := filepath.Join(env.baseDir, "out", "diarization")
	script := `echo '{}' > "$AUDIOPIPE_OUTPUT_DIR/speakers.json"`
	args := []string{"run", outDir, "--step", "diarization", "--session", "S7", "--require", filepath.Join(outDir, "speakers.json"), "--", "sh", "-c", script}
	for range 2 {
		if _, _, err := runCLI(t, env, args...); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	out, _, err = runCLI(t, env, "history", "--json", "--step", "diarization")
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	var entries []journal.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history %q: %v", out, err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected decision, record and reuse entries, got %+v", entries)
	}
	if entries[0].Event != journal.EventDecision || entries[0].Reason != "manifest_match" || entries[0].SessionID != "S7" {
		t.Fatalf("newest entry should be the reuse decision, got %+v", entries[0])
	}

	out, _, err = runCLI(t, env, "history", "--limit", "1")
	if err != nil {
		t.Fatalf("history table: %v", err)
	}
	requireContains(t, out, "Diarization")
	requireContains(t, out, "manifest_match")

	out, _, err = runCLI(t, env, "history", "prune", "--older-than-days", "0")
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	requireContains(t, out, "Pruned 3 entries older than 0 days")
}

func TestHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	content, err := os.ReadFile(env.configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	disabled := strings.Replace(string(content), "[journal]\n", "[journal]\nenabled = false\n", 1)
	if err := os.WriteFile(env.configPath, []byte(disabled), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := runCLI(t, env, "history"); !errors.Is(err, errJournalDisabled) {
		t.Fatalf("expected errJournalDisabled, got %v", err)
	}
}

func TestStepLabel(t *testing.T) {
	cases := map[string]string{
		"transcription":     "Transcription",
		"speaker_embedding": "Speaker Embedding",
		"vad-segmentation":  "Vad Segmentation",
		"":                  "(unnamed)",
	}
	for input, want := range cases {
		if got := stepLabel(input); got != want {
			t.Fatalf("stepLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

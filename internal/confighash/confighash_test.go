package confighash_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"audiopipe/internal/confighash"
)

type transcriptionConfig struct {
	Model       string `json:"model"`
	HFAuthToken string `json:"hf_auth_token"`
	BatchSize   int    `json:"batch_size"`
}

func mustDigest(t *testing.T, cfg any, opts ...confighash.Option) confighash.ConfigDigest {
	t.Helper()
	digest, err := confighash.Digest(cfg, opts...)
	if err != nil {
		t.Fatalf("Digest returned error: %v", err)
	}
	return digest
}

func TestDigestIgnoresSecretFields(t *testing.T) {
	t.Parallel()
	a := mustDigest(t, map[string]any{"model": "large-v3", "hf_auth_token": "secret123"})
	b := mustDigest(t, map[string]any{"model": "large-v3", "hf_auth_token": "different456"})
	if a != b {
		t.Fatalf("digests differ across token change: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestDigestDetectsNonSecretChanges(t *testing.T) {
	t.Parallel()
	base := mustDigest(t, map[string]any{"model": "large-v3", "hf_auth_token": "x"})
	cases := []map[string]any{
		{"model": "large-v2", "hf_auth_token": "x"},
		{"model": "large-v3", "hf_auth_token": "x", "language": "en"},
		{"model": "large-v3", "hf_auth_token": "x", "auth": map[string]any{"hf_token": "y", "region": "eu"}},
		{"model": "large-v3 ", "hf_auth_token": "x"},
	}
	for i, cfg := range cases {
		if got := mustDigest(t, cfg); got == base {
			t.Fatalf("case %d: expected digest to change for %v", i, cfg)
		}
	}
}

func TestDigestRedactsAbsentSection(t *testing.T) {
	t.Parallel()
	opts := confighash.WithSecretFields("diarization.hf_auth_token")
	withoutSection := mustDigest(t, map[string]any{"model": "large-v3"}, opts)
	withSection := mustDigest(t, map[string]any{
		"model":       "large-v3",
		"diarization": map[string]any{"hf_auth_token": "secret123"},
	}, opts)
	withNull := mustDigest(t, map[string]any{"model": "large-v3", "diarization": nil}, opts)
	if withoutSection != withSection || withSection != withNull {
		t.Fatalf("absent, present and null sections must hash identically: %s %s %s", withoutSection, withSection, withNull)
	}

	canonical, err := confighash.Canonical(map[string]any{"model": "large-v3"}, opts)
	if err != nil {
		t.Fatalf("Canonical returned error: %v", err)
	}
	if want := `{"diarization":{"hf_auth_token":""},"model":"large-v3"}`; string(canonical) != want {
		t.Fatalf("canonical = %s, want %s", canonical, want)
	}
}

func TestDigestRedactsInsideExistingSectionOnly(t *testing.T) {
	t.Parallel()
	opts := confighash.WithSecretFields("diarization.hf_auth_token")
	a := mustDigest(t, map[string]any{"diarization": map[string]any{"hf_auth_token": "a", "min_speakers": 2}}, opts)
	b := mustDigest(t, map[string]any{"diarization": map[string]any{"hf_auth_token": "b", "min_speakers": 3}}, opts)
	if a == b {
		t.Fatal("sibling of secret field must still influence the digest")
	}
}

func TestDigestIsIndependentOfConstructionOrder(t *testing.T) {
	t.Parallel()
	first := map[string]any{}
	first["model"] = "large-v3"
	first["vad"] = map[string]any{"onset": 0.08, "offset": 0.07}
	first["languages"] = []any{"en", "de"}

	second := map[string]any{}
	second["languages"] = []any{"en", "de"}
	second["vad"] = map[string]any{"offset": 0.07, "onset": 0.08}
	second["model"] = "large-v3"

	if mustDigest(t, first) != mustDigest(t, second) {
		t.Fatal("structurally equal configs must hash identically")
	}

	reordered := map[string]any{"model": "large-v3", "vad": first["vad"], "languages": []any{"de", "en"}}
	if mustDigest(t, first) == mustDigest(t, reordered) {
		t.Fatal("array order is significant and must change the digest")
	}
}

func TestDigestStructMatchesEquivalentMap(t *testing.T) {
	t.Parallel()
	fromStruct := mustDigest(t, transcriptionConfig{Model: "large-v3", HFAuthToken: "secret", BatchSize: 4})
	fromMap := mustDigest(t, map[string]any{"model": "large-v3", "hf_auth_token": "other", "batch_size": 4})
	fromRaw := mustDigest(t, json.RawMessage(`{"batch_size": 4, "model": "large-v3"}`))
	if fromStruct != fromMap || fromMap != fromRaw {
		t.Fatalf("equivalent configurations hash differently: %s %s %s", fromStruct, fromMap, fromRaw)
	}
}

func TestDigestWithoutSecretFields(t *testing.T) {
	t.Parallel()
	a := mustDigest(t, map[string]any{"hf_auth_token": "a"}, confighash.WithSecretFields())
	b := mustDigest(t, map[string]any{"hf_auth_token": "b"}, confighash.WithSecretFields())
	if a == b {
		t.Fatal("disabling redaction must make the token significant")
	}
}

func TestDigestNilConfig(t *testing.T) {
	t.Parallel()
	if mustDigest(t, nil) != mustDigest(t, map[string]any{}) {
		t.Fatal("nil config must hash like an empty object")
	}
}

func TestDigestErrors(t *testing.T) {
	t.Parallel()
	_, err := confighash.Digest([]string{"not", "an", "object"})
	if !errors.Is(err, confighash.ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}

	_, err = confighash.Digest(map[string]any{"bad": make(chan int)})
	if err == nil || !strings.Contains(err.Error(), "encode config") {
		t.Fatalf("expected encode error, got %v", err)
	}
}

func TestDigestSkipsSecretPathThroughScalar(t *testing.T) {
	t.Parallel()
	cases := map[string]map[string]any{
		"string": {"model": "large-v3", "auth": "basic"},
		"list":   {"model": "large-v3", "auth": []any{"token"}},
		"number": {"model": "large-v3", "auth": 3},
	}
	for name, cfg := range cases {
		canonical, err := confighash.Canonical(cfg)
		if err != nil {
			t.Fatalf("%s: Canonical returned error: %v", name, err)
		}
		if strings.Contains(string(canonical), "hf_token") {
			t.Fatalf("%s: secret path must not be materialized under a scalar: %s", name, canonical)
		}
	}

	before := mustDigest(t, map[string]any{"model": "large-v3", "auth": "basic", "hf_auth_token": "one"})
	after := mustDigest(t, map[string]any{"model": "large-v3", "auth": "basic", "hf_auth_token": "two"})
	if before != after {
		t.Fatal("remaining secret paths must still be redacted")
	}
	if before == mustDigest(t, map[string]any{"model": "large-v3", "auth": "digest"}) {
		t.Fatal("the scalar value must still contribute to the digest")
	}
}

func TestDigestNormalizesNumberSpelling(t *testing.T) {
	t.Parallel()
	cases := []struct {
		a, b string
	}{
		{`{"beam": 1.0}`, `{"beam": 1}`},
		{`{"beam": 1e0}`, `{"beam": 1}`},
		{`{"threshold": 0.50}`, `{"threshold": 0.5}`},
		{`{"offset": -0}`, `{"offset": 0}`},
		{`{"offset": -0.0}`, `{"offset": 0}`},
		{`{"nested": {"window": [2.50, 1E3]}}`, `{"nested": {"window": [2.5, 1000]}}`},
	}
	for _, tc := range cases {
		if mustDigest(t, json.RawMessage(tc.a)) != mustDigest(t, json.RawMessage(tc.b)) {
			t.Fatalf("%s and %s must hash alike", tc.a, tc.b)
		}
	}

	fromFloat := mustDigest(t, map[string]any{"beam": 1.0})
	if fromFloat != mustDigest(t, json.RawMessage(`{"beam": 1.0}`)) {
		t.Fatal("decoded float and JSON literal must hash alike")
	}
	if mustDigest(t, json.RawMessage(`{"beam": 1.5}`)) == mustDigest(t, json.RawMessage(`{"beam": 1}`)) {
		t.Fatal("different values must not collide")
	}
}

func TestCanonicalPreservesNumbersAndMarkup(t *testing.T) {
	t.Parallel()
	canonical, err := confighash.Canonical(json.RawMessage(`{"threshold": 1.50, "prompt": "<b>&</b>", "seed": 12345678901234567890}`), confighash.WithSecretFields())
	if err != nil {
		t.Fatalf("Canonical returned error: %v", err)
	}
	want := `{"prompt":"<b>&</b>","seed":12345678901234567890,"threshold":1.5}`
	if string(canonical) != want {
		t.Fatalf("canonical = %s, want %s", canonical, want)
	}
}

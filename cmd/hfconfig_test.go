package cmd

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const llamaConfig = `{"num_hidden_layers": 32, "hidden_size": 4096, "num_attention_heads": 32, "num_key_value_heads": 8, "torch_dtype": "bfloat16"}`

// useHFServer points HF fetches at a test server for the duration of the test.
func useHFServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	orig := hfURL
	hfURL = server.URL
	t.Cleanup(func() { hfURL = orig })
}

func notFound(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }

func TestResolveModelConfig_ExplicitOverrideTakesPrecedence(t *testing.T) {
	dir, err := resolveModelConfig("any-model", "/explicit/path", &Profiles{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "/explicit/path" {
		t.Errorf("expected /explicit/path, got %s", dir)
	}
}

func TestResolveModelConfig_CacheHit(t *testing.T) {
	tmpDir := t.TempDir()
	cacheDir := filepath.Join(tmpDir, appCacheDir, modelConfigsDir, "test-org-test-model")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, hfConfigFile), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", tmpDir)
	useHFServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("cache hit must not fetch, got %s", r.URL.Path)
	})

	dir, err := resolveModelConfig("test-org/test-model", "", &Profiles{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != cacheDir {
		t.Errorf("expected cache dir %s, got %s", cacheDir, dir)
	}
}

func TestResolveModelConfig_FetchUsesProfileRepo(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	var gotPath string
	useHFServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(llamaConfig))
	})
	profiles := &Profiles{Models: []ModelProfile{{ID: "llama-8b", HFRepo: "meta-llama/Llama-3.1-8B-Instruct"}}}

	dir, err := resolveModelConfig("llama-8b", "", profiles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/meta-llama/Llama-3.1-8B-Instruct/resolve/main/config.json" {
		t.Errorf("fetched %s", gotPath)
	}
	if _, err := os.Stat(filepath.Join(dir, hfConfigFile)); err != nil {
		t.Errorf("fetched config not cached: %v", err)
	}
}

func TestResolveModelConfig_BundledFallback(t *testing.T) {
	tmpDir := t.TempDir()
	bundledDir := filepath.Join(tmpDir, modelConfigsDir, "test-model")
	if err := os.MkdirAll(bundledDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundledDir, hfConfigFile), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	chdir(t, tmpDir)
	t.Setenv("HOME", filepath.Join(tmpDir, "no-home"))
	useHFServer(t, notFound)

	dir, err := resolveModelConfig("org/test-model", "", &Profiles{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectedRelative := filepath.Join(modelConfigsDir, "test-model")
	if dir != expectedRelative {
		t.Errorf("expected bundled dir %s, got %s", expectedRelative, dir)
	}
}

func TestResolveModelConfig_AllMiss_ReturnsError(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	useHFServer(t, notFound)

	if _, err := resolveModelConfig("nonexistent/model", "", &Profiles{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestResolveBytesPerToken_Precedence(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	useHFServer(t, func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(llamaConfig)) })
	profiles := &Profiles{Models: []ModelProfile{
		{ID: "fixed", BytesPerToken: 1000},
		{ID: "fp8", HFRepo: "org/fp8", DtypeBytes: 1, MetadataBytesPerToken: 16},
	}}

	tests := []struct {
		name     string
		explicit int64
		model    string
		want     int64
	}{
		{"explicit flag wins", 42, "fixed", 42},
		{"profile value", 0, "fixed", 1000},
		{"derived from config.json", 0, "meta-llama/llama-3.1-8b", 131072},
		{"profile dtype and metadata", 0, "fp8", 65536 + 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveBytesPerToken(tt.explicit, tt.model, "", profiles)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("bytes per token = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveBytesPerToken_NoModel_Errors(t *testing.T) {
	if _, err := resolveBytesPerToken(0, "", "", &Profiles{}); err == nil {
		t.Fatal("expected error without model or explicit value")
	}
}

func TestFetchHFConfig_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/test-org/test-model/resolve/main/config.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"num_hidden_layers": 32}`))
	}))
	defer server.Close()
	t.Setenv("HOME", t.TempDir())

	dir, err := fetchHFConfigFromURL(server.URL+"/test-org/test-model/resolve/main/config.json", "test-org-test-model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, hfConfigFile))
	if err != nil {
		t.Fatalf("cache file not found: %v", err)
	}
	if string(data) != `{"num_hidden_layers": 32}` {
		t.Errorf("unexpected cached content: %s", string(data))
	}
}

func TestFetchHFConfig_ErrorStatuses(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusInternalServerError} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		t.Setenv("HOME", t.TempDir())

		_, err := fetchHFConfigFromURL(server.URL+"/gated/model/resolve/main/config.json", "gated-model")
		server.Close()
		if err == nil {
			t.Errorf("expected error for HTTP %d, got nil", status)
		}
	}
}

func TestFetchHFConfig_HFTokenHeader(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HF_TOKEN", "test-token-123")

	if _, err := fetchHFConfigFromURL(server.URL+"/test/model/resolve/main/config.json", "test-model"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer test-token-123" {
		t.Errorf("expected Bearer auth header, got %q", gotAuth)
	}
}

func TestBundledModelConfigDir(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{"meta-llama/llama-3.1-8b-instruct", filepath.Join(modelConfigsDir, "llama-3.1-8b-instruct")},
		{"codellama/codellama-34b-instruct-hf", filepath.Join(modelConfigsDir, "codellama-34b-instruct-hf")},
		{"simple-model", filepath.Join(modelConfigsDir, "simple-model")},
	}
	for _, tt := range tests {
		if got := bundledModelConfigDir(tt.model); got != tt.expected {
			t.Errorf("bundledModelConfigDir(%q) = %q, want %q", tt.model, got, tt.expected)
		}
	}
}

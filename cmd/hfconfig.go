package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kvtrace/hitrate-sim/sim"
)

const (
	hfBaseURL       = "https://huggingface.co"
	hfConfigFile    = "config.json"
	appCacheDir     = ".hitrate-sim"
	modelConfigsDir = "model_configs"
	httpTimeout     = 30 * time.Second
)

// hfURL is swapped out by tests.
var hfURL = hfBaseURL

// resolveBytesPerToken decides the KV footprint of one token.
// Resolution order: explicit flag > profile value > derived from config.json.
func resolveBytesPerToken(explicit int64, model, configFolder string, profiles *Profiles) (int64, error) {
	if explicit > 0 {
		return explicit, nil
	}
	if model == "" {
		return 0, fmt.Errorf("no --bytes-per-token and no --model to derive it from")
	}
	profile, _ := profiles.Model(model)
	if profile.BytesPerToken > 0 {
		return profile.BytesPerToken, nil
	}

	dir, err := resolveModelConfig(model, configFolder, profiles)
	if err != nil {
		return 0, err
	}
	mc, err := sim.GetModelConfig(filepath.Join(dir, hfConfigFile))
	if err != nil {
		return 0, err
	}
	bpt, err := mc.KVBytesPerToken(profile.DtypeBytes, profile.MetadataBytesPerToken)
	if err != nil {
		return 0, fmt.Errorf("model %s: %w", model, err)
	}
	logrus.Infof("model %s: %d layers, %d kv heads, head dim %d -> %d bytes/token",
		model, mc.NumLayers, mc.NumKVHeads, mc.HeadDim, bpt)
	return bpt, nil
}

// resolveModelConfig finds a HuggingFace config.json for the given model.
// Resolution order: explicit folder > cache > HF fetch > bundled fallback.
// Returns the path to a directory containing config.json.
func resolveModelConfig(model, explicitFolder string, profiles *Profiles) (string, error) {
	if explicitFolder != "" {
		return explicitFolder, nil
	}

	hfRepo := profiles.HFRepo(model)
	cacheModelID := strings.ReplaceAll(model, "/", "-")

	cacheDir := hfCacheDir(cacheModelID)
	cachePath := filepath.Join(cacheDir, hfConfigFile)
	if _, err := os.Stat(cachePath); err == nil {
		logrus.Infof("using cached model config from %s", cacheDir)
		return cacheDir, nil
	}

	fetchedDir, err := fetchHFConfig(hfRepo, cacheModelID)
	if err == nil {
		logrus.Infof("fetched and cached model config for %s", model)
		return fetchedDir, nil
	}
	logrus.Warnf("HF fetch failed for %s: %v", model, err)

	bundledDir := bundledModelConfigDir(model)
	if _, err := os.Stat(filepath.Join(bundledDir, hfConfigFile)); err == nil {
		logrus.Infof("using bundled model config from %s", bundledDir)
		return bundledDir, nil
	}

	return "", fmt.Errorf(
		"could not find config.json for model %q.\n"+
			"  Tried: cache (%s), HuggingFace (%s/%s), bundled (%s).\n"+
			"  Provide --model-config-folder or --bytes-per-token explicitly",
		model, cachePath, hfURL, hfRepo, bundledDir,
	)
}

// fetchHFConfig downloads config.json from HuggingFace and caches it locally.
// Supports HF_TOKEN env var for gated models.
func fetchHFConfig(hfRepo, cacheModelID string) (string, error) {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", hfURL, hfRepo, hfConfigFile)
	return fetchHFConfigFromURL(url, cacheModelID)
}

// fetchHFConfigFromURL fetches config.json from the given URL and caches it.
func fetchHFConfigFromURL(url, cacheModelID string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if token := os.Getenv("HF_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("not found on HuggingFace (HTTP 404). Check --model spelling. URL: %s", url)
	case http.StatusUnauthorized:
		return "", fmt.Errorf("authentication required (HTTP 401). Set HF_TOKEN env var. URL: %s", url)
	default:
		return "", fmt.Errorf("unexpected HTTP %d from HuggingFace for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	cacheDir := hfCacheDir(cacheModelID)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir %s: %w", cacheDir, err)
	}
	cachePath := filepath.Join(cacheDir, hfConfigFile)
	if err := os.WriteFile(cachePath, body, 0o644); err != nil {
		return "", fmt.Errorf("write cache file %s: %w", cachePath, err)
	}
	return cacheDir, nil
}

// hfCacheDir returns the cache directory for a given model.
func hfCacheDir(cacheModelID string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, appCacheDir, modelConfigsDir, cacheModelID)
}

// bundledModelConfigDir returns the expected path for bundled model configs.
// "meta-llama/llama-3.1-8b-instruct" maps to "model_configs/llama-3.1-8b-instruct/".
func bundledModelConfigDir(model string) string {
	shortName := model
	if _, after, found := strings.Cut(model, "/"); found {
		shortName = after
	}
	return filepath.Join(modelConfigsDir, shortName)
}

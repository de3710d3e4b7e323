package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadProfiles_BundledFile_Parses(t *testing.T) {
	// GIVEN the profiles.yaml shipped at the repo root
	p, err := loadProfiles("../profiles.yaml")
	require.NoError(t, err)

	// THEN the default model has a profile and an HF repo
	require.NotEmpty(t, p.Defaults.Model)
	m, ok := p.Model(p.Defaults.Model)
	require.True(t, ok)
	assert.NotEmpty(t, m.HFRepo)
	assert.NotEmpty(t, p.Defaults.Tokenizer)
	assert.NotEmpty(t, p.Defaults.PoolCapacity)
}

func TestLoadProfiles_UnknownField_Rejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "p.yaml", "models:\n  - id: m\n    bytes_per_tokn: 5\n")
	_, err := loadProfiles(path)
	assert.Error(t, err)
}

func TestLoadProfiles_MissingDefaultFile_Empty(t *testing.T) {
	chdir(t, t.TempDir())

	p, err := loadProfiles("")
	require.NoError(t, err)
	assert.Empty(t, p.Models)

	_, err = loadProfiles("absent.yaml")
	assert.Error(t, err, "an explicitly named file must exist")
}

func TestProfiles_HFRepo_FallsBackToID(t *testing.T) {
	p := &Profiles{Models: []ModelProfile{{ID: "llama", HFRepo: "meta-llama/Llama-3.1-8B-Instruct"}}}
	assert.Equal(t, "meta-llama/Llama-3.1-8B-Instruct", p.HFRepo("llama"))
	assert.Equal(t, "org/other", p.HFRepo("org/other"))
}

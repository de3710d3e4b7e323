package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultProfilesFile is looked up relative to the working directory.
const defaultProfilesFile = "profiles.yaml"

// ModelProfile describes how one model's KV cache is sized.
type ModelProfile struct {
	ID                    string `yaml:"id"`
	HFRepo                string `yaml:"hf_repo"`
	DtypeBytes            int64  `yaml:"dtype_bytes"`              // 0 = use torch_dtype from config.json
	BytesPerToken         int64  `yaml:"bytes_per_token"`          // 0 = derive from config.json
	MetadataBytesPerToken int64  `yaml:"metadata_bytes_per_token"` // Added to the derived size
}

// Defaults are the settings used when neither flags, env nor --config set them.
type Defaults struct {
	Model        string `yaml:"model"`
	Tokenizer    string `yaml:"tokenizer"`
	PoolCapacity string `yaml:"pool_capacity"`
}

// Profiles represents the full profiles.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Profiles struct {
	Version  string         `yaml:"version"`
	Models   []ModelProfile `yaml:"models"`
	Defaults Defaults       `yaml:"defaults"`
}

// loadProfiles parses profiles.yaml with strict field checking. A missing
// file at the default location yields empty profiles; a missing file named
// explicitly is an error.
func loadProfiles(path string) (*Profiles, error) {
	explicit := path != ""
	if !explicit {
		path = defaultProfilesFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &Profiles{}, nil
		}
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}

	var p Profiles
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing profiles YAML %s: %w", path, err)
	}
	return &p, nil
}

// Model returns the profile for a model id.
func (p *Profiles) Model(id string) (ModelProfile, bool) {
	for _, m := range p.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelProfile{}, false
}

// HFRepo returns the HuggingFace repo for a model, falling back to the id itself.
func (p *Profiles) HFRepo(id string) string {
	if m, ok := p.Model(id); ok && m.HFRepo != "" {
		return m.HFRepo
	}
	return id
}

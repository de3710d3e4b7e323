package sim

import (
	"encoding/json"
	"fmt"
	"os"
)

// ModelConfig holds the attention geometry that sizes a model's KV cache.
type ModelConfig struct {
	NumLayers     int     `json:"num_hidden_layers"`
	HiddenDim     int     `json:"hidden_size"`
	NumHeads      int     `json:"num_attention_heads"`
	NumKVHeads    int     `json:"num_key_value_heads"`
	HeadDim       int     `json:"head_dim"`
	BytesPerParam float64 `json:"bytes_per_param"`
}

// HFConfig represents a flexible JSON object with dynamic fields.
type HFConfig struct {
	// Raw holds the entire JSON as a dynamic map.
	Raw map[string]any
}

// parseHFConfig parses a HuggingFace config.json. Multimodal configs are
// flattened onto their text_config.
func parseHFConfig(path string) (*HFConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read HF config %q: %w", path, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse HF config JSON: %w", err)
	}
	if textCfg, ok := m["text_config"].(map[string]any); ok {
		for k, v := range textCfg {
			m[k] = v
		}
	}
	return &HFConfig{Raw: m}, nil
}

// GetString returns a string value for a key if present and of the right type.
func (c *HFConfig) GetString(key string) (string, bool) {
	if s, ok := c.Raw[key].(string); ok {
		return s, true
	}
	return "", false
}

// GetInt tries to coerce a JSON number to int.
func (c *HFConfig) GetInt(key string) (int, bool) {
	if v, ok := c.Raw[key]; ok {
		switch x := v.(type) {
		case float64:
			return int(x), true
		case json.Number:
			i, err := x.Int64()
			if err == nil {
				return int(i), true
			}
		}
	}
	return 0, false
}

// MustGetInt returns the int or a default.
func (c *HFConfig) MustGetInt(key string, def int) int {
	if i, ok := c.GetInt(key); ok {
		return i
	}
	return def
}

var precisionToBytesPerParam = map[string]int{
	"float32":  4,
	"float16":  2,
	"bfloat16": 2,
	"int8":     1,
	"uint8":    1,
	"fp8":      1,
}

// GetModelConfig parses a HuggingFace config.json and extracts the fields
// needed to size the KV cache.
func GetModelConfig(hfConfigPath string) (*ModelConfig, error) {
	hf, err := parseHFConfig(hfConfigPath)
	if err != nil {
		return nil, fmt.Errorf("get model config: %w", err)
	}
	numHeads := hf.MustGetInt("num_attention_heads", 0)
	// missing num_key_value_heads means plain multi-head attention
	numKVHeads := hf.MustGetInt("num_key_value_heads", numHeads)
	hidden := hf.MustGetInt("hidden_size", 0)
	headDim := hf.MustGetInt("head_dim", 0)
	if headDim == 0 && numHeads > 0 {
		headDim = hidden / numHeads
	}

	var bytesPerParam int
	if dtype, ok := hf.GetString("torch_dtype"); ok {
		bytesPerParam = precisionToBytesPerParam[dtype]
	}

	return &ModelConfig{
		NumLayers:     hf.MustGetInt("num_hidden_layers", 0),
		HiddenDim:     hidden,
		NumHeads:      numHeads,
		NumKVHeads:    numKVHeads,
		HeadDim:       headDim,
		BytesPerParam: float64(bytesPerParam),
	}, nil
}

// KVBytesPerToken returns the KV cache footprint of one token: a key and a
// value vector per KV head per layer, plus per-token metadata. A dtypeBytes
// of 0 falls back to the config's torch_dtype.
func (mc ModelConfig) KVBytesPerToken(dtypeBytes, metadataBytes int64) (int64, error) {
	if dtypeBytes <= 0 {
		dtypeBytes = int64(mc.BytesPerParam)
	}
	if mc.NumLayers <= 0 || mc.NumKVHeads <= 0 || mc.HeadDim <= 0 || dtypeBytes <= 0 {
		return 0, fmt.Errorf("incomplete model config (layers=%d, kv_heads=%d, head_dim=%d, dtype_bytes=%d)",
			mc.NumLayers, mc.NumKVHeads, mc.HeadDim, dtypeBytes)
	}
	return 2*int64(mc.NumLayers)*int64(mc.NumKVHeads)*int64(mc.HeadDim)*dtypeBytes + metadataBytes, nil
}

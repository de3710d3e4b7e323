package workload

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kvtrace/hitrate-sim/sim"
)

// SynthesisSpec describes an agent-style workload: every call carries a
// shared system prompt, a shuffled selection of reusable context blocks
// (retrieved memories, tool schemas) and fresh user text. Shuffled blocks
// defeat prefix caching while staying reusable as substrings.
type SynthesisSpec struct {
	Calls             int   `yaml:"calls"`
	Sessions          int   `yaml:"sessions"`
	SystemPromptWords int   `yaml:"system_prompt_words"`
	LibraryBlocks     int   `yaml:"library_blocks"`
	BlockWords        int   `yaml:"block_words"`
	BlocksPerCall     int   `yaml:"blocks_per_call"`
	UserWords         int   `yaml:"user_words"`
	OutputWords       int   `yaml:"output_words"`
	VocabularySize    int   `yaml:"vocabulary_size"`
	StartTimeUs       int64 `yaml:"start_time_us"`
	IntervalUs        int64 `yaml:"interval_us"`
}

// DefaultSynthesisSpec returns a small memory-agent workload.
func DefaultSynthesisSpec() SynthesisSpec {
	return SynthesisSpec{
		Calls:             50,
		Sessions:          1,
		SystemPromptWords: 200,
		LibraryBlocks:     20,
		BlockWords:        60,
		BlocksPerCall:     4,
		UserWords:         30,
		OutputWords:       40,
		VocabularySize:    5000,
		StartTimeUs:       1_700_000_000_000_000,
		IntervalUs:        1_000_000,
	}
}

// LoadSynthesisSpec reads a YAML spec with strict field checking; fields
// left out keep their defaults.
func LoadSynthesisSpec(path string) (*SynthesisSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading synthesis spec: %w", err)
	}
	spec := DefaultSynthesisSpec()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing synthesis spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate rejects specs that cannot produce a trace.
func (s SynthesisSpec) Validate() error {
	switch {
	case s.Calls <= 0:
		return fmt.Errorf("calls must be > 0, got %d", s.Calls)
	case s.Sessions <= 0:
		return fmt.Errorf("sessions must be > 0, got %d", s.Sessions)
	case s.VocabularySize <= 0:
		return fmt.Errorf("vocabulary_size must be > 0, got %d", s.VocabularySize)
	case s.BlocksPerCall > s.LibraryBlocks:
		return fmt.Errorf("blocks_per_call (%d) exceeds library_blocks (%d)", s.BlocksPerCall, s.LibraryBlocks)
	case s.SystemPromptWords < 0 || s.BlockWords < 0 || s.UserWords < 0 || s.OutputWords < 0 || s.BlocksPerCall < 0:
		return fmt.Errorf("word and block counts must be >= 0")
	}
	return nil
}

// GenerateAgentTrace builds a deterministic trace from spec and seed.
// Calls are assigned to sessions round-robin.
func GenerateAgentTrace(spec SynthesisSpec, seed int64) ([]TraceLine, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(seed)
	libRNG := rng.ForSubsystem(sim.SubsystemLibrary)
	callRNG := rng.ForSubsystem(sim.SubsystemCalls)
	outRNG := rng.ForSubsystem(sim.SubsystemOutput)

	words := func(r interface{ Intn(int) int }, n int) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = fmt.Sprintf("w%d", r.Intn(spec.VocabularySize))
		}
		return strings.Join(parts, " ")
	}

	system := "system: " + words(libRNG, spec.SystemPromptWords)
	library := make([]string, spec.LibraryBlocks)
	for i := range library {
		library[i] = fmt.Sprintf("memory %d: %s", i, words(libRNG, spec.BlockWords))
	}

	lines := make([]TraceLine, 0, spec.Calls)
	for i := 0; i < spec.Calls; i++ {
		parts := []string{system}
		for _, b := range callRNG.Perm(spec.LibraryBlocks)[:spec.BlocksPerCall] {
			parts = append(parts, library[b])
		}
		parts = append(parts, "user: "+words(callRNG, spec.UserWords))
		lines = append(lines, TraceLine{
			Timestamp: spec.StartTimeUs + int64(i)*spec.IntervalUs,
			Input:     strings.Join(parts, "\n"),
			Output:    words(outRNG, spec.OutputWords),
			SessionID: fmt.Sprintf("session_%d", i%spec.Sessions),
		})
	}
	return lines, nil
}

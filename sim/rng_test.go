package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionedRNG_SameSeed_SameSequence(t *testing.T) {
	a := NewPartitionedRNG(42).ForSubsystem(SubsystemCalls)
	b := NewPartitionedRNG(42).ForSubsystem(SubsystemCalls)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestPartitionedRNG_SubsystemsIsolated(t *testing.T) {
	// GIVEN one master seed
	p := NewPartitionedRNG(42)

	// THEN different subsystems draw different streams
	assert.NotEqual(t, p.ForSubsystem(SubsystemLibrary).Int63(), p.ForSubsystem(SubsystemOutput).Int63())

	// AND the same subsystem returns the cached instance
	assert.Same(t, p.ForSubsystem(SubsystemCalls), p.ForSubsystem(SubsystemCalls))
	assert.Equal(t, int64(42), p.Seed())
}

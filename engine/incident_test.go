package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncidentStatusTransitions(t *testing.T) {
	assert := assert.New(t)

	terminal := []IncidentStatus{StatusApproved, StatusRemoved, StatusRestored, StatusDismissed}

	for _, next := range terminal {
		assert.True(StatusPending.CanTransitionTo(next), "pending -> %s", next)
	}
	assert.False(StatusPending.CanTransitionTo(StatusPending))
	assert.False(StatusPending.CanTransitionTo(IncidentStatus("escalated")))

	// review decisions are terminal
	for _, from := range terminal {
		for _, next := range append(terminal, StatusPending) {
			assert.False(from.CanTransitionTo(next), "%s -> %s", from, next)
		}
	}
}

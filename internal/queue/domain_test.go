package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusSyncing, StatusFailed, StatusCompleted} {
		assert.True(t, s.Valid(), "Expected %q to be a valid status", s)
	}
	assert.False(t, Status("exhausted").Valid(), "Exhausted is a derived condition, not a stored status")
	assert.False(t, Status("").Valid())
}

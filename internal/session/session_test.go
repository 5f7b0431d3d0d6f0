package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginRejectsSecondWizard(t *testing.T) {
	s := NewStore()

	_, err := s.Begin(1, FlowStoreAccount, StepAskAccountKey)
	require.NoError(t, err)

	_, err = s.Begin(1, FlowAdjustDate, StepAskUser)
	assert.ErrorIs(t, err, ErrActive)

	// A different owner is unaffected.
	_, err = s.Begin(2, FlowAdjustDate, StepAskUser)
	assert.NoError(t, err)
}

func TestEndFreesOwner(t *testing.T) {
	s := NewStore()

	_, err := s.Begin(1, FlowStoreAccount, StepAskAccountKey)
	require.NoError(t, err)

	assert.True(t, s.End(1))
	assert.False(t, s.End(1))

	_, ok := s.Get(1)
	assert.False(t, ok)

	_, err = s.Begin(1, FlowStoreAccount, StepAskAccountKey)
	assert.NoError(t, err)
}

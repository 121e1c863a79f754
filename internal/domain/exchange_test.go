package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructExchangesPairsUserAndBot(t *testing.T) {
	t.Parallel()

	msgs := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleBot, Content: "hello"},
		{Role: RoleUser, Content: "build me a thing"},
		{Role: RoleBot, Content: "sure"},
		{Role: RoleSystem, Content: "Chat Ended"},
		{Role: RoleUser, Content: "still there?"},
	}

	got := ReconstructExchanges(msgs)
	require.Len(t, got, 3)
	assert.Equal(t, Exchange{Question: "hi", Answer: "hello"}, got[0])
	assert.Equal(t, Exchange{Question: "build me a thing", Answer: "sure"}, got[1])
	assert.Equal(t, Exchange{Question: "still there?"}, got[2])
}

func TestReconstructExchangesLeadingBotIgnored(t *testing.T) {
	t.Parallel()

	got := ReconstructExchanges([]Message{{Role: RoleBot, Content: "orphan"}})
	assert.Empty(t, got)
}

func TestReconstructExchangesLaterBotOverwrites(t *testing.T) {
	t.Parallel()

	got := ReconstructExchanges([]Message{
		{Role: RoleUser, Content: "q"},
		{Role: RoleBot, Content: "a"},
		{Role: RoleBot, Content: "✅ Prototype created! Preview it here: /prototype/1"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "✅ Prototype created! Preview it here: /prototype/1", got[0].Answer)
}

func TestValidateSatisfaction(t *testing.T) {
	t.Parallel()

	for score := MinSatisfaction; score <= MaxSatisfaction; score++ {
		assert.NoError(t, ValidateSatisfaction(score))
	}
	assert.Error(t, ValidateSatisfaction(0))
	assert.Error(t, ValidateSatisfaction(6))
}

func TestProfileComplete(t *testing.T) {
	t.Parallel()

	var nilProfile *Profile
	assert.False(t, nilProfile.Complete())
	assert.False(t, (&Profile{Name: "Ana"}).Complete())
	assert.True(t, (&Profile{Name: "Ana", Email: "ana@example.com"}).Complete())
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-engine/internal/domain"
)

func TestLoadResolutionPolicy(t *testing.T) {
	path := writeTempFile(t, "policy.yaml", `
fields:
  title: last-writer-wins
  status: first-writer-wins
  total: reject-and-notify
`)
	policy, err := LoadResolutionPolicy(path)
	require.NoError(t, err)

	strategy, ok := policy.StrategyFor("title")
	require.True(t, ok)
	assert.Equal(t, domain.StrategyLastWriterWins, strategy)

	strategy, ok = policy.StrategyFor("total")
	require.True(t, ok)
	assert.Equal(t, domain.StrategyRejectAndNotify, strategy)

	_, ok = policy.StrategyFor("unlisted")
	assert.False(t, ok)
}

func TestLoadResolutionPolicyEmptyPath(t *testing.T) {
	policy, err := LoadResolutionPolicy("")
	require.NoError(t, err)
	assert.Empty(t, policy)
}

func TestLoadResolutionPolicyUnknownStrategy(t *testing.T) {
	path := writeTempFile(t, "policy.yaml", `
fields:
  title: coin-flip
`)
	_, err := LoadResolutionPolicy(path)
	assert.Error(t, err)
}

func TestNilPolicyHasNoStrategies(t *testing.T) {
	var policy ResolutionPolicy
	_, ok := policy.StrategyFor("title")
	assert.False(t, ok)
}

package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessHighScoreYieldsHighTier(t *testing.T) {
	a := NewDefault()
	result := a.Assess(Input{
		InputQuality:     1,
		ResourceHeadroom: 1,
		SubscriptionTier: 1,
		SuccessHistory:   1,
		UserPreference:   1,
	})
	assert.Equal(t, TierHigh, result.Tier)
	assert.InDelta(t, 1.0, result.Score, 1e-9)
}

func TestAssessLowScoreYieldsLowTier(t *testing.T) {
	a := NewDefault()
	result := a.Assess(Input{})
	assert.Equal(t, TierLow, result.Tier)
	assert.InDelta(t, 0.0, result.Score, 1e-9)
}

func TestAssessClampsOutOfRangeInputs(t *testing.T) {
	a := NewDefault()
	result := a.Assess(Input{
		InputQuality:     5,
		ResourceHeadroom: -5,
		SubscriptionTier: 1,
		SuccessHistory:   1,
		UserPreference:   1,
	})
	assert.LessOrEqual(t, result.Score, 1.0)
	assert.GreaterOrEqual(t, result.Score, 0.0)
}

func TestAssessMediumTierBoundary(t *testing.T) {
	a := NewDefault()
	result := a.Assess(Input{
		InputQuality:     0.5,
		ResourceHeadroom: 0.5,
		SubscriptionTier: 0.5,
		SuccessHistory:   0.5,
		UserPreference:   0.5,
	})
	assert.Equal(t, TierMedium, result.Tier)
}

func TestAssessHonorsAllowedQualityTarget(t *testing.T) {
	a := NewDefault()
	target := TierHigh
	result := a.Assess(Input{QualityTarget: &target, AllowedTiers: []Tier{TierHigh, TierMedium, TierLow}})
	assert.Equal(t, TierHigh, result.Tier)
	assert.Equal(t, 1.0, result.Score)
}

func TestAssessDowngradesDisallowedQualityTargetToHighestAllowed(t *testing.T) {
	a := NewDefault()
	target := TierHigh
	result := a.Assess(Input{QualityTarget: &target, AllowedTiers: []Tier{TierMedium, TierLow}})
	assert.Equal(t, TierMedium, result.Tier)
}

func TestSubscriptionFactor(t *testing.T) {
	assert.Equal(t, 0.25, SubscriptionFactor(SubscriptionFree))
	assert.Equal(t, 0.5, SubscriptionFactor(SubscriptionStandard))
	assert.Equal(t, 1.0, SubscriptionFactor(SubscriptionPremium))
}

func TestPreferenceFactor(t *testing.T) {
	assert.Equal(t, 0.8, PreferenceFactor("quality"))
	assert.Equal(t, 0.2, PreferenceFactor("speed"))
	assert.Equal(t, 0.5, PreferenceFactor("balanced"))
}

func TestResourceFactorWeightsGPUHighest(t *testing.T) {
	assert.InDelta(t, 0.4, ResourceFactor(0, 0, 1), 1e-9)
	assert.InDelta(t, 0.3, ResourceFactor(1, 0, 0), 1e-9)
}

func TestHistoryFactorWeightsByTier(t *testing.T) {
	assert.InDelta(t, 0.75, HistoryFactor(0, 0, 1), 1e-9)
	assert.InDelta(t, 0.5, HistoryFactor(0, 0, 0), 1e-9) // no history: neutral default
}

package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stockfunk/internal/agents"
)

func TestWeightTableHasNineValidRows(t *testing.T) {
	labels := Labels()
	require.Len(t, labels, 9)

	for _, label := range labels {
		w := WeightsFor(label)
		assert.NoError(t, w.Validate(), string(label))
	}
}

func TestWeightsForUnknownLabelFallsBack(t *testing.T) {
	w := WeightsFor(Label("GARBAGE"))
	assert.Equal(t, WeightsFor(FallbackLabel), w)
}

func TestStaticDefaultIsBullNormal(t *testing.T) {
	w := StaticDefaultWeights()
	require.NoError(t, w.Validate())
	assert.Equal(t, WeightsFor(ComposeLabel(TrendBull, VolNormal)), w)
	assert.InDelta(t, 0.30, w[agents.NameFundamentals], 1e-9)
}

func TestBearHighVolRowLeansQuality(t *testing.T) {
	w := WeightsFor(ComposeLabel(TrendBear, VolHigh))
	require.NoError(t, w.Validate())

	assert.InDelta(t, 0.40, w[agents.NameQuality], 1e-4)
	assert.InDelta(t, 0.05, w[agents.NameSentiment], 1e-4)
	assert.Greater(t, w[agents.NameQuality], w[agents.NameMomentum])
}

func TestValidateRejectsBadVectors(t *testing.T) {
	missing := Weights{agents.NameFundamentals: 1}
	assert.Error(t, missing.Validate())

	short := StaticDefaultWeights()
	short[agents.NameFundamentals] += 0.01
	assert.Error(t, short.Validate())

	negative := StaticDefaultWeights()
	negative[agents.NameMomentum] = -0.05
	negative[agents.NameFundamentals] += 0.30
	assert.Error(t, negative.Validate())
}

func TestCloneIsIndependent(t *testing.T) {
	orig := StaticDefaultWeights()
	clone := orig.Clone()
	clone[agents.NameFundamentals] = 0.99
	assert.InDelta(t, 0.30, orig[agents.NameFundamentals], 1e-9)
}

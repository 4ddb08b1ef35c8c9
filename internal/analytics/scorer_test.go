package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibration-monitor/internal/errors"
	"vibration-monitor/internal/models"
	"vibration-monitor/internal/testutil"
)

func mustMatrix(t *testing.T, x, y, z []float64) models.FeatureMatrix {
	t.Helper()
	m, err := models.NewFeatureMatrix(x, y, z)
	require.NoError(t, err)
	return m
}

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-12)

	sim, err = CosineSimilarity([]float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-12)

	sim, err = CosineSimilarity([]float64{1, 1}, []float64{-1, -1})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-12)
}

func TestCosineSimilarityDegenerate(t *testing.T) {
	_, err := CosineSimilarity([]float64{0, 0, 0}, []float64{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDegenerateVector))

	_, err = CosineSimilarity([]float64{1, 2}, []float64{0, 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDegenerateVector))

	_, err = CosineSimilarity([]float64{math.Inf(1), 1}, []float64{1, 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDegenerateVector))

	_, err = CosineSimilarity([]float64{1, 1}, []float64{math.NaN(), 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDegenerateVector))
}

func TestCosineSimilarityLargeMagnitudes(t *testing.T) {
	sim, err := CosineSimilarity([]float64{1e200, 1e200}, []float64{1e200, 1e200})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-12)

	sim, err = CosineSimilarity([]float64{1e200, 0}, []float64{1e-200, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-12)

	sim, err = CosineSimilarity([]float64{1e300, 0}, []float64{1e300, 1e300})
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2/2, sim, 1e-12)

	sim, err = CosineSimilarity([]float64{math.MaxFloat64, -math.MaxFloat64}, []float64{1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-12)
}

func TestCosineSimilarityStaysInRange(t *testing.T) {
	v := testutil.DeterministicNoise(3, 1e-3, 97)
	sim, err := CosineSimilarity(v, v)
	require.NoError(t, err)
	assert.LessOrEqual(t, sim, 1.0)
	assert.InDelta(t, 1.0, sim, 1e-12)
}

func TestScoreSelfSimilarity(t *testing.T) {
	features, err := ExtractFeatures(testutil.NoiseSample(11, 128), 128)
	require.NoError(t, err)

	score, err := Score(features, features)
	require.NoError(t, err)
	for _, axis := range models.Axes {
		assert.InDelta(t, 1.0, score.Similarity[axis], 1e-12, "axis=%s", axis)
	}
	assert.InDelta(t, 1.0, score.FaultIndex, 1e-12)
}

func TestScoreWorstAxis(t *testing.T) {
	ref := mustMatrix(t,
		[]float64{1, 0, 0},
		[]float64{1, 0, 0},
		[]float64{1, 0, 0},
	)
	features := mustMatrix(t,
		[]float64{1, 0, 0},
		[]float64{1, 1, 0},
		[]float64{0, 1, 0},
	)

	score, err := Score(features, ref)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, score.Similarity[models.AxisX], 1e-12)
	assert.InDelta(t, 1/math.Sqrt2, score.Similarity[models.AxisY], 1e-12)
	assert.InDelta(t, 0.0, score.Similarity[models.AxisZ], 1e-12)
	assert.InDelta(t, 0.0, score.FaultIndex, 1e-12)
}

func TestScoreFaultIndexIsMinimum(t *testing.T) {
	ref, err := ExtractFeatures(testutil.SineSample(8, 128), 128)
	require.NoError(t, err)

	for seed := int64(1); seed <= 20; seed++ {
		features, err := ExtractFeatures(testutil.NoiseSample(seed, 128), 128)
		require.NoError(t, err)

		score, err := Score(features, ref)
		require.NoError(t, err)
		for _, axis := range models.Axes {
			assert.LessOrEqual(t, score.FaultIndex, score.Similarity[axis])
		}
	}
}

func TestScoreShapeMismatch(t *testing.T) {
	ref, err := ExtractFeatures(testutil.SineSample(8, 128), 128)
	require.NoError(t, err)
	short, err := ExtractFeatures(testutil.SineSample(8, 100), 128)
	require.NoError(t, err)
	require.Equal(t, 50, short.Rows())

	_, err = Score(short, ref)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))
	assert.Contains(t, err.Error(), "50x3")
	assert.Contains(t, err.Error(), "64x3")
}

func TestScoreDegenerateAxis(t *testing.T) {
	ref := mustMatrix(t, []float64{1, 2}, []float64{1, 2}, []float64{1, 2})
	features := mustMatrix(t, []float64{1, 2}, []float64{0, 0}, []float64{1, 2})

	_, err := Score(features, ref)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDegenerateVector))
	assert.Contains(t, err.Error(), "axis y")
}

func TestClassifyBoundary(t *testing.T) {
	const threshold = 0.4

	at := Classify(models.ScoreResult{FaultIndex: threshold}, threshold)
	assert.Equal(t, models.OutcomeNormal, at.Outcome)

	below := Classify(models.ScoreResult{FaultIndex: threshold - 1e-9}, threshold)
	assert.Equal(t, models.OutcomeAnomaly, below.Outcome)

	above := Classify(models.ScoreResult{FaultIndex: 0.9}, threshold)
	assert.Equal(t, models.OutcomeNormal, above.Outcome)
}

func TestClassifyCopiesScore(t *testing.T) {
	v := Classify(models.ScoreResult{Similarity: [3]float64{0.9, 0.3, 0.7}, FaultIndex: 0.3}, 0.4)

	assert.True(t, v.IsAnomaly())
	assert.Equal(t, 0.3, v.FaultIndex)
	assert.Equal(t, 0.4, v.Threshold)
	assert.Equal(t, models.AxisSimilarity{X: 0.9, Y: 0.3, Z: 0.7}, v.Similarity)
}

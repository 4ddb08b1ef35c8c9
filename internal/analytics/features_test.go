package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibration-monitor/internal/models"
	"vibration-monitor/internal/testutil"
)

func TestHannWindow(t *testing.T) {
	w := HannWindow(4)
	require.Len(t, w, 4)
	assert.InDelta(t, 0.0, w[0], 1e-15)
	assert.InDelta(t, 0.75, w[1], 1e-15)
	assert.InDelta(t, 0.75, w[2], 1e-15)
	assert.InDelta(t, 0.0, w[3], 1e-15)

	assert.Equal(t, []float64{1}, HannWindow(1))
	assert.Nil(t, HannWindow(0))
}

func TestHannWindowSymmetric(t *testing.T) {
	for _, size := range []int{5, 64, 127, 128} {
		w := HannWindow(size)
		for i := range w {
			assert.InDelta(t, w[i], w[size-1-i], 1e-12, "size=%d i=%d", size, i)
		}
	}
}

func TestHannWindowClosedForm(t *testing.T) {
	for size := 2; size <= 512; size++ {
		w := HannWindow(size)
		require.Len(t, w, size)
		for n, got := range w {
			want := 0.5 - 0.5*math.Cos(2*math.Pi*float64(n)/float64(size-1))
			require.InDelta(t, want, got, 1e-12, "size=%d n=%d", size, n)
		}
	}
}

func TestExtractFeaturesShape(t *testing.T) {
	const maxMeasurements = 128

	for _, length := range []int{2, 3, 7, 16, 31, 64, 100, 127, 128, 129, 200, 512} {
		sample := testutil.NoiseSample(int64(length), length)

		features, err := ExtractFeatures(sample, maxMeasurements)
		require.NoError(t, err)

		want := min(length, maxMeasurements) / 2
		assert.Equal(t, want, features.Rows(), "length=%d", length)
		assert.Equal(t, 3, features.Cols())
		for _, axis := range models.Axes {
			assert.Len(t, features.Column(axis), want)
		}
	}
}

func TestExtractFeaturesTinySamples(t *testing.T) {
	for _, length := range []int{0, 1} {
		features, err := ExtractFeatures(testutil.NoiseSample(1, length), 128)
		require.NoError(t, err)
		assert.Equal(t, 0, features.Rows())
	}
}

func TestExtractFeaturesInvalidWindow(t *testing.T) {
	_, err := ExtractFeatures(testutil.SineSample(4, 16), 0)
	require.Error(t, err)
}

func TestExtractFeaturesDeterministic(t *testing.T) {
	sample := testutil.NoiseSample(42, 128)

	a, err := ExtractFeatures(sample, 128)
	require.NoError(t, err)
	b, err := ExtractFeatures(sample, 128)
	require.NoError(t, err)

	for _, axis := range models.Axes {
		colA, colB := a.Column(axis), b.Column(axis)
		require.Len(t, colB, len(colA))
		for i := range colA {
			assert.Equal(t, math.Float64bits(colA[i]), math.Float64bits(colB[i]), "axis=%s bin=%d", axis, i)
		}
	}
}

func TestExtractFeaturesTruncatesToPrefix(t *testing.T) {
	long := testutil.NoiseSample(7, 300)

	truncated, err := ExtractFeatures(long, 128)
	require.NoError(t, err)
	prefix, err := ExtractFeatures(long[:128], 128)
	require.NoError(t, err)

	for _, axis := range models.Axes {
		assert.Equal(t, prefix.Column(axis), truncated.Column(axis))
	}
}

func TestExtractFeaturesPeakBin(t *testing.T) {
	// 8 периодов на 128 отсчетов: пик в бине 8, без DC это строка 7
	features, err := ExtractFeatures(testutil.SineSample(8, 128), 128)
	require.NoError(t, err)

	for _, axis := range models.Axes {
		col := features.Column(axis)
		peak := 0
		for i, v := range col {
			if v > col[peak] {
				peak = i
			}
		}
		assert.Equal(t, 7, peak, "axis=%s", axis)
	}
}

func TestFFTMatchesDirectDFT(t *testing.T) {
	for _, n := range []int{16, 64, 128} {
		signal := testutil.DeterministicNoise(int64(n), 1.0, n)

		mag, err := rfftMagnitude(signal)
		require.NoError(t, err)

		re := make([]float64, n/2)
		im := make([]float64, n/2)
		directDFT(signal, re, im)

		require.Len(t, mag, n/2)
		for k := range mag {
			assert.InDelta(t, math.Hypot(re[k], im[k]), mag[k], 1e-9, "n=%d bin=%d", n, k+1)
		}
	}
}

func TestDirectDFTOddLength(t *testing.T) {
	// DC-сигнал: все бины кроме нулевого равны нулю
	signal := testutil.DeterministicSine(0, 1, 9)
	for i := range signal {
		signal[i] = 1
	}

	re := make([]float64, 4)
	im := make([]float64, 4)
	directDFT(signal, re, im)
	for k := range re {
		assert.InDelta(t, 0.0, math.Hypot(re[k], im[k]), 1e-12)
	}
}

package analytics

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/window"
	"github.com/cwbudde/algo-vecmath"

	"vibration-monitor/internal/models"
)

// DefaultMaxMeasurements окно усечения пакета
const DefaultMaxMeasurements = 128

// HannWindow симметричное окно Ханна длины size. Для size == 1 окно равно [1], как в numpy.
func HannWindow(size int) []float64 {
	if size == 1 {
		return []float64{1}
	}
	coeffs, err := window.Hann(size)
	if err != nil {
		return nil
	}
	return coeffs
}

// ExtractFeatures строит спектральную матрицу пакета.
// Пакет усекается до maxMeasurements отсчетов, каждая ось умножается на окно Ханна,
// от модуля действительного FFT отбрасывается нулевой бин.
// Число строк результата равно floor(W/2), где W = min(len(sample), maxMeasurements).
func ExtractFeatures(sample models.Sample, maxMeasurements int) (models.FeatureMatrix, error) {
	if maxMeasurements <= 0 {
		return models.FeatureMatrix{}, fmt.Errorf("max measurements must be > 0: %d", maxMeasurements)
	}

	w := len(sample)
	if w > maxMeasurements {
		w = maxMeasurements
	}
	sample = sample[:w]

	coeffs := HannWindow(w)
	spectra := [models.AxisCount][]float64{}
	for _, axis := range models.Axes {
		windowed, err := window.ApplyCoefficients(sample.Series(axis), coeffs)
		if err != nil {
			return models.FeatureMatrix{}, fmt.Errorf("axis %s: %w", axis, err)
		}

		mag, err := rfftMagnitude(windowed)
		if err != nil {
			return models.FeatureMatrix{}, fmt.Errorf("axis %s: %w", axis, err)
		}
		spectra[axis] = mag
	}

	return models.NewFeatureMatrix(spectra[models.AxisX], spectra[models.AxisY], spectra[models.AxisZ])
}

// rfftMagnitude возвращает |X[k]| для k = 1..floor(n/2)
func rfftMagnitude(signal []float64) ([]float64, error) {
	n := len(signal)
	bins := n / 2
	if bins == 0 {
		return []float64{}, nil
	}

	re := make([]float64, bins)
	im := make([]float64, bins)

	if plan, err := algofft.NewPlan64(n); err == nil {
		in := make([]complex128, n)
		for i, v := range signal {
			in[i] = complex(v, 0)
		}
		out := make([]complex128, n)
		if err := plan.Forward(out, in); err != nil {
			return nil, fmt.Errorf("fft: %w", err)
		}
		for k := 1; k <= bins; k++ {
			re[k-1] = real(out[k])
			im[k-1] = imag(out[k])
		}
	} else {
		// планировщик принимает не все длины
		directDFT(signal, re, im)
	}

	mag := make([]float64, bins)
	vecmath.Magnitude(mag, re, im)
	return mag, nil
}

// directDFT считает бины 1..len(re) прямым суммированием
func directDFT(signal, re, im []float64) {
	n := float64(len(signal))
	for k := range re {
		bin := float64(k + 1)
		var sr, si float64
		for t, v := range signal {
			phase := 2 * math.Pi * bin * float64(t) / n
			sr += v * math.Cos(phase)
			si -= v * math.Sin(phase)
		}
		re[k] = sr
		im[k] = si
	}
}

// Package testutil генерирует детерминированные пакеты для тестов
package testutil

import (
	"encoding/json"
	"math"
	"math/rand"

	"vibration-monitor/internal/models"
)

// DeterministicSine синусоида с частотой cycles периодов на length отсчетов
func DeterministicSine(cycles, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * cycles / float64(length)
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise белый шум с фиксированным зерном
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// SampleFromAxes собирает отсчеты из трех рядов одинаковой длины
func SampleFromAxes(x, y, z []float64) models.Sample {
	s := make(models.Sample, len(x))
	for i := range s {
		s[i] = models.Reading{X: x[i], Y: y[i], Z: z[i]}
	}
	return s
}

// SineSample пакет, у которого каждая ось - синусоида
func SineSample(cycles float64, length int) models.Sample {
	return SampleFromAxes(
		DeterministicSine(cycles, 1.0, length),
		DeterministicSine(cycles, 0.5, length),
		DeterministicSine(cycles, 2.0, length),
	)
}

// NoiseSample пакет из независимого шума по осям
func NoiseSample(seed int64, length int) models.Sample {
	return SampleFromAxes(
		DeterministicNoise(seed, 1.0, length),
		DeterministicNoise(seed+1, 1.0, length),
		DeterministicNoise(seed+2, 1.0, length),
	)
}

// Payload кодирует отсчеты в JSON пакета
func Payload(s models.Sample) []byte {
	doc := map[string][]float64{
		"x": s.Series(models.AxisX),
		"y": s.Series(models.AxisY),
		"z": s.Series(models.AxisZ),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

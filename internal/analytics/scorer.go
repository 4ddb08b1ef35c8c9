package analytics

import (
	"math"

	"vibration-monitor/internal/errors"
	"vibration-monitor/internal/models"
)

// Score сравнивает спектр пакета с эталоном по каждой оси.
// Fault index равен минимальному сходству: пакет не нормальнее своей худшей оси.
func Score(features, reference models.FeatureMatrix) (models.ScoreResult, error) {
	if features.Rows() != reference.Rows() || features.Cols() != reference.Cols() {
		return models.ScoreResult{}, errors.New(errors.CodeShapeMismatch,
			"features are %dx%d, reference is %dx%d",
			features.Rows(), features.Cols(), reference.Rows(), reference.Cols())
	}

	var result models.ScoreResult
	result.FaultIndex = math.Inf(1)
	for _, axis := range models.Axes {
		sim, err := CosineSimilarity(features.Column(axis), reference.Column(axis))
		if err != nil {
			return models.ScoreResult{}, errors.Wrap(errors.CodeDegenerateVector, err, "axis %s", axis)
		}
		result.Similarity[axis] = sim
		result.FaultIndex = math.Min(result.FaultIndex, sim)
	}

	return result, nil
}

// CosineSimilarity косинусное сходство двух векторов одинаковой длины.
// Нулевая норма или нечисловой результат возвращают ошибку.
// Векторы нормируются на максимум модуля, поэтому большие конечные значения не переполняют норму.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.New(errors.CodeShapeMismatch, "vector lengths differ: %d != %d", len(a), len(b))
	}

	scaleA, scaleB := maxAbs(a), maxAbs(b)
	if scaleA == 0 || scaleB == 0 {
		return 0, errors.New(errors.CodeDegenerateVector, "zero-norm vector")
	}
	if math.IsInf(scaleA, 0) || math.IsInf(scaleB, 0) {
		return 0, errors.New(errors.CodeDegenerateVector, "vector is not finite")
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := a[i]/scaleA, b[i]/scaleB
		dot += x * y
		normA += x * x
		normB += y * y
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, errors.New(errors.CodeDegenerateVector, "similarity is not finite")
	}

	return math.Max(-1, math.Min(1, sim)), nil
}

func maxAbs(v []float64) float64 {
	var m float64
	for _, x := range v {
		if ax := math.Abs(x); ax > m {
			m = ax
		}
	}
	return m
}

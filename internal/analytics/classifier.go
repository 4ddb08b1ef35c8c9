package analytics

import (
	"vibration-monitor/internal/models"
)

// DefaultAnomalyThreshold fault index ниже порога считается аномалией
const DefaultAnomalyThreshold = 0.4

// Classify применяет порог: fault index < threshold -> аномалия.
// Значение, равное порогу, считается нормой.
func Classify(score models.ScoreResult, threshold float64) models.Verdict {
	outcome := models.OutcomeNormal
	if score.FaultIndex < threshold {
		outcome = models.OutcomeAnomaly
	}

	return models.Verdict{
		Outcome:    outcome,
		FaultIndex: score.FaultIndex,
		Threshold:  threshold,
		Similarity: models.AxisSimilarity{
			X: score.Similarity[models.AxisX],
			Y: score.Similarity[models.AxisY],
			Z: score.Similarity[models.AxisZ],
		},
	}
}

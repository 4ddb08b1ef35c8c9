package models

import (
	"fmt"
	"time"
)

// Axis ось акселерометра
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// AxisCount число осей в одном отсчете
const AxisCount = 3

// Axes все оси в порядке x, y, z
var Axes = [AxisCount]Axis{AxisX, AxisY, AxisZ}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Reading один трехосевой отсчет
type Reading struct {
	X float64
	Y float64
	Z float64
}

// At возвращает значение по оси
func (r Reading) At(axis Axis) float64 {
	switch axis {
	case AxisY:
		return r.Y
	case AxisZ:
		return r.Z
	default:
		return r.X
	}
}

// Sample упорядоченная серия отсчетов одного пакета
type Sample []Reading

// Series возвращает временной ряд одной оси
func (s Sample) Series(axis Axis) []float64 {
	out := make([]float64, len(s))
	for i, r := range s {
		out[i] = r.At(axis)
	}
	return out
}

// FeatureMatrix спектральная матрица: строки - частотные бины, столбцы - оси
type FeatureMatrix struct {
	columns [AxisCount][]float64
}

// NewFeatureMatrix собирает матрицу из столбцов (по одному на ось)
func NewFeatureMatrix(x, y, z []float64) (FeatureMatrix, error) {
	if len(x) != len(y) || len(x) != len(z) {
		return FeatureMatrix{}, fmt.Errorf("feature columns differ in length: %d, %d, %d", len(x), len(y), len(z))
	}
	return FeatureMatrix{columns: [AxisCount][]float64{x, y, z}}, nil
}

// FeatureMatrixFromRows собирает матрицу из строк вида [x, y, z]
func FeatureMatrixFromRows(rows [][AxisCount]float64) FeatureMatrix {
	var m FeatureMatrix
	for i := range m.columns {
		m.columns[i] = make([]float64, len(rows))
	}
	for r, row := range rows {
		for c, v := range row {
			m.columns[c][r] = v
		}
	}
	return m
}

// Rows число строк (частотных бинов)
func (m FeatureMatrix) Rows() int {
	return len(m.columns[AxisX])
}

// Cols число столбцов
func (m FeatureMatrix) Cols() int {
	return AxisCount
}

// Column возвращает столбец оси. Срез нельзя изменять.
func (m FeatureMatrix) Column(axis Axis) []float64 {
	return m.columns[axis]
}

// At возвращает значение ячейки
func (m FeatureMatrix) At(row int, axis Axis) float64 {
	return m.columns[axis][row]
}

// ReferenceTemplate эталонные спектры, загружаются один раз
type ReferenceTemplate struct {
	Normal   FeatureMatrix
	Abnormal FeatureMatrix
}

// ScoreResult сходство по осям и итоговый fault index
type ScoreResult struct {
	Similarity [AxisCount]float64
	FaultIndex float64
}

// Outcome итог классификации
type Outcome int

const (
	OutcomeNormal Outcome = iota
	OutcomeAnomaly
)

func (o Outcome) String() string {
	if o == OutcomeAnomaly {
		return "anomaly"
	}
	return "normal"
}

// MarshalText сериализует исход как строку
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText разбирает строковое представление исхода
func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "normal":
		*o = OutcomeNormal
	case "anomaly":
		*o = OutcomeAnomaly
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// AxisSimilarity сходство по осям для отчета
type AxisSimilarity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Verdict результат обработки одного пакета
type Verdict struct {
	ID           string         `json:"id"`
	Outcome      Outcome        `json:"outcome"`
	FaultIndex   float64        `json:"fault_index"`
	Threshold    float64        `json:"threshold"`
	Similarity   AxisSimilarity `json:"similarity"`
	Measurements int            `json:"measurements"`
	ReceivedAt   time.Time      `json:"received_at"`
}

// IsAnomaly true если пакет признан аномальным
func (v Verdict) IsAnomaly() bool {
	return v.Outcome == OutcomeAnomaly
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

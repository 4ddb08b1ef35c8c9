package reference

import (
	"encoding/json"
	"fmt"

	"vibration-monitor/internal/models"
)

// Имена массивов в файле эталона
const (
	DefaultNormalKey   = "normal_fft"
	DefaultAbnormalKey = "abnormal_fft"
)

// Keys имена нормального и аномального спектров в источнике
type Keys struct {
	Normal   string
	Abnormal string
}

func (k Keys) withDefaults() Keys {
	if k.Normal == "" {
		k.Normal = DefaultNormalKey
	}
	if k.Abnormal == "" {
		k.Abnormal = DefaultAbnormalKey
	}
	return k
}

// Decode разбирает эталон из .npz или JSON вида {"normal_fft": [[x, y, z], ...], ...}
func Decode(data []byte, keys Keys) (*models.ReferenceTemplate, error) {
	keys = keys.withDefaults()

	var arrays map[string]Array
	var err error
	if isZip(data) {
		arrays, err = ReadNPZ(data)
	} else {
		arrays, err = readJSON(data)
	}
	if err != nil {
		return nil, err
	}

	normal, err := toMatrix(arrays, keys.Normal)
	if err != nil {
		return nil, err
	}
	abnormal, err := toMatrix(arrays, keys.Abnormal)
	if err != nil {
		return nil, err
	}

	return &models.ReferenceTemplate{Normal: normal, Abnormal: abnormal}, nil
}

func readJSON(data []byte) (map[string]Array, error) {
	var doc map[string][][]float64
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode reference json: %w", err)
	}

	arrays := make(map[string]Array, len(doc))
	for name, rows := range doc {
		arr := Array{Rows: len(rows)}
		if len(rows) > 0 {
			arr.Cols = len(rows[0])
		}
		arr.Data = make([]float64, 0, arr.Rows*arr.Cols)
		for i, row := range rows {
			if len(row) != arr.Cols {
				return nil, fmt.Errorf("%s: row %d has %d columns, want %d", name, i, len(row), arr.Cols)
			}
			arr.Data = append(arr.Data, row...)
		}
		arrays[name] = arr
	}
	return arrays, nil
}

func toMatrix(arrays map[string]Array, name string) (models.FeatureMatrix, error) {
	arr, ok := arrays[name]
	if !ok {
		return models.FeatureMatrix{}, fmt.Errorf("reference has no %q array", name)
	}
	if arr.Cols != models.AxisCount {
		return models.FeatureMatrix{}, fmt.Errorf("%s has %d columns, want %d", name, arr.Cols, models.AxisCount)
	}

	rows := make([][models.AxisCount]float64, arr.Rows)
	for r := range rows {
		for c := 0; c < models.AxisCount; c++ {
			rows[r][c] = arr.At(r, c)
		}
	}
	return models.FeatureMatrixFromRows(rows), nil
}

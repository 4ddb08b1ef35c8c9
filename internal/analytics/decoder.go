package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"vibration-monitor/internal/errors"
	"vibration-monitor/internal/models"
)

// DefaultMaxReadings верхняя граница длины пакета
const DefaultMaxReadings = 4096

// burstPayload JSON пакета: три массива одинаковой длины
type burstPayload struct {
	X []json.RawMessage `json:"x"`
	Y []json.RawMessage `json:"y"`
	Z []json.RawMessage `json:"z"`
}

// DecodeSample разбирает пакет {"x": [...], "y": [...], "z": [...]} в серию отсчетов.
// Элементы могут быть числами или строками с числом.
func DecodeSample(payload []byte, maxReadings int) (models.Sample, error) {
	if maxReadings <= 0 {
		maxReadings = DefaultMaxReadings
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.New(errors.CodeDecode, "empty payload")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Wrap(errors.CodeDecode, err, "payload is not a JSON object")
	}
	for _, key := range []string{"x", "y", "z"} {
		if v, ok := raw[key]; !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, errors.New(errors.CodeDecode, "missing %q axis", key)
		}
	}

	var burst burstPayload
	if err := json.Unmarshal(payload, &burst); err != nil {
		return nil, errors.Wrap(errors.CodeDecode, err, "axis values must be arrays")
	}

	n := len(burst.X)
	if len(burst.Y) != n || len(burst.Z) != n {
		return nil, errors.New(errors.CodeDecode, "axis lengths differ: x=%d y=%d z=%d", n, len(burst.Y), len(burst.Z))
	}
	if n > maxReadings {
		return nil, errors.New(errors.CodeDecode, "burst has %d readings, limit is %d", n, maxReadings)
	}

	sample := make(models.Sample, n)
	for i := 0; i < n; i++ {
		x, err := parseValue(burst.X[i])
		if err != nil {
			return nil, errors.Wrap(errors.CodeDecode, err, "x[%d]", i)
		}
		y, err := parseValue(burst.Y[i])
		if err != nil {
			return nil, errors.Wrap(errors.CodeDecode, err, "y[%d]", i)
		}
		z, err := parseValue(burst.Z[i])
		if err != nil {
			return nil, errors.Wrap(errors.CodeDecode, err, "z[%d]", i)
		}
		sample[i] = models.Reading{X: x, Y: y, Z: z}
	}

	return sample, nil
}

// parseValue принимает JSON-число или строку с конечным числом
func parseValue(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		raw = []byte(s)
	}

	v, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("%s is not numeric", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s is not finite", raw)
	}
	return v, nil
}

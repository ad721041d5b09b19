package engine

import (
	"fmt"
	"strconv"
)

// ScoreUnknown is the "?" card. It is a legal vote and can reach
// consensus, but it carries no point value.
const ScoreUnknown = "?"

type ScaleName string

const (
	ScaleFibonacci ScaleName = "fibonacci"
	ScaleTShirt    ScaleName = "tshirt"
	ScaleCustom    ScaleName = "custom"
)

type EstimationSettings struct {
	Scale ScaleName `json:"scale"`
	// CustomValues maps a card label to its point value when Scale is
	// "custom". Ignored otherwise.
	CustomValues map[string]float64 `json:"custom_values,omitempty"`
}

func DefaultEstimationSettings() EstimationSettings {
	return EstimationSettings{Scale: ScaleFibonacci}
}

var fibonacciDeck = []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89"}

var tshirtPoints = map[string]float64{
	"XS":  1,
	"S":   2,
	"M":   3,
	"L":   5,
	"XL":  8,
	"XXL": 13,
}

// NormalizeScore maps a raw card value onto story points under the room's
// scale. "?" normalizes to zero points. Unmapped values are rejected here,
// at submission time, never coerced later.
func NormalizeScore(es EstimationSettings, raw string) (float64, error) {
	if raw == ScoreUnknown {
		return 0, nil
	}
	switch es.Scale {
	case ScaleFibonacci:
		for _, v := range fibonacciDeck {
			if raw == v {
				n, _ := strconv.ParseFloat(raw, 64)
				return n, nil
			}
		}
	case ScaleTShirt:
		if pts, ok := tshirtPoints[raw]; ok {
			return pts, nil
		}
	case ScaleCustom:
		if pts, ok := es.CustomValues[raw]; ok {
			return pts, nil
		}
	}
	return 0, fmt.Errorf("%w: score %q not in scale %q", ErrInvalidPayload, raw, es.Scale)
}

func validEstimationSettings(es EstimationSettings) error {
	switch es.Scale {
	case ScaleFibonacci, ScaleTShirt:
		return nil
	case ScaleCustom:
		if len(es.CustomValues) == 0 {
			return fmt.Errorf("%w: custom scale needs values", ErrInvalidPayload)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown scale %q", ErrInvalidPayload, es.Scale)
	}
}

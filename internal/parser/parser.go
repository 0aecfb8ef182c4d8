// Package parser converts Ecowitt history and real-time payloads into
// normalized, index-aligned wind series. All functions are pure.
package parser

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/kjstillabower/wind-widget-service/internal/models"
)

// HistoryPoints is the number of most recent samples retained from a history
// payload: 3 hours at 5-minute resolution.
const HistoryPoints = 36

// TimeLayout is the minute-precision local timestamp used in WindReading.Times.
const TimeLayout = "2006-01-02T15:04"

// HistoryResult holds aligned history series in ascending time order.
type HistoryResult struct {
	Times      []string
	Speeds     []float64
	Directions []float64
	Gusts      []float64
}

// RealtimeResult holds the instantaneous wind values.
type RealtimeResult struct {
	Speed     float64
	Direction float64
	Gust      float64
}

// envelope is the common top-level shape of both endpoints. Data is kept raw
// because the API returns an empty array instead of an object on failure.
type envelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type historyData struct {
	Wind *struct {
		WindSpeed     *seriesMetric `json:"wind_speed"`
		WindGust      *seriesMetric `json:"wind_gust"`
		WindDirection *seriesMetric `json:"wind_direction"`
	} `json:"wind"`
}

type seriesMetric struct {
	Unit string                     `json:"unit"`
	List map[string]json.RawMessage `json:"list"`
}

type realtimeData struct {
	Wind *struct {
		WindSpeed     *scalarMetric `json:"wind_speed"`
		WindGust      *scalarMetric `json:"wind_gust"`
		WindDirection *scalarMetric `json:"wind_direction"`
	} `json:"wind"`
}

type scalarMetric struct {
	Unit  string          `json:"unit"`
	Value json.RawMessage `json:"value"`
}

// ParseHistory parses a history payload, rendering timestamps in local time.
// See ParseHistoryIn.
func ParseHistory(data []byte) (HistoryResult, bool) {
	return ParseHistoryIn(data, time.Local)
}

// ParseHistoryIn parses a history payload, rendering timestamps in loc.
// Returns false when the payload is malformed, code is non-zero, or the wind
// section or its speed series is missing. Gust and direction are optional
// and default to 0 per point.
func ParseHistoryIn(data []byte, loc *time.Location) (HistoryResult, bool) {
	raw, ok := decodeEnvelope(data)
	if !ok {
		return HistoryResult{}, false
	}
	var hd historyData
	if err := json.Unmarshal(raw, &hd); err != nil {
		return HistoryResult{}, false
	}
	if hd.Wind == nil || hd.Wind.WindSpeed == nil || hd.Wind.WindSpeed.List == nil {
		return HistoryResult{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	speeds := hd.Wind.WindSpeed.List
	gusts := listOf(hd.Wind.WindGust)
	directions := listOf(hd.Wind.WindDirection)

	// Keys spelled differently ("0100", "100") can name the same instant.
	// Keep one per epoch, preferring the canonical spelling.
	byEpoch := make(map[int64]string, len(speeds))
	for key := range speeds {
		epoch, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			continue
		}
		if prev, ok := byEpoch[epoch]; ok && !preferKey(epoch, key, prev) {
			continue
		}
		byEpoch[epoch] = key
	}

	type point struct {
		epoch int64
		key   string
	}
	points := make([]point, 0, len(byEpoch))
	for epoch, key := range byEpoch {
		points = append(points, point{epoch: epoch, key: key})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].epoch < points[j].epoch })
	if len(points) > HistoryPoints {
		points = points[len(points)-HistoryPoints:]
	}

	out := HistoryResult{
		Times:      make([]string, len(points)),
		Speeds:     make([]float64, len(points)),
		Directions: make([]float64, len(points)),
		Gusts:      make([]float64, len(points)),
	}
	for i, p := range points {
		out.Times[i] = time.Unix(p.epoch, 0).In(loc).Format(TimeLayout)
		out.Speeds[i] = nonNegative(number(speeds[p.key]))
		out.Gusts[i] = nonNegative(number(gusts[p.key]))
		out.Directions[i] = models.NormalizeDegrees(number(directions[p.key]))
	}
	return out, true
}

// preferKey reports whether key should replace prev for the same epoch.
func preferKey(epoch int64, key, prev string) bool {
	canonical := strconv.FormatInt(epoch, 10)
	if prev == canonical {
		return false
	}
	return key == canonical || key < prev
}

// ParseRealtime parses a real-time payload. Returns false when the payload is
// malformed, code is non-zero, or the wind section is missing. Each metric
// defaults to 0 when absent or unparsable.
func ParseRealtime(data []byte) (RealtimeResult, bool) {
	raw, ok := decodeEnvelope(data)
	if !ok {
		return RealtimeResult{}, false
	}
	var rd realtimeData
	if err := json.Unmarshal(raw, &rd); err != nil {
		return RealtimeResult{}, false
	}
	if rd.Wind == nil {
		return RealtimeResult{}, false
	}
	return RealtimeResult{
		Speed:     nonNegative(scalar(rd.Wind.WindSpeed)),
		Gust:      nonNegative(scalar(rd.Wind.WindGust)),
		Direction: models.NormalizeDegrees(scalar(rd.Wind.WindDirection)),
	}, true
}

func decodeEnvelope(data []byte) (json.RawMessage, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}
	if env.Code == nil || *env.Code != 0 || len(env.Data) == 0 {
		return nil, false
	}
	return env.Data, true
}

func listOf(m *seriesMetric) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	return m.List
}

func scalar(m *scalarMetric) float64 {
	if m == nil {
		return 0
	}
	return number(m.Value)
}

// number reads a value the API may send as a JSON string or a JSON number.
// Anything else yields 0.
func number(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
		return finite(f)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

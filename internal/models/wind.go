package models

import "math"

// Status tags the provenance of a WindReading so the renderer can show it.
type Status string

const (
	StatusLive   Status = "LIVE"
	StatusCached Status = "CACHED"
	StatusStale  Status = "STALE"
	StatusDemo   Status = "DEMO"
)

// WindReading is the merged history + real-time view for one station.
// Times, Speeds, Directions and Gusts are index-aligned and ascending.
// Speeds are in knots, directions in degrees [0,360).
type WindReading struct {
	LocationName      string    `json:"locationName"`
	Times             []string  `json:"times"`
	Speeds            []float64 `json:"speeds"`
	Directions        []float64 `json:"directions"`
	Gusts             []float64 `json:"gusts"`
	CurrentSpeed      float64   `json:"currentSpeed"`
	CurrentDirection  float64   `json:"currentDirection"`
	CurrentGust       float64   `json:"currentGust"`
	Status            Status    `json:"status"`
	LastUpdatedMillis int64     `json:"lastUpdatedMillis"`
}

// WithStatus returns a copy of r carrying status s. Series slices are copied
// so the result shares no backing arrays with r.
func (r WindReading) WithStatus(s Status) WindReading {
	out := r
	out.Times = append([]string(nil), r.Times...)
	out.Speeds = append([]float64(nil), r.Speeds...)
	out.Directions = append([]float64(nil), r.Directions...)
	out.Gusts = append([]float64(nil), r.Gusts...)
	out.Status = s
	return out
}

// Len returns the number of points in the series.
func (r WindReading) Len() int {
	return len(r.Times)
}

// Aligned reports whether all series have the same length.
func (r WindReading) Aligned() bool {
	n := len(r.Times)
	return len(r.Speeds) == n && len(r.Directions) == n && len(r.Gusts) == n
}

// MaxSpeed returns the highest speed in the series, or 0 when empty.
func (r WindReading) MaxSpeed() float64 {
	return maxOf(r.Speeds)
}

// MaxGust returns the highest gust in the series, or 0 when empty.
func (r WindReading) MaxGust() float64 {
	return maxOf(r.Gusts)
}

func maxOf(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	return m
}

var cardinalPoints = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Cardinal maps a bearing in degrees to one of 8 compass points. Each sector
// is 45 degrees wide and centred on its point, so N covers [337.5, 22.5).
func Cardinal(degrees float64) string {
	d := NormalizeDegrees(degrees)
	idx := int(math.Floor((d+22.5)/45)) % 8
	return cardinalPoints[idx]
}

// NormalizeDegrees folds any bearing into [0,360). NaN becomes 0.
func NormalizeDegrees(degrees float64) float64 {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return 0
	}
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// beaufortKnots holds the lower bound in knots of each Beaufort force.
var beaufortKnots = [13]float64{0, 1, 4, 7, 11, 17, 22, 28, 34, 41, 48, 56, 64}

// Beaufort returns the Beaufort force (0-12) for a wind speed in knots.
func Beaufort(knots float64) int {
	force := 0
	for i, threshold := range beaufortKnots {
		if knots >= threshold {
			force = i
		}
	}
	return force
}

// DefaultLocationName is shown when no location name was saved.
const DefaultLocationName = "My Station"

// Credentials identify one Ecowitt station for the cloud API.
type Credentials struct {
	ApplicationKey string `json:"applicationKey"`
	APIKey         string `json:"apiKey"`
	MACAddress     string `json:"macAddress"`
	LocationName   string `json:"locationName"`
}

// Configured reports whether the keys needed to call the API are all set.
func (c Credentials) Configured() bool {
	return c.ApplicationKey != "" && c.APIKey != "" && c.MACAddress != ""
}

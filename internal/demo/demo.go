// Package demo synthesises a plausible wind reading for when no real data
// can be shown.
package demo

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/kjstillabower/wind-widget-service/internal/models"
	"github.com/kjstillabower/wind-widget-service/internal/parser"
)

const (
	// Points matches the history window shown for live data.
	Points   = parser.HistoryPoints
	Interval = 5 * time.Minute

	Bearing       = 225.0
	BearingSpread = 5.0

	baseSpeed    = 12.0
	speedSwing   = 4.0
	speedJitter  = 1.5
	minSpeed     = 0.5
	minGustRatio = 1.3
	maxGustRatio = 1.5
)

// LocationName labels demo readings.
const LocationName = "Demo Station"

// Float64Source is satisfied by *rand.Rand.
type Float64Source interface {
	Float64() float64
}

// Generator produces DEMO readings.
type Generator struct {
	now func() time.Time
	rnd Float64Source
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the time source for the series timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRand sets the random source for the series values.
func WithRand(r Float64Source) Option {
	return func(g *Generator) { g.rnd = r }
}

// NewGenerator creates a Generator seeded from the runtime.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now: time.Now,
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns Points samples at Interval spacing ending at the current
// minute. Speeds are positive, directions stay within BearingSpread of
// Bearing and gusts are 30-50% above speed. The current scalars are the last
// sample, so the headline figures agree with the chart.
func (g *Generator) Generate() models.WindReading {
	end := g.now().Truncate(time.Minute)
	phase := g.rnd.Float64() * 2 * math.Pi

	r := models.WindReading{
		LocationName:      LocationName,
		Times:             make([]string, Points),
		Speeds:            make([]float64, Points),
		Directions:        make([]float64, Points),
		Gusts:             make([]float64, Points),
		Status:            models.StatusDemo,
		LastUpdatedMillis: end.UnixMilli(),
	}
	for i := range Points {
		at := end.Add(-time.Duration(Points-1-i) * Interval)
		swing := speedSwing * math.Sin(phase+float64(i)*2*math.Pi/Points)
		speed := max(baseSpeed+swing+g.spread(speedJitter), minSpeed)

		r.Times[i] = at.Format(parser.TimeLayout)
		r.Speeds[i] = speed
		r.Directions[i] = Bearing + g.spread(BearingSpread)
		r.Gusts[i] = speed * (minGustRatio + g.rnd.Float64()*(maxGustRatio-minGustRatio))
	}
	last := Points - 1
	r.CurrentSpeed = r.Speeds[last]
	r.CurrentDirection = r.Directions[last]
	r.CurrentGust = r.Gusts[last]
	return r
}

// spread returns a uniform value in [-width, width].
func (g *Generator) spread(width float64) float64 {
	return (g.rnd.Float64()*2 - 1) * width
}

package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSeriesAt(t *testing.T) {
	s := Series{Start: t0, Step: time.Hour, Values: []float64{10, 20, 30}}

	tests := []struct {
		name string
		at   time.Time
		want float64
	}{
		{"before start clamps", t0.Add(-time.Hour), 10},
		{"first step", t0, 10},
		{"mid step", t0.Add(90 * time.Minute), 20},
		{"last step", t0.Add(2 * time.Hour), 30},
		{"past end clamps", t0.Add(10 * time.Hour), 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.At(tt.at))
		})
	}
}

func TestProviderFallbacks(t *testing.T) {
	p := NewProvider()
	p.SetConstant(SeriesFuelPrice, 25)
	p.SetSeries(SeriesDemand, Series{Start: t0, Step: time.Hour, Values: []float64{100, 200}})

	assert.Equal(t, 25.0, p.At(SeriesFuelPrice, t0))
	assert.Equal(t, 200.0, p.At(SeriesDemand, t0.Add(time.Hour)))
	assert.Equal(t, 0.0, p.At("unknown", t0))

	// A series shadows a constant of the same name.
	p.SetConstant(SeriesDemand, 5)
	assert.Equal(t, 100.0, p.At(SeriesDemand, t0))
}

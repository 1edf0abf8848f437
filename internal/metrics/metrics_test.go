package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/filter"
	"pendrag/internal/report"
)

func TestStatsFromFilter(t *testing.T) {
	f, err := filter.New(filter.Config{Threshold: 5})
	require.NoError(t, err)
	s := NewStats()
	s.Attach(f)

	feed := func(e report.Event) {
		s.Observe(e)
		f.Consume(e)
	}
	// click
	feed(&report.TabletReport{Position: r2.Vec{X: 1, Y: 1}, Pressure: 1})
	feed(&report.TabletReport{Position: r2.Vec{X: 1, Y: 1}, Pressure: 0})
	// drag
	feed(&report.TabletReport{Position: r2.Vec{}, Pressure: 1})
	feed(&report.TabletReport{Position: r2.Vec{X: 20}, Pressure: 1})
	feed(&report.TabletReport{Position: r2.Vec{X: 20}, Pressure: 0})
	feed(&report.AuxReport{})

	snap := s.Snapshot()
	assert.Equal(t, int64(6), snap["reports.total"])
	assert.Equal(t, int64(5), snap["reports.positional"])
	assert.Equal(t, int64(2), snap["contacts"])
	assert.Equal(t, int64(1), snap["clicks"])
	assert.Equal(t, int64(1), snap["drags"])
	assert.Equal(t, int64(3), snap["held"])
	assert.Equal(t, int64(6), snap["reports.rate.count"])
}

package runstats

import (
	"gonum.org/v1/gonum/stat"
)

// FieldStats accumulates one Meta field over a set of runs.
type FieldStats struct {
	Min    float64
	Max    float64
	Total  float64
	N      int64
	values []float64
}

func (s *FieldStats) NewMeasurement(m float64) {
	s.values = append(s.values, m)
	if s.N != 0 {
		if m < s.Min {
			s.Min = m
		}
		if m > s.Max {
			s.Max = m
		}
		s.Total += m
		s.N++
		return
	}

	s.Min = m
	s.Max = m
	s.Total = m
	s.N++
}

func (s *FieldStats) Mean() float64 {
	return s.Total / float64(s.N)
}

// StdDev is the population standard deviation, 0 for fewer than two runs.
func (s *FieldStats) StdDev() float64 {
	if len(s.values) < 2 {
		return 0
	}
	return stat.PopStdDev(s.values, nil)
}

package runstats

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var fieldLabels = map[string]string{
	FieldTotalCycles:    "cycles",
	FieldEnergyConsumed: "energy",
}

// Label is the word used for field in report lines.
func Label(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return field
}

// FormatMean renders v the way the run history scripts always printed it:
// shortest round-trip digits, integral values keep a ".0".
func FormatMean(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}

	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func statLines(prefix string, fields []string, stats map[string]*FieldStats, detail bool) []string {
	out := make([]string, 0, len(fields)*2)
	for _, f := range fields {
		s := stats[f]
		out = append(out, fmt.Sprintf("%sMean %s used: %s", prefix, Label(f), FormatMean(s.Mean())))
		if detail {
			out = append(out, fmt.Sprintf("%sMin/Max/Stddev %s used: %s / %s / %s", prefix, Label(f),
				FormatMean(s.Min), FormatMean(s.Max), FormatMean(s.StdDev())))
		}
	}
	return out
}

func WriteText(w io.Writer, r *Result, detail bool) error {
	out := make([]string, 0, 1+len(r.Fields)*(len(r.Groups)+1)*2)
	out = append(out, fmt.Sprintf("Found %d runs", r.Count))
	out = append(out, statLines("", r.Fields, r.Stats, detail)...)

	for _, g := range r.Groups {
		prefix := "[" + g.Name + "] "
		out = append(out, fmt.Sprintf("%sFound %d runs", prefix, g.Count))
		out = append(out, statLines(prefix, r.Fields, g.Stats, detail)...)
	}

	_, err := io.WriteString(w, strings.Join(out, "\n")+"\n")
	return err
}

type jsonField struct {
	Field  string  `json:"field"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

type jsonGroup struct {
	Name   string      `json:"name"`
	Count  int         `json:"count"`
	Fields []jsonField `json:"fields"`
}

type jsonReport struct {
	Count   int         `json:"count"`
	Fields  []jsonField `json:"fields"`
	GroupBy string      `json:"groupBy,omitempty"`
	Groups  []jsonGroup `json:"groups,omitempty"`
}

func jsonFields(fields []string, stats map[string]*FieldStats) []jsonField {
	out := make([]jsonField, 0, len(fields))
	for _, f := range fields {
		s := stats[f]
		out = append(out, jsonField{
			Field:  f,
			Sum:    s.Total,
			Mean:   s.Mean(),
			Min:    s.Min,
			Max:    s.Max,
			StdDev: s.StdDev(),
		})
	}
	return out
}

func WriteJSON(w io.Writer, r *Result) error {
	report := jsonReport{
		Count:   r.Count,
		Fields:  jsonFields(r.Fields, r.Stats),
		GroupBy: r.GroupBy,
	}
	for _, g := range r.Groups {
		report.Groups = append(report.Groups, jsonGroup{
			Name:   g.Name,
			Count:  g.Count,
			Fields: jsonFields(r.Fields, g.Stats),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

package runstats

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

const (
	FieldTotalCycles    = "TotalCycles"
	FieldEnergyConsumed = "EnergyConsumed"

	metaKey = "Meta"

	groupBuckets = 256
)

// Options selects what a single aggregation pass reads.
type Options struct {
	Fields  []string
	GroupBy string
	// AllErrors keeps going after a malformed record and reports every one of them.
	// No partial result is returned either way.
	AllErrors bool
	Mmap      bool
}

// normalizedFields drops blanks and duplicates, keeping the requested order.
func (o Options) normalizedFields() ([]string, error) {
	fields := make([]string, 0, len(o.Fields))
	seen := make(map[string]struct{}, len(o.Fields))
	for _, f := range o.Fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields requested", ErrInvalidArgument)
	}
	return fields, nil
}

type Result struct {
	Count   int
	Fields  []string
	Stats   map[string]*FieldStats
	GroupBy string
	Groups  []*Group
}

func Aggregate(path string, fields []string) (*Result, error) {
	return AggregateWith(path, Options{Fields: fields})
}

func AggregateWith(path string, opts Options) (*Result, error) {
	fields, err := opts.normalizedFields()
	if err != nil {
		return nil, err
	}

	read := ReadFile
	if opts.Mmap {
		read = ReadFileMmap
	}
	data, err := read(path)
	if err != nil {
		return nil, err
	}
	return aggregate(path, data, fields, opts)
}

func AggregateBytes(data []byte, opts Options) (*Result, error) {
	fields, err := opts.normalizedFields()
	if err != nil {
		return nil, err
	}
	return aggregate("", data, fields, opts)
}

func aggregate(path string, data []byte, fields []string, opts Options) (*Result, error) {
	records, err := SplitArray(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	res := &Result{
		Fields:  fields,
		Stats:   make(map[string]*FieldStats, len(fields)),
		GroupBy: opts.GroupBy,
	}
	for _, f := range fields {
		res.Stats[f] = &FieldStats{}
	}

	var groups *GroupTable
	if opts.GroupBy != "" {
		groups, err = NewGroupTable(groupBuckets)
		if err != nil {
			return nil, err
		}
	}

	var errs error
	values := make([]float64, len(fields))
	for i, record := range records {
		groupName, err := readRecord(i, record, fields, opts, values)
		if err != nil {
			if !opts.AllErrors {
				return nil, err
			}
			errs = multierr.Append(errs, err)
			continue
		}

		res.Count++
		for j, f := range fields {
			res.Stats[f].NewMeasurement(values[j])
		}
		if groups != nil {
			groups.GetOrCreate(groupName).add(fields, values)
		}
	}
	if errs != nil {
		return nil, errs
	}

	if res.Count == 0 {
		if path == "" {
			return nil, fmt.Errorf("%w: no runs to average", ErrEmptyInput)
		}
		return nil, fmt.Errorf("%w: no runs to average in %s", ErrEmptyInput, path)
	}

	if groups != nil {
		res.Groups = groups.Groups()
	}
	return res, nil
}

// readRecord fills values with the requested fields of record i and returns its group name.
func readRecord(i int, record json.RawMessage, fields []string, opts Options, values []float64) (string, error) {
	meta, err := recordMeta(i, record)
	if err != nil {
		return "", err
	}

	var errs error
	for j, f := range fields {
		v, err := numericField(i, meta, f)
		if err != nil {
			if !opts.AllErrors {
				return "", err
			}
			errs = multierr.Append(errs, err)
			continue
		}
		values[j] = v
	}

	var groupName string
	if opts.GroupBy != "" {
		groupName, err = groupField(i, meta, opts.GroupBy)
		errs = multierr.Append(errs, err)
	}
	return groupName, errs
}

func recordMeta(i int, record json.RawMessage) (map[string]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(record, &top); err != nil || top == nil {
		return nil, &FieldAccessError{Index: i, Field: metaKey, Reason: "record is not an object"}
	}

	raw, ok := top[metaKey]
	if !ok {
		return nil, &FieldAccessError{Index: i, Field: metaKey, Reason: "missing"}
	}

	var meta map[string]json.RawMessage
	if err := json.Unmarshal(raw, &meta); err != nil || meta == nil {
		return nil, &FieldAccessError{Index: i, Field: metaKey, Reason: "not an object"}
	}
	return meta, nil
}

func numericField(i int, meta map[string]json.RawMessage, field string) (float64, error) {
	raw, ok := meta[field]
	if !ok {
		return 0, &FieldAccessError{Index: i, Field: field, Reason: "missing"}
	}

	// strings, booleans, null, objects and arrays never start like a JSON number
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, &FieldAccessError{Index: i, Field: field, Reason: fmt.Sprintf("not numeric: %s", truncate(raw))}
	}

	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, &FieldAccessError{Index: i, Field: field, Reason: fmt.Sprintf("not a finite number: %s", truncate(raw))}
	}
	return v, nil
}

func groupField(i int, meta map[string]json.RawMessage, field string) (string, error) {
	raw, ok := meta[field]
	if !ok {
		return "", &FieldAccessError{Index: i, Field: field, Reason: "missing"}
	}

	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
	}
	if _, err := numericField(i, meta, field); err == nil {
		return string(raw), nil
	}
	return "", &FieldAccessError{Index: i, Field: field, Reason: fmt.Sprintf("not a string or number: %s", truncate(raw))}
}

func truncate(raw json.RawMessage) string {
	const limit = 32
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}

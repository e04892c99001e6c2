package runstats

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const twoRuns = `[{"Meta":{"TotalCycles":10,"EnergyConsumed":2}},{"Meta":{"TotalCycles":20,"EnergyConsumed":4}}]`

func writeRuns(t testing.TB, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runs.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAggregateCombined(t *testing.T) {
	path := writeRuns(t, twoRuns)

	res, err := Aggregate(path, []string{FieldTotalCycles, FieldEnergyConsumed})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{FieldTotalCycles, FieldEnergyConsumed}, res.Fields)
	assert.Equal(t, 15.0, res.Stats[FieldTotalCycles].Mean())
	assert.Equal(t, 3.0, res.Stats[FieldEnergyConsumed].Mean())
	assert.Equal(t, 30.0, res.Stats[FieldTotalCycles].Total)
	assert.Equal(t, 6.0, res.Stats[FieldEnergyConsumed].Total)
}

func TestAggregateMeanMatchesSum(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{1, 2, 7, 100, 1000} {
		t.Run(fmt.Sprintf("n%d", n), func(t *testing.T) {
			records := make([]string, n)
			var sum float64
			for i := range records {
				v := 1 + rng.Float64()*1e6
				sum += v
				records[i] = fmt.Sprintf(`{"Meta":{"TotalCycles":%v}}`, v)
			}

			res, err := Aggregate(writeRuns(t, "["+strings.Join(records, ",")+"]"), []string{FieldTotalCycles})
			require.NoError(t, err)
			assert.Equal(t, n, res.Count)
			assert.InEpsilon(t, sum/float64(n), res.Stats[FieldTotalCycles].Mean(), 1e-9)
		})
	}
}

func TestAggregateSingleRecordIsExact(t *testing.T) {
	res, err := Aggregate(writeRuns(t, `[{"Meta":{"TotalCycles":123.456}}]`), []string{FieldTotalCycles})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 123.456, res.Stats[FieldTotalCycles].Mean())
}

func TestAggregateIdempotent(t *testing.T) {
	path := writeRuns(t, twoRuns)
	opts := Options{Fields: []string{FieldEnergyConsumed, FieldTotalCycles}}

	first, err := AggregateWith(path, opts)
	require.NoError(t, err)
	second, err := AggregateWith(path, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateMmapMatchesBuffered(t *testing.T) {
	path := writeRuns(t, twoRuns)
	fields := []string{FieldEnergyConsumed, FieldTotalCycles}

	buffered, err := AggregateWith(path, Options{Fields: fields})
	require.NoError(t, err)
	mapped, err := AggregateWith(path, Options{Fields: fields, Mmap: true})
	require.NoError(t, err)
	assert.Equal(t, buffered, mapped)
}

func TestAggregateFieldsAreNormalized(t *testing.T) {
	res, err := AggregateBytes([]byte(twoRuns), Options{Fields: []string{" TotalCycles", "", "TotalCycles", "EnergyConsumed "}})
	require.NoError(t, err)
	assert.Equal(t, []string{FieldTotalCycles, FieldEnergyConsumed}, res.Fields)
}

func TestAggregateExtraMetaFields(t *testing.T) {
	input := `[{"Meta":{"TotalPackets":4,"PacketsDelivered":3}},{"Meta":{"TotalPackets":6,"PacketsDelivered":6}}]`
	res, err := AggregateBytes([]byte(input), Options{Fields: []string{"PacketsDelivered"}})
	require.NoError(t, err)
	assert.Equal(t, 4.5, res.Stats["PacketsDelivered"].Mean())
}

func TestAggregateEmptyFields(t *testing.T) {
	// the path does not exist: the field check must come first
	_, err := Aggregate(filepath.Join(t.TempDir(), "missing.json"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.NotErrorIs(t, err, ErrLoad)

	_, err = AggregateBytes([]byte(twoRuns), Options{Fields: []string{" ", ""}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAggregateLoadErrors(t *testing.T) {
	tcs := []struct {
		name    string
		content string
	}{
		{"not json", `this is not json`},
		{"truncated", `[{"Meta":{"TotalCycles":10}`},
		{"object", `{"Meta":{"TotalCycles":10}}`},
		{"string", `"runs"`},
		{"number", `42`},
		{"null", `null`},
		{"empty file", ``},
		{"trailing garbage", `[] []`},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRuns(t, tc.content)
			_, err := Aggregate(path, []string{FieldTotalCycles})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLoad)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, path, loadErr.Path)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Aggregate(filepath.Join(t.TempDir(), "nope.json"), []string{FieldTotalCycles})
		assert.ErrorIs(t, err, ErrLoad)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing file mmap", func(t *testing.T) {
		_, err := AggregateWith(filepath.Join(t.TempDir(), "nope.json"), Options{Fields: []string{FieldTotalCycles}, Mmap: true})
		assert.ErrorIs(t, err, ErrLoad)
	})
}

func TestAggregateEmptyInput(t *testing.T) {
	for _, content := range []string{`[]`, " [ ]\n"} {
		_, err := Aggregate(writeRuns(t, content), []string{FieldTotalCycles})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
}

func TestAggregateFieldAccessErrors(t *testing.T) {
	tcs := []struct {
		name    string
		content string
		index   int
		field   string
	}{
		{"missing meta", `[{"Meta":{"TotalCycles":1}},{"Other":{}}]`, 1, "Meta"},
		{"meta null", `[{"Meta":null}]`, 0, "Meta"},
		{"meta not object", `[{"Meta":[1,2]}]`, 0, "Meta"},
		{"record not object", `[{"Meta":{"TotalCycles":1}},{"Meta":{"TotalCycles":2}},5]`, 2, "Meta"},
		{"record null", `[null]`, 0, "Meta"},
		{"missing field", `[{"Meta":{"EnergyConsumed":1}}]`, 0, FieldTotalCycles},
		{"string field", `[{"Meta":{"TotalCycles":"10"}}]`, 0, FieldTotalCycles},
		{"null field", `[{"Meta":{"TotalCycles":null}}]`, 0, FieldTotalCycles},
		{"bool field", `[{"Meta":{"TotalCycles":true}}]`, 0, FieldTotalCycles},
		{"object field", `[{"Meta":{"TotalCycles":{"v":1}}}]`, 0, FieldTotalCycles},
		{"overflow", `[{"Meta":{"TotalCycles":1e999}}]`, 0, FieldTotalCycles},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AggregateBytes([]byte(tc.content), Options{Fields: []string{FieldTotalCycles}})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFieldAccess)

			var fieldErr *FieldAccessError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tc.index, fieldErr.Index)
			assert.Equal(t, tc.field, fieldErr.Field)
			assert.Contains(t, err.Error(), fmt.Sprintf("record %d", tc.index))
		})
	}
}

func TestAggregateStopsAtFirstBadRecord(t *testing.T) {
	input := `[{"Meta":{}},{"Meta":{"TotalCycles":"x"}},{"Meta":{"TotalCycles":1}}]`
	_, err := AggregateBytes([]byte(input), Options{Fields: []string{FieldTotalCycles}})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)

	var fieldErr *FieldAccessError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, 0, fieldErr.Index)
}

func TestAggregateAllErrors(t *testing.T) {
	input := `[
		{"Meta":{"TotalCycles":1,"EnergyConsumed":1}},
		{"Meta":{"TotalCycles":"x","EnergyConsumed":1}},
		{"NoMeta":true},
		{"Meta":{"TotalCycles":3,"EnergyConsumed":1}},
		{"Meta":{}}
	]`
	res, err := AggregateBytes([]byte(input), Options{
		Fields:    []string{FieldTotalCycles, FieldEnergyConsumed},
		AllErrors: true,
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrFieldAccess)

	errs := multierr.Errors(err)
	require.Len(t, errs, 4)

	type location struct {
		index int
		field string
	}
	var got []location
	for _, e := range errs {
		var fieldErr *FieldAccessError
		require.ErrorAs(t, e, &fieldErr)
		got = append(got, location{fieldErr.Index, fieldErr.Field})
	}
	assert.Equal(t, []location{
		{1, FieldTotalCycles},
		{2, "Meta"},
		{4, FieldTotalCycles},
		{4, FieldEnergyConsumed},
	}, got)
}

func TestAggregateAllErrorsCleanInput(t *testing.T) {
	res, err := AggregateBytes([]byte(twoRuns), Options{Fields: []string{FieldTotalCycles}, AllErrors: true})
	require.NoError(t, err)
	assert.Equal(t, 15.0, res.Stats[FieldTotalCycles].Mean())
}

func TestAggregateGroupBy(t *testing.T) {
	input := `[
		{"Meta":{"TotalCycles":10,"EnergyConsumed":1,"Implementation":"basic"}},
		{"Meta":{"TotalCycles":40,"EnergyConsumed":5,"Implementation":"charging_greedy"}},
		{"Meta":{"TotalCycles":30,"EnergyConsumed":3,"Implementation":"basic"}}
	]`
	res, err := AggregateBytes([]byte(input), Options{
		Fields:  []string{FieldTotalCycles, FieldEnergyConsumed},
		GroupBy: "Implementation",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Count)
	assert.Equal(t, "Implementation", res.GroupBy)
	require.Len(t, res.Groups, 2)

	basic, greedy := res.Groups[0], res.Groups[1]
	assert.Equal(t, "basic", basic.Name)
	assert.Equal(t, 2, basic.Count)
	assert.Equal(t, 20.0, basic.Stats[FieldTotalCycles].Mean())
	assert.Equal(t, 2.0, basic.Stats[FieldEnergyConsumed].Mean())

	assert.Equal(t, "charging_greedy", greedy.Name)
	assert.Equal(t, 1, greedy.Count)
	assert.Equal(t, 40.0, greedy.Stats[FieldTotalCycles].Mean())
}

func TestAggregateGroupByErrors(t *testing.T) {
	tcs := []struct {
		name    string
		content string
	}{
		{"missing", `[{"Meta":{"TotalCycles":1}}]`},
		{"null", `[{"Meta":{"TotalCycles":1,"Environment":null}}]`},
		{"object", `[{"Meta":{"TotalCycles":1,"Environment":{}}}]`},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := AggregateBytes([]byte(tc.content), Options{Fields: []string{FieldTotalCycles}, GroupBy: "Environment"})
			var fieldErr *FieldAccessError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, "Environment", fieldErr.Field)
		})
	}

	res, err := AggregateBytes([]byte(`[{"Meta":{"TotalCycles":1,"Environment":3}}]`), Options{
		Fields:  []string{FieldTotalCycles},
		GroupBy: "Environment",
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "3", res.Groups[0].Name)
}

func benchmarkAggregate(b *testing.B, n int, opts Options) {
	records := make([]string, n)
	for i := range records {
		records[i] = fmt.Sprintf(`{"Meta":{"TotalCycles":%d,"EnergyConsumed":%d,"Implementation":"impl%d"},"Moves":{"Key":[],"Data":[]}}`, i, i*3, i%4)
	}
	path := writeRuns(b, "["+strings.Join(records, ",")+"]")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := AggregateWith(path, opts); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAggregate10k(b *testing.B) {
	benchmarkAggregate(b, 10_000, Options{Fields: []string{FieldEnergyConsumed, FieldTotalCycles}})
}

func BenchmarkAggregateMmap10k(b *testing.B) {
	benchmarkAggregate(b, 10_000, Options{Fields: []string{FieldEnergyConsumed, FieldTotalCycles}, Mmap: true})
}

func BenchmarkAggregateGroupBy10k(b *testing.B) {
	benchmarkAggregate(b, 10_000, Options{Fields: []string{FieldEnergyConsumed, FieldTotalCycles}, GroupBy: "Implementation"})
}

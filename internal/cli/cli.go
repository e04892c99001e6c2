package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"runstats/internal/config"
	"runstats/internal/logger"
	"runstats/internal/runstats"
	"runstats/internal/store"
)

const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitInvalidArgument = 2
	ExitLoad            = 3
	ExitFieldAccess     = 4
	ExitEmptyInput      = 5
)

// Command describes one executable built on Run.
type Command struct {
	Name string
	// Fields overrides the default field selection. Commands with FixedFields
	// do not offer a -fields flag.
	Fields      []string
	FixedFields bool
}

var (
	Unified = Command{Name: "runstats"}

	MeanCycles = Command{
		Name:        "meancycles",
		Fields:      []string{runstats.FieldTotalCycles},
		FixedFields: true,
	}
	MeanEnergy = Command{
		Name:        "meanenergy",
		Fields:      []string{runstats.FieldEnergyConsumed},
		FixedFields: true,
	}
	MeanEnergyCycles = Command{
		Name:        "meanenergycycles",
		Fields:      []string{runstats.FieldEnergyConsumed, runstats.FieldTotalCycles},
		FixedFields: true,
	}
)

type fieldList []string

func (l *fieldList) String() string { return strings.Join(*l, ",") }
func (l *fieldList) Set(v string) error {
	for _, f := range strings.Split(v, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			*l = append(*l, f)
		}
	}
	return nil
}

// Run executes cmd with args (without the program name) and returns the exit code.
func Run(cmd Command, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s [flags] <path-to-json-file>\n", cmd.Name)
		fs.PrintDefaults()
	}

	var fields fieldList
	if !cmd.FixedFields {
		fs.Var(&fields, "fields", "comma separated Meta fields to average (repeatable, default EnergyConsumed,TotalCycles)")
	}
	groupBy := fs.String("group-by", "", "Meta field to group runs by, e.g. Implementation")
	allErrors := fs.Bool("all-errors", false, "report every malformed record instead of stopping at the first")
	useMmap := fs.Bool("mmap", false, "memory-map the input file")
	detail := fs.Bool("detail", false, "also print min/max/stddev per field")
	format := fs.String("format", config.FormatText, "output format: text or json")
	history := fs.String("history", "", "sqlite file to append the summary to")
	configPath := fs.String("config", "", "YAML profile providing defaults for these flags")
	cpuprofile := fs.String("cpuprofile", "", "write cpu profile to file")
	var loglevel zapcore.Level
	fs.TextVar(&loglevel, "loglevel", zapcore.InfoLevel, "loglevel")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitInvalidArgument
	}

	if fs.NArg() != 1 {
		msg := "please provide path to json file"
		if fs.NArg() > 1 {
			msg = "exactly one json file expected"
		}
		fmt.Fprintf(stderr, "%s: %s: %s\n", cmd.Name, runstats.ErrInvalidArgument, msg)
		fs.Usage()
		return ExitInvalidArgument
	}
	path := fs.Arg(0)

	cfg := config.Default()
	if cmd.Fields != nil {
		cfg.Fields = cmd.Fields
	}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %s\n", cmd.Name, err)
			return ExitFailure
		}
		if cmd.FixedFields {
			cfg.Fields = cmd.Fields
		}
	}

	levelSet := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fields":
			cfg.Fields = fields
		case "group-by":
			cfg.GroupBy = *groupBy
		case "all-errors":
			cfg.AllErrors = *allErrors
		case "mmap":
			cfg.Mmap = *useMmap
		case "detail":
			cfg.Detail = *detail
		case "format":
			cfg.Format = *format
		case "history":
			cfg.History = *history
		case "loglevel":
			levelSet = true
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "%s: %s: %s\n", cmd.Name, runstats.ErrInvalidArgument, err)
		return ExitInvalidArgument
	}
	if !levelSet {
		// Validate already rejected unparsable levels
		loglevel, _ = cfg.Level()
	}

	log := logger.New(stderr, loglevel).With("cmd", cmd.Name)
	defer log.Sync()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(stderr, "%s: cpuprofile: %s\n", cmd.Name, err)
			return ExitFailure
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(stderr, "%s: cpuprofile: %s\n", cmd.Name, err)
			return ExitFailure
		}
		defer pprof.StopCPUProfile()
	}

	log.Info("calculating means", "path", path, "fields", cfg.Fields, "groupBy", cfg.GroupBy)
	start := time.Now()
	res, err := runstats.AggregateWith(path, cfg.Options())
	if err != nil {
		errs := multierr.Errors(err)
		log.Debug("aggregation failed", "errors", len(errs), "elapsed", time.Since(start))
		for _, e := range errs {
			fmt.Fprintf(stderr, "%s: %s\n", cmd.Name, describe(e))
		}
		return exitCode(err)
	}
	log.Debug("aggregation done", "runs", res.Count, "groups", len(res.Groups), "elapsed", time.Since(start))

	switch strings.ToLower(cfg.Format) {
	case config.FormatJSON:
		err = runstats.WriteJSON(stdout, res)
	default:
		err = runstats.WriteText(stdout, res, cfg.Detail)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: write report: %s\n", cmd.Name, err)
		return ExitFailure
	}

	if cfg.History != "" {
		if err := saveHistory(cfg.History, path, res, log); err != nil {
			fmt.Fprintf(stderr, "%s: %s\n", cmd.Name, err)
			return ExitFailure
		}
	}
	return ExitOK
}

func saveHistory(dbPath, source string, res *runstats.Result, log *logger.Logger) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.Save(context.Background(), source, res)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	log.Info("summary recorded", "id", id, "history", dbPath)
	return nil
}

var errorKinds = []error{
	runstats.ErrInvalidArgument,
	runstats.ErrLoad,
	runstats.ErrFieldAccess,
	runstats.ErrEmptyInput,
}

// describe prefixes err with the name of its kind unless the message already starts with it.
func describe(err error) string {
	msg := err.Error()
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			if strings.HasPrefix(msg, kind.Error()) {
				return msg
			}
			return kind.Error() + ": " + msg
		}
	}
	return msg
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, runstats.ErrInvalidArgument):
		return ExitInvalidArgument
	case errors.Is(err, runstats.ErrLoad):
		return ExitLoad
	case errors.Is(err, runstats.ErrFieldAccess):
		return ExitFieldAccess
	case errors.Is(err, runstats.ErrEmptyInput):
		return ExitEmptyInput
	default:
		return ExitFailure
	}
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"runstats/internal/runstats"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the set of knobs a profile file can preset. Flags given on the
// command line take precedence over it.
type Config struct {
	Fields    []string `yaml:"fields"`
	GroupBy   string   `yaml:"groupBy"`
	AllErrors bool     `yaml:"allErrors"`
	Mmap      bool     `yaml:"mmap"`
	Detail    bool     `yaml:"detail"`
	Format    string   `yaml:"format"`
	History   string   `yaml:"history"`
	LogLevel  string   `yaml:"logLevel"`
}

func Default() Config {
	return Config{
		Fields:   []string{runstats.FieldEnergyConsumed, runstats.FieldTotalCycles},
		Format:   FormatText,
		LogLevel: "info",
	}
}

// Load decodes the YAML profile at path on top of base.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Format) {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return level, nil
}

func (c Config) Options() runstats.Options {
	return runstats.Options{
		Fields:    c.Fields,
		GroupBy:   c.GroupBy,
		AllErrors: c.AllErrors,
		Mmap:      c.Mmap,
	}
}

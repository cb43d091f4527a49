package config

import (
	"fmt"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/padm/dwh/lib/environ"
)

const (
	EnvResources        = "DWH_BRONZE_RESOURCES"
	EnvExclude          = "DWH_BRONZE_EXCLUDE"
	EnvBackfillFloor    = "DWH_BACKFILL_FLOOR"
	EnvExtractWorkers   = "DWH_EXTRACT_WORKERS"
	EnvNormalizeWorkers = "DWH_NORMALIZE_WORKERS"
	EnvLoadWorkers      = "DWH_LOAD_WORKERS"
	EnvDuckDBPath       = "DWH_DUCKDB_PATH"
)

type Settings struct {
	Config         Config
	VerboseLogging bool
	SkipTransform  bool
}

type options struct {
	ConfigFilePath string `short:"c" long:"config" description:"path to the config file"`
	Verbose        bool   `short:"v" long:"verbose" description:"debug logging" optional:"true"`
	Resources      string `short:"r" long:"resources" description:"comma separated list of bronze resources to run"`
	Exclude        string `short:"x" long:"exclude" description:"comma separated list of bronze resources to skip"`
	BackfillFloor  string `long:"backfill-floor" description:"raise the initial checkpoint of incremental resources (YYYY-MM-DD)"`
	SkipTransform  bool   `long:"skip-transform" description:"only run the bronze ingestion"`
}

// ParseResourceList splits a comma separated list of resource names, dropping blanks.
func ParseResourceList(value string) []string {
	var names []string
	for _, part := range strings.Split(value, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// applyOverrides layers environment variables and then flags over the file config.
// This is the only place the process environment is consulted.
func (c *Config) applyOverrides(opts options) error {
	if value, ok := environ.String(EnvResources); ok {
		c.Bronze.Resources = ParseResourceList(value)
	}

	if value, ok := environ.String(EnvExclude); ok {
		c.Bronze.Exclude = ParseResourceList(value)
	}

	if value, ok := environ.String(EnvBackfillFloor); ok {
		c.Bronze.BackfillFloor = value
	}

	if value, ok := environ.String(EnvDuckDBPath); ok {
		c.Destination.Path = value
	}

	var err error
	if c.Bronze.Workers.Extract, err = environ.Int(EnvExtractWorkers, c.Bronze.Workers.Extract); err != nil {
		return err
	}

	if c.Bronze.Workers.Normalize, err = environ.Int(EnvNormalizeWorkers, c.Bronze.Workers.Normalize); err != nil {
		return err
	}

	if c.Bronze.Workers.Load, err = environ.Int(EnvLoadWorkers, c.Bronze.Workers.Load); err != nil {
		return err
	}

	if opts.Resources != "" {
		c.Bronze.Resources = ParseResourceList(opts.Resources)
	}

	if opts.Exclude != "" {
		c.Bronze.Exclude = ParseResourceList(opts.Exclude)
	}

	if opts.BackfillFloor != "" {
		c.Bronze.BackfillFloor = opts.BackfillFloor
	}

	return nil
}

// LoadSettings will take the flags and then parse, loadConfig is optional for testing purposes.
func LoadSettings(args []string, loadConfig bool) (*Settings, error) {
	var opts options
	if _, err := flags.ParseArgs(&opts, args); err != nil {
		return nil, fmt.Errorf("failed to parse args: %w", err)
	}

	settings := &Settings{
		VerboseLogging: opts.Verbose,
		SkipTransform:  opts.SkipTransform,
	}

	if loadConfig {
		config, err := readFileToConfig(opts.ConfigFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		if err = config.applyOverrides(opts); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}

		if err = config.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate config: %w", err)
		}

		settings.Config = *config
	}

	return settings, nil
}

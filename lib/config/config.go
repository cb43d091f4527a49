package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/golang-sql/civil"
	"gopkg.in/yaml.v3"

	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/numbers"
	"github.com/padm/dwh/models"
)

const (
	defaultExtractWorkers   = 1
	defaultNormalizeWorkers = 1
	defaultLoadWorkers      = 1

	maxWorkers = 64
)

type Sentry struct {
	DSN string `yaml:"dsn"`
}

type Reporting struct {
	Sentry *Sentry `yaml:"sentry"`
}

type Redis struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
}

type Destination struct {
	// Path is the DuckDB file that holds the bronze dataset.
	Path string `yaml:"path"`
	// Dataset is the schema inside the destination that raw resources land in.
	Dataset string `yaml:"dataset"`
}

type Workers struct {
	Extract   int `yaml:"extract"`
	Normalize int `yaml:"normalize"`
	Load      int `yaml:"load"`
}

type Bronze struct {
	// Resources restricts the run to these resource names, in this order. Empty means all registered resources.
	Resources []string `yaml:"resources"`
	// Exclude drops these resource names from the selection.
	Exclude []string `yaml:"exclude"`
	// BackfillFloor (YYYY-MM-DD) raises the initial checkpoint of every incremental resource.
	BackfillFloor string `yaml:"backfillFloor"`
	// ResourcesFile replaces the embedded resource registry.
	ResourcesFile string `yaml:"resourcesFile"`
	// StagingDir holds the local extract/normalize buffers. Defaults to `<destination dir>/.staging`.
	StagingDir          string  `yaml:"stagingDir"`
	QueryTimeoutSeconds int     `yaml:"queryTimeoutSeconds"`
	Workers             Workers `yaml:"workers"`
}

type Checkpoints struct {
	Mirror constants.CheckpointMirrorKind `yaml:"mirror"`
}

// TransformStep runs every `*.sql` file of SQLDir inside Schema.
type TransformStep struct {
	Name   string `yaml:"name"`
	SQLDir string `yaml:"sqlDir"`
	Schema string `yaml:"schema"`
}

type Transform struct {
	Steps []TransformStep `yaml:"steps"`
}

type Config struct {
	Sources     []models.SourceDatabase `yaml:"sources"`
	Destination Destination             `yaml:"destination"`
	Bronze      Bronze                  `yaml:"bronze"`
	Checkpoints Checkpoints             `yaml:"checkpoints"`
	Redis       *Redis                  `yaml:"redis,omitempty"`
	Transform   Transform               `yaml:"transform"`

	Reporting Reporting `yaml:"reporting"`
	Telemetry struct {
		Metrics struct {
			Provider constants.ExporterKind `yaml:"provider"`
			Settings map[string]any         `yaml:"settings,omitempty"`
		}
	}
}

func readFileToConfig(pathToConfig string) (*Config, error) {
	bytes, err := os.ReadFile(pathToConfig)
	if err != nil {
		return nil, err
	}

	var config Config
	if err = yaml.Unmarshal(bytes, &config); err != nil {
		return nil, err
	}

	config.setDefaults()
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Destination.Path == "" {
		c.Destination.Path = constants.DefaultDestinationPath
	}

	if c.Destination.Dataset == "" {
		c.Destination.Dataset = constants.DefaultDataset
	}

	if c.Bronze.Workers.Extract == 0 {
		c.Bronze.Workers.Extract = defaultExtractWorkers
	}

	if c.Bronze.Workers.Normalize == 0 {
		c.Bronze.Workers.Normalize = defaultNormalizeWorkers
	}

	if c.Bronze.Workers.Load == 0 {
		c.Bronze.Workers.Load = defaultLoadWorkers
	}

	if c.Checkpoints.Mirror == "" {
		c.Checkpoints.Mirror = constants.NoMirror
	}

	if len(c.Transform.Steps) == 0 {
		c.Transform.Steps = []TransformStep{
			{Name: "silver", SQLDir: constants.DefaultSilverDir, Schema: constants.DefaultSilverSchema},
			{Name: "gold", SQLDir: constants.DefaultGoldDir, Schema: constants.DefaultGoldSchema},
		}
	}
}

// BackfillFloor returns the parsed backfill floor, nil if none was set.
func (c Config) BackfillFloor() (*civil.Date, error) {
	if c.Bronze.BackfillFloor == "" {
		return nil, nil
	}

	date, err := civil.ParseDate(strings.TrimSpace(c.Bronze.BackfillFloor))
	if err != nil {
		return nil, fmt.Errorf("invalid backfill floor %q: %w", c.Bronze.BackfillFloor, err)
	}

	return &date, nil
}

func validateWorkers(name string, value int) error {
	if !numbers.BetweenEq(1, maxWorkers, value) {
		return fmt.Errorf("%s workers must be between 1 and %d, got: %d", name, maxWorkers, value)
	}

	return nil
}

func (c Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("no source databases configured")
	}

	var names []string
	for i, source := range c.Sources {
		if source.Name == "" {
			return fmt.Errorf("source at index %d has no name", i)
		}

		if source.ConnectionString == "" {
			return fmt.Errorf("source %q has an empty connection string", source.Name)
		}

		if slices.Contains(names, source.Name) {
			return fmt.Errorf("duplicate source name: %q", source.Name)
		}

		names = append(names, source.Name)
	}

	if c.Destination.Path == "" {
		return fmt.Errorf("destination path is empty")
	}

	if c.Destination.Dataset == "" {
		return fmt.Errorf("destination dataset is empty")
	}

	if err := validateWorkers("extract", c.Bronze.Workers.Extract); err != nil {
		return err
	}

	if err := validateWorkers("normalize", c.Bronze.Workers.Normalize); err != nil {
		return err
	}

	if err := validateWorkers("load", c.Bronze.Workers.Load); err != nil {
		return err
	}

	if c.Bronze.QueryTimeoutSeconds < 0 {
		return fmt.Errorf("query timeout must not be negative, got: %d", c.Bronze.QueryTimeoutSeconds)
	}

	if _, err := c.BackfillFloor(); err != nil {
		return err
	}

	if !c.Checkpoints.Mirror.IsValid() {
		return fmt.Errorf("invalid checkpoint mirror: %q", c.Checkpoints.Mirror)
	}

	if c.Checkpoints.Mirror == constants.RedisMirror && (c.Redis == nil || c.Redis.Address == "") {
		return fmt.Errorf("checkpoint mirror is redis but redis address is not set")
	}

	for i, step := range c.Transform.Steps {
		if step.SQLDir == "" || step.Schema == "" {
			return fmt.Errorf("transform step at index %d needs both sqlDir and schema", i)
		}
	}

	return nil
}

package itree

import (
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultSubsumptionTimeout = 10 * time.Second
	DefaultSearcher           = "dfs"
)

// Config represents the configuration of an exploration.
type Config struct {
	// Enables pruning through the interpolation tree.
	Interpolation bool `yaml:"interpolation"`

	// Time limit of a single subsumption query.
	SubsumptionTimeout time.Duration `yaml:"subsumption_timeout"`

	// State selection strategy. See NewSearcher().
	Searcher string `yaml:"searcher"`

	// Seed of the random searcher.
	Seed int64 `yaml:"seed"`

	// Maximum number of states to execute. Zero is unlimited.
	MaxStates int `yaml:"max_states"`

	// If true, the tree is written after exploration.
	OutputTree bool `yaml:"output_tree"`

	SolverLog SolverLogConfig `yaml:"solver_log"`

	// Target platform. Defaults to the host.
	OS   string `yaml:"os"`
	Arch string `yaml:"arch"`
}

// SolverLogConfig represents the configuration of solver query logging.
type SolverLogConfig struct {
	// Queries taking at least this long are logged. A negative value only
	// logs undecided queries and zero disables logging.
	MinQueryTime time.Duration `yaml:"min_query_time"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() Config {
	return Config{
		Interpolation:      true,
		SubsumptionTimeout: DefaultSubsumptionTimeout,
		Searcher:           DefaultSearcher,
		Seed:               1,
	}
}

// ParseConfig decodes YAML from r on top of the default configuration.
// Unknown fields are rejected.
func ParseConfig(r io.Reader) (Config, error) {
	c := NewConfig()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return c, errors.Wrap(err, "decode config")
	}
	return c, c.Validate()
}

// ReadConfigFile reads and parses the configuration file at path.
func ReadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer f.Close()

	c, err := ParseConfig(f)
	if err != nil {
		return c, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

// Validate returns an error if the configuration is invalid.
func (c Config) Validate() error {
	if c.SubsumptionTimeout < 0 {
		return errors.Errorf("invalid subsumption timeout: %s", c.SubsumptionTimeout)
	} else if c.MaxStates < 0 {
		return errors.Errorf("invalid max states: %d", c.MaxStates)
	} else if (c.OS == "") != (c.Arch == "") {
		return errors.New("os and arch must be set together")
	} else if c.OS != "" && !isValidOSArch(c.OS, c.Arch) {
		return errors.Errorf("invalid os/arch combination: %s/%s", c.OS, c.Arch)
	}

	if _, err := NewSearcher(c.Searcher, nil); err != nil {
		return errors.Wrap(err, "invalid searcher")
	}
	return nil
}

// Apply sets the configured options on e.
func (c Config) Apply(e *Executor) error {
	if err := c.Validate(); err != nil {
		return err
	}

	searcher, err := NewSearcher(c.Searcher, rand.New(rand.NewSource(c.Seed)))
	if err != nil {
		return err
	}

	e.Searcher = searcher
	e.Interpolation = c.Interpolation
	e.SubsumptionTimeout = c.SubsumptionTimeout
	e.MaxStates = c.MaxStates
	if c.OS != "" {
		e.OS, e.Arch = c.OS, c.Arch
	}
	return nil
}

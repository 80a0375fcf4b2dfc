package plant

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// SolverConfig tunes the implicit Stribeck solver.
type SolverConfig struct {
	MaxIterations int     `yaml:"max_iterations"`
	RelTolerance  float64 `yaml:"rel_tolerance"`
	AbsTolerance  float64 `yaml:"abs_tolerance"`
	ThetaMax      float64 `yaml:"theta_max"`
}

// Config is the serializable plant configuration.
type Config struct {
	// TimeStep selects continuous (zero) or discrete (positive) mode.
	TimeStep float64 `yaml:"time_step"`
	// PenetrationAllowance is the target maximum steady state penetration, m.
	PenetrationAllowance float64 `yaml:"penetration_allowance"`
	// StictionTolerance is the stuck/slipping threshold speed, m/s.
	StictionTolerance float64 `yaml:"stiction_tolerance"`
	// Gravity is the magnitude of the downward gravity field, m/s².
	Gravity float64      `yaml:"gravity"`
	Solver  SolverConfig `yaml:"solver"`
}

// DefaultConfig returns the configuration used when callers set nothing.
func DefaultConfig() Config {
	return Config{
		TimeStep:             1e-3,
		PenetrationAllowance: DefaultPenetrationAllowance,
		StictionTolerance:    DefaultStictionTolerance,
		Gravity:              defaultGravity,
		Solver: SolverConfig{
			MaxIterations: 100,
			RelTolerance:  1e-6,
			AbsTolerance:  1e-13,
			ThetaMax:      0.25,
		},
	}
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode plant config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read plant config")
	}
	return ParseConfig(data)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	if c.TimeStep < 0 {
		err = multierr.Append(err, errors.Errorf("time_step must be non negative, got %f", c.TimeStep))
	}
	if c.PenetrationAllowance <= 0 {
		err = multierr.Append(err, errors.Errorf("penetration_allowance must be positive, got %f", c.PenetrationAllowance))
	}
	if c.StictionTolerance <= 0 {
		err = multierr.Append(err, errors.Errorf("stiction_tolerance must be positive, got %f", c.StictionTolerance))
	}
	if c.Gravity < 0 {
		err = multierr.Append(err, errors.Errorf("gravity must be non negative, got %f", c.Gravity))
	}
	if c.Solver.MaxIterations <= 0 {
		err = multierr.Append(err, errors.Errorf("solver.max_iterations must be positive, got %d", c.Solver.MaxIterations))
	}
	if c.Solver.RelTolerance <= 0 {
		err = multierr.Append(err, errors.Errorf("solver.rel_tolerance must be positive, got %f", c.Solver.RelTolerance))
	}
	return err
}

// Apply pushes the contact parameters of the config onto a finalized plant.
func (c Config) Apply(p *Plant) error {
	if err := p.SetPenetrationAllowance(c.PenetrationAllowance); err != nil {
		return err
	}
	if err := p.SetStictionTolerance(c.StictionTolerance); err != nil {
		return err
	}
	if p.IsDiscrete() {
		return p.ConfigureSolver(c.Solver)
	}
	return nil
}

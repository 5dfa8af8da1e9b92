package harness

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a refinement acceptance scenario.
// A scenario loads one job, optionally replaces its observed data with a
// synthesized pattern of known truth, refines it and asserts on the result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Job is the path to a CUE file or directory defining the job.
	// Relative paths are resolved against the scenario file location.
	Job string `yaml:"job"`

	// JobName selects one job when the CUE source defines several.
	// May be empty when exactly one job is defined.
	JobName string `yaml:"job_name,omitempty"`

	// Synthesize replaces every experiment's observed data with a pattern
	// calculated at known parameter values.
	Synthesize *Synthesis `yaml:"synthesize,omitempty"`

	// RunID is the fixed run ID stamped on the result.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Assertions validate the refinement result.
	Assertions []Assertion `yaml:"assertions"`
}

// Synthesis describes a simulated measurement.
type Synthesis struct {
	// Start, Stop and Step define the 2θ grid, inclusive of Stop.
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Step  float64 `yaml:"step"`

	// Truth holds parameter values used to calculate the pattern. Keys
	// not listed keep the job's starting values.
	Truth map[string]float64 `yaml:"truth"`

	// Noise is the Gaussian noise level as a fraction of the highest
	// calculated intensity. Zero means noise-free data with unit σ.
	Noise float64 `yaml:"noise,omitempty"`

	// Seed fixes the noise sequence.
	Seed uint64 `yaml:"seed,omitempty"`
}

// Assertion validates one property of the refinement result.
type Assertion struct {
	// Type specifies the assertion type:
	// - "status": terminal status equals Status
	// - "parameter": final value of Key within Tolerance of Value
	// - "uncertainty": Key carries an uncertainty, below Max when set
	// - "reduced_chi_square": reduced χ² within [Min, Max]
	// - "iterations": at most Count optimizer iterations
	// - "stored_run": the run reads back from the store unchanged
	Type string `yaml:"type"`

	// Status is the expected terminal status (used by status).
	Status string `yaml:"status,omitempty"`

	// Key is a parameter key (used by parameter and uncertainty).
	Key string `yaml:"key,omitempty"`

	// Value is the expected parameter value (used by parameter).
	Value *float64 `yaml:"value,omitempty"`

	// Tolerance is the allowed absolute deviation (used by parameter).
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Min and Max bound a statistic (used by reduced_chi_square and
	// uncertainty). Either may be omitted.
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`

	// Count is the iteration limit (used by iterations).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus           = "status"
	AssertParameter        = "parameter"
	AssertUncertainty      = "uncertainty"
	AssertReducedChiSquare = "reduced_chi_square"
	AssertIterations       = "iterations"
	AssertStoredRun        = "stored_run"
)

// LoadScenario reads and parses a scenario YAML file. The job path is
// resolved relative to the scenario file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the job path relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Job != "" && !filepath.IsAbs(scenario.Job) && basePath != "" {
		scenario.Job = filepath.Join(basePath, scenario.Job)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Job == "" {
		return fmt.Errorf("job is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Job); os.IsNotExist(err) {
		return fmt.Errorf("job source not found: %s", s.Job)
	}

	if s.Synthesize != nil {
		if err := validateSynthesis(s.Synthesize); err != nil {
			return fmt.Errorf("synthesize: %w", err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateSynthesis(syn *Synthesis) error {
	if !(syn.Step > 0) {
		return fmt.Errorf("step must be positive, got %g", syn.Step)
	}
	if !(syn.Stop > syn.Start) {
		return fmt.Errorf("stop %g must exceed start %g", syn.Stop, syn.Start)
	}
	if syn.Noise < 0 || math.IsNaN(syn.Noise) {
		return fmt.Errorf("noise must be non-negative, got %g", syn.Noise)
	}
	for key, v := range syn.Truth {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("truth %q is not finite", key)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatus:
		if a.Status == "" {
			return fmt.Errorf("assertions[%d]: status is required for status", index)
		}
	case AssertParameter:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for parameter", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for parameter", index)
		}
		if a.Tolerance < 0 {
			return fmt.Errorf("assertions[%d]: tolerance must be non-negative for parameter", index)
		}
	case AssertUncertainty:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for uncertainty", index)
		}
	case AssertReducedChiSquare:
		if a.Min == nil && a.Max == nil {
			return fmt.Errorf("assertions[%d]: min or max is required for reduced_chi_square", index)
		}
	case AssertIterations:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: count must be positive for iterations", index)
		}
	case AssertStoredRun:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

package harness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/easyscience/EasyDiffractionLib/internal/config"
)

// ScenarioOutcome is the result of one scenario file in a suite.
type ScenarioOutcome struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Pass bool   `json:"pass"`
	// Errors holds load, execution and assertion failures.
	Errors []string `json:"errors,omitempty"`
	// Result is nil when the scenario failed to load or execute.
	Result *Result `json:"-"`
}

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Scenarios []ScenarioOutcome `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
	Total     int               `json:"total"`
}

// FindScenarios returns the .yaml and .yml files under dir in lexical
// order. A non-empty filter is a glob matched against the file name
// without extension.
func FindScenarios(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	return files, err
}

// RunSuite loads and runs every scenario under dir. A scenario that fails
// to load or execute counts as failed; the suite continues.
// Cancelling ctx stops the remaining refinements at their next iteration.
func RunSuite(ctx context.Context, dir, filter string, cfg config.Config) (*SuiteResult, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("scenarios directory not found: %s", dir)
	}
	files, err := FindScenarios(dir, filter)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{
		Scenarios: make([]ScenarioOutcome, 0, len(files)),
		Total:     len(files),
	}
	for _, path := range files {
		out := runFile(ctx, path, cfg)
		if out.Pass {
			suite.Passed++
		} else {
			suite.Failed++
		}
		suite.Scenarios = append(suite.Scenarios, out)
	}
	return suite, nil
}

func runFile(ctx context.Context, path string, cfg config.Config) ScenarioOutcome {
	out := ScenarioOutcome{Name: filepath.Base(path), Path: path}

	scenario, err := LoadScenario(path)
	if err != nil {
		out.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return out
	}
	out.Name = scenario.Name

	result, err := RunWithConfig(ctx, scenario, cfg)
	if err != nil {
		out.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return out
	}

	out.Result = result
	out.Pass = result.Pass
	out.Errors = result.Errors
	return out
}

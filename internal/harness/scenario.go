package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AndreasThinks/nodeice-board/internal/config"
)

// Scenario is a scripted conversation with the board.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Board overrides the board settings. Zero fields keep the defaults.
	Board BoardSettings `yaml:"board,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// BoardSettings are the executor options a scenario may change.
type BoardSettings struct {
	Name         string          `yaml:"name,omitempty"`
	Lifetime     config.Duration `yaml:"lifetime,omitempty"`
	MaxPayload   int             `yaml:"max_payload,omitempty"`
	ViewComments int             `yaml:"view_comments,omitempty"`
}

// Step is one line sent to the board, a clock movement, or a sweep.
type Step struct {
	// From is the sending node. Required with Send.
	From string `yaml:"from,omitempty"`

	// Name is the sender's display name, if the radio knows it.
	Name string `yaml:"name,omitempty"`

	// Send is the raw text the node transmits.
	Send string `yaml:"send,omitempty"`

	// Advance moves the clock forward.
	Advance config.Duration `yaml:"advance,omitempty"`

	// Sweep deletes expired posts.
	Sweep bool `yaml:"sweep,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes what a step must produce.
type Expect struct {
	// Outcome is "ok", "rejected" or "failed".
	Outcome string `yaml:"outcome,omitempty"`

	// Replies must match exactly when set. An empty list means no reply.
	Replies []string `yaml:"replies"`

	// Notify maps recipients to the notification each must receive.
	// Recipients not listed must receive nothing.
	Notify map[string]string `yaml:"notify,omitempty"`

	// Expired is the number of posts a sweep step must delete.
	Expired *int `yaml:"expired,omitempty"`
}

// Assertion checks board state after the steps.
type Assertion struct {
	// Type is one of the Assert constants.
	Type string `yaml:"type"`

	// Stats lists the counts to compare, keyed by their JSON names.
	Stats map[string]int `yaml:"stats,omitempty"`

	// Node and Subscriptions are used by subscriptions assertions.
	Node          string   `yaml:"node,omitempty"`
	Subscriptions []string `yaml:"subscriptions,omitempty"`
}

// Assertion types.
const (
	AssertStats         = "stats"
	AssertSubscriptions = "subscriptions"
)

// LoadScenario reads a scenario file. Unknown fields are errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertStats:
			for key := range a.Stats {
				if _, ok := statFields[key]; !ok {
					return fmt.Errorf("assertions[%d]: unknown stat %q", i, key)
				}
			}
		case AssertSubscriptions:
			if a.Node == "" {
				return fmt.Errorf("assertions[%d]: node is required", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}

func validateStep(step Step) error {
	kinds := 0
	if step.Send != "" {
		kinds++
		if step.From == "" {
			return errors.New("from is required with send")
		}
	}
	if step.Advance.Duration != 0 {
		kinds++
		if step.Advance.Duration < 0 {
			return errors.New("advance must be positive")
		}
	}
	if step.Sweep {
		kinds++
	}
	if kinds != 1 {
		return errors.New("exactly one of send, advance or sweep is required")
	}

	if step.Expect == nil {
		return nil
	}
	if step.Advance.Duration != 0 {
		return errors.New("advance steps take no expect")
	}
	if step.Sweep && (step.Expect.Outcome != "" || step.Expect.Replies != nil || step.Expect.Notify != nil) {
		return errors.New("sweep steps only expect expired")
	}
	if step.Send != "" && step.Expect.Expired != nil {
		return errors.New("expired only applies to sweep steps")
	}
	return nil
}

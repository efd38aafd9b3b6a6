package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario is one offline-sync test case.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Online is the connectivity state before the first step.
	Online bool `yaml:"online"`

	// Seed records exist on the service before the first step.
	Seed []SeedRecord `yaml:"seed,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedRecord is a remote record present at start.
type SeedRecord struct {
	Store string         `yaml:"store"`
	ID    string         `yaml:"id"`
	Value map[string]any `yaml:"value"`
}

// Step is one operation. Which fields apply depends on Op.
type Step struct {
	Op    string         `yaml:"op"`
	Store string         `yaml:"store,omitempty"`
	As    string         `yaml:"as,omitempty"`  // name for a created record
	Ref   string         `yaml:"ref,omitempty"` // record named by an earlier `as`
	Value map[string]any `yaml:"value,omitempty"`

	// save_ritual
	RitualType string `yaml:"ritual_type,omitempty"`
	Date       string `yaml:"date,omitempty"`

	// fail
	Method string `yaml:"method,omitempty"`
	Status int    `yaml:"status,omitempty"`
	Times  int    `yaml:"times,omitempty"`

	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpList       = "list"
	OpSaveRitual = "save_ritual"
	OpGoOnline   = "go_online"
	OpGoOffline  = "go_offline"
	OpFail       = "fail"
	OpSync       = "sync"
)

var validOps = []string{
	OpCreate, OpUpdate, OpDelete, OpList, OpSaveRitual,
	OpGoOnline, OpGoOffline, OpFail, OpSync,
}

// Expected error codes.
const (
	ErrCodeNoCachedData       = "no_cached_data"
	ErrCodeRejected           = "rejected"
	ErrCodeOffline            = "offline"
	ErrCodeStorageUnavailable = "storage_unavailable"
)

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Store string `yaml:"store,omitempty"`

	// Where selects records (subset match).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (subset match).
	Expect map[string]any `yaml:"expect,omitempty"`

	Count  int    `yaml:"count"`
	Method string `yaml:"method,omitempty"`
}

// Assertion type constants.
const (
	AssertQueueCount   = "queue_count"
	AssertLocalCount   = "local_count"
	AssertRemoteCount  = "remote_count"
	AssertLocalState   = "local_state"
	AssertRemoteState  = "remote_state"
	AssertRequestCount = "request_count"
)

var validAssertions = []string{
	AssertQueueCount, AssertLocalCount, AssertRemoteCount,
	AssertLocalState, AssertRemoteState, AssertRequestCount,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, seed := range s.Seed {
		if seed.Store == "" || seed.ID == "" {
			return fmt.Errorf("seed[%d]: store and id are required", i)
		}
	}

	names := map[string]bool{}
	for i, step := range s.Steps {
		if !slices.Contains(validOps, step.Op) {
			return fmt.Errorf("step[%d]: unknown op %q", i, step.Op)
		}
		switch step.Op {
		case OpCreate, OpList:
			if step.Store == "" {
				return fmt.Errorf("step[%d]: %s requires store", i, step.Op)
			}
		case OpUpdate, OpDelete:
			if step.Store == "" || step.Ref == "" {
				return fmt.Errorf("step[%d]: %s requires store and ref", i, step.Op)
			}
			if !names[step.Ref] {
				return fmt.Errorf("step[%d]: ref %q is not created by an earlier step", i, step.Ref)
			}
		case OpSaveRitual:
			if step.RitualType == "" || step.Date == "" {
				return fmt.Errorf("step[%d]: save_ritual requires ritual_type and date", i)
			}
		case OpFail:
			if step.Method == "" || step.Store == "" || step.Status == 0 || step.Times <= 0 {
				return fmt.Errorf("step[%d]: fail requires method, store, status and times", i)
			}
		}
		if step.As != "" {
			if step.Op != OpCreate {
				return fmt.Errorf("step[%d]: as is only valid on create", i)
			}
			if names[step.As] {
				return fmt.Errorf("step[%d]: name %q already used", i, step.As)
			}
			names[step.As] = true
		}
	}

	for i, a := range s.Assertions {
		if !slices.Contains(validAssertions, a.Type) {
			return fmt.Errorf("assertion[%d]: unknown type %q", i, a.Type)
		}
		switch a.Type {
		case AssertLocalCount, AssertRemoteCount, AssertLocalState, AssertRemoteState:
			if a.Store == "" {
				return fmt.Errorf("assertion[%d]: %s requires store", i, a.Type)
			}
		case AssertRequestCount:
			if a.Store == "" || a.Method == "" {
				return fmt.Errorf("assertion[%d]: request_count requires store and method", i)
			}
		}
	}
	return nil
}

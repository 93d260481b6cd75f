// Package sim replays scripted sessions against a Sequencer: handlers with
// canned behavior, a sequence of turn changes, directives and outcome
// reports, and a trace of every handler callback.
package sim

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-directive"
)

const ErrCodeInvalidScript = "INVALID_SCRIPT"

// Outcome is how a simulated handler finishes a directive it handles.
type Outcome string

const (
	// OutcomeNone leaves the directive open until a report step.
	OutcomeNone    Outcome = "none"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeReject makes Handle return false.
	OutcomeReject Outcome = "reject"
)

func (o Outcome) valid() bool {
	switch o {
	case "", OutcomeNone, OutcomeSuccess, OutcomeFailure, OutcomeReject:
		return true
	}
	return false
}

// Script is a complete simulated session.
type Script struct {
	Name     string        `yaml:"name"`
	Handlers []HandlerSpec `yaml:"handlers"`
	Steps    []Step        `yaml:"steps"`
	// Settle is how long to wait after the last step before shutting down.
	Settle time.Duration `yaml:"settle"`
}

type TypeSpec struct {
	Namespace string                   `yaml:"namespace"`
	Name      string                   `yaml:"name"`
	Policy    directive.BlockingPolicy `yaml:"policy"`
}

type HandlerSpec struct {
	Name    string        `yaml:"name"`
	Types   []TypeSpec    `yaml:"types"`
	Outcome Outcome       `yaml:"outcome"`
	Reason  string        `yaml:"reason"`
	Delay   time.Duration `yaml:"delay"`
}

func (h HandlerSpec) configuration() directive.HandlerConfiguration {
	config := make(directive.HandlerConfiguration, len(h.Types))
	for _, t := range h.Types {
		config[directive.NewType(t.Namespace, t.Name)] = t.Policy
	}
	return config
}

type DirectiveSpec struct {
	Namespace       string `yaml:"namespace"`
	Name            string `yaml:"name"`
	MessageID       string `yaml:"message_id"`
	DialogRequestID string `yaml:"dialog_request_id"`
	Payload         string `yaml:"payload"`
}

type ReportSpec struct {
	MessageID string  `yaml:"message_id"`
	Outcome   Outcome `yaml:"outcome"`
	Reason    string  `yaml:"reason"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	Turn      *string        `yaml:"turn,omitempty"`
	Directive *DirectiveSpec `yaml:"directive,omitempty"`
	Report    *ReportSpec    `yaml:"report,omitempty"`
	Wait      time.Duration  `yaml:"wait,omitempty"`
}

func (s Step) kind() string {
	switch {
	case s.Turn != nil:
		return "turn"
	case s.Directive != nil:
		return "directive"
	case s.Report != nil:
		return "report"
	case s.Wait > 0:
		return "wait"
	}
	return ""
}

// Load decodes and validates a script.
func Load(r io.Reader) (*Script, error) {
	var script Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&script); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "failed to decode script").
			WithTextCode(ErrCodeInvalidScript)
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return &script, nil
}

func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to open script").
			WithTextCode(ErrCodeInvalidScript).
			WithMetadata(map[string]any{"path": path})
	}
	defer f.Close()
	return Load(f)
}

// Validate reports every structural problem at once.
func (s *Script) Validate() error {
	var problems []string

	names := make(map[string]bool, len(s.Handlers))
	for i, h := range s.Handlers {
		if strings.TrimSpace(h.Name) == "" {
			problems = append(problems, fmt.Sprintf("handlers[%d]: name is required", i))
		} else if names[h.Name] {
			problems = append(problems, fmt.Sprintf("handlers[%d]: duplicate name %q", i, h.Name))
		}
		names[h.Name] = true

		if len(h.Types) == 0 {
			problems = append(problems, fmt.Sprintf("handlers[%d]: at least one type is required", i))
		}
		for j, t := range h.Types {
			if t.Namespace == "" || t.Name == "" {
				problems = append(problems, fmt.Sprintf("handlers[%d].types[%d]: namespace and name are required", i, j))
			}
		}
		if !h.Outcome.valid() {
			problems = append(problems, fmt.Sprintf("handlers[%d]: unknown outcome %q", i, h.Outcome))
		}
		if h.Delay < 0 {
			problems = append(problems, fmt.Sprintf("handlers[%d]: delay cannot be negative", i))
		}
	}

	for i, step := range s.Steps {
		set := 0
		for _, ok := range []bool{step.Turn != nil, step.Directive != nil, step.Report != nil, step.Wait != 0} {
			if ok {
				set++
			}
		}
		if set != 1 {
			problems = append(problems, fmt.Sprintf("steps[%d]: exactly one of turn, directive, report or wait is required", i))
			continue
		}
		switch {
		case step.Directive != nil:
			if step.Directive.Namespace == "" || step.Directive.Name == "" {
				problems = append(problems, fmt.Sprintf("steps[%d]: directive namespace and name are required", i))
			}
		case step.Report != nil:
			if step.Report.MessageID == "" {
				problems = append(problems, fmt.Sprintf("steps[%d]: report message_id is required", i))
			}
			if step.Report.Outcome != OutcomeSuccess && step.Report.Outcome != OutcomeFailure {
				problems = append(problems, fmt.Sprintf("steps[%d]: report outcome must be success or failure", i))
			}
		case step.Wait < 0:
			problems = append(problems, fmt.Sprintf("steps[%d]: wait cannot be negative", i))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid script", errors.CategoryValidation).
		WithTextCode(ErrCodeInvalidScript).
		WithMetadata(map[string]any{
			"script":   s.Name,
			"problems": problems,
		})
}

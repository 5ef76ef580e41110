package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"riskline/internal/domain"
)

//go:embed issues.yml
var issuesYAML []byte

var ErrNotFound = errors.New("issue not found")

// Catalog is an ordered, read-only set of issues.
type Catalog struct {
	issues []domain.Issue
	byID   map[string]int
}

type document struct {
	Issues []domain.Issue `yaml:"issues"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := FromYAML(issuesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded issue catalog is invalid: %v", err))
	}
	return c
}

func FromYAML(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	return New(doc.Issues)
}

func FromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// New builds a catalog, keeping the given order.
func New(issues []domain.Issue) (*Catalog, error) {
	c := &Catalog{
		issues: append([]domain.Issue(nil), issues...),
		byID:   make(map[string]int, len(issues)),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects duplicate ids and inverted ranges. Missing occurrence
// rates and detection profiles are tolerated and resolved at use.
func (c *Catalog) Validate() error {
	byID := make(map[string]int, len(c.issues))
	for i, issue := range c.issues {
		if issue.ID == "" {
			return fmt.Errorf("issue at position %d has empty id", i)
		}
		if _, ok := byID[issue.ID]; ok {
			return fmt.Errorf("duplicate issue id %s", issue.ID)
		}
		byID[issue.ID] = i
		if issue.Phase == "" {
			return fmt.Errorf("issue %s has empty phase", issue.ID)
		}
		if issue.WorkType == "" {
			return fmt.Errorf("issue %s has empty work_type", issue.ID)
		}
		switch issue.Severity {
		case "S1", "S2", "S3":
		default:
			return fmt.Errorf("issue %s has unknown severity %q", issue.ID, issue.Severity)
		}
		if issue.DelayWeeksMin < 0 || issue.DelayWeeksMax < issue.DelayWeeksMin {
			return fmt.Errorf("issue %s delay range [%g,%g] is invalid", issue.ID, issue.DelayWeeksMin, issue.DelayWeeksMax)
		}
		if issue.CostIncreaseMin < 0 || issue.CostIncreaseMax < issue.CostIncreaseMin {
			return fmt.Errorf("issue %s cost range [%g,%g] is invalid", issue.ID, issue.CostIncreaseMin, issue.CostIncreaseMax)
		}
	}
	c.byID = byID
	return nil
}

// Issues returns a copy of the catalog in order.
func (c *Catalog) Issues() []domain.Issue {
	return append([]domain.Issue(nil), c.issues...)
}

func (c *Catalog) Len() int {
	return len(c.issues)
}

func (c *Catalog) Get(id string) (domain.Issue, error) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Issue{}, ErrNotFound
	}
	return c.issues[i], nil
}

// ByCategory groups issues by category, each group in catalog order.
func (c *Catalog) ByCategory() map[string][]domain.Issue {
	out := map[string][]domain.Issue{}
	for _, issue := range c.issues {
		out[issue.Category] = append(out[issue.Category], issue)
	}
	return out
}

// ByPhase returns the issues that can fire in the given phase.
func (c *Catalog) ByPhase(phase string) []domain.Issue {
	var out []domain.Issue
	for _, issue := range c.issues {
		if issue.Phase == phase {
			out = append(out, issue)
		}
	}
	return out
}

// Package classify maps extracted text to a department label with ordered keyword rules.
package classify

import (
	"strings"

	"github.com/starford/nexus/internal/models"
)

// Classifier assigns a department to a piece of text.
type Classifier interface {
	Classify(text string) models.Department
}

// Rule maps any of its keywords to a department.
type Rule struct {
	Department models.Department `json:"department"`
	Keywords   []string          `json:"keywords"`
}

// DefaultRules are evaluated in order; the first matching rule wins.
var DefaultRules = []Rule{
	{Department: models.DepartmentFinance, Keywords: []string{"invoice", "ledger"}},
	{Department: models.DepartmentCRM, Keywords: []string{"contract", "agreement"}},
	{Department: models.DepartmentMarketing, Keywords: []string{"campaign"}},
	{Department: models.DepartmentRND, Keywords: []string{"research", "tech"}},
}

// RuleClassifier matches lower-cased text against substring rules.
// It holds no mutable state and is safe for concurrent use.
type RuleClassifier struct {
	rules []Rule
}

// Verify *RuleClassifier satisfies Classifier at compile time.
var _ Classifier = (*RuleClassifier)(nil)

// NewRuleClassifier returns a classifier over rules. Keywords are lower-cased
// once here. A nil rule set falls back to DefaultRules.
func NewRuleClassifier(rules []Rule) *RuleClassifier {
	if rules == nil {
		rules = DefaultRules
	}
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				kws = append(kws, kw)
			}
		}
		normalized[i] = Rule{Department: r.Department, Keywords: kws}
	}
	return &RuleClassifier{rules: normalized}
}

// Classify returns the department of the first matching rule, or General.
func (c *RuleClassifier) Classify(text string) models.Department {
	d, _ := c.Explain(text)
	return d
}

// Explain is Classify plus the keyword that decided it. The keyword is empty
// when nothing matched.
func (c *RuleClassifier) Explain(text string) (models.Department, string) {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Department, kw
			}
		}
	}
	return models.DepartmentGeneral, ""
}

// Rules returns a copy of the rule table in evaluation order.
func (c *RuleClassifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = Rule{Department: r.Department, Keywords: append([]string(nil), r.Keywords...)}
	}
	return out
}

var defaultClassifier = NewRuleClassifier(DefaultRules)

// Classify runs the default rule set.
func Classify(text string) models.Department {
	return defaultClassifier.Classify(text)
}

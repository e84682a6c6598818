package answer

import (
	"strings"
	"sync"
)

// FactRule maps question keywords to the keys of precomputed facts. The
// table is declarative so rules can be tested and extended independently of
// the matching code.
type FactRule struct {
	Keywords []string
	FactKeys []string
}

// DefaultFactRules covers the financial metrics the system precomputes.
var DefaultFactRules = []FactRule{
	{Keywords: []string{"revenue", "sales", "turnover"}, FactKeys: []string{"revenue", "revenue_growth"}},
	{Keywords: []string{"profit", "margin", "earnings", "income"}, FactKeys: []string{"gross_profit_margin", "net_profit_margin"}},
	{Keywords: []string{"ratio", "liquidity", "solvency"}, FactKeys: []string{"current_ratio", "quick_ratio"}},
	{Keywords: []string{"debt", "liabilities", "leverage"}, FactKeys: []string{"debt_to_equity", "total_debt"}},
	{Keywords: []string{"cash", "cashflow"}, FactKeys: []string{"operating_cash_flow", "free_cash_flow"}},
	{Keywords: []string{"return", "roe", "roa"}, FactKeys: []string{"return_on_equity", "return_on_assets"}},
}

// Facts holds precomputed structured values (e.g. financial metrics supplied
// by an external calculator) keyed by name, plus the keyword rules that
// decide when a question should surface them.
type Facts struct {
	mu     sync.RWMutex
	values map[string]string
	rules  []FactRule
}

// NewFacts creates an empty fact set. nil rules fall back to
// DefaultFactRules.
func NewFacts(rules []FactRule) *Facts {
	if rules == nil {
		rules = DefaultFactRules
	}
	return &Facts{values: make(map[string]string), rules: rules}
}

// Set registers or replaces a fact value.
func (f *Facts) Set(key, value string) {
	f.mu.Lock()
	f.values[key] = value
	f.mu.Unlock()
}

// SetAll registers a batch of facts.
func (f *Facts) SetAll(values map[string]string) {
	f.mu.Lock()
	for k, v := range values {
		f.values[k] = v
	}
	f.mu.Unlock()
}

// Match returns an enrichment block for the question, or "" when no keyword
// rule matches a known fact. The lookup is deterministic: rules are evaluated
// in table order and fact keys in rule order.
func (f *Facts) Match(question string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.values) == 0 {
		return ""
	}

	tokens := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(question)) {
		tokens[strings.Trim(t, ".,;:?!")] = true
	}

	var lines []string
	emitted := make(map[string]bool)
	for _, rule := range f.rules {
		if !matchesRule(tokens, rule.Keywords) {
			continue
		}
		for _, key := range rule.FactKeys {
			value, ok := f.values[key]
			if !ok || emitted[key] {
				continue
			}
			emitted[key] = true
			lines = append(lines, "- "+key+": "+value)
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return "Recorded metrics:\n" + strings.Join(lines, "\n")
}

func matchesRule(tokens map[string]bool, keywords []string) bool {
	for _, kw := range keywords {
		if tokens[kw] {
			return true
		}
	}
	return false
}

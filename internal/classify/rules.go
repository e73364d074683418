package classify

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/ripedome/internal/result"
)

// Rule tags a log when Pattern occurs in it.
type Rule struct {
	Pattern  string
	Tag      string
	Severity result.Severity
}

// DefaultRules are the diagnostics the attack generators and monitors are
// known to print.
var DefaultRules = []Rule{
	{"jump buffer is between", "SpecialPayload", result.Info},
	{"Overflow pointer contains terminating char", "TermCharInOverflowPtr", result.Info},
	{"in the middle", "TermCharInPayload", result.Info},
	{"Unknown choice of", "UnknownChoice", result.Severe},
	{"Could not build payload", "BuildPayloadFailed", result.Severe},
	{"find_gadget", "FindGadgetFail", result.Severe},
	{"Unable to allocate heap", "HeapAlloc", result.Severe},
	{"the wrong order", "HeapAllocOrder", result.Severe},
	{"Target address is lower", "Underflow", result.Severe},
	{"AddressSanitizer", "ASAN", result.Severe},
	{"CFI CHECK ERROR", "SideCFI", result.Severe},
	{"-Violation-", "SideStack", result.Severe},
}

type Rules struct {
	rules []Rule
}

func NewRules(rules []Rule) *Rules {
	return &Rules{rules: rules}
}

func Default() *Rules {
	return NewRules(DefaultRules)
}

type ruleEntry struct {
	Pattern  string `yaml:"pattern"`
	Tag      string `yaml:"tag"`
	Severity string `yaml:"severity"`
}

// LoadRules reads extra rules from a YAML list of {pattern, tag, severity}
// and appends them to the defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var entries []ruleEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := append([]Rule(nil), DefaultRules...)
	for i, e := range entries {
		if e.Pattern == "" || e.Tag == "" {
			return nil, fmt.Errorf("rule %d: pattern and tag are required", i)
		}
		sev, err := result.ParseSeverity(e.Severity)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, Rule{Pattern: e.Pattern, Tag: e.Tag, Severity: sev})
	}
	return NewRules(rules), nil
}

func (r *Rules) Len() int {
	return len(r.rules)
}

// Scan applies every rule to log and returns the matching tags.
func (r *Rules) Scan(log string) []result.Tag {
	if log == "" {
		return nil
	}
	var tags []result.Tag
	for _, rule := range r.rules {
		if strings.Contains(log, rule.Pattern) {
			tags = append(tags, result.Tag{Name: rule.Tag, Severity: rule.Severity})
		}
	}
	return tags
}

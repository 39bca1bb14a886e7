// Package waf implements a stateless pattern-matching firewall evaluated
// per request against an ordered rule set.
package waf

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Action is what a matching rule does to the request.
type Action string

const (
	// ActionBlock rejects the request outright.
	ActionBlock Action = "block"
	// ActionLog lets the request pass but records the match.
	ActionLog Action = "log"
	// ActionChallenge lets the request proceed only after a solved captcha.
	ActionChallenge Action = "challenge"
)

// Severity classifies a rule for reporting.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rule is one immutable firewall signature. Either Pattern or MatchFunc is
// set; MatchFunc covers heuristics a single regex cannot express.
type Rule struct {
	ID          string
	Name        string
	Pattern     *regexp.Regexp
	MatchFunc   func(content string) bool
	Action      Action
	Severity    Severity
	Description string
}

// matches tests the rule against the normalized request content.
func (r *Rule) matches(content string) bool {
	if r.Pattern != nil {
		return r.Pattern.MatchString(content)
	}
	if r.MatchFunc != nil {
		return r.MatchFunc(content)
	}
	return false
}

// RequestData is the slice of an HTTP request the firewall inspects.
type RequestData struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Verdict is the inspection outcome. Blocked requests always carry a reason.
type Verdict struct {
	Blocked   bool   `json:"blocked"`
	Challenge bool   `json:"challenge,omitempty"`
	RuleID    string `json:"ruleId,omitempty"`
	RuleName  string `json:"ruleName,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// RuleStats counts the active rules by severity.
type RuleStats struct {
	TotalRules    int `json:"totalRules"`
	CriticalRules int `json:"criticalRules"`
	HighRules     int `json:"highRules"`
	MediumRules   int `json:"mediumRules"`
	LowRules      int `json:"lowRules"`
}

// Service evaluates requests against the ordered rule list, first match
// wins. The hot path only takes a read lock; rule mutation is an
// administrative side channel.
type Service struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewService creates a firewall with the default rule set.
func NewService() *Service {
	return &Service{rules: defaultRules()}
}

// Inspect evaluates a request and returns the verdict of the first matching
// rule, or a clean verdict when nothing matches.
func (s *Service) Inspect(req RequestData) Verdict {
	content := normalize(req)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.rules {
		rule := &s.rules[i]
		if !rule.matches(content) {
			continue
		}
		switch rule.Action {
		case ActionBlock:
			return Verdict{
				Blocked:  true,
				RuleID:   rule.ID,
				RuleName: rule.Name,
				Reason:   fmt.Sprintf("Request blocked by rule %q: %s", rule.Name, rule.Description),
			}
		case ActionChallenge:
			return Verdict{
				Challenge: true,
				RuleID:    rule.ID,
				RuleName:  rule.Name,
				Reason:    fmt.Sprintf("Request flagged by rule %q: %s", rule.Name, rule.Description),
			}
		case ActionLog:
			slog.Warn("WAF rule matched in log mode",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"method", req.Method,
				"path", req.Path,
			)
			return Verdict{RuleID: rule.ID, RuleName: rule.Name}
		}
	}
	return Verdict{}
}

// AddRule appends a rule to the end of the evaluation order. Operators use
// this for tenant-specific signatures.
func (s *Service) AddRule(rule Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if rule.Pattern == nil && rule.MatchFunc == nil {
		return fmt.Errorf("rule %q has neither pattern nor match func", rule.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			return fmt.Errorf("rule %q already exists", rule.ID)
		}
	}
	s.rules = append(s.rules, rule)
	return nil
}

// RemoveRule deletes a rule by id, preserving the order of the rest.
func (s *Service) RemoveRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule %q not found", id)
}

// Stats returns rule counts by severity.
func (s *Service) Stats() RuleStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := RuleStats{TotalRules: len(s.rules)}
	for i := range s.rules {
		switch s.rules[i].Severity {
		case SeverityCritical:
			stats.CriticalRules++
		case SeverityHigh:
			stats.HighRules++
		case SeverityMedium:
			stats.MediumRules++
		case SeverityLow:
			stats.LowRules++
		}
	}
	return stats
}

// normalize builds the lower-cased inspection string from the request parts.
// Header order is made deterministic so the same request always yields the
// same verdict.
func normalize(req RequestData) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.Path)

	if len(req.Headers) > 0 {
		keys := make([]string, 0, len(req.Headers))
		for k := range req.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteByte(':')
			b.WriteString(req.Headers[k])
		}
	}

	b.WriteByte(' ')
	b.WriteString(req.Body)
	return strings.ToLower(b.String())
}

package waf

import (
	"regexp"
	"strings"
	"testing"
)

func inspectBody(t *testing.T, body string) Verdict {
	t.Helper()
	s := NewService()
	return s.Inspect(RequestData{Method: "POST", Path: "/api/ai/query", Body: body})
}

func TestXSSPayloadBlocked(t *testing.T) {
	t.Parallel()

	v := inspectBody(t, `<script>alert(1)</script>`)
	if !v.Blocked {
		t.Fatal("script tag payload should be blocked")
	}
	if v.RuleID != "xss-script" {
		t.Errorf("expected xss-script rule, got %q", v.RuleID)
	}
	if v.Reason == "" {
		t.Error("blocked verdicts must carry a reason")
	}
}

func TestSQLInjectionBlocked(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{
		`' OR 1=1`,
		`1' OR 'a'='a`,
		`UNION SELECT password FROM users`,
		`; DROP TABLE customers; --`,
	} {
		v := inspectBody(t, payload)
		if !v.Blocked {
			t.Errorf("payload %q should be blocked", payload)
		}
	}
}

func TestCleanDutchSentencePasses(t *testing.T) {
	t.Parallel()

	v := inspectBody(t, "Hallo, ik heb een vraag over jullie diensten")
	if v.Blocked || v.Challenge {
		t.Fatalf("clean sentence should pass, got verdict %+v", v)
	}
}

func TestPathTraversalBlocked(t *testing.T) {
	t.Parallel()

	for _, payload := range []string{"../../etc/hosts", "%2e%2e%2fconfig"} {
		if v := inspectBody(t, payload); !v.Blocked {
			t.Errorf("payload %q should be blocked", payload)
		}
	}
}

func TestCommandInjectionMetacharsBlocked(t *testing.T) {
	t.Parallel()

	v := inspectBody(t, "foo; cat /tmp/secrets")
	if !v.Blocked {
		t.Fatal("shell chaining should be blocked")
	}
	if v.RuleID != "cmd-meta" {
		t.Errorf("expected cmd-meta rule, got %q", v.RuleID)
	}
}

func TestBinaryNamesOnlyChallenge(t *testing.T) {
	t.Parallel()

	v := inspectBody(t, "please run chmod 777 on it")
	if v.Blocked {
		t.Fatal("binary names without metacharacters should not block")
	}
	if !v.Challenge {
		t.Error("binary names should escalate to a challenge")
	}
}

func TestSSRFLiteralChallenges(t *testing.T) {
	t.Parallel()

	v := inspectBody(t, "fetch http://169.254.169.254/latest/meta-data")
	if v.Blocked {
		t.Fatal("SSRF literal should challenge, not block")
	}
	if !v.Challenge {
		t.Error("expected challenge verdict for link-local address")
	}
}

func TestOversizedPayloadChallenges(t *testing.T) {
	t.Parallel()

	v := inspectBody(t, strings.Repeat("a", 10100))
	if !v.Challenge {
		t.Error("oversized payload should challenge")
	}
	if v.RuleID != "oversized-payload" {
		t.Errorf("expected oversized-payload rule, got %q", v.RuleID)
	}
}

func TestBinaryContentChallenges(t *testing.T) {
	t.Parallel()

	v := inspectBody(t, "hello\x00world")
	if !v.Challenge {
		t.Error("control bytes should challenge")
	}
}

func TestInspectionIsDeterministic(t *testing.T) {
	t.Parallel()

	s := NewService()
	req := RequestData{
		Method: "POST",
		Path:   "/api/ai/query",
		Headers: map[string]string{
			"User-Agent":   "Mozilla/5.0",
			"Content-Type": "application/json",
			"X-Tenant-ID":  "demo-tenant",
		},
		Body: "gewone vraag zonder aanval",
	}

	first := s.Inspect(req)
	for i := 0; i < 20; i++ {
		if got := s.Inspect(req); got != first {
			t.Fatalf("verdict changed between evaluations: %+v vs %+v", first, got)
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	t.Parallel()

	// Payload matching both an XSS and an SSRF rule; the XSS rule is earlier
	// in the order and must decide the verdict.
	v := inspectBody(t, `<script src="http://127.0.0.1/x.js"></script>`)
	if !v.Blocked {
		t.Fatal("expected block")
	}
	if v.RuleID != "xss-script" {
		t.Errorf("expected the earlier xss-script rule to win, got %q", v.RuleID)
	}
}

func TestAddAndRemoveRule(t *testing.T) {
	t.Parallel()

	s := NewService()
	rule := Rule{
		ID:          "tenant-blockword",
		Name:        "Tenant blockword",
		Pattern:     regexp.MustCompile(`verbodenwoord`),
		Action:      ActionBlock,
		Severity:    SeverityLow,
		Description: "tenant-specific blocklist entry",
	}
	if err := s.AddRule(rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}
	if err := s.AddRule(rule); err == nil {
		t.Error("duplicate rule id should be rejected")
	}

	v := s.Inspect(RequestData{Method: "POST", Path: "/x", Body: "dit bevat verbodenwoord"})
	if !v.Blocked {
		t.Error("added rule should block")
	}

	if err := s.RemoveRule("tenant-blockword"); err != nil {
		t.Fatalf("RemoveRule failed: %v", err)
	}
	v = s.Inspect(RequestData{Method: "POST", Path: "/x", Body: "dit bevat verbodenwoord"})
	if v.Blocked {
		t.Error("removed rule should no longer block")
	}
	if err := s.RemoveRule("tenant-blockword"); err == nil {
		t.Error("removing a missing rule should error")
	}
}

func TestStatsCountsBySeverity(t *testing.T) {
	t.Parallel()

	s := NewService()
	stats := s.Stats()
	if stats.TotalRules == 0 {
		t.Fatal("default rule set should not be empty")
	}
	sum := stats.CriticalRules + stats.HighRules + stats.MediumRules + stats.LowRules
	if sum != stats.TotalRules {
		t.Errorf("severity counts (%d) should sum to total (%d)", sum, stats.TotalRules)
	}
}

package waf

import "regexp"

// defaultRules is the ordered startup rule set. Evaluation is first match
// wins, so the more severe signatures sit in front of the heuristics.
// Patterns run against the lower-cased concatenation of
// method+path+headers+body.
func defaultRules() []Rule {
	return []Rule{
		{
			ID:          "sql-union",
			Name:        "SQL keyword injection",
			Pattern:     regexp.MustCompile(`union[\s(]+(all\s+)?select|select\s+.+\s+from\s|insert\s+into\s|delete\s+from\s|drop\s+table\s|update\s+\w+\s+set\s`),
			Action:      ActionBlock,
			Severity:    SeverityCritical,
			Description: "SQL query keywords combined with table references",
		},
		{
			ID:          "sql-tautology",
			Name:        "SQL quote tautology",
			Pattern:     regexp.MustCompile(`'\s*(or|and)\s+[\w']+\s*=|'\s*(or|and)\s+'`),
			Action:      ActionBlock,
			Severity:    SeverityHigh,
			Description: "Quote followed by an or/and comparison",
		},
		{
			ID:          "sql-comment",
			Name:        "SQL comment token",
			Pattern:     regexp.MustCompile(`--\s|;--|/\*.*\*/|'\s*--`),
			Action:      ActionBlock,
			Severity:    SeverityHigh,
			Description: "Inline SQL comment sequences used to truncate queries",
		},
		{
			ID:          "xss-script",
			Name:        "Script tag",
			Pattern:     regexp.MustCompile(`<\s*script[^>]*>|<\s*/\s*script\s*>`),
			Action:      ActionBlock,
			Severity:    SeverityCritical,
			Description: "Inline script element",
		},
		{
			ID:          "xss-handler",
			Name:        "Event handler attribute",
			Pattern:     regexp.MustCompile(`\bon(error|load|click|mouseover|mouseout|focus|blur|submit)\s*=`),
			Action:      ActionBlock,
			Severity:    SeverityHigh,
			Description: "HTML event handler attribute",
		},
		{
			ID:          "xss-scheme",
			Name:        "javascript: scheme",
			Pattern:     regexp.MustCompile(`javascript\s*:`),
			Action:      ActionBlock,
			Severity:    SeverityHigh,
			Description: "javascript: URL scheme",
		},
		{
			ID:          "path-traversal",
			Name:        "Path traversal",
			Pattern:     regexp.MustCompile(`\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f|%252e%252e`),
			Action:      ActionBlock,
			Severity:    SeverityHigh,
			Description: "Directory traversal sequences, raw or URL-encoded",
		},
		{
			ID:          "cmd-meta",
			Name:        "Shell metacharacters",
			Pattern:     regexp.MustCompile("\\$\\(|`|&&|\\|\\||[|;&]\\s*(cat|ls|rm|nc|bash|sh|id|whoami)\\b"),
			Action:      ActionBlock,
			Severity:    SeverityCritical,
			Description: "Shell command substitution or chaining",
		},
		{
			ID:          "cmd-binaries",
			Name:        "System binary names",
			Pattern:     regexp.MustCompile(`/bin/(ba)?sh|/usr/bin/\w+|\b(chmod|chown|wget|nmap)\s`),
			Action:      ActionChallenge,
			Severity:    SeverityMedium,
			Description: "References to system binaries without metacharacters",
		},
		{
			ID:          "file-inclusion",
			Name:        "File inclusion",
			Pattern:     regexp.MustCompile(`etc/passwd|etc/shadow|boot\.ini|proc/self|php://|file://|expect://|data://`),
			Action:      ActionBlock,
			Severity:    SeverityHigh,
			Description: "Local or remote file inclusion targets",
		},
		{
			ID:          "ldap-nosql",
			Name:        "LDAP/NoSQL operators",
			Pattern:     regexp.MustCompile(`\$where\b|\$ne\b|\$gt\b|\$lt\b|\$regex\b|\(\s*\|\s*\(|\)\s*\(\s*\|`),
			Action:      ActionBlock,
			Severity:    SeverityHigh,
			Description: "MongoDB query operators or LDAP filter injection",
		},
		{
			ID:          "ssrf-private",
			Name:        "Private address literal",
			Pattern:     regexp.MustCompile(`\b(127\.0\.0\.1|0\.0\.0\.0|localhost|169\.254\.\d{1,3}\.\d{1,3}|10\.\d{1,3}\.\d{1,3}\.\d{1,3}|192\.168\.\d{1,3}\.\d{1,3}|172\.(1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3})\b`),
			Action:      ActionChallenge,
			Severity:    SeverityMedium,
			Description: "Loopback or private network literals in content",
		},
		{
			ID:          "oversized-payload",
			Name:        "Oversized payload",
			MatchFunc:   func(content string) bool { return len(content) > maxInspectedPayload },
			Action:      ActionChallenge,
			Severity:    SeverityLow,
			Description: "Payload larger than the inspection budget",
		},
		{
			ID:          "binary-content",
			Name:        "Non-printable content",
			MatchFunc:   containsBinary,
			Action:      ActionChallenge,
			Severity:    SeverityMedium,
			Description: "Control bytes inside a text payload",
		},
	}
}

// maxInspectedPayload is the size above which a payload is treated as
// suspicious rather than inspected further.
const maxInspectedPayload = 10000

// containsBinary reports whether the content holds control bytes other than
// ordinary whitespace.
func containsBinary(content string) bool {
	for i := 0; i < len(content); i++ {
		b := content[i]
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			return true
		}
		if b == 0x7f {
			return true
		}
	}
	return false
}

package redact

import "regexp"

// Pattern is one kind of credential recognized in text.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// DefaultPatterns covers provider API keys, VCS and chat tokens, and
// private key headers.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{"aws-access-key-id", regexp.MustCompile(`(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`)},
		// Longer sk- forms first so each key is replaced whole.
		{"anthropic-api-key", regexp.MustCompile(`sk-ant-api03-[a-zA-Z0-9_\-]{20,}`)},
		{"openai-project-key", regexp.MustCompile(`sk-proj-[a-zA-Z0-9_\-]{32,}`)},
		{"openai-api-key", regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`)},
		{"google-api-key", regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`)},
		{"github-token", regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`)},
		{"slack-token", regexp.MustCompile(`xox[bp]-[0-9]{10,12}-[0-9]{10,12}(-[0-9]{10,12})?-[a-zA-Z0-9]{24,32}`)},
		{"private-key", regexp.MustCompile(`-----BEGIN (RSA |OPENSSH |EC |PGP |DSA )?PRIVATE KEY( BLOCK)?-----`)},
		{"bearer-token", regexp.MustCompile(`(?i)\bbearer [a-z0-9._\-]{20,}`)},
	}
}

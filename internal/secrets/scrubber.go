package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
	"go.uber.org/zap"
)

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Line   int
	Secret string
}

// DetectFunc scans content and returns its findings.
type DetectFunc func(content string) ([]Finding, error)

// Rule is a local detection rule applied after gitleaks.
type Rule struct {
	ID      string
	Pattern *regexp.Regexp
	// Group selects the capture group holding the secret; 0 redacts the whole match.
	Group int
}

// Result is the outcome of one Scrub call.
type Result struct {
	Content  string
	Findings int
	ByRule   map[string]int
}

// Scrubber redacts secrets. It is safe for concurrent use.
type Scrubber struct {
	detect DetectFunc
	rules  []Rule
	logger *zap.Logger
}

// Option configures a Scrubber.
type Option func(*Scrubber)

// WithDetector replaces the gitleaks detector.
func WithDetector(fn DetectFunc) Option {
	return func(s *Scrubber) { s.detect = fn }
}

// WithRules replaces the local rules.
func WithRules(rules []Rule) Option {
	return func(s *Scrubber) { s.rules = rules }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scrubber) {
		if l != nil {
			s.logger = l
		}
	}
}

// DefaultRules catches what the gitleaks defaults leave to entropy checks.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:      "private-key-block",
			Pattern: regexp.MustCompile(`-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----[\s\S]*?-----END (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`),
		},
		{
			ID:      "password-assignment",
			Pattern: regexp.MustCompile(`(?i)(?:password|passwd|pwd|secret)\s*[:=]\s*["']([^"'\s]{8,})["']`),
			Group:   1,
		},
	}
}

// New creates a Scrubber backed by the gitleaks default configuration.
func New(opts ...Option) *Scrubber {
	s := &Scrubber{
		detect: GitleaksDetect,
		rules:  DefaultRules(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GitleaksDetect runs the gitleaks default rules over content. A fresh
// detector is built per call because gitleaks detectors accumulate findings.
func GitleaksDetect(content string) ([]Finding, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("creating gitleaks detector: %w", err)
	}

	raw := d.DetectString(content)
	out := make([]Finding, 0, len(raw))
	for _, f := range raw {
		out = append(out, Finding{RuleID: f.RuleID, Line: f.StartLine, Secret: f.Secret})
	}
	return out, nil
}

// Scrub returns content with every detected secret replaced. If the detector
// fails the local rules still apply and the error is logged.
func (s *Scrubber) Scrub(content string) Result {
	res := Result{Content: content, ByRule: map[string]int{}}
	if content == "" {
		return res
	}

	var findings []Finding
	if s.detect != nil {
		found, err := s.detect(content)
		if err != nil {
			s.logger.Warn("secret detection failed", zap.Error(err))
		}
		findings = append(findings, found...)
	}
	for _, r := range s.rules {
		for _, m := range r.Pattern.FindAllStringSubmatch(content, -1) {
			if r.Group < len(m) && m[r.Group] != "" {
				findings = append(findings, Finding{RuleID: r.ID, Secret: m[r.Group]})
			}
		}
	}
	if len(findings) == 0 {
		return res
	}

	// Longest first so a secret containing another is replaced whole.
	sort.SliceStable(findings, func(i, j int) bool {
		return len(findings[i].Secret) > len(findings[j].Secret)
	})

	scrubbed := content
	for _, f := range findings {
		if f.Secret == "" || !strings.Contains(scrubbed, f.Secret) {
			continue
		}
		scrubbed = strings.ReplaceAll(scrubbed, f.Secret, "[REDACTED:"+f.RuleID+"]")
		res.Findings++
		res.ByRule[f.RuleID]++
	}
	res.Content = scrubbed

	if res.Findings > 0 {
		s.logger.Info("secrets redacted", zap.Int("findings", res.Findings), zap.Any("rules", res.ByRule))
	}
	return res
}

// ScrubString is Scrub returning only the redacted text.
func (s *Scrubber) ScrubString(content string) string {
	return s.Scrub(content).Content
}

// ScrubAll scrubs each element of items.
func (s *Scrubber) ScrubAll(items []string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = s.ScrubString(it)
	}
	return out
}

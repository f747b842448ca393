// Package secrets redacts credentials from source text before it leaves the
// process.
//
// Code snippets and file listings are sent to the generative-text service for
// explanations and repository descriptions. The Scrubber runs the gitleaks
// default rule set over that text, plus a few local rules for private-key
// blocks and quoted password assignments, and replaces each match with a
// [REDACTED:rule-id] marker so the model still sees that a value was there.
package secrets

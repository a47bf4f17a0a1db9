package loop

import (
	"context"
	"regexp"
	"strings"
)

// minCandidateLen below this is treated as empty/tiny per spec.md §4.F's
// fast-path.
const minCandidateLen = 8

var placeholderErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(error|failed|exception)\s*:`),
	regexp.MustCompile(`(?i)\btodo\b.*\bimplement\b`),
	regexp.MustCompile(`(?i)^(i (can't|cannot|am unable to))\b`),
	regexp.MustCompile(`(?i)^\[object object\]$`),
}

var urlPattern = regexp.MustCompile(`https?://[^\s)\]]+`)
var evidenceTagPattern = regexp.MustCompile(`\[evidence:\s*([^\]]+)\]`)

// ExtractEvidence returns every URL and "[evidence: ...]" token found in
// text, per spec.md §4.F's verifier contract.
func ExtractEvidence(text string) []string {
	var refs []string
	refs = append(refs, urlPattern.FindAllString(text, -1)...)
	for _, m := range evidenceTagPattern.FindAllStringSubmatch(text, -1) {
		refs = append(refs, strings.TrimSpace(m[1]))
	}
	return refs
}

// LLMVerify is the shape a provider-backed verifier call implements: given a
// candidate, it returns raw (possibly unparsable) judgement text.
type LLMVerify func(ctx context.Context, candidate string) (string, error)

// ParseVerdict decodes a verifier's free-text judgement into a Verdict.
// Callers supply parsed fields when the underlying call returns structured
// JSON; when parsing fails the caller should construct a fail-open Verdict
// directly rather than calling this — this parser only handles the
// plain-text conventions (PASS/MINOR_FIX/CRITICAL_FAIL/ABSTAIN on the first
// line) used when the model replies informally.
func ParseVerdict(raw string) (Verdict, bool) {
	line := strings.ToUpper(strings.TrimSpace(firstLine(raw)))
	switch {
	case strings.HasPrefix(line, "PASS"):
		return Verdict{Outcome: OutcomePass, EvidenceRefs: ExtractEvidence(raw)}, true
	case strings.HasPrefix(line, "MINOR_FIX") || strings.HasPrefix(line, "MINOR FIX"):
		return Verdict{Outcome: OutcomeMinorFix, Findings: []string{raw}, EvidenceRefs: ExtractEvidence(raw)}, true
	case strings.HasPrefix(line, "CRITICAL_FAIL") || strings.HasPrefix(line, "CRITICAL FAIL"):
		return Verdict{Outcome: OutcomeCriticalFail, Findings: []string{raw}, EvidenceRefs: ExtractEvidence(raw)}, true
	case strings.HasPrefix(line, "ABSTAIN"):
		return Verdict{Outcome: OutcomeAbstain, EvidenceRefs: ExtractEvidence(raw)}, true
	default:
		return Verdict{}, false
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// FastPathFail reports whether the candidate is obviously bad without
// invoking the LLM verifier: empty/tiny or a recognizable placeholder error
// string, both of which are critical_fail per spec.md §4.F.
func FastPathFail(candidate string) (Verdict, bool) {
	trimmed := strings.TrimSpace(candidate)
	if len(trimmed) < minCandidateLen {
		return Verdict{Outcome: OutcomeCriticalFail, Findings: []string{"candidate output is empty or too short to verify"}}, true
	}
	for _, p := range placeholderErrorPatterns {
		if p.MatchString(trimmed) {
			return Verdict{Outcome: OutcomeCriticalFail, Findings: []string{"candidate output looks like a placeholder/error string"}}, true
		}
	}
	return Verdict{}, false
}

// Verify wraps an LLM-backed verifier call with the fast-paths and fail-open
// policy from spec.md §4.F: on fast-path match, verifier exception, or
// unparsable output, it returns a deterministic Verdict without ever
// propagating an error to the loop.
func Verify(ctx context.Context, candidate string, call LLMVerify) Verdict {
	if v, ok := FastPathFail(candidate); ok {
		return v
	}

	raw, err := call(ctx, candidate)
	if err != nil {
		return Verdict{Outcome: OutcomePass, Findings: []string{"verifier call failed, failing open: " + err.Error()}}
	}

	v, ok := ParseVerdict(raw)
	if !ok {
		return Verdict{Outcome: OutcomePass, Findings: []string{"verifier output unparsable, failing open"}}
	}
	return v
}

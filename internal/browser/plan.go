// Package browser is the browser automation subsystem from spec.md §4.I:
// a step planner, provider/session selection between a direct CDP attach
// and an external automation broker, a retrying execution loop with
// human-checkpoint detection, and trace replay.
package browser

import (
	"fmt"
	"regexp"
	"strings"
)

// StepKind enumerates the typed plan steps spec.md §4.I names.
type StepKind string

const (
	StepNavigate    StepKind = "navigate"
	StepClick       StepKind = "click"
	StepType        StepKind = "type"
	StepFill        StepKind = "fill"
	StepWaitFor     StepKind = "wait_for"
	StepPress       StepKind = "press"
	StepScreenshot  StepKind = "screenshot"
	StepExtractText StepKind = "extract_text"
)

// Step is one planned browser action.
type Step struct {
	Kind     StepKind
	Selector string
	Value    string
	URL      string
	Key      string
}

var (
	urlPattern      = regexp.MustCompile(`https?://[^\s"']+`)
	navigatePattern = regexp.MustCompile(`(?i)\bnavigate(?:\s+to)?\s+(https?://\S+)`)
	clickPattern    = regexp.MustCompile(`(?i)\bclick(?:\s+on)?\s+(.+?)(?:[.\n]|$)`)
	typePattern     = regexp.MustCompile(`(?i)\btype\s+"([^"]+)"\s+(?:into|in)\s+(.+?)(?:[.\n]|$)`)
	fillPattern     = regexp.MustCompile(`(?i)\bfill\s+(.+?)\s+with\s+"([^"]+)"`)
	waitForPattern  = regexp.MustCompile(`(?i)\bwait\s+for\s+(.+?)(?:[.\n]|$)`)
	pressPattern    = regexp.MustCompile(`(?i)\bpress\s+(\w+)`)
	extractPattern  = regexp.MustCompile(`(?i)\bextract(?:\s+text)?\s+(?:from\s+)?(.+?)(?:[.\n]|$)`)
)

// NormalizeSelector applies spec.md §4.I's selector normalization rules.
func NormalizeSelector(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return s
	}
	if strings.HasPrefix(s, "#") || strings.HasPrefix(s, ".") || strings.HasPrefix(s, "[") {
		return s
	}
	if strings.HasPrefix(s, "text=") || strings.HasPrefix(s, "css=") || strings.HasPrefix(s, "xpath=") {
		return s
	}
	if strings.ContainsAny(s, " \t") {
		return "text=" + s
	}
	return s
}

// Plan parses objective and candidateOutput text into an ordered list of
// browser steps, falling back to a bare navigate+screenshot when no
// specific action verb parses but a URL is present.
func Plan(objective, candidateOutput string) []Step {
	text := objective + "\n" + candidateOutput
	var steps []Step

	if m := navigatePattern.FindStringSubmatch(text); m != nil {
		steps = append(steps, Step{Kind: StepNavigate, URL: m[1]})
	}
	for _, m := range fillPattern.FindAllStringSubmatch(text, -1) {
		steps = append(steps, Step{Kind: StepFill, Selector: NormalizeSelector(m[1]), Value: m[2]})
	}
	for _, m := range typePattern.FindAllStringSubmatch(text, -1) {
		steps = append(steps, Step{Kind: StepType, Value: m[1], Selector: NormalizeSelector(m[2])})
	}
	for _, m := range clickPattern.FindAllStringSubmatch(text, -1) {
		steps = append(steps, Step{Kind: StepClick, Selector: NormalizeSelector(m[1])})
	}
	for _, m := range waitForPattern.FindAllStringSubmatch(text, -1) {
		steps = append(steps, Step{Kind: StepWaitFor, Selector: NormalizeSelector(m[1])})
	}
	for _, m := range pressPattern.FindAllStringSubmatch(text, -1) {
		steps = append(steps, Step{Kind: StepPress, Key: m[1]})
	}
	for _, m := range extractPattern.FindAllStringSubmatch(text, -1) {
		steps = append(steps, Step{Kind: StepExtractText, Selector: NormalizeSelector(m[1])})
	}
	if strings.Contains(strings.ToLower(text), "screenshot") {
		steps = append(steps, Step{Kind: StepScreenshot})
	}

	if len(steps) == 0 {
		if u := urlPattern.FindString(text); u != "" {
			return []Step{{Kind: StepNavigate, URL: u}, {Kind: StepScreenshot}}
		}
	}
	return steps
}

// IsPaymentRelated reports whether a step touches payment surfaces per
// spec.md §4.I's hard-stop-payments rule.
var paymentPattern = regexp.MustCompile(`(?i)\b(pay|checkout|purchase|wallet|transfer|card|cvv)\b`)

func (s Step) IsPaymentRelated() bool {
	return paymentPattern.MatchString(s.Selector) || paymentPattern.MatchString(s.Value) || paymentPattern.MatchString(s.URL)
}

// String renders a step for audit/trace logging.
func (s Step) String() string {
	switch s.Kind {
	case StepNavigate:
		return fmt.Sprintf("navigate(%s)", s.URL)
	case StepClick:
		return fmt.Sprintf("click(%s)", s.Selector)
	case StepType:
		return fmt.Sprintf("type(%q, %s)", s.Value, s.Selector)
	case StepFill:
		return fmt.Sprintf("fill(%s, %q)", s.Selector, s.Value)
	case StepWaitFor:
		return fmt.Sprintf("wait_for(%s)", s.Selector)
	case StepPress:
		return fmt.Sprintf("press(%s)", s.Key)
	case StepExtractText:
		return fmt.Sprintf("extract_text(%s)", s.Selector)
	default:
		return string(s.Kind)
	}
}

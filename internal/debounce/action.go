package debounce

// Action is what a matching rule does to the URL.
type Action int

const (
	NoAction Action = iota
	RedirectToParam
	Base64DecodeAndRedirectToParam
	RemoveParam
)

// ParseAction maps a configuration action string to an Action. Unknown
// strings map to NoAction so that newer rule files load on older engines.
func ParseAction(s string) Action {
	switch s {
	case "redirect":
		return RedirectToParam
	case "base64,redirect":
		return Base64DecodeAndRedirectToParam
	case "remove":
		return RemoveParam
	}
	return NoAction
}

func (a Action) String() string {
	switch a {
	case RedirectToParam:
		return "redirect"
	case Base64DecodeAndRedirectToParam:
		return "base64,redirect"
	case RemoveParam:
		return "remove"
	}
	return "none"
}

func (a Action) isRedirect() bool {
	return a == RedirectToParam || a == Base64DecodeAndRedirectToParam
}

// Outcome explains why a rule did or did not rewrite a URL.
type Outcome int

const (
	// OutcomeNotMatched: the URL matched no include pattern.
	OutcomeNotMatched Outcome = iota
	// OutcomeExcluded: the URL matched an exclude pattern.
	OutcomeExcluded
	// OutcomeSkipped: the rule matched but its action produced nothing
	// (missing parameter, undecodable value, same-site target, unknown action).
	OutcomeSkipped
	OutcomeApplied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExcluded:
		return "excluded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeApplied:
		return "applied"
	}
	return "not_matched"
}

package hypothesis

import (
	"regexp"
	"strings"
)

// Mode selects the problem-match prompt family.
type Mode int

const (
	ModeStandard Mode = iota
	ModeContext
	ModeTransition
)

func (m Mode) String() string {
	switch m {
	case ModeContext:
		return "context"
	case ModeTransition:
		return "transition"
	}
	return "standard"
}

// ContextSignal describes a setting the problem must occur in.
type ContextSignal struct {
	Present bool
	Setting string // e.g. "at the gym"
	Problem string // statement with the setting removed
}

// TransitionSignal describes a state change the audience wants to make.
type TransitionSignal struct {
	Present bool
	Origin  string // e.g. "employed people"
	Target  string // e.g. "start a business"
}

// Profile is the composed output of all detectors.
type Profile struct {
	Context    ContextSignal
	Transition TransitionSignal
}

// Mode picks the most specific classification mode the profile supports.
func (p Profile) Mode() Mode {
	if p.Transition.Present {
		return ModeTransition
	}
	if p.Context.Present {
		return ModeContext
	}
	return ModeStandard
}

// Detector inspects a hypothesis and fills its part of the profile.
type Detector func(h Hypothesis, p *Profile)

// Detectors run in order by Analyze. Append to add a heuristic.
var Detectors = []Detector{
	func(h Hypothesis, p *Profile) { p.Context = DetectContext(h) },
	func(h Hypothesis, p *Profile) { p.Transition = DetectTransition(h) },
}

// Analyze runs every registered detector against h.
func Analyze(h Hypothesis) Profile {
	var p Profile
	for _, d := range Detectors {
		d(h, &p)
	}
	return p
}

var settingPattern = regexp.MustCompile(
	`(?i)\b(at (?:the )?(?:gym|office|work|school|university|college|airport|hospital|beach|park|pool|library|grocery store|supermarket|restaurant|bar|home)` +
		`|in (?:the )?(?:gym|office|kitchen|car|classroom|workplace|warehouse|garden|bathroom|bedroom|field)` +
		`|while (?:driving|traveling|travelling|commuting|working out|exercising|cooking|running|studying|camping)` +
		`|during (?:workouts?|meetings?|flights?|commutes?|shifts?|exams?|pregnancy))\b`,
)

// DetectContext finds a named setting or environment in the hypothesis.
func DetectContext(h Hypothesis) ContextSignal {
	text := h.Statement()
	loc := settingPattern.FindStringIndex(text)
	if loc == nil {
		return ContextSignal{}
	}
	setting := strings.ToLower(text[loc[0]:loc[1]])
	problem := strings.Join(strings.Fields(text[:loc[0]]+" "+text[loc[1]:]), " ")
	return ContextSignal{Present: true, Setting: setting, Problem: problem}
}

var (
	transitionVerbPattern = regexp.MustCompile(
		`(?i)\b(?:want(?:ing|s)? to|looking to|trying to|plan(?:ning)? to|hop(?:e|ing) to|dream(?:ing)? of|thinking (?:about|of))\s+` +
			`((?:start|launch|build|open|become|switch(?: to)?|transition(?: to| into)?|move(?: into| to)?|quit|leave|go)\b.*)$`,
	)
	employedPattern = regexp.MustCompile(
		`(?i)\b(employed|employees?|full[- ]time|9[- ]to[- ]5|nine[- ]to[- ]five|day jobs?|corporate|office workers?|salaried|working (?:people|professionals|adults)|people with jobs)\b`,
	)
)

// DetectTransition finds "people in state A wanting to reach state B" phrasing.
// Both a transition verb and employed-audience language are required.
func DetectTransition(h Hypothesis) TransitionSignal {
	text := h.Statement()
	if h.Audience != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(h.Audience)) {
		text = h.Audience + " " + text
	}
	m := transitionVerbPattern.FindStringSubmatchIndex(text)
	if m == nil || !employedPattern.MatchString(text[:m[0]]+" "+h.Audience) {
		return TransitionSignal{}
	}
	origin := strings.TrimSpace(text[:m[0]])
	if origin == "" {
		origin = strings.TrimSpace(h.Audience)
	}
	return TransitionSignal{
		Present: true,
		Origin:  origin,
		Target:  strings.TrimSpace(text[m[2]:m[3]]),
	}
}

// Package markup parses raw LLM responses into ordered action lists.
//
// A response mixes natural prose with three markup families:
//
//	[cmd:go north]                 world commands, {cmd:…} also accepted
//	[goal:deliver package player]  goal directives, brackets optional
//	[plan:find alice|give package] plan and step directives
//
// [Parse] extracts every markup, sorts by position, removes overlaps keeping
// the earliest, then walks the response left to right emitting speech runs
// between markups and the markups' actions. Prose inside *…* or […] becomes
// an emote unless it is quoted, in which case it stays speech. At most three
// world-facing actions (speech, emotes, commands) survive per response; goal,
// plan and step directives are motivation metadata and are not capped.
package markup

import (
	"regexp"
	"sort"
	"strings"
)

// Kind identifies what an [Action] asks for.
type Kind string

const (
	KindSay     Kind = "say"
	KindEmote   Kind = "emote"
	KindCommand Kind = "cmd"
	KindGoal    Kind = "goal"
	KindPlan    Kind = "plan"
	KindStep    Kind = "step"
)

// GoalOp is the operation a goal directive requests.
type GoalOp string

const (
	// GoalSet upserts a goal of the named type.
	GoalSet GoalOp = "set"
	// GoalClear clears the named goal type, or every non-survival goal
	// when no type is given. done, complete and none parse to GoalClear.
	GoalClear GoalOp = "clear"
)

// StepOp is the operation a step directive requests.
type StepOp string

const (
	// StepDone marks the current step complete and advances.
	StepDone StepOp = "done"
	// StepSkip advances without marking completion.
	StepSkip StepOp = "skip"
)

// Action is one parsed instruction, in response order. The populated fields
// depend on Kind: Text for say/emote, Verb+Args for cmd, GoalOp/GoalType/
// Target for goal, PlanGoalType+Steps for plan, StepOp+StepGoalType for step.
type Action struct {
	Kind Kind

	Text string

	Verb string
	Args string

	GoalOp   GoalOp
	GoalType string
	Target   string

	PlanGoalType string
	Steps        []string

	StepOp       StepOp
	StepGoalType string
}

const (
	// maxActions caps world-facing emissions per response.
	maxActions = 3
)

// forbiddenVerbs are never executed and leave no feedback or trace, so the
// model is not trained to retry them. say/emote/me/' are listed because
// speech must come from natural text, not markup.
var forbiddenVerbs = map[string]struct{}{
	"quit": {}, "logout": {}, "exit": {}, "password": {}, "save": {},
	"delete": {}, "suicide": {}, "patch": {}, "stat": {}, "destruct": {},
	"reset": {}, "goto": {}, "pwd": {}, "ls": {}, "cd": {}, "cat": {},
	"more": {}, "edit": {}, "ledit": {}, "perf": {},
	"say": {}, "emote": {}, "me": {}, "'": {},
}

var (
	bracketRe  = regexp.MustCompile(`\[[^\]]*\]|\{[^}]*\}`)
	bareGoalRe = regexp.MustCompile(`(?i)\bgoal:[ \t]*([^\[\]{}\r\n]*)`)
)

// span is one markup occurrence in the raw response. A span without an
// action still consumes its text (empty, malformed and forbidden markups
// vanish from the output).
type span struct {
	start, end int
	action     Action
	hasAction  bool
}

// Parse extracts the ordered action list from a raw model response.
// It never fails; unusable input yields an empty list.
func Parse(raw string) []Action {
	spans := collectSpans(raw)

	var out []Action
	worldActions := 0
	emit := func(a Action) {
		switch a.Kind {
		case KindSay, KindEmote, KindCommand:
			if worldActions >= maxActions {
				return
			}
			worldActions++
		}
		out = append(out, a)
	}

	pos := 0
	for _, sp := range spans {
		for _, a := range parseRun(raw[pos:sp.start]) {
			emit(a)
		}
		if sp.hasAction {
			emit(sp.action)
		}
		pos = sp.end
	}
	for _, a := range parseRun(raw[pos:]) {
		emit(a)
	}
	return out
}

// collectSpans finds every markup occurrence, sorted by position with
// overlaps removed keeping the earliest.
func collectSpans(raw string) []span {
	var spans []span

	for _, idx := range bracketRe.FindAllStringIndex(raw, -1) {
		body := raw[idx[0]+1 : idx[1]-1]
		family, rest, ok := splitFamily(body)
		if !ok {
			continue // not a markup; stays in the speech run
		}
		sp := span{start: idx[0], end: idx[1]}
		sp.action, sp.hasAction = parseBody(family, rest)
		spans = append(spans, sp)
	}

	for _, m := range bareGoalRe.FindAllStringSubmatchIndex(raw, -1) {
		sp := span{start: m[0], end: m[1]}
		body := strings.TrimRight(raw[m[2]:m[3]], " .!?,;")
		sp.action, sp.hasAction = parseGoal(body)
		spans = append(spans, sp)
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	kept := spans[:0]
	lastEnd := -1
	for _, sp := range spans {
		if sp.start < lastEnd {
			continue
		}
		kept = append(kept, sp)
		lastEnd = sp.end
	}
	return kept
}

// splitFamily splits "cmd:go north" into its family keyword and body.
// ok is false when the content is not one of the markup families.
func splitFamily(body string) (family, rest string, ok bool) {
	i := strings.Index(body, ":")
	if i < 0 {
		return "", "", false
	}
	family = strings.ToLower(strings.TrimSpace(body[:i]))
	switch family {
	case "cmd", "goal", "plan", "step":
		return family, body[i+1:], true
	}
	return "", "", false
}

func parseBody(family, body string) (Action, bool) {
	switch family {
	case "cmd":
		return parseCmd(body)
	case "goal":
		return parseGoal(body)
	case "plan":
		return parsePlan(body)
	case "step":
		return parseStep(body)
	}
	return Action{}, false
}

func parseCmd(body string) (Action, bool) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return Action{}, false
	}
	verb := strings.ToLower(fields[0])
	if _, bad := forbiddenVerbs[verb]; bad || strings.HasPrefix(verb, "'") {
		return Action{}, false
	}
	return Action{
		Kind: KindCommand,
		Verb: verb,
		Args: strings.Join(fields[1:], " "),
	}, true
}

func parseGoal(body string) (Action, bool) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return Action{}, false
	}
	op := strings.ToLower(fields[0])
	switch op {
	case "clear", "done", "complete", "none":
		a := Action{Kind: KindGoal, GoalOp: GoalClear}
		if len(fields) > 1 {
			a.GoalType = strings.ToLower(fields[1])
		}
		return a, true
	}
	return Action{
		Kind:     KindGoal,
		GoalOp:   GoalSet,
		GoalType: op,
		Target:   strings.Join(fields[1:], " "),
	}, true
}

// parsePlan handles the optional goal-type prefix: the segment before the
// first colon is a prefix only when it contains no step delimiter |.
func parsePlan(body string) (Action, bool) {
	goalType := ""
	steps := body
	if i := strings.Index(body, ":"); i >= 0 && !strings.Contains(body[:i], "|") {
		goalType = strings.ToLower(strings.TrimSpace(body[:i]))
		steps = body[i+1:]
	}
	var list []string
	for _, s := range strings.Split(steps, "|") {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		return Action{}, false
	}
	return Action{Kind: KindPlan, PlanGoalType: goalType, Steps: list}, true
}

func parseStep(body string) (Action, bool) {
	goalType := ""
	op := body
	if i := strings.Index(body, ":"); i >= 0 && !strings.Contains(body[:i], "|") {
		goalType = strings.ToLower(strings.TrimSpace(body[:i]))
		op = body[i+1:]
	}
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "done", "complete":
		return Action{Kind: KindStep, StepOp: StepDone, StepGoalType: goalType}, true
	case "skip", "next":
		return Action{Kind: KindStep, StepOp: StepSkip, StepGoalType: goalType}, true
	}
	return Action{}, false
}

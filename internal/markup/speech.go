package markup

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	// maxSpeechSentences and maxSpeechChars bound one speech emission.
	maxSpeechSentences = 3
	maxSpeechChars     = 300
)

var (
	asteriskRe = regexp.MustCompile(`\*[^*]*\*`)
	emoteSubRe = regexp.MustCompile(`\[[^\]]*\]`)
)

// parseRun turns one stretch of prose between markups into speech and emote
// actions. *…* and […] segments become emotes unless their content is
// quoted, which re-classifies it as speech.
func parseRun(run string) []Action {
	type sub struct{ start, end int }
	var subs []sub
	for _, re := range []*regexp.Regexp{asteriskRe, emoteSubRe} {
		for _, idx := range re.FindAllStringIndex(run, -1) {
			subs = append(subs, sub{idx[0], idx[1]})
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].start < subs[j].start })

	var out []Action
	emitSpeech := func(text string) {
		if shaped, ok := shapeSpeech(text); ok {
			out = append(out, Action{Kind: KindSay, Text: shaped})
		}
	}

	pos := 0
	lastEnd := -1
	for _, s := range subs {
		if s.start < lastEnd {
			continue
		}
		emitSpeech(run[pos:s.start])
		content := run[s.start+1 : s.end-1]
		if isQuoted(content) {
			emitSpeech(content)
		} else if shaped, ok := shapeEmote(content); ok {
			out = append(out, Action{Kind: KindEmote, Text: shaped})
		}
		pos = s.end
		lastEnd = s.end
	}
	emitSpeech(run[pos:])
	return out
}

// shapeSpeech strips surrounding quotes, bounds the text to three sentences
// and 300 characters, and drops anything without a letter or digit.
func shapeSpeech(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimFunc(text, isQuoteRune)
	text = strings.TrimSpace(text)
	if !hasWordRune(text) {
		return "", false
	}
	text = truncateSentences(text, maxSpeechSentences)
	text = truncateChars(text, maxSpeechChars)
	return text, true
}

// shapeEmote trims an emote and rewrites first person to third person:
// "I smile" becomes "smiles"; verbs ending in ch, sh, x, z or s take "es".
func shapeEmote(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !hasWordRune(text) {
		return "", false
	}
	fields := strings.Fields(text)
	if len(fields) >= 2 && strings.EqualFold(fields[0], "i") {
		fields = fields[1:]
		fields[0] = thirdPerson(fields[0])
		text = strings.Join(fields, " ")
	}
	return text, true
}

func thirdPerson(verb string) string {
	lower := strings.ToLower(verb)
	for _, suffix := range []string{"ch", "sh", "x", "z", "s"} {
		if strings.HasSuffix(lower, suffix) {
			return verb + "es"
		}
	}
	return verb + "s"
}

// truncateSentences keeps at most max sentences. Runs of dots are ellipses,
// not sentence ends.
func truncateSentences(text string, max int) string {
	runes := []rune(text)
	count := 0
	for i, r := range runes {
		switch r {
		case '!', '?':
		case '.':
			prevDot := i > 0 && runes[i-1] == '.'
			nextDot := i+1 < len(runes) && runes[i+1] == '.'
			if prevDot || nextDot {
				continue
			}
		default:
			continue
		}
		count++
		if count == max && i+1 < len(runes) {
			return strings.TrimSpace(string(runes[:i+1]))
		}
	}
	return text
}

func truncateChars(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := strings.TrimRight(string(runes[:max-3]), " .")
	return cut + "..."
}

func isQuoted(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	runes := []rune(content)
	return isQuoteRune(runes[0]) || isQuoteRune(runes[len(runes)-1])
}

func isQuoteRune(r rune) bool {
	switch r {
	case '"', '\'', '“', '”', '‘', '’':
		return true
	}
	return false
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

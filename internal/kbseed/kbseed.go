// Package kbseed loads world-knowledge seed files.
//
// A seed file is plaintext, one directive per line:
//
//	kb set <key> { …json… } [--npcs id1,id2] [--summary "text"] [tag1 tag2 …]
//
// Lines starting with # are comments. The JSON value may nest braces; the
// parser finds the matching outer brace, honoring braces inside JSON
// strings. An entry's visibility is npc exactly when --npcs names at least
// one id, otherwise public.
//
// Parsing is strict — a malformed directive fails the whole file with its
// line number — because seed files are operator content, and a silently
// skipped entry is a support ticket later.
package kbseed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"duskmire/pkg/memory"
)

// directive is the required line prefix.
const directive = "kb set"

// Parse reads seed directives from r and returns the entries in file order.
// Comment and blank lines are skipped. The returned entries carry no
// embedding; the store derives one on upsert when vectors are enabled.
func Parse(r io.Reader) ([]memory.KbEntry, error) {
	var entries []memory.KbEntry

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("kbseed: line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("kbseed: read: %w", err)
	}
	return entries, nil
}

// ParseFile is [Parse] over a file on disk.
func ParseFile(path string) ([]memory.KbEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("kbseed: open %s: %w", path, err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w (in %s)", err, path)
	}
	return entries, nil
}

// Apply upserts entries in order and returns how many landed. It stops at
// the first store error; the caller decides whether a partial seed is fatal.
func Apply(ctx context.Context, kb memory.WorldKnowledgeBase, entries []memory.KbEntry) (int, error) {
	for i, e := range entries {
		if err := kb.Upsert(ctx, e); err != nil {
			return i, fmt.Errorf("kbseed: upsert %q: %w", e.Key, err)
		}
	}
	return len(entries), nil
}

// SeedFiles parses and applies each file in order, returning the total
// entries applied.
func SeedFiles(ctx context.Context, kb memory.WorldKnowledgeBase, paths []string) (int, error) {
	total := 0
	for _, path := range paths {
		entries, err := ParseFile(path)
		if err != nil {
			return total, err
		}
		n, err := Apply(ctx, kb, entries)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func parseLine(line string) (memory.KbEntry, error) {
	rest, ok := strings.CutPrefix(line, directive)
	if !ok || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return memory.KbEntry{}, fmt.Errorf("expected %q directive", directive)
	}
	rest = strings.TrimSpace(rest)

	// Key runs to the first whitespace; the value's opening brace may be
	// glued to it.
	cut := strings.IndexAny(rest, " \t{")
	if cut == 0 || rest == "" {
		return memory.KbEntry{}, fmt.Errorf("missing key")
	}
	if cut < 0 {
		return memory.KbEntry{}, fmt.Errorf("key %q: missing { value", rest)
	}
	key := rest[:cut]
	rest = strings.TrimSpace(rest[cut:])

	raw, tail, err := cutJSONObject(rest)
	if err != nil {
		return memory.KbEntry{}, fmt.Errorf("key %q: %w", key, err)
	}
	if !json.Valid([]byte(raw)) {
		return memory.KbEntry{}, fmt.Errorf("key %q: value is not valid JSON", key)
	}

	entry := memory.KbEntry{
		Key:        key,
		Value:      json.RawMessage(raw),
		Visibility: memory.VisibilityPublic,
	}
	tokens, err := tokenize(tail)
	if err != nil {
		return memory.KbEntry{}, fmt.Errorf("key %q: %w", key, err)
	}
	for i := 0; i < len(tokens); i++ {
		switch tokens[i] {
		case "--npcs":
			i++
			if i >= len(tokens) {
				return memory.KbEntry{}, fmt.Errorf("key %q: --npcs needs a comma-separated id list", key)
			}
			for _, id := range strings.Split(tokens[i], ",") {
				if id = strings.TrimSpace(id); id != "" {
					entry.NpcIDs = append(entry.NpcIDs, id)
				}
			}
		case "--summary":
			i++
			if i >= len(tokens) {
				return memory.KbEntry{}, fmt.Errorf("key %q: --summary needs a value", key)
			}
			entry.Summary = tokens[i]
		default:
			if strings.HasPrefix(tokens[i], "--") {
				return memory.KbEntry{}, fmt.Errorf("key %q: unknown flag %s", key, tokens[i])
			}
			entry.Tags = append(entry.Tags, tokens[i])
		}
	}
	if len(entry.NpcIDs) > 0 {
		entry.Visibility = memory.VisibilityNPC
	}
	return entry, nil
}

// cutJSONObject returns the {…} object at the start of s and whatever
// follows it. Depth counting skips braces inside JSON strings.
func cutJSONObject(s string) (object, tail string, err error) {
	if s == "" || s[0] != '{' {
		return "", "", fmt.Errorf("missing { value")
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], strings.TrimSpace(s[i+1:]), nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced braces in value")
}

// tokenize splits the trailing flag/tag section on whitespace. A token
// opening with a double quote runs to the closing quote and may contain
// spaces.
func tokenize(s string) ([]string, error) {
	var tokens []string
	for {
		s = strings.TrimSpace(s)
		if s == "" {
			return tokens, nil
		}
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote")
			}
			tokens = append(tokens, s[1:1+end])
			s = s[end+2:]
			continue
		}
		cut := strings.IndexAny(s, " \t")
		if cut < 0 {
			tokens = append(tokens, s)
			return tokens, nil
		}
		tokens = append(tokens, s[:cut])
		s = s[cut:]
	}
}

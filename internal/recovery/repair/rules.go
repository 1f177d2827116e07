// Package repair holds the text-level fixes applied to model output before it
// is decoded. Every rule is a pure string transform that never fails and
// leaves well-formed JSON untouched.
package repair

import (
	"regexp"
	"strings"
)

// Rule is a single named text transform.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Pipeline is an ordered list of rules.
type Pipeline []Rule

// Apply runs every rule in order over the whole text.
func (p Pipeline) Apply(text string) string {
	for _, rule := range p {
		text = rule.Apply(text)
	}
	return text
}

// Without returns a copy of the pipeline minus the rules with the given name.
func (p Pipeline) Without(name string) Pipeline {
	out := make(Pipeline, 0, len(p))
	for _, rule := range p {
		if rule.Name != name {
			out = append(out, rule)
		}
	}
	return out
}

// DefaultPipeline returns the repair rules in the order the recovery cascade expects.
func DefaultPipeline() Pipeline {
	return Pipeline{
		{Name: "strip-code-fences", Apply: StripCodeFences},
		{Name: "normalize-quotes", Apply: NormalizeQuotes},
		{Name: "remove-trailing-commas", Apply: RemoveTrailingCommas},
		{Name: "insert-missing-commas", Apply: InsertMissingCommas},
		{Name: "strip-extraneous-fields", Apply: StripExtraneousFields},
		{Name: "balance-brackets", Apply: BalanceBrackets},
	}
}

// SegmentPipeline is the lighter rule set applied to an isolated section.
func SegmentPipeline() Pipeline {
	return Pipeline{
		{Name: "normalize-quotes", Apply: NormalizeQuotes},
		{Name: "remove-trailing-commas", Apply: RemoveTrailingCommas},
		{Name: "strip-extraneous-fields", Apply: StripExtraneousFields},
		{Name: "balance-brackets", Apply: BalanceBrackets},
		{Name: "remove-trailing-commas", Apply: RemoveTrailingCommas},
	}
}

var codeFenceRegex = regexp.MustCompile("```(?i:json)?")

// StripCodeFences removes markdown code fence markers and surrounding whitespace.
func StripCodeFences(text string) string {
	if !strings.Contains(text, "```") {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(codeFenceRegex.ReplaceAllString(text, ""))
}

// NormalizeQuotes rewrites single-quoted keys and simple single-quoted scalars
// as double-quoted strings. A value span containing ':', ',', '{' or '}' is not
// a simple scalar and is left as-is. Text inside double-quoted strings is never touched.
func NormalizeQuotes(text string) string {
	if !strings.Contains(text, "'") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c != '\'' {
			b.WriteByte(c)
			continue
		}
		end := strings.IndexByte(text[i+1:], '\'')
		if end < 0 {
			b.WriteByte(c)
			continue
		}
		content := text[i+1 : i+1+end]
		if !convertibleQuoteSpan(content, isKeyPosition(text[i+1+end+1:])) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(content, `"`, `\"`))
		b.WriteByte('"')
		i += end + 1
	}
	return b.String()
}

func convertibleQuoteSpan(content string, key bool) bool {
	if strings.ContainsAny(content, "\n\"") {
		return false
	}
	if key {
		return content != ""
	}
	return !strings.ContainsAny(content, ":,{}")
}

func isKeyPosition(rest string) bool {
	return strings.HasPrefix(strings.TrimLeft(rest, " \t\r\n"), ":")
}

// RemoveTrailingCommas drops a comma that directly precedes '}' or ']'.
func RemoveTrailingCommas(text string) string {
	if !strings.Contains(text, ",") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	scanStructural(text, func(i int, c byte, inString bool) {
		if !inString && c == ',' {
			if next := nextNonSpace(text, i+1); next == '}' || next == ']' {
				return
			}
		}
		b.WriteByte(c)
	})
	return b.String()
}

// InsertMissingCommas separates adjacent "}{" and "][" pairs with a comma.
func InsertMissingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 4)
	scanStructural(text, func(i int, c byte, inString bool) {
		b.WriteByte(c)
		if inString {
			return
		}
		next := nextNonSpace(text, i+1)
		if (c == '}' && next == '{') || (c == ']' && next == '[') {
			b.WriteByte(',')
		}
	})
	return b.String()
}

const jsonStringPattern = `"(?:[^"\\]|\\.)*"`

var (
	extraneousFieldWithComma    = regexp.MustCompile(`"(?:prefix|suffix)"\s*:\s*` + jsonStringPattern + `\s*,\s*`)
	extraneousFieldAfterComma   = regexp.MustCompile(`,\s*"(?:prefix|suffix)"\s*:\s*` + jsonStringPattern + `(\s*[}\]])`)
	extraneousFieldStandalone   = regexp.MustCompile(`"(?:prefix|suffix)"\s*:\s*` + jsonStringPattern)
	extraneousFieldQuickPattern = regexp.MustCompile(`"(?:prefix|suffix)"\s*:`)
)

// StripExtraneousFields removes string-valued "prefix" and "suffix" members
// that models inject outside the expected schema, along with their comma.
func StripExtraneousFields(text string) string {
	if !extraneousFieldQuickPattern.MatchString(text) {
		return text
	}
	text = extraneousFieldWithComma.ReplaceAllString(text, "")
	text = extraneousFieldAfterComma.ReplaceAllString(text, "$1")
	return extraneousFieldStandalone.ReplaceAllString(text, "")
}

// BalanceBrackets appends the closers needed to terminate every unclosed '{'
// and '['. Openers are never removed and stray closers are left alone.
func BalanceBrackets(text string) string {
	missing := UnclosedBrackets(text)
	if len(missing) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + len(missing))
	b.WriteString(text)
	for i := len(missing) - 1; i >= 0; i-- {
		if missing[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// UnclosedBrackets returns the openers still pending at the end of text, outermost first.
func UnclosedBrackets(text string) []byte {
	var stack []byte
	scanStructural(text, func(_ int, c byte, inString bool) {
		if inString {
			return
		}
		switch c {
		case '{', '[':
			stack = append(stack, c)
		case '}':
			if n := len(stack); n > 0 && stack[n-1] == '{' {
				stack = stack[:n-1]
			}
		case ']':
			if n := len(stack); n > 0 && stack[n-1] == '[' {
				stack = stack[:n-1]
			}
		}
	})
	return stack
}

// TopLevelStrings returns the offsets of the opening quotes of strings that
// sit directly inside the outermost object, such as its member keys.
func TopLevelStrings(text string) map[int]bool {
	offsets := make(map[int]bool)
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
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
			if len(stack) == 1 && stack[0] == '{' {
				offsets[i] = true
			}
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
		}
	}
	return offsets
}

// scanStructural walks text byte by byte, reporting whether each byte is part
// of a double-quoted string literal (quotes included).
func scanStructural(text string, fn func(i int, c byte, inString bool)) {
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			fn(i, c, true)
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
		if c == '"' {
			inString = true
			fn(i, c, true)
			continue
		}
		fn(i, c, false)
	}
}

func nextNonSpace(text string, from int) byte {
	for i := from; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return text[i]
		}
	}
	return 0
}

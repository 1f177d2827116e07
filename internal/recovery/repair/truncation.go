package repair

// IsTruncated reports whether text looks like it was cut off inside a string
// literal. It scans backward from the end, counting unescaped double quotes
// until the first '}' or ']'; an odd count means a string was left open.
// This is a heuristic and callers must tolerate both false positives and
// false negatives.
func IsTruncated(text string) bool {
	quotes := 0
	for i := len(text) - 1; i >= 0; i-- {
		c := text[i]
		if c == '}' || c == ']' {
			break
		}
		if c == '"' && !isEscaped(text, i) {
			quotes++
		}
	}
	return quotes%2 == 1
}

// isEscaped reports whether the byte at pos is preceded by an odd run of backslashes.
func isEscaped(text string, pos int) bool {
	backslashes := 0
	for i := pos - 1; i >= 0 && text[i] == '\\'; i-- {
		backslashes++
	}
	return backslashes%2 == 1
}

// CloseDanglingString terminates an unterminated string literal at the end of
// text. Text that does not end inside a string is returned unchanged.
func CloseDanglingString(text string) string {
	if !endsInsideString(text) {
		return text
	}
	if isEscaped(text, len(text)) {
		text = text[:len(text)-1]
	}
	return text + `"`
}

func endsInsideString(text string) bool {
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			inString = c == '"'
			continue
		}
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = false
		}
	}
	return inString
}

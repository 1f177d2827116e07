package recovery

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/signifo/designgen/internal/document"
	log "github.com/sirupsen/logrus"
)

var memberLineRegex = regexp.MustCompile(`^\s*("(?:[^"\\]|\\.)*")\s*:\s*(.*?)\s*,?\s*$`)

// salvageLines extracts every `"key": value` line whose value decodes on its
// own. Keys keep their first occurrence; nesting is flattened.
func salvageLines(text string) document.Document {
	out := make(document.Document)
	for _, line := range strings.Split(text, "\n") {
		m := memberLineRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var key string
		if err := json.Unmarshal([]byte(m[1]), &key); err != nil || key == "" {
			continue
		}
		if _, exists := out[key]; exists {
			continue
		}
		raw := m[2]
		if raw == "" || raw == "{" || raw == "[" {
			continue
		}
		value, ok := decodeSalvagedValue(raw)
		if !ok {
			log.Warnf("recovery: skipping unrecoverable value for key %q", key)
			continue
		}
		out[key] = value
	}
	return out
}

func decodeSalvagedValue(raw string) (any, bool) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err == nil {
		return value, true
	}
	if strings.HasPrefix(raw, `"`) && !strings.HasSuffix(raw, `"`) {
		if err := json.Unmarshal([]byte(raw+`"`), &value); err == nil {
			return value, true
		}
	}
	return nil, false
}

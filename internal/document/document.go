// Package document holds the structured product-design document recovered
// from model output.
package document

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Document is a decoded JSON object. Values are the types produced by
// encoding/json: map[string]any, []any, string, float64, bool and nil.
type Document map[string]any

// Pretty renders the document as two-space indented JSON.
func (d Document) Pretty() ([]byte, error) {
	return PrettyValue(map[string]any(d))
}

// PrettyValue renders any decoded root as two-space indented JSON.
func PrettyValue(value any) ([]byte, error) {
	return json.MarshalIndent(value, "", "  ")
}

// Get looks up a dotted gjson path such as "metadata.theme_name".
func (d Document) Get(path string) gjson.Result {
	if len(d) == 0 {
		return gjson.Result{}
	}
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(raw, path)
}

// ThemeName returns the romanized theme name, falling back to the native one.
func (d Document) ThemeName() string {
	if name := strings.TrimSpace(d.Get("metadata.theme_name_romanized").String()); name != "" {
		return name
	}
	return strings.TrimSpace(d.Get("metadata.theme_name").String())
}

// Filename returns the file-safe slug of the theme name, or "" when the document has none.
func (d Document) Filename() string {
	return FormatThemeFilename(d.ThemeName())
}

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	filenameIllegal = regexp.MustCompile(`[^a-z0-9-]`)
)

// FormatThemeFilename lowercases name, turns whitespace runs into '-' and
// drops every character outside [a-z0-9-].
func FormatThemeFilename(name string) string {
	name = strings.ToLower(name)
	name = whitespaceRun.ReplaceAllString(name, "-")
	return filenameIllegal.ReplaceAllString(name, "")
}

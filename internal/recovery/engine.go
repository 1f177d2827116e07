// Package recovery turns raw model output into a structured document through
// a cascade of progressively more aggressive repair strategies.
package recovery

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/signifo/designgen/internal/document"
	"github.com/signifo/designgen/internal/failure"
	"github.com/signifo/designgen/internal/recovery/repair"
	log "github.com/sirupsen/logrus"
)

// Strategy names the cascade step that produced a document.
type Strategy string

const (
	StrategyDirect           Strategy = "direct"
	StrategyRepaired         Strategy = "repaired"
	StrategyTruncationClosed Strategy = "truncation-closed"
	StrategyJSONRepair       Strategy = "json-repair"
	StrategyLineSalvage      Strategy = "line-salvage"
	StrategySections         Strategy = "sections"
)

// DefaultSections are the top-level keys of a product-design document.
var DefaultSections = []string{"metadata", "product", "design", "branding", "photography"}

var errEmptyResponse = errors.New("empty response")

// Report describes a successful recovery.
type Report struct {
	// Value is the recovered root: a document.Document for objects, or a
	// []any, string, float64, bool or nil for any other well-formed root.
	Value any
	// Document is Value when the root is an object, nil otherwise.
	Document  document.Document
	Strategy  Strategy
	Truncated bool
}

func newReport(value any, strategy Strategy, truncated bool) *Report {
	report := &Report{Value: value, Strategy: strategy, Truncated: truncated}
	if doc, ok := value.(document.Document); ok {
		report.Document = doc
	}
	return report
}

// Engine is stateless after construction and safe for concurrent use.
type Engine struct {
	pipeline   repair.Pipeline
	segment    repair.Pipeline
	sections   []string
	splitter   *regexp.Regexp
	repairJSON func(string) (string, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSections overrides the top-level section names used for section-wise reconstruction.
func WithSections(names ...string) Option {
	return func(e *Engine) {
		cleaned := make([]string, 0, len(names))
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				cleaned = append(cleaned, name)
			}
		}
		if len(cleaned) > 0 {
			e.sections = cleaned
		}
	}
}

// NewEngine builds an engine with the default repair pipeline.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		pipeline:   repair.DefaultPipeline(),
		segment:    repair.SegmentPipeline(),
		sections:   append([]string(nil), DefaultSections...),
		repairJSON: jsonrepair.JSONRepair,
	}
	for _, opt := range opts {
		opt(e)
	}
	quoted := make([]string, len(e.sections))
	for i, name := range e.sections {
		quoted[i] = regexp.QuoteMeta(name)
	}
	e.splitter = regexp.MustCompile(`"(` + strings.Join(quoted, "|") + `)"\s*:`)
	return e
}

// Sections returns the configured section names.
func (e *Engine) Sections() []string {
	return append([]string(nil), e.sections...)
}

// Parse recovers the value encoded in raw model output. Well-formed input
// returns exactly its strict decode, whatever the root type.
func (e *Engine) Parse(raw string) (any, error) {
	report, err := e.ParseWithReport(raw)
	if err != nil {
		return nil, err
	}
	return report.Value, nil
}

// ParseWithReport recovers a value and reports which strategy succeeded.
// It fails with an UnparsableResponse failure only when every strategy is exhausted.
func (e *Engine) ParseWithReport(raw string) (*Report, error) {
	stripped := repair.StripCodeFences(raw)
	if stripped == "" {
		return nil, failure.NewUnparsable("unable to parse model response", errEmptyResponse)
	}

	value, err := decodeValue(stripped)
	if err == nil {
		return newReport(value, StrategyDirect, false), nil
	}
	log.Debugf("recovery: direct decode failed: %v", err)

	value, err = decodeValue(e.pipeline.Apply(stripped))
	if err == nil {
		return newReport(value, StrategyRepaired, false), nil
	}
	log.Debugf("recovery: repaired decode failed: %v", err)

	if repair.IsTruncated(stripped) {
		log.Debug("recovery: response looks truncated")
		prepared := e.pipeline.Without("balance-brackets").Apply(stripped)
		value, errClose := closeTruncated(prepared)
		if errClose == nil {
			return newReport(value, StrategyTruncationClosed, true), nil
		}
		log.Debugf("recovery: closing truncated response failed: %v", errClose)
		value, errRepair := e.libraryRepair(prepared)
		if errRepair == nil {
			return newReport(value, StrategyJSONRepair, true), nil
		}
		log.Debugf("recovery: json repair failed: %v", errRepair)
		if doc := salvageLines(repair.CloseDanglingString(prepared)); len(doc) > 0 {
			return newReport(doc, StrategyLineSalvage, true), nil
		}
	} else if doc := e.reconstructSections(stripped); len(doc) > 0 {
		return newReport(doc, StrategySections, false), nil
	}

	return nil, failure.NewUnparsable("unable to parse model response as JSON", err)
}

// closeTruncated terminates a dangling string and closes the open containers.
func closeTruncated(prepared string) (any, error) {
	candidates := []string{
		finishStructure(repair.CloseDanglingString(prepared)),
		repair.BalanceBrackets(prepared + `"}`),
	}
	var lastErr error
	for _, candidate := range candidates {
		value, err := decodeValue(candidate)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func finishStructure(text string) string {
	return repair.RemoveTrailingCommas(repair.BalanceBrackets(strings.TrimRight(text, " \t\r\n:")))
}

// libraryRepair hands the text to the general-purpose JSON repairer, which
// also completes truncated keys and inserts commas between adjacent values.
func (e *Engine) libraryRepair(prepared string) (any, error) {
	repaired, err := e.repairJSON(prepared)
	if err != nil {
		return nil, err
	}
	return decodeValue(repaired)
}

// reconstructSections decodes each known top-level section in isolation and
// assembles whichever ones succeed. Keys nested below the outermost object
// never start a section.
func (e *Engine) reconstructSections(text string) document.Document {
	topLevel := repair.TopLevelStrings(text)
	var matches [][]int
	for _, m := range e.splitter.FindAllStringSubmatchIndex(text, -1) {
		if topLevel[m[0]] {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	out := make(document.Document, len(matches))
	for i, m := range matches {
		name := text[m[2]:m[3]]
		if _, exists := out[name]; exists {
			continue
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		segment := text[m[1]:end]
		value, err := decodeLeadingValue(segment)
		if err != nil {
			value, err = decodeLeadingValue(e.segment.Apply(segment))
		}
		if err != nil {
			log.Warnf("recovery: could not parse section %q: %v", name, err)
			continue
		}
		out[name] = value
	}
	return out
}

// decodeLeadingValue decodes the first JSON value in segment and ignores the rest.
func decodeLeadingValue(segment string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(segment))
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}

// decodeValue strictly decodes text. Object roots come back as a document.Document.
func decodeValue(text string) (any, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, err
	}
	if obj, ok := value.(map[string]any); ok {
		return document.Document(obj), nil
	}
	return value, nil
}

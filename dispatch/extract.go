package dispatch

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Sentinel markers the model wraps a delimited call in.
const (
	MarkerStart = "<|function_call|>"
	MarkerEnd   = "<|end_function_call|>"
)

// Call is one requested action parsed out of model output. Transient: built
// per extraction, never persisted.
type Call struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// bareCallPattern matches a JSON-object-shaped span (nested braces up to three
// levels, which covers args objects with one level of nesting of their own).
// Candidates still have to survive envelope validation before they count.
var bareCallPattern = regexp.MustCompile(`\{(?:[^{}]|\{(?:[^{}]|\{[^{}]*\})*\})*\}`)

// envelopeSchema validates the structural shape of a parsed call: a non-empty
// string name, and args (when present) an object.
const envelopeSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"args": {"type": "object"}
	}
}`

var compileEnvelope = sync.OnceValue(func() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(envelopeSchema))
	if err != nil {
		panic("dispatch: envelope schema: " + err.Error())
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("call.json", doc); err != nil {
		panic("dispatch: envelope schema: " + err.Error())
	}
	sch, err := c.Compile("call.json")
	if err != nil {
		panic("dispatch: envelope schema: " + err.Error())
	}
	return sch
})

// Extractor scans model output for an embedded function call. It is pure with
// respect to its input; parse failures go to the logger, never to the caller.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil logger falls back to slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract returns the first structurally valid call found in text, trying the
// delimited form first and the bare JSON-object form second. ok is false when
// no call is present; that is the expected outcome for narrative text and is
// not logged. Malformed JSON inside recognized markers is logged and treated
// the same as no call, so one bad generation never aborts a turn.
func (e *Extractor) Extract(text string) (Call, bool) {
	if call, ok := e.extractDelimited(text); ok {
		return call, true
	}
	return e.extractBare(text)
}

// extractDelimited parses the span between the first start marker and the
// first end marker after it. Only that first span is considered; a second
// delimited block in the same text is ignored.
func (e *Extractor) extractDelimited(text string) (Call, bool) {
	start := strings.Index(text, MarkerStart)
	if start < 0 {
		return Call{}, false
	}
	rest := text[start+len(MarkerStart):]
	end := strings.Index(rest, MarkerEnd)
	if end < 0 {
		return Call{}, false
	}
	body := strings.TrimSpace(rest[:end])
	call, _, err := decodeCall([]byte(body))
	if err != nil {
		e.logger.Warn("malformed delimited function call", "error", err)
		return Call{}, false
	}
	return call, true
}

// extractBare scans for JSON-object-shaped spans and returns the first one
// that carries both a name and an args object. The bare form requires args
// explicitly so that arbitrary narrative JSON does not read as a call.
func (e *Extractor) extractBare(text string) (Call, bool) {
	for _, candidate := range bareCallPattern.FindAllString(text, -1) {
		if !strings.Contains(candidate, `"name"`) || !strings.Contains(candidate, `"args"`) {
			continue
		}
		call, hasArgs, err := decodeCall([]byte(candidate))
		if err != nil {
			e.logger.Debug("json span is not a function call", "error", err)
			continue
		}
		if !hasArgs {
			continue
		}
		return call, true
	}
	return Call{}, false
}

// decodeCall parses data and validates the call envelope. Args defaults to an
// empty map when the payload omits it; hasArgs reports whether the payload
// carried an explicit args object.
func decodeCall(data []byte) (call Call, hasArgs bool, err error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return Call{}, false, err
	}
	if err := compileEnvelope().Validate(v); err != nil {
		return Call{}, false, err
	}
	if obj, ok := v.(map[string]any); ok {
		_, hasArgs = obj["args"]
	}
	if err := json.Unmarshal(data, &call); err != nil {
		return Call{}, false, err
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return call, hasArgs, nil
}

package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Description is one static catalog entry: what the model is told it can
// call. The catalog is prompt material only; it is not checked against the
// live registry, so an entry can drift from what is actually registered.
type Description struct {
	Name       string
	Purpose    string
	Parameters map[string]any // JSON Schema of the args object, nil when the function takes none
	signature  string
}

// Catalog is an insertion-ordered list of function descriptions used to build
// prompts. Populate it once at startup, next to the handler registrations.
type Catalog struct {
	entries []Description
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Add appends an entry. args is a struct value (or pointer) whose fields
// describe the function's arguments; its JSON Schema is reflected from the
// struct tags. Pass nil for a function that takes no model-supplied args.
func (c *Catalog) Add(name, purpose string, args any) {
	d := Description{Name: name, Purpose: purpose}
	if args != nil {
		r := &jsonschema.Reflector{
			Anonymous:                 true,
			DoNotReference:            true,
			ExpandedStruct:            true,
			AllowAdditionalProperties: true,
		}
		schema := r.Reflect(args)
		d.Parameters = schemaToMap(schema)
		d.signature = signature(name, schema)
	} else {
		d.signature = name + "()"
	}
	c.entries = append(c.entries, d)
}

// Entries returns the catalog in insertion order.
func (c *Catalog) Entries() []Description {
	out := make([]Description, len(c.entries))
	copy(out, c.entries)
	return out
}

// Describe renders the fixed multi-line block handed to the prompt builder:
// one "name(arg: type, ...) - purpose" line per entry plus the calling
// convention the extractor understands.
func (c *Catalog) Describe() string {
	var b strings.Builder
	b.WriteString("Available functions:\n")
	for _, d := range c.entries {
		fmt.Fprintf(&b, "  %s - %s\n", d.signature, d.Purpose)
	}
	b.WriteString("\nTo call a function, reply with ONLY the call, enclosed in markers:\n")
	fmt.Fprintf(&b, "%s{\"name\": \"<function>\", \"args\": {...}}%s\n", MarkerStart, MarkerEnd)
	return b.String()
}

// signature renders name(field: type, ...) from the reflected schema,
// preserving struct field order.
func signature(name string, schema *jsonschema.Schema) string {
	var params []string
	if schema.Properties != nil {
		for p := schema.Properties.Oldest(); p != nil; p = p.Next() {
			typ := p.Value.Type
			if typ == "" {
				typ = "any"
			}
			params = append(params, p.Key+": "+typ)
		}
	}
	return name + "(" + strings.Join(params, ", ") + ")"
}

// schemaToMap round-trips the reflected schema through JSON so callers get a
// plain map compatible with LLM tool-definition payloads.
func schemaToMap(schema *jsonschema.Schema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

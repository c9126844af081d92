package schema

import (
	"encoding/json"
	"math"
	"sort"
)

// DraftURL is written into every generated document.
const DraftURL = "http://json-schema.org/draft-07/schema#"

// Fields named here get format "date-time" wherever they appear.
var dateTimeFields = map[string]bool{
	"createdAt": true,
	"updatedAt": true,
}

// Document is the subset of JSON Schema produced by Infer.
type Document struct {
	Schema     string               `json:"$schema,omitempty"`
	Type       Types                `json:"type,omitempty"`
	Format     string               `json:"format,omitempty"`
	Properties map[string]*Document `json:"properties,omitempty"`
	Required   []string             `json:"required,omitempty"`
	Items      *Document            `json:"items,omitempty"`
	AnyOf      []*Document          `json:"anyOf,omitempty"`
}

// Types marshals as a single string when it holds one type.
type Types []string

func (t Types) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

func (t *Types) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*t = Types{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

func (t Types) has(name string) bool {
	for _, v := range t {
		if v == name {
			return true
		}
	}
	return false
}

// Generate infers a schema from a decoded JSON value and applies the
// date-time format to timestamp fields.
func Generate(sample any) *Document {
	doc := infer(sample)
	markDateTimes(doc)
	doc.Schema = DraftURL
	return doc
}

func infer(v any) *Document {
	switch val := v.(type) {
	case nil:
		return &Document{Type: Types{"null"}}
	case bool:
		return &Document{Type: Types{"boolean"}}
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return &Document{Type: Types{"integer"}}
		}
		return &Document{Type: Types{"number"}}
	case json.Number:
		if _, err := val.Int64(); err == nil {
			return &Document{Type: Types{"integer"}}
		}
		return &Document{Type: Types{"number"}}
	case string:
		return &Document{Type: Types{"string"}}
	case []any:
		doc := &Document{Type: Types{"array"}}
		for _, item := range val {
			if doc.Items == nil {
				doc.Items = infer(item)
				continue
			}
			doc.Items = merge(doc.Items, infer(item))
		}
		return doc
	case map[string]any:
		doc := &Document{
			Type:       Types{"object"},
			Properties: make(map[string]*Document, len(val)),
			Required:   make([]string, 0, len(val)),
		}
		for k, item := range val {
			doc.Properties[k] = infer(item)
			doc.Required = append(doc.Required, k)
		}
		sort.Strings(doc.Required)
		return doc
	default:
		// anything else is normalized through JSON before it gets here
		return &Document{}
	}
}

// merge combines the schemas of two array items. Objects merge their
// properties and keep only the keys required by both; arrays merge items;
// differing scalar types become a type list and anything else an anyOf.
func merge(a, b *Document) *Document {
	if len(a.AnyOf) > 0 {
		return mergeIntoAnyOf(a, b)
	}
	if len(a.Type) == 1 && len(b.Type) == 1 && a.Type[0] == b.Type[0] {
		switch a.Type[0] {
		case "object":
			return mergeObjects(a, b)
		case "array":
			switch {
			case a.Items == nil:
				a.Items = b.Items
			case b.Items != nil:
				a.Items = merge(a.Items, b.Items)
			}
			return a
		default:
			return a
		}
	}
	if isScalar(a) && isScalar(b) {
		out := &Document{Type: append(Types{}, a.Type...)}
		for _, t := range b.Type {
			if !out.Type.has(t) {
				out.Type = append(out.Type, t)
			}
		}
		sort.Strings(out.Type)
		return out
	}
	return &Document{AnyOf: []*Document{a, b}}
}

func mergeIntoAnyOf(a, b *Document) *Document {
	for i, alt := range a.AnyOf {
		sameType := len(alt.Type) == 1 && len(b.Type) == 1 && alt.Type[0] == b.Type[0]
		if sameType || (isScalar(alt) && isScalar(b)) {
			a.AnyOf[i] = merge(alt, b)
			return a
		}
	}
	a.AnyOf = append(a.AnyOf, b)
	return a
}

func mergeObjects(a, b *Document) *Document {
	for k, prop := range b.Properties {
		if existing, ok := a.Properties[k]; ok {
			a.Properties[k] = merge(existing, prop)
		} else {
			a.Properties[k] = prop
		}
	}
	inB := make(map[string]bool, len(b.Required))
	for _, k := range b.Required {
		inB[k] = true
	}
	required := a.Required[:0]
	for _, k := range a.Required {
		if inB[k] {
			required = append(required, k)
		}
	}
	a.Required = required
	return a
}

func isScalar(d *Document) bool {
	if len(d.AnyOf) > 0 || len(d.Type) == 0 {
		return false
	}
	return !d.Type.has("object") && !d.Type.has("array")
}

func markDateTimes(doc *Document) {
	if doc == nil {
		return
	}
	for name, prop := range doc.Properties {
		if dateTimeFields[name] {
			prop.Format = "date-time"
		}
		markDateTimes(prop)
	}
	markDateTimes(doc.Items)
	for _, alt := range doc.AnyOf {
		markDateTimes(alt)
	}
}

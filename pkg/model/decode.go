package model

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/duynguyendang/mbe/pkg/common/errors"
)

// UnmarshalJSON decodes the flat form: "@id", "@type", optional "source" and
// "target" references, every other key an attribute.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, _ := raw["@id"].(string)
	typ, _ := raw["@type"].(string)
	if id == "" {
		return fmt.Errorf("%w: element without @id", errors.ErrInvalidInput)
	}
	*e = Element{ID: id, Type: typ, Metatype: ParseMetatype(typ), Attributes: map[string]any{}}
	for k, v := range raw {
		switch k {
		case "@id", "@type":
		case "source":
			e.Source = refList(v)
		case "target":
			e.Target = refList(v)
		default:
			e.Attributes[k] = normalize(v)
		}
	}
	return nil
}

// MarshalJSON encodes the flat form read by UnmarshalJSON.
func (e *Element) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Attributes)+4)
	for k, v := range e.Attributes {
		out[k] = v
	}
	out["@id"] = e.ID
	out["@type"] = e.Type
	if len(e.Source) > 0 {
		out["source"] = refs(e.Source)
	}
	if len(e.Target) > 0 {
		out["target"] = refs(e.Target)
	}
	return json.Marshal(out)
}

// Decode reads a JSON array of elements.
func Decode(r io.Reader) ([]*Element, error) {
	var elems []*Element
	if err := json.NewDecoder(r).Decode(&elems); err != nil {
		return nil, fmt.Errorf("%w: decode model: %v", errors.ErrInvalidInput, err)
	}
	return elems, nil
}

// DecodeBytes is Decode over a byte slice.
func DecodeBytes(data []byte) ([]*Element, error) {
	var elems []*Element
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, fmt.Errorf("%w: decode model: %v", errors.ErrInvalidInput, err)
	}
	return elems, nil
}

func refs(ids []string) []map[string]string {
	out := make([]map[string]string, len(ids))
	for i, id := range ids {
		out[i] = map[string]string{"@id": id}
	}
	return out
}

func refList(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s, ok := normalize(item).(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := normalize(x).(string); ok && s != "" {
			return []string{s}
		}
	}
	return nil
}

// normalize collapses {"@id": x} references to x.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 1 {
			if id, ok := x["@id"].(string); ok {
				return id
			}
		}
		for k, item := range x {
			x[k] = normalize(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = normalize(item)
		}
		return x
	}
	return v
}

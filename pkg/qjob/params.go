package qjob

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quatton/qpaper/pkg/qerr"
)

// Param is a single named input value kept as raw JSON.
type Param struct {
	Name  string
	Value json.RawMessage
}

// Parameters is an ordered name to value mapping. Decoding a JSON object
// keeps the caller's key order, and encoding writes it back unchanged.
type Parameters []Param

// FromMap builds Parameters from a map, ordered by name.
func FromMap(m map[string]any) (Parameters, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make(Parameters, 0, len(m))
	for _, name := range names {
		raw, err := json.Marshal(m[name])
		if err != nil {
			return nil, fmt.Errorf("encoding parameter %s: %w", name, err)
		}
		params = append(params, Param{Name: name, Value: raw})
	}
	return params, nil
}

func (p *Parameters) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*p = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("parameters must be a JSON object")
	}

	out := Parameters{}
	seen := map[string]bool{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		if seen[name] {
			return fmt.Errorf("duplicate parameter %q", name)
		}
		seen[name] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding parameter %s: %w", name, err)
		}
		out = append(out, Param{Name: name, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*p = out
	return nil
}

func (p Parameters) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, param := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		name, err := json.Marshal(param.Name)
		if err != nil {
			return nil, err
		}
		b.Write(name)
		b.WriteByte(':')
		if len(param.Value) == 0 {
			b.WriteString("null")
			continue
		}
		if err := json.Compact(&b, param.Value); err != nil {
			return nil, fmt.Errorf("encoding parameter %s: %w", param.Name, err)
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Names returns the parameter names in order.
func (p Parameters) Names() []string {
	names := make([]string, len(p))
	for i, param := range p {
		names[i] = param.Name
	}
	return names
}

// Get returns the raw value of a parameter.
func (p Parameters) Get(name string) (json.RawMessage, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of name, or appends it when absent.
func (p Parameters) Set(name string, value json.RawMessage) Parameters {
	for i := range p {
		if p[i].Name == name {
			p[i].Value = value
			return p
		}
	}
	return append(p, Param{Name: name, Value: value})
}

// Has reports whether name is present with a non-null value.
func (p Parameters) Has(name string) bool {
	raw, ok := p.Get(name)
	return ok && !isNull(raw)
}

// String returns a scalar parameter as a string. Numbers and booleans are
// formatted; objects and arrays are a validation error.
func (p Parameters) String(name string) (string, error) {
	raw, ok := p.Get(name)
	if !ok || isNull(raw) {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", qerr.Validation("parameter %s is not valid JSON", name)
	}
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		return "", qerr.Validation("parameter %s must be a scalar value", name)
	}
}

// Bool returns a boolean parameter. The strings "true" and "false" are
// accepted as well.
func (p Parameters) Bool(name string) (bool, error) {
	s, err := p.String(name)
	if err != nil || s == "" {
		return false, err
	}
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, qerr.Validation("parameter %s must be a boolean", name)
	}
	return b, nil
}

// Object returns a parameter that must be a JSON object.
func (p Parameters) Object(name string) (Parameters, error) {
	raw, ok := p.Get(name)
	if !ok || isNull(raw) {
		return nil, nil
	}
	var obj Parameters
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, qerr.Validation("parameter %s must be a JSON object", name)
	}
	return obj, nil
}

// IsScalar reports whether a raw value is a string, number, boolean or null.
func IsScalar(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return true
	}
	return trimmed[0] != '{' && trimmed[0] != '['
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

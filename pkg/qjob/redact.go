package qjob

import (
	"bytes"
	"encoding/json"
	"regexp"
)

// Redacted is the placeholder written in place of secret values.
const Redacted = "***"

var secretName = regexp.MustCompile(`(?i)(secret|passw(or)?d|token|credential|api_?key|private|access_?key)`)

// IsSecretName reports whether a parameter name looks like it holds a
// credential.
func IsSecretName(name string) bool {
	return secretName.MatchString(name)
}

// Redact returns a copy with secret looking values replaced. Objects nested
// in objects or arrays are redacted as well.
func (p Parameters) Redact() Parameters {
	if p == nil {
		return nil
	}
	out := make(Parameters, len(p))
	for i, param := range p {
		out[i] = Param{Name: param.Name, Value: redactValue(param.Name, param.Value)}
	}
	return out
}

func redactValue(name string, raw json.RawMessage) json.RawMessage {
	if IsSecretName(name) && !isNull(raw) {
		placeholder, _ := json.Marshal(Redacted)
		return placeholder
	}
	return redactNested(raw)
}

// redactNested walks objects and arrays so that secret keys are found at any
// depth.
func redactNested(raw json.RawMessage) json.RawMessage {
	if IsScalar(raw) {
		return raw
	}
	var encoded []byte
	var err error
	if bytes.TrimSpace(raw)[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return raw
		}
		for i, item := range items {
			items[i] = redactNested(item)
		}
		encoded, err = json.Marshal(items)
	} else {
		var nested Parameters
		if err := json.Unmarshal(raw, &nested); err != nil {
			return raw
		}
		encoded, err = json.Marshal(nested.Redact())
	}
	if err != nil {
		return raw
	}
	return encoded
}

package domain

import (
	"encoding/json"
	"fmt"
)

// DecodeObject decodes a JSON object keyed by exact member name. Unlike
// decoding into a struct, "KID" and "kid" stay distinct members.
func DecodeObject(data []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v", ErrInvalidFormat, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidFormat)
	}
	return obj, nil
}

// StringMember reads the member called exactly name. An absent or null
// member reports ok=false; any other non-string value is ErrInvalidFormat.
func StringMember(obj map[string]json.RawMessage, name string) (value string, ok bool, err error) {
	raw, present := obj[name]
	if !present || string(raw) == "null" {
		return "", false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false, fmt.Errorf("%w: member %q must be a string", ErrInvalidFormat, name)
	}
	return value, true, nil
}

func stringMembers(obj map[string]json.RawMessage, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		v, _, err := StringMember(obj, name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

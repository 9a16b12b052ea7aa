package license

import (
	"bytes"
	"encoding/json"
)

// Fields 保存签发方自定义的附加字段，按出现顺序保留原始 JSON 字节
type Fields struct {
	keys   []string
	values map[string]json.RawMessage
}

func newFields() *Fields {
	return &Fields{values: make(map[string]json.RawMessage)}
}

func (f *Fields) set(key string, raw json.RawMessage) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = bytes.Clone(raw)
}

// Len returns the number of extra fields.
func (f *Fields) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns the field names in the order the issuer wrote them.
func (f *Fields) Keys() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.keys...)
}

// Raw returns a copy of the verbatim JSON value stored under key.
func (f *Fields) Raw(key string) (json.RawMessage, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.values[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Decode unmarshals the value stored under key into v.
func (f *Fields) Decode(key string, v any) (bool, error) {
	raw, ok := f.Raw(key)
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// MarshalJSON writes the fields as a JSON object, preserving order and bytes.
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if f != nil {
		for i, k := range f.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
			buf.Write(f.values[k])
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

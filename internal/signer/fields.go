package signer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Field is one member of an ordered JSON object.
type Field struct {
	Key   string
	Value any
}

// Fields is a JSON object that keeps member order on both encode and
// decode. Providers that sign the serialized body need the byte layout to
// be stable.
type Fields []Field

// Set replaces the value of key, or appends it when absent.
func (f Fields) Set(key string, value any) Fields {
	for i := range f {
		if f[i].Key == key {
			f[i].Value = value
			return f
		}
	}
	return append(f, Field{Key: key, Value: value})
}

func (f Fields) Get(key string) (any, bool) {
	for _, fd := range f {
		if fd.Key == key {
			return fd.Value, true
		}
	}
	return nil, false
}

// Without returns a copy of f lacking key.
func (f Fields) Without(key string) Fields {
	out := make(Fields, 0, len(f))
	for _, fd := range f {
		if fd.Key != key {
			out = append(out, fd)
		}
	}
	return out
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fd := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalNoEscape(fd.Key)
		if err != nil {
			return nil, fmt.Errorf("MarshalJSON: key %q: %w", fd.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := marshalNoEscape(fd.Value)
		if err != nil {
			return nil, fmt.Errorf("MarshalJSON: value of %q: %w", fd.Key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeOrdered parses a JSON document keeping object member order.
// Objects become Fields, arrays []any, numbers json.Number.
func DecodeOrdered(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, fmt.Errorf("DecodeOrdered: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("DecodeOrdered: trailing data after document")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := Fields{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj = obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return t, nil
	}
}

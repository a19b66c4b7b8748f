// Package json decodes export documents into an order-preserving value tree.
//
// The export's dynamic maps (chat titles, room ids) carry meaning in their key
// order: rows are emitted in document order, so SQL output and validation
// samples are stable across runs. encoding/json's map[string]any loses that
// order, so objects are materialized as *Object instead.
//
// Value model:
//   - nil, bool, string
//   - int64 for integral numbers that fit, float64 otherwise
//   - []any for arrays
//   - *Object for objects
package json

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Object is a JSON object that remembers key order.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Set stores v under k. A new key is appended; an existing key keeps its position.
func (o *Object) Set(k string, v any) {
	if _, ok := o.values[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.values[k] = v
}

// Get returns the value under k.
func (o *Object) Get(k string) (any, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[k]
	return v, ok
}

// Keys returns the keys in document order. The slice must not be modified.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// MarshalJSON writes the object with its original key order.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Decode reads exactly one JSON value from r.
//
// Errors:
//   - Returns a wrapped syntax error for malformed input.
//   - Returns an error if trailing non-whitespace data follows the value.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("json: empty document")
		}
		return nil, fmt.Errorf("json: read first token: %w", err)
	}
	v, err := materializeValueFromFirstToken(dec, tok)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("json: trailing data: %w", err)
		}
		return nil, fmt.Errorf("json: trailing data after document")
	}
	return v, nil
}

// DecodeString is Decode over a string.
func DecodeString(s string) (any, error) {
	return Decode(strings.NewReader(s))
}

// materializeValueFromFirstToken builds a value for the current JSON value,
// given its first token has already been read.
func materializeValueFromFirstToken(dec *json.Decoder, tok any) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return scalar(tok)
	}

	switch d {
	case '{':
		obj := NewObject()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read object key: %w", err)
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("json: object key not string (got %T)", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read value for key %q: %w", k, err)
			}
			v, err := materializeValueFromFirstToken(dec, vt)
			if err != nil {
				return nil, err
			}
			obj.Set(k, v)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("json: read array value token: %w", err)
			}
			v, err := materializeValueFromFirstToken(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
		return arr, nil

	default:
		return nil, fmt.Errorf("json: unexpected delimiter %q", d)
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if end != want {
		return fmt.Errorf("json: expected %q, got %v", want, end)
	}
	return nil
}

func scalar(tok any) (any, error) {
	switch t := tok.(type) {
	case nil, bool, string:
		return t, nil
	case json.Number:
		return Number(t)
	default:
		return nil, fmt.Errorf("json: unexpected token %T", tok)
	}
}

// Number converts a json.Number to int64 when it is integral and fits,
// and to float64 otherwise.
func Number(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("json: number %q: %w", s, err)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), nil
	}
	return f, nil
}

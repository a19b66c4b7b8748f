package json

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecode_PreservesObjectKeyOrder(t *testing.T) {
	// Contract:
	//   - Object keys are returned in document order, not sorted.
	//   - Nested objects are *Object as well.
	//   - MarshalJSON writes keys back in the same order.
	t.Parallel()

	v, err := DecodeString(`{"z": 1, "a": {"y": true, "b": null}, "m": [1, "x"]}`)
	if err != nil {
		t.Fatalf("DecodeString() err=%v, want nil", err)
	}
	obj, ok := v.(*Object)
	if !ok {
		t.Fatalf("root type=%T, want *Object", v)
	}
	if got := strings.Join(obj.Keys(), ","); got != "z,a,m" {
		t.Fatalf("keys=%q, want %q", got, "z,a,m")
	}
	inner, _ := obj.Get("a")
	innerObj, ok := inner.(*Object)
	if !ok {
		t.Fatalf("a type=%T, want *Object", inner)
	}
	if got := strings.Join(innerObj.Keys(), ","); got != "y,b" {
		t.Fatalf("a.keys=%q, want %q", got, "y,b")
	}

	b, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("Marshal err=%v", err)
	}
	if want := `{"z":1,"a":{"y":true,"b":null},"m":[1,"x"]}`; string(b) != want {
		t.Fatalf("Marshal=%s, want %s", b, want)
	}
}

func TestDecode_Numbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want any
	}{
		{in: `120`, want: int64(120)},
		{in: `-7`, want: int64(-7)},
		{in: `1.5`, want: 1.5},
		{in: `2.0`, want: int64(2)},
		{in: `1e3`, want: int64(1000)},
		{in: `1e300`, want: 1e300},
		{in: `18446744073709551616`, want: 18446744073709551616.0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeString(tt.in)
			if err != nil {
				t.Fatalf("DecodeString(%q) err=%v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("DecodeString(%q)=%#v (%T), want %#v (%T)", tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{``, `{"a":`, `[1,2`, `{"a":1} {"b":2}`, `{"a" 1}`} {
		if _, err := DecodeString(in); err == nil {
			t.Fatalf("DecodeString(%q) err=nil, want error", in)
		}
	}
}

func TestObject_SetExistingKeyKeepsPosition(t *testing.T) {
	t.Parallel()

	o := NewObject()
	o.Set("a", 1)
	o.Set("b", 2)
	o.Set("a", 3)
	if got := strings.Join(o.Keys(), ","); got != "a,b" {
		t.Fatalf("keys=%q, want a,b", got)
	}
	if v, _ := o.Get("a"); v != 3 {
		t.Fatalf("a=%v, want 3", v)
	}
	var nilObj *Object
	if nilObj.Len() != 0 || nilObj.Keys() != nil {
		t.Fatalf("nil object should be empty")
	}
}

// Package value implements a tagged dynamic value used for task
// parameters and ext payloads, generalizing the Ext-field probing
// helpers (GetExtString/GetExtInt/...) used throughout the task
// package into a typed tree that survives a JSON round trip without
// panicking on an unexpected underlying Go type.
package value

import (
	"encoding/json"
	"fmt"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// Value is a tagged union over the JSON value space.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	m    Map
}

// Map is a string-keyed collection of Values, the parameter bag shape
// tasks and ext fields are built from.
type Map map[string]Value

func Null() Value                 { return Value{kind: KindNull} }
func NewBool(b bool) Value        { return Value{kind: KindBool, b: b} }
func NewNumber(n float64) Value   { return Value{kind: KindNumber, n: n} }
func NewInt(n int) Value          { return Value{kind: KindNumber, n: float64(n)} }
func NewString(s string) Value    { return Value{kind: KindString, s: s} }
func NewList(items []Value) Value { return Value{kind: KindList, list: items} }
func NewMap(m Map) Value          { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) AsMap() (Map, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// GetString/GetInt/GetBool/GetMap mirror the BaseExecutor ext-field
// accessors: a missing key or type mismatch returns the zero value
// instead of an error, matching how task executors treat optional
// parameters.
func (m Map) GetString(key string) string {
	s, _ := m[key].AsString()
	return s
}

func (m Map) GetInt(key string) int {
	n, _ := m[key].AsNumber()
	return int(n)
}

func (m Map) GetFloat(key string) float64 {
	n, _ := m[key].AsNumber()
	return n
}

func (m Map) GetBool(key string) bool {
	b, _ := m[key].AsBool()
	return b
}

func (m Map) GetMap(key string) Map {
	sub, _ := m[key].AsMap()
	return sub
}

func (m Map) GetList(key string) []Value {
	l, _ := m[key].AsList()
	return l
}

func (m Map) Set(key string, v Value) {
	m[key] = v
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.m)
	}
	return nil, fmt.Errorf("value: unknown kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func fromAny(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return NewBool(t)
	case float64:
		return NewNumber(t)
	case string:
		return NewString(t)
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, e := range t {
			items = append(items, fromAny(e))
		}
		return NewList(items)
	case map[string]interface{}:
		m := make(Map, len(t))
		for k, e := range t {
			m[k] = fromAny(e)
		}
		return NewMap(m)
	default:
		return Null()
	}
}

// FromJSON decodes a raw JSON object into a Map, the entry point for
// parsing a task's incoming parameter payload.
func FromJSON(data []byte) (Map, error) {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, fmt.Errorf("value: top-level JSON is not an object")
	}
	return m, nil
}

func (m Map) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToInterfaceMap converts m to a plain map[string]interface{} via a
// JSON round trip, the shape callers outside this package (workflow
// arguments, cache fingerprinting) build their own structures from.
func (m Map) ToInterfaceMap() (map[string]interface{}, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Package xmlrpc implements the XML-RPC dialect spoken by Odoo: a codec for
// the six scalar/composite wire kinds, an HTTP transport, and a session-aware
// client for authenticate/execute_kw calls.
package xmlrpc

import (
	"sort"
	"strconv"
)

// Kind enumerates the wire value variants a response can decode into.
type Kind int

const (
	KindNil Kind = iota
	KindString
	KindInt
	KindDouble
	KindBool
	KindArray
	KindStruct
	KindDateTime
	KindBase64
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "boolean"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindDateTime:
		return "dateTime"
	case KindBase64:
		return "base64"
	}
	return "unknown"
}

// Value is a decoded wire value. It is a closed tagged union: consumers
// switch on Kind() instead of type-asserting an interface{}.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	bl   bool
	arr  []Value
	mem  map[string]Value
}

func Nil() Value              { return Value{kind: KindNil} }
func String(s string) Value   { return Value{kind: KindString, str: s} }
func Int(i int64) Value       { return Value{kind: KindInt, num: i} }
func Double(f float64) Value  { return Value{kind: KindDouble, flt: f} }
func Bool(b bool) Value       { return Value{kind: KindBool, bl: b} }
func Array(vs ...Value) Value { return Value{kind: KindArray, arr: vs} }

// DateTime and Base64 carry their raw wire text; callers that need them
// interpreted do so themselves.
func DateTime(s string) Value { return Value{kind: KindDateTime, str: s} }
func Base64(s string) Value   { return Value{kind: KindBase64, str: s} }

func Struct(members map[string]Value) Value {
	return Value{kind: KindStruct, mem: members}
}

func (v Value) Kind() Kind { return v.kind }

// Str returns the string content for String, DateTime and Base64 values.
func (v Value) Str() string { return v.str }

func (v Value) Int() int64 { return v.num }

func (v Value) Float() float64 {
	if v.kind == KindInt {
		return float64(v.num)
	}
	return v.flt
}

func (v Value) Bool() bool { return v.bl }

// Items returns the elements of an Array value in wire order.
func (v Value) Items() []Value { return v.arr }

// Member looks up a struct member by name.
func (v Value) Member(name string) (Value, bool) {
	m, ok := v.mem[name]
	return m, ok
}

// MemberNames returns the struct member names in sorted order.
func (v Value) MemberNames() []string {
	names := make([]string, 0, len(v.mem))
	for name := range v.mem {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsTruthy reports whether the value is non-zero in the sense Odoo uses for
// authenticate results: false, 0, empty string and nil are all falsy.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.bl
	case KindInt:
		return v.num != 0
	case KindDouble:
		return v.flt != 0
	case KindString:
		return v.str != ""
	case KindArray:
		return len(v.arr) > 0
	case KindStruct:
		return len(v.mem) > 0
	}
	return true
}

// GoString renders a compact debug form, mostly for log lines.
func (v Value) GoString() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindString:
		return strconv.Quote(v.str)
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindDouble:
		return strconv.FormatFloat(v.flt, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.bl)
	case KindArray:
		out := "["
		for i, item := range v.arr {
			if i > 0 {
				out += " "
			}
			out += item.GoString()
		}
		return out + "]"
	case KindStruct:
		out := "{"
		for i, name := range v.MemberNames() {
			if i > 0 {
				out += " "
			}
			m := v.mem[name]
			out += name + ":" + m.GoString()
		}
		return out + "}"
	case KindDateTime, KindBase64:
		return v.kind.String() + "(" + v.str + ")"
	}
	return "unknown"
}

package controls

import "fmt"

// Value is a tagged variant over the four control payload shapes. The
// Kind field is the discriminant; exactly one of the payload fields is
// meaningful.
type Value struct {
	Kind Kind
	Int  int32    // KindInt and KindEnum (raw device code)
	Bool bool     // KindBool
	Pair [2]int32 // KindPair, UVC field order (e.g. pan then tilt)
}

func Int(v int32) Value { return Value{Kind: KindInt, Int: v} }

func Bool(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Enum wraps a raw device code. Enum values are wire-identical to ints;
// the engine never remaps codes to symbolic names.
func Enum(code int32) Value { return Value{Kind: KindEnum, Int: code} }

func Pair(first, second int32) Value {
	return Value{Kind: KindPair, Pair: [2]int32{first, second}}
}

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return "on"
		}
		return "off"
	case KindPair:
		return fmt.Sprintf("%d,%d", v.Pair[0], v.Pair[1])
	}
	return fmt.Sprintf("%d", v.Int)
}

package resp

import (
	"errors"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value
type Kind int

// Kinds of a decoded reply
const (
	KindNil Kind = iota
	KindBool
	KindInteger
	KindDouble
	KindBulkString
	KindStatus
	KindVerbatim
	KindError
	KindArray
	KindMap
)

var kindNames = [...]string{
	KindNil:        "nil",
	KindBool:       "bool",
	KindInteger:    "integer",
	KindDouble:     "double",
	KindBulkString: "bulk",
	KindStatus:     "status",
	KindVerbatim:   "verbatim",
	KindError:      "error",
	KindArray:      "array",
	KindMap:        "map",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Value is a decoded reply. Only the fields matching Kind are set.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	Bytes  []byte // bulk, status and verbatim payloads, error message
	Format string // verbatim format tag, e.g. "txt"
	Elems  []Value
	Pairs  []Pair
}

// Pair is one key/value entry of a map reply
type Pair struct {
	Key   Value
	Value Value
}

// NilValue returns a Nil reply
func NilValue() Value { return Value{Kind: KindNil} }

// IntValue returns an Integer reply
func IntValue(i int64) Value { return Value{Kind: KindInteger, Int: i} }

// DoubleValue returns a Double reply
func DoubleValue(f float64) Value { return Value{Kind: KindDouble, Float: f} }

// BoolValue returns a Bool reply
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// BulkValue returns a BulkString reply
func BulkValue(s string) Value { return Value{Kind: KindBulkString, Bytes: []byte(s)} }

// StatusValue returns a Status reply
func StatusValue(s string) Value { return Value{Kind: KindStatus, Bytes: []byte(s)} }

// ErrorValue returns an Error reply
func ErrorValue(msg string) Value { return Value{Kind: KindError, Bytes: []byte(msg)} }

// ArrayValue returns an Array reply
func ArrayValue(elems ...Value) Value { return Value{Kind: KindArray, Elems: elems} }

// MapValue returns a Map reply
func MapValue(pairs ...Pair) Value { return Value{Kind: KindMap, Pairs: pairs} }

// IsNil reports whether v is Nil
func (v Value) IsNil() bool { return v.Kind == KindNil }

// IsError reports whether v is an in-band error reply
func (v Value) IsError() bool { return v.Kind == KindError }

// Text returns the payload of string-like kinds and the message of errors
func (v Value) Text() (string, bool) {
	switch v.Kind {
	case KindBulkString, KindStatus, KindVerbatim, KindError:
		return string(v.Bytes), true
	}
	return "", false
}

// String renders v the way redis-cli prints a reply
func (v Value) String() string {
	var b strings.Builder
	v.render(&b, "")
	return b.String()
}

func (v Value) render(b *strings.Builder, indent string) {
	switch v.Kind {
	case KindNil:
		b.WriteString("(nil)")
	case KindBool:
		b.WriteString("(boolean) ")
		b.WriteString(strconv.FormatBool(v.Bool))
	case KindInteger:
		b.WriteString("(integer) ")
		b.WriteString(strconv.FormatInt(v.Int, 10))
	case KindDouble:
		b.WriteString("(double) ")
		b.WriteString(strconv.FormatFloat(v.Float, 'g', -1, 64))
	case KindBulkString:
		b.WriteString(strconv.Quote(string(v.Bytes)))
	case KindStatus, KindVerbatim:
		b.Write(v.Bytes)
	case KindError:
		b.WriteString("(error) ")
		b.Write(v.Bytes)
	case KindArray:
		if len(v.Elems) == 0 {
			b.WriteString("(empty array)")
			return
		}
		for i, e := range v.Elems {
			if i > 0 {
				b.WriteString("\n")
				b.WriteString(indent)
			}
			prefix := strconv.Itoa(i+1) + ") "
			b.WriteString(prefix)
			e.render(b, indent+strings.Repeat(" ", len(prefix)))
		}
	case KindMap:
		if len(v.Pairs) == 0 {
			b.WriteString("(empty hash)")
			return
		}
		for i, p := range v.Pairs {
			if i > 0 {
				b.WriteString("\n")
				b.WriteString(indent)
			}
			prefix := strconv.Itoa(i+1) + "# "
			b.WriteString(prefix)
			p.Key.render(b, indent+strings.Repeat(" ", len(prefix)))
			b.WriteString(" => ")
			p.Value.render(b, indent+strings.Repeat(" ", len(prefix)+4))
		}
	}
}

// Interface converts v to plain Go values: nil, bool, int64, float64, string,
// []interface{} and map[interface{}]interface{}. Error replies become error values.
// Map keys that are arrays or maps are keyed by their String form.
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInteger:
		return v.Int
	case KindDouble:
		return v.Float
	case KindBulkString, KindStatus, KindVerbatim:
		return string(v.Bytes)
	case KindError:
		return errors.New(string(v.Bytes))
	case KindArray:
		out := make([]interface{}, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[interface{}]interface{}, len(v.Pairs))
		for _, p := range v.Pairs {
			var key interface{}
			switch p.Key.Kind {
			case KindArray, KindMap, KindError:
				key = p.Key.String()
			default:
				key = p.Key.Interface()
			}
			out[key] = p.Value.Interface()
		}
		return out
	}
	return nil
}

// Decode converts a parsed frame into a Value. Integers beyond the int64 range
// become Double, odd sized maps and unknown frame types are protocol errors.
func Decode(n *Node) (Value, error) {
	if n == nil {
		return NilValue(), nil
	}
	if n.Null {
		return NilValue(), nil
	}

	switch n.Type {
	case TypeBulkString, TypeBigNumber:
		return Value{Kind: KindBulkString, Bytes: clone(n.Str)}, nil
	case TypeSimpleString:
		return Value{Kind: KindStatus, Bytes: clone(n.Str)}, nil
	case TypeVerbatim:
		if len(n.Str) < 4 || n.Str[3] != ':' {
			return Value{}, ErrInvalidProtocol
		}
		return Value{Kind: KindVerbatim, Format: string(n.Str[:3]), Bytes: clone(n.Str[4:])}, nil
	case TypeError, TypeBlobError:
		return Value{Kind: KindError, Bytes: clone(n.Str)}, nil
	case TypeInteger:
		i, err := strconv.ParseInt(string(n.Str), 10, 64)
		if err == nil {
			return IntValue(i), nil
		}
		if !errors.Is(err, strconv.ErrRange) {
			return Value{}, ErrInvalidProtocol
		}
		f, err := strconv.ParseFloat(string(n.Str), 64)
		if err != nil {
			return Value{}, ErrInvalidProtocol
		}
		return DoubleValue(f), nil
	case TypeDouble:
		f, err := strconv.ParseFloat(string(n.Str), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return Value{}, ErrInvalidProtocol
		}
		return DoubleValue(f), nil
	case TypeBoolean:
		return BoolValue(len(n.Str) == 1 && n.Str[0] == 't'), nil
	case TypeNull:
		return NilValue(), nil
	case TypeArray, TypeSet, TypePush:
		elems := make([]Value, len(n.Elems))
		for i, e := range n.Elems {
			v, err := Decode(e)
			if err != nil {
				return Value{}, err
			}
			elems[i] = v
		}
		return Value{Kind: KindArray, Elems: elems}, nil
	case TypeMap, TypeAttribute:
		if len(n.Elems)%2 != 0 {
			return Value{}, ErrInvalidProtocol
		}
		pairs := make([]Pair, 0, len(n.Elems)/2)
		for i := 0; i < len(n.Elems); i += 2 {
			k, err := Decode(n.Elems[i])
			if err != nil {
				return Value{}, err
			}
			v, err := Decode(n.Elems[i+1])
			if err != nil {
				return Value{}, err
			}
			pairs = append(pairs, Pair{Key: k, Value: v})
		}
		return Value{Kind: KindMap, Pairs: pairs}, nil
	}
	return Value{}, ErrInvalidProtocol
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

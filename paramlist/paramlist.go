// Package paramlist implements §4.K's ParamList sum type and its
// EXT_PUT_PARAMS wire encoding: a key/ordered collection of typed values,
// append-only in write mode and iteration-only in read mode.
package paramlist

import (
	"math"

	"github.com/bandspool/clist/clerr"
	"github.com/bandspool/clist/opcode"
	"github.com/bandspool/clist/varint"
)

// Kind discriminates a Value's payload type.
type Kind byte

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindLong
	KindInt64
	KindSizeT
	KindFloat
	KindString
	KindName
	KindDict
	KindDictIntKeys
	KindIntArray
	KindFloatArray
	KindStringArray
	KindNameArray
)

// Value is one ParamList entry's payload. V holds the native Go value
// matching Kind:
//
//	KindBool          bool
//	KindInt           int32
//	KindLong          int64
//	KindInt64         int64
//	KindSizeT         uint64
//	KindFloat         float64
//	KindString        string
//	KindName          string
//	KindDict          *List
//	KindDictIntKeys   map[int32]Value
//	KindIntArray      []int32
//	KindFloatArray    []float64
//	KindStringArray   []string
//	KindNameArray     []string
type Value struct {
	Kind Kind
	V    any
}

func Null() Value                         { return Value{Kind: KindNull} }
func Bool(b bool) Value                   { return Value{Kind: KindBool, V: b} }
func Int(v int32) Value                   { return Value{Kind: KindInt, V: v} }
func Long(v int64) Value                  { return Value{Kind: KindLong, V: v} }
func Int64(v int64) Value                 { return Value{Kind: KindInt64, V: v} }
func SizeT(v uint64) Value                { return Value{Kind: KindSizeT, V: v} }
func Float(v float64) Value               { return Value{Kind: KindFloat, V: v} }
func String(v string) Value               { return Value{Kind: KindString, V: v} }
func Name(v string) Value                 { return Value{Kind: KindName, V: v} }
func Dict(v *List) Value                  { return Value{Kind: KindDict, V: v} }
func DictIntKeys(v map[int32]Value) Value { return Value{Kind: KindDictIntKeys, V: v} }
func IntArray(v []int32) Value            { return Value{Kind: KindIntArray, V: v} }
func FloatArray(v []float64) Value        { return Value{Kind: KindFloatArray, V: v} }
func StringArray(v []string) Value        { return Value{Kind: KindStringArray, V: v} }
func NameArray(v []string) Value          { return Value{Kind: KindNameArray, V: v} }

type entry struct {
	Key   string
	Value Value
}

// Mode selects whether a List accepts Put (write) or only Next (read).
type Mode int

const (
	ModeWrite Mode = iota
	ModeRead
)

// List is a ParamList: ordered key/Value pairs, append-only in write mode,
// rewindable-iteration-only in read mode.
type List struct {
	mode    Mode
	entries []entry
	pos     int
}

// NewWriter returns an empty write-mode list.
func NewWriter() *List { return &List{mode: ModeWrite} }

// newReader returns a read-mode list wrapping entries (as produced by
// Decode), with iteration positioned at the start.
func newReader(entries []entry) *List { return &List{mode: ModeRead, entries: entries} }

// Put appends key/v to a write-mode list. It is an error to call Put on a
// read-mode list.
func (l *List) Put(key string, v Value) error {
	if l.mode != ModeWrite {
		return clerr.New(clerr.KindTypeCheck, "paramlist.Put", "list is in read mode")
	}
	l.entries = append(l.entries, entry{Key: key, Value: v})
	return nil
}

// Len returns the number of entries.
func (l *List) Len() int { return len(l.entries) }

// Next returns the next key/Value pair in iteration order and advances the
// cursor. ok is false once every entry has been returned. Works in either
// mode, so a just-built write-mode list can be inspected directly.
func (l *List) Next() (key string, v Value, ok bool) {
	if l.pos >= len(l.entries) {
		return "", Value{}, false
	}
	e := l.entries[l.pos]
	l.pos++
	return e.Key, e.Value, true
}

// Reset rewinds the iteration cursor to the start.
func (l *List) Reset() { l.pos = 0 }

// Get looks up key by linear scan without disturbing the iteration cursor.
func (l *List) Get(key string) (Value, bool) {
	for _, e := range l.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Encode serializes l as the EXT_PUT_PARAMS body: the two-byte
// Extend/ExtPutParams opcode prefix, a varint length, then the blob.
func Encode(l *List) []byte {
	blob := encodeEntries(l.entries)
	out := []byte{byte(opcode.Extend), byte(opcode.ExtPutParams)}
	out = varint.Encode(out, uint64(len(blob)))
	return append(out, blob...)
}

func encodeEntries(entries []entry) []byte {
	var out []byte
	out = varint.Encode(out, uint64(len(entries)))
	for _, e := range entries {
		out = encodeString(out, e.Key)
		out = encodeValue(out, e.Value)
	}
	return out
}

func encodeString(dst []byte, s string) []byte {
	dst = varint.Encode(dst, uint64(len(s)))
	return append(dst, s...)
}

func encodeValue(dst []byte, v Value) []byte {
	dst = append(dst, byte(v.Kind))
	switch v.Kind {
	case KindNull:
	case KindBool:
		if v.V.(bool) {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case KindInt:
		dst = varint.EncodeSigned(dst, v.V.(int32))
	case KindLong, KindInt64:
		dst = encodeInt64(dst, v.V.(int64))
	case KindSizeT:
		dst = varint.Encode(dst, v.V.(uint64))
	case KindFloat:
		dst = encodeFloat(dst, v.V.(float64))
	case KindString, KindName:
		dst = encodeString(dst, v.V.(string))
	case KindDict:
		dst = append(dst, encodeEntries(v.V.(*List).entries)...)
	case KindDictIntKeys:
		m := v.V.(map[int32]Value)
		dst = varint.Encode(dst, uint64(len(m)))
		for _, kv := range sortedIntKeys(m) {
			dst = varint.EncodeSigned(dst, kv.Key)
			dst = encodeValue(dst, kv.Val)
		}
	case KindIntArray:
		a := v.V.([]int32)
		dst = varint.Encode(dst, uint64(len(a)))
		for _, x := range a {
			dst = varint.EncodeSigned(dst, x)
		}
	case KindFloatArray:
		a := v.V.([]float64)
		dst = varint.Encode(dst, uint64(len(a)))
		for _, x := range a {
			dst = encodeFloat(dst, x)
		}
	case KindStringArray, KindNameArray:
		a := v.V.([]string)
		dst = varint.Encode(dst, uint64(len(a)))
		for _, x := range a {
			dst = encodeString(dst, x)
		}
	}
	return dst
}

// sortedIntKeys returns m's (key, value) pairs in ascending key order, so
// encoding is deterministic across runs.
func sortedIntKeys(m map[int32]Value) []struct {
	Key int32
	Val Value
} {
	keys := make([]int32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	out := make([]struct {
		Key int32
		Val Value
	}, len(keys))
	for i, k := range keys {
		out[i] = struct {
			Key int32
			Val Value
		}{k, m[k]}
	}
	return out
}

func encodeInt64(dst []byte, v int64) []byte {
	return varint.Encode(dst, uint64(v))
}

func decodeInt64(src []byte) (int64, int) {
	v, n := varint.Decode(src)
	return int64(v), n
}

func encodeFloat(dst []byte, v float64) []byte {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		dst = append(dst, byte(bits>>(56-8*i)))
	}
	return dst
}

func decodeFloat(src []byte) (float64, int) {
	var bits uint64
	for i := 0; i < 8; i++ {
		bits = bits<<8 | uint64(src[i])
	}
	return math.Float64frombits(bits), 8
}

// Decode parses an EXT_PUT_PARAMS blob (the bytes following the
// Extend/ExtPutParams opcode pair and its length prefix) into a read-mode
// List.
func Decode(blob []byte) (*List, error) {
	entries, _, err := decodeEntries(blob)
	if err != nil {
		return nil, err
	}
	return newReader(entries), nil
}

// DecodeCommand parses a full EXT_PUT_PARAMS command (the two opcode bytes,
// the varint blob length, and the blob itself) and returns the decoded list
// plus the total number of bytes consumed.
func DecodeCommand(src []byte) (*List, int, error) {
	if len(src) < 2 || src[0] != byte(opcode.Extend) || src[1] != byte(opcode.ExtPutParams) {
		return nil, 0, clerr.New(clerr.KindSyntaxError, "paramlist.DecodeCommand", "not an EXT_PUT_PARAMS command")
	}
	n, adv := varint.Decode(src[2:])
	if adv == 0 {
		return nil, 0, clerr.New(clerr.KindSyntaxError, "paramlist.DecodeCommand", "truncated blob length")
	}
	start := 2 + adv
	if start+int(n) > len(src) {
		return nil, 0, clerr.New(clerr.KindSyntaxError, "paramlist.DecodeCommand", "truncated blob")
	}
	l, err := Decode(src[start : start+int(n)])
	if err != nil {
		return nil, 0, err
	}
	return l, start + int(n), nil
}

func decodeEntries(src []byte) ([]entry, int, error) {
	count, n := varint.Decode(src)
	if n == 0 && len(src) > 0 {
		return nil, 0, clerr.New(clerr.KindSyntaxError, "paramlist.Decode", "truncated entry count")
	}
	off := n
	entries := make([]entry, 0, count)
	for i := uint64(0); i < count; i++ {
		key, kn, err := decodeString(src[off:])
		if err != nil {
			return nil, 0, err
		}
		off += kn
		val, vn, err := decodeValue(src[off:])
		if err != nil {
			return nil, 0, err
		}
		off += vn
		entries = append(entries, entry{Key: key, Value: val})
	}
	return entries, off, nil
}

func decodeString(src []byte) (string, int, error) {
	n, adv := varint.Decode(src)
	if adv == 0 {
		return "", 0, clerr.New(clerr.KindSyntaxError, "paramlist.decodeString", "truncated string length")
	}
	if adv+int(n) > len(src) {
		return "", 0, clerr.New(clerr.KindSyntaxError, "paramlist.decodeString", "truncated string bytes")
	}
	return string(src[adv : adv+int(n)]), adv + int(n), nil
}

func decodeValue(src []byte) (Value, int, error) {
	if len(src) == 0 {
		return Value{}, 0, clerr.New(clerr.KindSyntaxError, "paramlist.decodeValue", "truncated value")
	}
	kind := Kind(src[0])
	off := 1
	switch kind {
	case KindNull:
		return Value{Kind: kind}, off, nil
	case KindBool:
		return Value{Kind: kind, V: src[off] != 0}, off + 1, nil
	case KindInt:
		v, n := varint.DecodeSigned(src[off:])
		return Value{Kind: kind, V: v}, off + n, nil
	case KindLong, KindInt64:
		v, n := decodeInt64(src[off:])
		return Value{Kind: kind, V: v}, off + n, nil
	case KindSizeT:
		v, n := varint.Decode(src[off:])
		return Value{Kind: kind, V: v}, off + n, nil
	case KindFloat:
		v, n := decodeFloat(src[off:])
		return Value{Kind: kind, V: v}, off + n, nil
	case KindString, KindName:
		s, n, err := decodeString(src[off:])
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, V: s}, off + n, nil
	case KindDict:
		entries, n, err := decodeEntries(src[off:])
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, V: newReader(entries)}, off + n, nil
	case KindDictIntKeys:
		count, n := varint.Decode(src[off:])
		off += n
		m := make(map[int32]Value, count)
		for i := uint64(0); i < count; i++ {
			k, kn := varint.DecodeSigned(src[off:])
			off += kn
			val, vn, err := decodeValue(src[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += vn
			m[k] = val
		}
		return Value{Kind: kind, V: m}, off, nil
	case KindIntArray:
		count, n := varint.Decode(src[off:])
		off += n
		a := make([]int32, count)
		for i := range a {
			v, vn := varint.DecodeSigned(src[off:])
			off += vn
			a[i] = v
		}
		return Value{Kind: kind, V: a}, off, nil
	case KindFloatArray:
		count, n := varint.Decode(src[off:])
		off += n
		a := make([]float64, count)
		for i := range a {
			v, vn := decodeFloat(src[off:])
			off += vn
			a[i] = v
		}
		return Value{Kind: kind, V: a}, off, nil
	case KindStringArray, KindNameArray:
		count, n := varint.Decode(src[off:])
		off += n
		a := make([]string, count)
		for i := range a {
			s, sn, err := decodeString(src[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += sn
			a[i] = s
		}
		return Value{Kind: kind, V: a}, off, nil
	}
	return Value{}, 0, clerr.New(clerr.KindTypeCheck, "paramlist.decodeValue", "unknown value kind")
}

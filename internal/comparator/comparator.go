// Package comparator implements the typed value comparisons the filter
// engine applies between a candidate's previously observed bytes and a
// freshly read buffer.
package comparator

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"

	"github.com/dorastack/memscan/internal/scantypes"
)

// Compare applies method to (comparand, fresh) under dataType's
// semantics. comparand is either the candidate's prior value or, for
// filter method "exact", the request's own pattern bytes — the caller
// picks which one to pass. Unsupported (type, method) combinations
// report no match rather than an error, matching the comparator table.
func Compare(dataType scantypes.DataType, method scantypes.FilterMethod, comparand, fresh []byte) (bool, error) {
	switch method {
	case scantypes.MethodIncreased, scantypes.MethodDecreased:
		if !dataType.IsNumeric() {
			return false, nil
		}
		return ordered(dataType, method, comparand, fresh)
	case scantypes.MethodExact, scantypes.MethodUnchanged:
		switch dataType {
		case scantypes.Regex:
			return false, nil // exact-regex matching goes through MatchRegex, not Compare
		default:
			return equal(dataType, comparand, fresh)
		}
	case scantypes.MethodChanged:
		switch dataType {
		case scantypes.Regex:
			return false, nil
		default:
			eq, err := equal(dataType, comparand, fresh)
			if err != nil {
				return false, err
			}
			return !eq, nil
		}
	default:
		return false, fmt.Errorf("comparator: unknown filter method %q", method)
	}
}

// MatchRegex reports whether data matches the compiled pattern, the
// comparator used for the regex data type's "exact" filter method.
func MatchRegex(pattern string, data []byte) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("comparator: invalid regex %q: %w", pattern, err)
	}
	return re.Match(data), nil
}

func equal(dataType scantypes.DataType, a, b []byte) (bool, error) {
	width := dataType.Width()
	switch dataType {
	case scantypes.Int8, scantypes.Uint8, scantypes.Int16, scantypes.Uint16,
		scantypes.Int32, scantypes.Uint32, scantypes.Int64, scantypes.Uint64:
		if len(a) < width || len(b) < width {
			return false, ErrShortValue
		}
		return bytes.Equal(a[:width], b[:width]), nil
	case scantypes.Float:
		if len(a) < 4 || len(b) < 4 {
			return false, ErrShortValue
		}
		fa := math.Float32frombits(binary.LittleEndian.Uint32(a))
		fb := math.Float32frombits(binary.LittleEndian.Uint32(b))
		return fa == fb, nil // NaN == NaN is false in Go, matching IEEE-754 ordering
	case scantypes.Double:
		if len(a) < 8 || len(b) < 8 {
			return false, ErrShortValue
		}
		da := math.Float64frombits(binary.LittleEndian.Uint64(a))
		db := math.Float64frombits(binary.LittleEndian.Uint64(b))
		return da == db, nil
	case scantypes.UTF8, scantypes.UTF16, scantypes.AOB:
		return bytes.Equal(a, b), nil
	default:
		return false, fmt.Errorf("comparator: unsupported data type %q", dataType)
	}
}

func ordered(dataType scantypes.DataType, method scantypes.FilterMethod, a, b []byte) (bool, error) {
	want := method == scantypes.MethodIncreased // b > a when true, b < a when false
	width := dataType.Width()
	if len(a) < width || len(b) < width {
		return false, ErrShortValue
	}

	switch dataType {
	case scantypes.Int8:
		va, vb := int8(a[0]), int8(b[0])
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Uint8:
		va, vb := a[0], b[0]
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Int16:
		va := int16(binary.LittleEndian.Uint16(a))
		vb := int16(binary.LittleEndian.Uint16(b))
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Uint16:
		va, vb := binary.LittleEndian.Uint16(a), binary.LittleEndian.Uint16(b)
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Int32:
		va := int32(binary.LittleEndian.Uint32(a))
		vb := int32(binary.LittleEndian.Uint32(b))
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Uint32:
		va, vb := binary.LittleEndian.Uint32(a), binary.LittleEndian.Uint32(b)
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Int64:
		va := int64(binary.LittleEndian.Uint64(a))
		vb := int64(binary.LittleEndian.Uint64(b))
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Uint64:
		va, vb := binary.LittleEndian.Uint64(a), binary.LittleEndian.Uint64(b)
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Float:
		va := math.Float32frombits(binary.LittleEndian.Uint32(a))
		vb := math.Float32frombits(binary.LittleEndian.Uint32(b))
		return cmp(want, vb > va, vb < va), nil
	case scantypes.Double:
		va := math.Float64frombits(binary.LittleEndian.Uint64(a))
		vb := math.Float64frombits(binary.LittleEndian.Uint64(b))
		return cmp(want, vb > va, vb < va), nil
	default:
		return false, nil
	}
}

func cmp(wantIncreased, greater, less bool) bool {
	if wantIncreased {
		return greater
	}
	return less
}

// Package scantypes holds the small enumerations shared by the scanner,
// filter engine, comparator, and serializer: numeric data type, find type,
// and filter method.
package scantypes

// DataType is the interpretation applied to the bytes at a candidate
// address.
type DataType string

const (
	Int8   DataType = "int8"
	Uint8  DataType = "uint8"
	Int16  DataType = "int16"
	Uint16 DataType = "uint16"
	Int32  DataType = "int32"
	Uint32 DataType = "uint32"
	Int64  DataType = "int64"
	Uint64 DataType = "uint64"
	Float  DataType = "float"
	Double DataType = "double"
	UTF8   DataType = "utf-8"
	UTF16  DataType = "utf-16"
	AOB    DataType = "aob"
	Regex  DataType = "regex"
)

// Width returns the fixed byte width of a numeric type, or 0 for types
// whose width depends on the value (utf-8, utf-16, aob, regex).
func (d DataType) Width() int {
	switch d {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float:
		return 4
	case Int64, Uint64, Double:
		return 8
	default:
		return 0
	}
}

// IsNumeric reports whether d supports ordered comparison (increased /
// decreased).
func (d DataType) IsNumeric() bool {
	switch d {
	case Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, Float, Double:
		return true
	default:
		return false
	}
}

// FindType selects a scan's first-pass strategy.
type FindType string

const (
	FindExact   FindType = "exact"
	FindUnknown FindType = "unknown"
)

// FilterMethod is the comparator applied during an Nth-pass filter.
type FilterMethod string

const (
	MethodExact     FilterMethod = "exact"
	MethodChanged   FilterMethod = "changed"
	MethodUnchanged FilterMethod = "unchanged"
	MethodIncreased FilterMethod = "increased"
	MethodDecreased FilterMethod = "decreased"
)

package tensor

import "fmt"

// DType is the primitive element type tag of a tensor.
type DType string

const (
	Float16 DType = "float16"
	Float32 DType = "float32"
	Float64 DType = "float64"
	Int8    DType = "int8"
	Int32   DType = "int32"
	Int64   DType = "int64"
	Uint8   DType = "uint8"
	Bool    DType = "bool"
)

var knownDTypes = map[DType]struct{}{
	Float16: {}, Float32: {}, Float64: {},
	Int8: {}, Int32: {}, Int64: {}, Uint8: {}, Bool: {},
}

// ParseDType validates a dtype tag.
func ParseDType(s string) (DType, error) {
	d := DType(s)
	if _, ok := knownDTypes[d]; !ok {
		return "", fmt.Errorf("unknown dtype %q", s)
	}
	return d, nil
}

// IsFloat reports whether the dtype is a floating point type.
func (d DType) IsFloat() bool {
	return d == Float16 || d == Float32 || d == Float64
}

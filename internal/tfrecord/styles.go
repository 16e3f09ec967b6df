package tfrecord

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Array is a dense n-dimensional array. Exactly one of Float32 or Bool holds
// the flattened row-major values, depending on the writer style.
type Array struct {
	Shape   []int
	Float32 []float32
	Bool    []bool
}

// Size returns the number of elements implied by the shape.
func (a Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Style encodes arrays into Example payloads and back.
type Style interface {
	Name() string
	Encode(a Array) ([]byte, error)
	Decode(payload []byte) (Array, error)
}

// Writer style names accepted in the writer_style key of a data config.
const (
	FloatArrayStyle = "numpy_float_array_as_tfrecord"
	BoolArrayStyle  = "numpy_bool_array_as_tfrecord"
)

var styles = map[string]Style{
	FloatArrayStyle: floatArrayStyle{},
	BoolArrayStyle:  boolArrayStyle{},
}

// Lookup returns the writer style registered under name.
func Lookup(name string) (Style, error) {
	s, ok := styles[name]
	if !ok {
		return nil, fmt.Errorf("unknown writer style '%s' — must be one of: %s", name, joinNames(Styles()))
	}
	return s, nil
}

// Styles returns the registered writer style names in sorted order.
func Styles() []string {
	names := make([]string, 0, len(styles))
	for n := range styles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// The shape feature holds the dimensions as little-endian int64 values and
// the data feature holds the flattened values.
const (
	shapeKey = "shape"
	dataKey  = "data"
)

type floatArrayStyle struct{}

func (floatArrayStyle) Name() string { return FloatArrayStyle }

func (floatArrayStyle) Encode(a Array) ([]byte, error) {
	if err := checkSize(a, len(a.Float32)); err != nil {
		return nil, err
	}
	data := make([]byte, 4*len(a.Float32))
	for i, v := range a.Float32 {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return EncodeExample(map[string][]byte{
		shapeKey: encodeShape(a.Shape),
		dataKey:  data,
	}), nil
}

func (floatArrayStyle) Decode(payload []byte) (Array, error) {
	shape, data, err := decodeFeatures(payload)
	if err != nil {
		return Array{}, err
	}
	if len(data)%4 != 0 {
		return Array{}, fmt.Errorf("float data length %d is not a multiple of 4", len(data))
	}
	a := Array{Shape: shape, Float32: make([]float32, len(data)/4)}
	for i := range a.Float32 {
		a.Float32[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return a, checkSize(a, len(a.Float32))
}

type boolArrayStyle struct{}

func (boolArrayStyle) Name() string { return BoolArrayStyle }

func (boolArrayStyle) Encode(a Array) ([]byte, error) {
	if err := checkSize(a, len(a.Bool)); err != nil {
		return nil, err
	}
	data := make([]byte, len(a.Bool))
	for i, v := range a.Bool {
		if v {
			data[i] = 1
		}
	}
	return EncodeExample(map[string][]byte{
		shapeKey: encodeShape(a.Shape),
		dataKey:  data,
	}), nil
}

func (boolArrayStyle) Decode(payload []byte) (Array, error) {
	shape, data, err := decodeFeatures(payload)
	if err != nil {
		return Array{}, err
	}
	a := Array{Shape: shape, Bool: make([]bool, len(data))}
	for i, b := range data {
		a.Bool[i] = b != 0
	}
	return a, checkSize(a, len(a.Bool))
}

func checkSize(a Array, n int) error {
	for _, d := range a.Shape {
		if d < 0 {
			return fmt.Errorf("negative dimension in shape %v", a.Shape)
		}
	}
	if a.Size() != n {
		return fmt.Errorf("shape %v holds %d values, got %d", a.Shape, a.Size(), n)
	}
	return nil
}

func encodeShape(shape []int) []byte {
	b := make([]byte, 8*len(shape))
	for i, d := range shape {
		binary.LittleEndian.PutUint64(b[8*i:], uint64(int64(d)))
	}
	return b
}

func decodeFeatures(payload []byte) ([]int, []byte, error) {
	feats, err := DecodeExample(payload)
	if err != nil {
		return nil, nil, err
	}
	rawShape, ok := feats[shapeKey]
	if !ok {
		return nil, nil, fmt.Errorf("example has no '%s' feature", shapeKey)
	}
	data, ok := feats[dataKey]
	if !ok {
		return nil, nil, fmt.Errorf("example has no '%s' feature", dataKey)
	}
	if len(rawShape)%8 != 0 {
		return nil, nil, fmt.Errorf("shape length %d is not a multiple of 8", len(rawShape))
	}
	shape := make([]int, len(rawShape)/8)
	for i := range shape {
		shape[i] = int(int64(binary.LittleEndian.Uint64(rawShape[8*i:])))
	}
	return shape, data, nil
}

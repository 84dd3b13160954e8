package comm

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Number is the set of types that Sum and Prod work on.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// An Op is a binary reduction operator.
//
// Reductions apply an Op to values in rank order, so the
// operator must be associative but need not be
// commutative.
// An Op must not modify its arguments.
type Op[T any] struct {
	name string
	fn   func(a, b T) T
}

// Name returns the name of the operator.
// Ranks running the same Reduce must use operators with
// the same name.
func (o Op[T]) Name() string {
	return o.name
}

// Apply combines two values.
func (o Op[T]) Apply(a, b T) T {
	return o.fn(a, b)
}

// Custom creates an operator from a function.
func Custom[T any](name string, fn func(a, b T) T) Op[T] {
	if fn == nil {
		panic("nil reduction function")
	}
	return Op[T]{name: name, fn: fn}
}

// Sum adds values.
func Sum[T Number]() Op[T] {
	return Op[T]{name: "sum", fn: func(a, b T) T { return a + b }}
}

// Prod multiplies values.
func Prod[T Number]() Op[T] {
	return Op[T]{name: "prod", fn: func(a, b T) T { return a * b }}
}

// Min keeps the smaller value.
func Min[T cmp.Ordered]() Op[T] {
	return Op[T]{name: "min", fn: func(a, b T) T { return min(a, b) }}
}

// Max keeps the larger value.
func Max[T cmp.Ordered]() Op[T] {
	return Op[T]{name: "max", fn: func(a, b T) T { return max(a, b) }}
}

// VecSum adds vectors element-wise.
//
// Like the other vector operators, it panics if the
// vectors differ in length.
func VecSum() Op[[]float64] {
	return Op[[]float64]{name: "vec-sum", fn: func(a, b []float64) []float64 {
		return floats.AddTo(make([]float64, len(a)), a, b)
	}}
}

// VecProd multiplies vectors element-wise.
func VecProd() Op[[]float64] {
	return Op[[]float64]{name: "vec-prod", fn: func(a, b []float64) []float64 {
		return floats.MulTo(make([]float64, len(a)), a, b)
	}}
}

// VecMin takes the element-wise minimum of vectors.
func VecMin() Op[[]float64] {
	return Op[[]float64]{name: "vec-min", fn: func(a, b []float64) []float64 {
		return vecZip(a, b, func(x, y float64) float64 { return min(x, y) })
	}}
}

// VecMax takes the element-wise maximum of vectors.
func VecMax() Op[[]float64] {
	return Op[[]float64]{name: "vec-max", fn: func(a, b []float64) []float64 {
		return vecZip(a, b, func(x, y float64) float64 { return max(x, y) })
	}}
}

func vecZip(a, b []float64, f func(x, y float64) float64) []float64 {
	if len(a) != len(b) {
		panic("floats: slice lengths do not match")
	}
	res := slices.Clone(a)
	for i, y := range b {
		res[i] = f(res[i], y)
	}
	return res
}

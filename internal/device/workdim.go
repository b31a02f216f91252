package device

import "fmt"

// WorkDim describes a rank-1..3 global index space for a kernel launch.
// Axes are ordered outermost first.
type WorkDim struct {
	dims [3]int
	rank int
}

// Dim1 builds a rank-1 index space.
func Dim1(x int) WorkDim { return WorkDim{dims: [3]int{x, 1, 1}, rank: 1} }

// Dim2 builds a rank-2 index space.
func Dim2(y, x int) WorkDim { return WorkDim{dims: [3]int{y, x, 1}, rank: 2} }

// Dim3 builds a rank-3 index space.
func Dim3(z, y, x int) WorkDim { return WorkDim{dims: [3]int{z, y, x}, rank: 3} }

// Rank returns the number of axes.
func (w WorkDim) Rank() int { return w.rank }

// Get returns the extent along one axis.
func (w WorkDim) Get(axis int) int { return w.dims[axis] }

// Total returns the flattened extent of the space.
func (w WorkDim) Total() int {
	n := 1
	for i := 0; i < w.rank; i++ {
		n *= w.dims[i]
	}
	return n
}

// CeilDiv computes the per-axis ceiling division by a group size, i.e.
// the number of groups needed to cover the space.
func (w WorkDim) CeilDiv(group WorkDim) WorkDim {
	out := WorkDim{rank: w.rank}
	for i := 0; i < w.rank; i++ {
		out.dims[i] = (w.dims[i] + group.dims[i] - 1) / group.dims[i]
	}
	for i := w.rank; i < 3; i++ {
		out.dims[i] = 1
	}
	return out
}

func (w WorkDim) String() string {
	switch w.rank {
	case 1:
		return fmt.Sprintf("[%d]", w.dims[0])
	case 2:
		return fmt.Sprintf("[%d %d]", w.dims[0], w.dims[1])
	default:
		return fmt.Sprintf("[%d %d %d]", w.dims[0], w.dims[1], w.dims[2])
	}
}

// WorkItem is the per-invocation coordinate of a kernel launch. The
// dispatcher guarantees every delivered coordinate is within the true
// global extent; padded grid positions are dropped before invocation.
type WorkItem struct {
	id     [3]int
	global WorkDim
}

// ID returns the coordinate along one axis.
func (it WorkItem) ID(axis int) int { return it.id[axis] }

// Range returns the global extent along one axis.
func (it WorkItem) Range(axis int) int { return it.global.dims[axis] }

// Linear returns the flattened coordinate.
func (it WorkItem) Linear() int {
	n := it.id[0]
	for i := 1; i < it.global.rank; i++ {
		n = n*it.global.dims[i] + it.id[i]
	}
	return n
}

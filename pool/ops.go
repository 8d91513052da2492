// File: pool/ops.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Buffer operations applied while iterating a pool. Process returns false
// to stop the iteration.

package pool

type Operation interface {
	Process(b *Buffer) bool
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(b *Buffer) bool

func (f OperationFunc) Process(b *Buffer) bool { return f(b) }

type and []Operation

func (ops and) Process(b *Buffer) bool {
	for _, op := range ops {
		if !op.Process(b) {
			return false
		}
	}
	return true
}

// And applies ops in order, stopping at the first that returns false.
func And(ops ...Operation) Operation { return and(ops) }

// Predicated applies op only to buffers matching pred; others are skipped
// and the iteration continues.
func Predicated(pred func(*Buffer) bool, op Operation) Operation {
	return OperationFunc(func(b *Buffer) bool {
		if !pred(b) {
			return true
		}
		return op.Process(b)
	})
}

// Mutexed applies op while holding the buffer's flush lock.
func Mutexed(op Operation) Operation {
	return OperationFunc(func(b *Buffer) bool {
		b.LockFlush()
		defer b.UnlockFlush()
		return op.Process(b)
	})
}

// Excluded applies op to excluded buffers only.
func Excluded(op Operation) Operation {
	return Predicated((*Buffer).Excluded, op)
}

// NotExcluded applies op to buffers that are not excluded.
func NotExcluded(op Operation) Operation {
	return Predicated(func(b *Buffer) bool { return !b.Excluded() }, op)
}

// RetiredOnly applies op to retired buffers only.
func RetiredOnly(op Operation) Operation {
	return Predicated((*Buffer).Retired, op)
}

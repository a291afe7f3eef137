package render

import "github.com/go-drift/renderbridge/pkg/errors"

type batchState uint8

const (
	batchIdle batchState = iota
	batchOpen
)

func (s batchState) String() string {
	if s == batchOpen {
		return "inBatch"
	}
	return "idle"
}

// batchCoordinator tracks the startBatch/endBatch bracket. It is owned by the
// provider goroutine; counters that are read concurrently live in stats.
type batchCoordinator struct {
	state   batchState
	seq     uint64
	pending int64
}

// start opens a batch. A second start without an end is rejected and leaves
// the open batch untouched.
func (b *batchCoordinator) start() error {
	if b.state == batchOpen {
		return errors.ErrBatchAlreadyStarted
	}
	b.state = batchOpen
	b.seq++
	b.pending = 0
	return nil
}

// end closes the open batch and returns the number of commands it held.
func (b *batchCoordinator) end() (int64, error) {
	if b.state != batchOpen {
		return 0, errors.ErrNoActiveBatch
	}
	b.state = batchIdle
	n := b.pending
	b.pending = 0
	return n, nil
}

// record counts a command against the open batch, if any.
func (b *batchCoordinator) record() {
	if b.state == batchOpen {
		b.pending++
	}
}

package stream

import "sync/atomic"

// Sequence is a monotonic message counter starting at 0. It is never reset.
type Sequence struct {
	n atomic.Uint64
}

// Next returns the current value and advances the counter by one.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1) - 1
}

// Current returns the value the next call to Next will return.
func (s *Sequence) Current() uint64 {
	return s.n.Load()
}

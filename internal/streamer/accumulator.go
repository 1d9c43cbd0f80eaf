package streamer

import (
	"errors"
	"strings"
	"sync"

	"tutor/internal/domain"
)

var errAccumulatorFinalized = errors.New("accumulator already finalized")

// accumulator collects reply chunks in arrival order.
type accumulator struct {
	mu        sync.Mutex
	buf       strings.Builder
	chunks    int
	overflow  bool
	finalized bool
}

func (a *accumulator) Write(chunk string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return errAccumulatorFinalized
	}
	if a.buf.Len()+len(chunk) > domain.MaxReplyBytes {
		a.overflow = true
		return errors.New("reply exceeds maximum size")
	}
	a.buf.WriteString(chunk)
	a.chunks++
	return nil
}

// Finalize freezes the accumulator and returns the collected text.
func (a *accumulator) Finalize() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized = true
	return a.buf.String()
}

func (a *accumulator) Chunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks
}

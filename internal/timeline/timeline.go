// Package timeline provides frame-range values carried in submission
// settings and job payloads.
package timeline

import (
	"fmt"
	"strconv"
	"strings"
)

// BlockRange is an inclusive frame interval with a positive step,
// rendered in the conventional "1001-1100x1" form.
type BlockRange struct {
	First int
	Last  int
	Step  int
}

// NewBlockRange validates and constructs a BlockRange.
func NewBlockRange(first, last, step int) (BlockRange, error) {
	if step <= 0 {
		return BlockRange{}, fmt.Errorf("step must be positive, got %d", step)
	}
	if first > last {
		return BlockRange{}, fmt.Errorf("first frame %d after last frame %d", first, last)
	}
	return BlockRange{First: first, Last: last, Step: step}, nil
}

// ParseBlockRange parses "first-lastxstep"; the "xstep" suffix is optional
// and defaults to 1.
func ParseBlockRange(raw string) (BlockRange, error) {
	body, stepPart, hasStep := strings.Cut(raw, "x")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepPart)
		if err != nil {
			return BlockRange{}, fmt.Errorf("invalid frame range %q: bad step", raw)
		}
		step = n
	}
	firstPart, lastPart, ok := strings.Cut(body, "-")
	if !ok {
		return BlockRange{}, fmt.Errorf("invalid frame range %q: want first-last", raw)
	}
	first, err := strconv.Atoi(firstPart)
	if err != nil {
		return BlockRange{}, fmt.Errorf("invalid frame range %q: bad first frame", raw)
	}
	last, err := strconv.Atoi(lastPart)
	if err != nil {
		return BlockRange{}, fmt.Errorf("invalid frame range %q: bad last frame", raw)
	}
	return NewBlockRange(first, last, step)
}

// String renders the canonical "first-lastxstep" form.
func (r BlockRange) String() string {
	return fmt.Sprintf("%d-%dx%d", r.First, r.Last, r.Step)
}

// IsZero reports whether the range is the unset zero value.
func (r BlockRange) IsZero() bool {
	return r == BlockRange{}
}

// Len returns the number of frames the range yields. A range whose step
// is below 1 violates the constructor invariant and yields no frames.
func (r BlockRange) Len() int {
	if r.Step < 1 {
		return 0
	}
	return (r.Last-r.First)/r.Step + 1
}

// Contains reports whether the frame lies on the range's step grid.
func (r BlockRange) Contains(frame int) bool {
	if frame < r.First || frame > r.Last {
		return false
	}
	return (frame-r.First)%r.Step == 0
}

// Frames expands the range into its frame numbers.
func (r BlockRange) Frames() []int {
	n := r.Len()
	if n == 0 {
		return nil
	}
	frames := make([]int, 0, n)
	for f := r.First; f <= r.Last; f += r.Step {
		frames = append(frames, f)
	}
	return frames
}

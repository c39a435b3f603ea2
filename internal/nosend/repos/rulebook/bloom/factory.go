package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/nosend/internal/nosend/repos/rulebook"
)

// factory implements rulebook.FilterFactory using the package sizer.
type factory struct {
	sizer rulebook.FilterSizer
}

// NewFactory returns a FilterFactory that sizes filters from capacity and FP rate.
func NewFactory() rulebook.FilterFactory { return factory{sizer: NewSizer()} }

// New constructs a list filter sized for capacity lists at the target
// false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) rulebook.ListFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

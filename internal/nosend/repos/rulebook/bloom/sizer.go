package bloom

import (
	"math"

	"github.com/haukened/nosend/internal/nosend/repos/rulebook"
)

// DefaultFPRate is used when the requested rate is outside (0, 1).
const DefaultFPRate = 0.01

// minCapacity keeps small or empty rebuilds from producing a filter that
// saturates after the first few lists created at runtime.
const minCapacity = 64

// sizer implements rulebook.FilterSizer using standard formulas:
//
//	m = - (n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
//
// Results are clamped to at least 1.
type sizer struct{}

// NewSizer returns a FilterSizer implementation.
func NewSizer() rulebook.FilterSizer { return sizer{} }

func (s sizer) Size(n uint64, p float64) (uint64, uint8) {
	if n < minCapacity {
		n = minCapacity
	}
	if !(p > 0 && p < 1) {
		p = DefaultFPRate
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m == 0 {
		m = 1
	}
	k := uint8(math.Max(1, math.Round((float64(m)/float64(n))*ln2)))
	return m, k
}

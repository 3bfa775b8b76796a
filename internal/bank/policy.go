package bank

// ConsolidationPolicy decides when a learned trajectory should trigger a
// consolidation run. The trajectory count passed in is the total number of
// trajectories learned by this service instance.
type ConsolidationPolicy interface {
	ShouldConsolidate(trajectoryCount int) bool
}

// DefaultConsolidationInterval is how many learned trajectories trigger one
// consolidation run under the default policy.
const DefaultConsolidationInterval = 16

// EveryN consolidates after every n-th learned trajectory.
type EveryN struct {
	n int
}

// NewEveryN creates the modulus policy. A non-positive n falls back to
// DefaultConsolidationInterval.
func NewEveryN(n int) EveryN {
	if n <= 0 {
		n = DefaultConsolidationInterval
	}
	return EveryN{n: n}
}

// ShouldConsolidate reports whether the count has reached a multiple of n.
func (p EveryN) ShouldConsolidate(trajectoryCount int) bool {
	return trajectoryCount > 0 && trajectoryCount%p.n == 0
}

// Never is a policy that disables automatic consolidation; consolidation
// then only runs on explicit request.
type Never struct{}

// ShouldConsolidate always reports false.
func (Never) ShouldConsolidate(int) bool { return false }

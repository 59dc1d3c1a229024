// Package syncer turns freshly-applied mutations into cross-chain
// propagation jobs and dispatches them to the chains' submission endpoints.
package syncer

// Policy names a conflict resolution strategy for racing cross-chain writes.
type Policy string

const (
	// PolicyPrimaryPriority propagates on a version tie only when the write
	// originated on the primary chain. The default.
	PolicyPrimaryPriority Policy = "primary-priority"
	// PolicyLatestWins treats any tie as already reflected.
	PolicyLatestWins Policy = "latest-write-wins"
)

// Valid reports whether p names a known policy.
func (p Policy) Valid() bool {
	return p == PolicyPrimaryPriority || p == PolicyLatestWins
}

// Outcome is a propagation decision.
type Outcome int

const (
	// Propagate enqueues exactly one job carrying the value and version.
	Propagate Outcome = iota
	// Stale discards the mutation; the counterpart already reflects it.
	// The expected steady-state outcome of confirmation echoes.
	Stale
)

func (o Outcome) String() string {
	if o == Propagate {
		return "propagate"
	}
	return "stale"
}

// Decide resolves whether a write with the given version must be propagated
// to the counterpart chain, given the highest version the counterpart has
// confirmed back. Pure; all state comes in as arguments.
func Decide(p Policy, primaryChain, sourceChain string, version, mirrored int64) Outcome {
	switch {
	case version > mirrored:
		return Propagate
	case version < mirrored:
		return Stale
	default:
		// Version tie: both counters converged on the same number, which
		// only happens when writes raced. The tie-break authority decides.
		if p == PolicyPrimaryPriority && sourceChain == primaryChain {
			return Propagate
		}
		return Stale
	}
}

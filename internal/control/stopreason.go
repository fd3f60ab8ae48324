package control

// StopReason says who ended a navigation leg or a random walk. The walker and
// the navigator recognize each other's reasons, which is what keeps their
// mutual stop paths from cascading forever.
type StopReason int

const (
	StopUser StopReason = iota
	StopWalker
	StopTargetReached
	StopError
	StopShutdown
)

func (r StopReason) String() string {
	switch r {
	case StopUser:
		return "user"
	case StopWalker:
		return "walker"
	case StopTargetReached:
		return "target_reached"
	case StopError:
		return "error"
	case StopShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

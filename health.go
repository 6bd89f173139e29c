package agentfleet

import "time"

// ProbeStatus is the outcome of a single health probe.
type ProbeStatus uint8

const (
	ProbePassed ProbeStatus = iota + 1
	ProbeFailed
	ProbeSkipped
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbePassed:
		return "passed"
	case ProbeFailed:
		return "failed"
	case ProbeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText renders the status as its string form in JSON payloads.
func (s ProbeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form produced by MarshalText.
func (s *ProbeStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "passed":
		*s = ProbePassed
	case "failed":
		*s = ProbeFailed
	case "skipped":
		*s = ProbeSkipped
	default:
		*s = 0
	}
	return nil
}

// ProbeResult is one named probe's outcome within a health report.
type ProbeResult struct {
	Name    string        `json:"name"`
	Status  ProbeStatus   `json:"status"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// HealthReport is the full picture from one probe battery run. Passed is
// the conjunction of executed (non-skipped) probes. A report where every
// probe was skipped cannot pass, because liveness itself failed.
type HealthReport struct {
	Container string        `json:"container"`
	Probes    []ProbeResult `json:"probes"`
	Passed    bool          `json:"passed"`
	CheckedAt time.Time     `json:"checked_at"`
}

package agentfleet

import "time"

// CommandRequest is an operator command bound for a running container.
type CommandRequest struct {
	Container string `json:"container"`
	Command   string `json:"command"`
}

// CommandResult is the outcome of a gateway command. Succeeded is a coarse
// signal: the command ran to completion with exit code zero. A rejected or
// timed-out command never succeeds; MatchedRule carries the denylist rule
// that stopped a rejected command.
type CommandResult struct {
	Container   string        `json:"container"`
	Command     string        `json:"command"`
	MatchedRule string        `json:"matched_rule,omitempty"`
	Stdout      string        `json:"stdout,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
	ExitCode    int           `json:"exit_code"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Succeeded   bool          `json:"succeeded"`
	Detail      string        `json:"detail,omitempty"`
}

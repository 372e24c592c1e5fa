package agentstream

import (
	"errors"
	"fmt"
)

// ErrBusy is returned by Submit while a previous run is still streaming.
var ErrBusy = errors.New("agent stream already in progress")

// ErrStreamStatus reports a non-success HTTP status from the agent server.
type ErrStreamStatus struct {
	Op     string
	Status int
	Body   string
}

func (e ErrStreamStatus) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.Status, e.Body)
}

// RunError carries an error frame emitted by the agent run. The message is
// kept exactly as the server sent it.
type RunError struct {
	Kind    string
	Message string
}

func (e RunError) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return e.Message
}

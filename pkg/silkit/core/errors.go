package core

import (
	"errors"
	"fmt"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

// errInvalidState builds the error wrapped by a StateError fault when an
// operation is attempted from a state that does not permit it.
func errInvalidState(current types.State, operation string) error {
	return fmt.Errorf("%s is not valid from state %s", operation, current)
}

// errAborted is wrapped by the time-sync barrier's blocking waits once
// TimeSync.Abort has been called. Conn.Send and the other blocking calls
// do not observe it.
var errAborted = errors.New("simulation aborted")

// errStopped signals an orderly, non-error exit from a blocking
// primitive (e.g. the time-sync barrier ending a Stop, not an abort).
var errStopped = errors.New("stopped")

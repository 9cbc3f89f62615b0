package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageTaskStart   Stage = "TASK_START"
	StageTaskRetry   Stage = "TASK_RETRY"
	StageTaskDone    Stage = "TASK_DONE"
	StageTaskError   Stage = "TASK_ERROR"
	StageTaskSkipped Stage = "TASK_SKIPPED"
)

// IsTask reports whether the stage belongs to a single task rather than the run.
func (s Stage) IsTask() bool {
	switch s {
	case StageTaskStart, StageTaskRetry, StageTaskDone, StageTaskError, StageTaskSkipped:
		return true
	default:
		return false
	}
}

// Event captures one step of a scrape run.
type Event struct {
	// RunID is the 16-byte form of the run UUID.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Task is "bootstrap" or "scrape_<subreddit>"; empty for run stages.
	Task      string
	Subreddit string
	// Attempt is 1-based; zero for run stages and skipped tasks.
	Attempt int
	Seen    int
	Saved   int
	Failed  int
	// Dur is the task attempt or run wall time.
	Dur time.Duration
	// Note carries error text for failed attempts.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch {
	case e.Stage == StageRunStart, e.Stage == StageRunDone, e.Stage == StageRunError:
	case e.Stage.IsTask():
		if e.Task == "" {
			return fmt.Errorf("%s requires task", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

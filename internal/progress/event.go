package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StageTaskStart  Stage = "TASK_START"
	StageTaskDone   Stage = "TASK_DONE"
	StageTaskFailed Stage = "TASK_FAILED"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for task completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single component of crawl progress.
type Event struct {
	// RunID identifies the crawl run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or task milestone occurred.
	Stage Stage
	// Backend names the fetch backend serving the run.
	Backend string
	// URL is the detail or listing page the event refers to.
	URL string
	// Bytes carries the fetched document size.
	Bytes int64
	// StatusClass groups HTTP response codes (2xx, 3xx, etc).
	StatusClass StatusClass
	// Dur captures task latency or total run time.
	Dur time.Duration
	// Records counts extracted records on RUN_DONE.
	Records int
	// Note carries low-volume context such as the failure kind.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageTaskStart, StageTaskFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	case StageTaskDone:
		if e.URL == "" {
			return errors.New("task done requires url")
		}
		if e.StatusClass == "" {
			return errors.New("task done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for task events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}

package pipeline

import "time"

// Status of a step.
type Status string

const (
	StatusRunning Status = "Running"
	StatusDone    Status = "Complete"
	StatusFailed  Status = "Error"
	StatusSkipped Status = "Skipped"
)

// Event reports progress of one step. Current and Total count finished steps across the run;
// Total grows once the number of partitions is known.
type Event struct {
	Stage    string
	Subject  string
	Status   Status
	Message  string
	Duration time.Duration
	Current  int
	Total    int
}

package app

import (
	"fmt"
	"time"

	"github.com/brensch/climatepart/internal/pipeline"
)

// ProgressMsg updates the overall progress bar.
type ProgressMsg struct {
	Tag      string // stage of the latest step
	Current  int64
	Total    int64
	Activity string
}

// StepProgressMsg updates one row of the step table.
type StepProgressMsg struct {
	StepID      string // stage and subject
	Name        string
	Status      string // Running, Complete, Skipped, Error
	ElapsedTime time.Duration
	ErrMsg      string
}

// TaskFinishedMsg signals that the run returned.
type TaskFinishedMsg struct {
	Tag       string
	Err       error
	Result    pipeline.Result
	StartTime time.Time
	EndTime   time.Time
}

func NewProgress(tag string, current, total int64, activity string) ProgressMsg {
	return ProgressMsg{Tag: tag, Current: current, Total: total, Activity: activity}
}

func NewStepProgress(stepID, name, status string, elapsed time.Duration, errMsg string) StepProgressMsg {
	return StepProgressMsg{StepID: stepID, Name: name, Status: status, ElapsedTime: elapsed, ErrMsg: errMsg}
}

func NewTaskFinished(tag string, start time.Time, res pipeline.Result, err error) TaskFinishedMsg {
	return TaskFinishedMsg{Tag: tag, StartTime: start, EndTime: time.Now(), Result: res, Err: err}
}

// FromEvent translates a pipeline event into the messages the model consumes.
func FromEvent(e pipeline.Event) []any {
	name := e.Stage + " " + e.Subject
	errMsg := ""
	activity := e.Message
	if e.Status == pipeline.StatusFailed {
		errMsg = e.Message
		activity = "failed"
	}
	return []any{
		NewProgress(e.Stage, int64(e.Current), int64(e.Total), name+": "+activity),
		NewStepProgress(name, name, string(e.Status), e.Duration, errMsg),
	}
}

func (t TaskFinishedMsg) Error() string {
	if t.Err != nil {
		return t.Err.Error()
	}
	return ""
}

func (p ProgressMsg) String() string {
	return fmt.Sprintf("Progress %s: %d/%d", p.Tag, p.Current, p.Total)
}
func (sp StepProgressMsg) String() string {
	return fmt.Sprintf("StepProgress %s: %s", sp.StepID, sp.Status)
}
func (tf TaskFinishedMsg) String() string { return fmt.Sprintf("TaskFinished %s", tf.Tag) }

// Package task defines the central Task record, its status state machine,
// and the in-memory registry that indexes tasks for the life of the process.
package task

// Status is the lifecycle state of a task.
type Status string

// Task lifecycle states.
const (
	StatusPending      Status = "Pending"
	StatusDownloading  Status = "Downloading"
	StatusSplitting    Status = "Splitting"
	StatusTranscribing Status = "Transcribing"
	StatusMerging      Status = "Merging"
	StatusCompleted    Status = "Completed"
	StatusFailed       Status = "Failed"
	StatusCancelled    Status = "Cancelled"
	StatusPaused       Status = "Paused"
)

// validTransitions lists the legal destination states from each source state.
var validTransitions = map[Status][]Status{
	StatusPending:      {StatusDownloading, StatusFailed, StatusCancelled},
	StatusDownloading:  {StatusSplitting, StatusFailed, StatusPaused, StatusCancelled},
	StatusSplitting:    {StatusTranscribing, StatusFailed, StatusPaused, StatusCancelled},
	StatusTranscribing: {StatusMerging, StatusFailed, StatusPaused, StatusCancelled},
	StatusMerging:      {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusCompleted:    {StatusFailed},
	StatusFailed:       {StatusPending},
	StatusCancelled:    {StatusPending},
	StatusPaused:       {StatusPending, StatusFailed, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, dest := range validTransitions[from] {
		if dest == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the pipeline for a task.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsResumable reports whether a task in this status may be re-queued.
func (s Status) IsResumable() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusPaused
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

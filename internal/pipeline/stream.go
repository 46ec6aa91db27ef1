package pipeline

import (
	"context"
	"time"

	"github.com/voxetl/voxetl/internal/task"
)

const (
	streamPollInterval = 500 * time.Millisecond
	progressEpsilon    = 0.1
	progressCeiling    = 99.9
)

// Stage weights for overall progress. Completed stages contribute their full
// weight; the current stage contributes proportionally.
var stageWeights = map[task.Status]float64{
	task.StatusDownloading:  0.20,
	task.StatusSplitting:    0.10,
	task.StatusTranscribing: 0.60,
	task.StatusMerging:      0.10,
}

// stageOrder lists the pipeline stages in execution order.
var stageOrder = []task.Status{
	task.StatusDownloading,
	task.StatusSplitting,
	task.StatusTranscribing,
	task.StatusMerging,
}

// Event is one progress record emitted to a stream subscriber.
type Event struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Progress     float64   `json:"progress"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	CurrentStage string    `json:"current_stage"`
}

// Streamer observes tasks and produces progress events for subscribers.
type Streamer struct {
	pollInterval time.Duration
}

// NewStreamer creates a streamer with the default 500 ms poll interval.
func NewStreamer() *Streamer {
	return &Streamer{pollInterval: streamPollInterval}
}

// WithPollInterval overrides the poll interval, for tests.
func (s *Streamer) WithPollInterval(d time.Duration) *Streamer {
	s.pollInterval = d
	return s
}

// Stream polls the task and sends an event whenever the status changes, the
// overall progress advances by at least 0.1, or a terminal status is
// reached. The channel closes after the terminal event or when ctx is done.
// The stream never mutates status or stats.
func (s *Streamer) Stream(ctx context.Context, t *task.Task) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		var lastStatus task.Status
		lastProgress := -1.0
		first := true

		for {
			snap := t.Snapshot()
			progress := OverallProgress(snap)
			// Emitted progress never regresses for a subscriber.
			if progress < lastProgress {
				progress = lastProgress
			}

			statusChanged := first || snap.Status != lastStatus
			progressAdvanced := progress-lastProgress >= progressEpsilon
			terminal := snap.Status == task.StatusCompleted || snap.Status == task.StatusFailed

			if statusChanged || progressAdvanced || terminal {
				event := makeEvent(snap, progress)
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
				lastStatus = snap.Status
				lastProgress = progress
				first = false
			}

			if terminal {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events
}

// OverallProgress computes weighted overall progress for a task snapshot,
// capped at 99.9 until the task is Completed.
func OverallProgress(snap task.Snapshot) float64 {
	if snap.Status == task.StatusCompleted {
		return 100
	}
	// Only active pipeline stages have a defined overall progress. For
	// Pending and terminal or paused states the subscriber keeps its last
	// observed value.
	if _, ok := stageWeights[snap.Status]; !ok {
		return 0
	}

	var overall float64
	for _, stage := range stageOrder {
		if stage == snap.Status {
			overall += snap.Stats.Progress / 100 * stageWeights[stage]
			break
		}
		overall += stageWeights[stage]
	}

	overall *= 100
	if overall > progressCeiling {
		overall = progressCeiling
	}
	if overall < 0 {
		overall = 0
	}
	return overall
}

func makeEvent(snap task.Snapshot, progress float64) Event {
	event := Event{
		ID:           snap.ID,
		Status:       snap.Status.String(),
		Progress:     progress,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
		CurrentStage: snap.Status.String(),
	}
	if len(snap.Errors) > 0 {
		event.Error = snap.Errors[len(snap.Errors)-1].Message
	}
	return event
}

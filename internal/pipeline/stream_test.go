package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxetl/voxetl/internal/task"
)

func TestOverallProgress(t *testing.T) {
	tests := []struct {
		name     string
		status   task.Status
		stage    float64
		expected float64
	}{
		{"pending", task.StatusPending, 0, 0},
		{"downloading half", task.StatusDownloading, 50, 10},
		{"downloading done", task.StatusDownloading, 100, 20},
		{"splitting start", task.StatusSplitting, 0, 20},
		{"splitting half", task.StatusSplitting, 50, 25},
		{"transcribing half", task.StatusTranscribing, 50, 60},
		{"merging start", task.StatusMerging, 0, 90},
		{"merging almost done capped", task.StatusMerging, 100, 99.9},
		{"completed", task.StatusCompleted, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := task.Snapshot{
				Status: tt.status,
				Stats:  task.Stats{Progress: tt.stage},
			}
			assert.InDelta(t, tt.expected, OverallProgress(snap), 0.001)
		})
	}
}

func TestStream_EmitsTerminalAndCloses(t *testing.T) {
	tk := task.New("https://example.com/watch?v=abc")
	streamer := NewStreamer().WithPollInterval(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := streamer.Stream(ctx, tk)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tk.TryTransition(task.StatusDownloading)
		tk.SetProgress(100)
		time.Sleep(20 * time.Millisecond)
		tk.TryTransition(task.StatusSplitting)
		tk.SetProgress(100)
		time.Sleep(20 * time.Millisecond)
		tk.TryTransition(task.StatusTranscribing)
		tk.SetProgress(100)
		time.Sleep(20 * time.Millisecond)
		tk.TryTransition(task.StatusMerging)
		time.Sleep(20 * time.Millisecond)
		tk.TryTransition(task.StatusCompleted)
	}()

	var collected []Event
	for event := range events {
		collected = append(collected, event)
	}

	require.NotEmpty(t, collected)

	// The final event is terminal with exactly 100 progress.
	last := collected[len(collected)-1]
	assert.Equal(t, task.StatusCompleted.String(), last.Status)
	assert.Equal(t, float64(100), last.Progress)

	// Progress is monotone non-decreasing and within [0, 100].
	prev := -1.0
	for _, event := range collected {
		assert.GreaterOrEqual(t, event.Progress, prev)
		assert.LessOrEqual(t, event.Progress, float64(100))
		prev = event.Progress
	}

	// Observed status sequence only contains legal transitions.
	for i := 1; i < len(collected); i++ {
		from := task.Status(collected[i-1].Status)
		to := task.Status(collected[i].Status)
		if from != to {
			assert.True(t, task.CanTransition(from, to),
				"observed illegal transition %s -> %s", from, to)
		}
	}
}

func TestStream_FailedTaskCarriesError(t *testing.T) {
	tk := task.New("https://example.com/watch?v=abc")
	streamer := NewStreamer().WithPollInterval(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := streamer.Stream(ctx, tk)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tk.TryTransition(task.StatusDownloading)
		tk.AddError(task.StatusDownloading, "audio extraction failed", "")
		tk.TryTransition(task.StatusFailed)
	}()

	var last Event
	for event := range events {
		last = event
	}

	assert.Equal(t, task.StatusFailed.String(), last.Status)
	assert.Equal(t, "audio extraction failed", last.Error)
}

func TestStream_ContextCancelStops(t *testing.T) {
	tk := task.New("https://example.com/watch?v=abc")
	streamer := NewStreamer().WithPollInterval(5 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	events := streamer.Stream(ctx, tk)

	// Drain the initial event, then cancel.
	<-events
	cancel()

	select {
	case _, open := <-events:
		assert.False(t, open, "channel should close after cancel")
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after context cancellation")
	}
}

func TestStream_CapsBelowHundredUntilCompleted(t *testing.T) {
	tk := task.New("https://example.com/watch?v=abc")
	tk.TryTransition(task.StatusDownloading)
	tk.TryTransition(task.StatusSplitting)
	tk.TryTransition(task.StatusTranscribing)
	tk.TryTransition(task.StatusMerging)
	tk.SetProgress(100)

	progress := OverallProgress(tk.Snapshot())
	assert.InDelta(t, 99.9, progress, 0.001)
}

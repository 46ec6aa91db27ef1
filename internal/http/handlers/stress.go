package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// StressHandler drives synthetic load for capacity testing. The endpoint
// validates a URL the same way submission does but never enqueues a task.
type StressHandler struct {
	storageEndpoint string
	logger          *slog.Logger
}

// NewStressHandler creates a stress handler. storageEndpoint is echoed in
// the confirmation payload so load-test tooling can verify its target.
func NewStressHandler(storageEndpoint string, logger *slog.Logger) *StressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StressHandler{
		storageEndpoint: storageEndpoint,
		logger:          logger,
	}
}

// ProcessURLInput is the input for the stress endpoint. Out-of-range
// parameters are rejected with 422 before the handler runs.
type ProcessURLInput struct {
	StressMemory   bool `query:"stress_memory" doc:"Allocate and release memory"`
	StressDisk     bool `query:"stress_disk" doc:"Write and delete a scratch file"`
	StressCPU      bool `query:"stress_cpu" doc:"Generate CPU load in the background"`
	MemorySizeMB   int  `query:"memory_size_mb" minimum:"1" maximum:"1000" default:"100" doc:"Memory to allocate in MiB"`
	DiskSizeMB     int  `query:"disk_size_mb" minimum:"1" maximum:"1000" default:"100" doc:"Scratch file size in MiB"`
	CPULoadPercent int  `query:"cpu_load_percent" minimum:"0" maximum:"100" default:"50" doc:"Target CPU duty cycle"`
	CPUDurationSec int  `query:"cpu_duration_sec" minimum:"1" maximum:"300" default:"10" doc:"CPU load duration in seconds"`

	Body struct {
		URL string `json:"url" doc:"URL to validate"`
	}
}

// ProcessURLOutput is the output for the stress endpoint.
type ProcessURLOutput struct {
	Body ProcessURLResponse
}

// ProcessURLResponse confirms which loads ran and echoes the parameters.
type ProcessURLResponse struct {
	Message         string `json:"message"`
	URL             string `json:"url"`
	StressMemory    bool   `json:"stress_memory"`
	StressDisk      bool   `json:"stress_disk"`
	StressCPU       bool   `json:"stress_cpu"`
	MemorySizeMB    int    `json:"memory_size_mb,omitempty"`
	DiskSizeMB      int    `json:"disk_size_mb,omitempty"`
	CPULoadPercent  int    `json:"cpu_load_percent,omitempty"`
	CPUDurationSec  int    `json:"cpu_duration_sec,omitempty"`
	StorageEndpoint string `json:"storage_endpoint"`
}

// Register registers the stress route with the API.
func (h *StressHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "processURL",
		Method:      http.MethodPost,
		Path:        "/process-url",
		Summary:     "Synthetic load",
		Description: "Validates a URL and optionally generates memory, disk, or CPU load.",
		Tags:        []string{"System"},
	}, h.ProcessURL)
}

// ProcessURL validates the URL and runs the requested synthetic loads.
func (h *StressHandler) ProcessURL(ctx context.Context, input *ProcessURLInput) (*ProcessURLOutput, error) {
	if strings.TrimSpace(input.Body.URL) == "" {
		return nil, huma.Error400BadRequest("url must not be empty")
	}

	if input.StressMemory {
		h.stressMemory(input.MemorySizeMB)
	}
	if input.StressDisk {
		if err := h.stressDisk(input.DiskSizeMB); err != nil {
			return nil, huma.Error500InternalServerError("disk stress failed")
		}
	}
	if input.StressCPU {
		h.stressCPU(input.CPULoadPercent, time.Duration(input.CPUDurationSec)*time.Second)
	}

	resp := ProcessURLResponse{
		Message:         "URL accepted",
		URL:             input.Body.URL,
		StressMemory:    input.StressMemory,
		StressDisk:      input.StressDisk,
		StressCPU:       input.StressCPU,
		StorageEndpoint: h.storageEndpoint,
	}
	if input.StressMemory {
		resp.MemorySizeMB = input.MemorySizeMB
	}
	if input.StressDisk {
		resp.DiskSizeMB = input.DiskSizeMB
	}
	if input.StressCPU {
		resp.CPULoadPercent = input.CPULoadPercent
		resp.CPUDurationSec = input.CPUDurationSec
	}

	return &ProcessURLOutput{Body: resp}, nil
}

// stressMemory allocates the requested amount and touches every page so
// the pages are actually committed before release.
func (h *StressHandler) stressMemory(sizeMB int) {
	h.logger.Info("memory stress", slog.Int("size_mb", sizeMB))

	buf := make([]byte, sizeMB*1024*1024)
	for i := 0; i < len(buf); i += 4096 {
		buf[i] = 1
	}
	runtime.KeepAlive(buf)
}

// stressDisk writes a scratch file of the requested size and removes it.
func (h *StressHandler) stressDisk(sizeMB int) error {
	h.logger.Info("disk stress", slog.Int("size_mb", sizeMB))

	dir, err := os.MkdirTemp("", "voxetl-stress-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "stress.dat")
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	block := make([]byte, 1024*1024)
	for i := 0; i < sizeMB; i++ {
		if _, err := f.Write(block); err != nil {
			return err
		}
	}
	return f.Sync()
}

// stressCPU burns CPU at the requested duty cycle in the background so
// the response returns immediately.
func (h *StressHandler) stressCPU(loadPercent int, duration time.Duration) {
	h.logger.Info("cpu stress",
		slog.Int("load_percent", loadPercent),
		slog.Duration("duration", duration),
	)

	if loadPercent <= 0 {
		return
	}

	workers := runtime.NumCPU()
	for i := 0; i < workers; i++ {
		go func() {
			deadline := time.Now().Add(duration)
			busy := time.Duration(loadPercent) * time.Millisecond
			idle := time.Duration(100-loadPercent) * time.Millisecond

			for time.Now().Before(deadline) {
				spinUntil := time.Now().Add(busy)
				for time.Now().Before(spinUntil) {
				}
				if idle > 0 {
					time.Sleep(idle)
				}
			}
		}()
	}
}

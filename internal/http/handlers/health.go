package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// QueueStats reports worker-pool state for the health payload.
type QueueStats interface {
	QueueDepth() int
}

// HealthHandler handles the root liveness probe and the health endpoint.
type HealthHandler struct {
	version     string
	environment string
	debug       bool
	startTime   time.Time
	pool        QueueStats
	taskCount   func() int
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version, environment string, debug bool) *HealthHandler {
	return &HealthHandler{
		version:     version,
		environment: environment,
		debug:       debug,
		startTime:   time.Now(),
	}
}

// WithPool attaches the worker pool for queue metrics.
func (h *HealthHandler) WithPool(pool QueueStats) *HealthHandler {
	h.pool = pool
	return h
}

// WithTaskCount attaches a task-count source.
func (h *HealthHandler) WithTaskCount(fn func() int) *HealthHandler {
	h.taskCount = fn
	return h
}

// RootResponse is the liveness payload.
type RootResponse struct {
	Message     string `json:"message"`
	Environment string `json:"environment"`
	Debug       bool   `json:"debug"`
}

// RootInput is the input for the root endpoint.
type RootInput struct{}

// RootOutput is the output for the root endpoint.
type RootOutput struct {
	Body RootResponse
}

// HealthResponse is the health payload.
type HealthResponse struct {
	Status        string        `json:"status"`
	Timestamp     string        `json:"timestamp"`
	Version       string        `json:"version"`
	Uptime        string        `json:"uptime"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	CPU           CPUInfo       `json:"cpu"`
	Memory        MemoryInfo    `json:"memory"`
	Pipeline      PipelineStats `json:"pipeline"`
}

// CPUInfo holds load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory usage.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
}

// PipelineStats holds worker-pool counters.
type PipelineStats struct {
	QueueDepth int `json:"queue_depth"`
	Tasks      int `json:"tasks"`
}

// HealthInput is the input for the health endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the root and health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRoot",
		Method:      http.MethodGet,
		Path:        "/",
		Summary:     "Liveness probe",
		Tags:        []string{"System"},
	}, h.GetRoot)

	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including system metrics.",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetRoot returns the liveness payload.
func (h *HealthHandler) GetRoot(ctx context.Context, input *RootInput) (*RootOutput, error) {
	return &RootOutput{
		Body: RootResponse{
			Message:     "voxetl transcription service",
			Environment: h.environment,
			Debug:       h.debug,
		},
	}, nil
}

// GetHealth returns service health with system metrics.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:        "healthy",
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       h.version,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		CPU:           h.cpuInfo(),
		Memory:        h.memoryInfo(),
	}

	if h.pool != nil {
		resp.Pipeline.QueueDepth = h.pool.QueueDepth()
	}
	if h.taskCount != nil {
		resp.Pipeline.Tasks = h.taskCount()
	}

	return &HealthOutput{Body: resp}, nil
}

func (h *HealthHandler) cpuInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

func (h *HealthHandler) memoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
			info.ProcessMemoryMB = float64(memInfo.RSS) / 1024 / 1024
		}
	}

	return info
}

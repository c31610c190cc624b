package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a ledger job in a transport-friendly format.
type Job struct {
	ID           string  `json:"id"`
	ProjectID    string  `json:"projectId"`
	Operation    string  `json:"operation"`
	Input        string  `json:"input"`
	Settings     string  `json:"settings,omitempty"`
	State        string  `json:"state"`
	Output       string  `json:"output,omitempty"`
	ErrorCode    string  `json:"errorCode,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	Percent      float64 `json:"percent"`
	WorkerID     string  `json:"workerId,omitempty"`
	CreatedAt    string  `json:"createdAt,omitempty"`
	StartedAt    string  `json:"startedAt,omitempty"`
	FinishedAt   string  `json:"finishedAt,omitempty"`
}

// SubmitRequest is the POST /api/jobs payload.
type SubmitRequest struct {
	ProjectID string          `json:"projectId"`
	Operation string          `json:"operation"`
	Input     string          `json:"input"`
	Settings  SettingsPayload `json:"settings"`
}

// SettingsPayload mirrors the engine settings snapshot.
type SettingsPayload struct {
	Denoise          bool            `json:"denoise,omitempty"`
	Declip           bool            `json:"declip,omitempty"`
	StereoEnhance    bool            `json:"stereo_enhance,omitempty"`
	RemoveBackground bool            `json:"remove_background,omitempty"`
	Normalize        bool            `json:"normalize,omitempty"`
	Regions          []RegionPayload `json:"regions,omitempty"`
	Format           string          `json:"format,omitempty"`
}

// RegionPayload is one inpaint region in seconds.
type RegionPayload struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ProgressResponse reports the observable state of a project's latest job.
type ProgressResponse struct {
	JobID      string  `json:"jobId"`
	State      string  `json:"state"`
	Operation  string  `json:"operation"`
	Percent    float64 `json:"percent"`
	ErrorCode  string  `json:"errorCode,omitempty"`
	Error      string  `json:"error,omitempty"`
	ETASeconds float64 `json:"etaSeconds,omitempty"`
}

// Generation describes a named result derived from a completed job.
type Generation struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	JobID     string `json:"jobId"`
	Name      string `json:"name"`
	Artifact  string `json:"artifact"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// MetricsResponse is the monitor's latest snapshot.
type MetricsResponse struct {
	QueueDepth  int     `json:"queueDepth"`
	Running     int     `json:"running"`
	ActiveSlots int     `json:"activeSlots"`
	Capacity    int     `json:"capacity"`
	ErrorRate   float64 `json:"errorRate"`
	WindowSize  int     `json:"windowSize"`
	SampledAt   string  `json:"sampledAt,omitempty"`
	QueueAlert  bool    `json:"queueAlert"`
	ErrorAlert  bool    `json:"errorAlert"`
}

// StatusResponse aggregates daemon runtime information.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LedgerPath   string         `json:"ledgerPath"`
	LockFilePath string         `json:"lockFilePath"`
	Counts       map[string]int `json:"counts"`
	Capacity     int            `json:"capacity"`
	ActiveSlots  int            `json:"activeSlots"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// GenerationListResponse wraps a project's generations.
type GenerationListResponse struct {
	Generations []Generation `json:"generations"`
}

// CapacityRequest is the POST /api/pool/capacity payload.
type CapacityRequest struct {
	Capacity int `json:"capacity"`
}

// CapacityResponse reports the applied capacity after clamping.
type CapacityResponse struct {
	Capacity int `json:"capacity"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

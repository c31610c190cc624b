package api

import (
	"time"

	"overtone/internal/dispatch"
	"overtone/internal/engine"
	"overtone/internal/ledger"
	"overtone/internal/monitor"
)

// FromJob converts a ledger job to its API representation.
func FromJob(job *ledger.Job) Job {
	out := Job{
		ID:           job.ID,
		ProjectID:    job.ProjectID,
		Operation:    string(job.Operation),
		Input:        job.Input,
		Settings:     job.SettingsJSON,
		State:        string(job.State),
		Output:       job.Output,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		Percent:      job.Percent,
		WorkerID:     job.WorkerID,
		CreatedAt:    formatTime(&job.CreatedAt),
		StartedAt:    formatTime(job.StartedAt),
		FinishedAt:   formatTime(job.FinishedAt),
	}
	return out
}

// FromJobs converts a slice of ledger jobs.
func FromJobs(jobs []*ledger.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromGeneration converts a ledger generation.
func FromGeneration(gen *ledger.Generation) Generation {
	return Generation{
		ID:        gen.ID,
		ProjectID: gen.ProjectID,
		JobID:     gen.JobID,
		Name:      gen.Name,
		Artifact:  gen.Artifact,
		CreatedAt: formatTime(&gen.CreatedAt),
	}
}

// FromGenerations converts a slice of ledger generations.
func FromGenerations(gens []*ledger.Generation) []Generation {
	if len(gens) == 0 {
		return nil
	}
	out := make([]Generation, 0, len(gens))
	for _, gen := range gens {
		out = append(out, FromGeneration(gen))
	}
	return out
}

// FromProgress converts a dispatcher progress report.
func FromProgress(p *dispatch.Progress) ProgressResponse {
	return ProgressResponse{
		JobID:      p.JobID,
		State:      string(p.State),
		Operation:  string(p.Operation),
		Percent:    p.Percent,
		ErrorCode:  p.ErrorCode,
		Error:      p.Error,
		ETASeconds: p.ETASeconds,
	}
}

// FromSnapshot converts a monitor snapshot.
func FromSnapshot(s monitor.Snapshot) MetricsResponse {
	out := MetricsResponse{
		QueueDepth:  s.QueueDepth,
		Running:     s.Running,
		ActiveSlots: s.ActiveSlots,
		Capacity:    s.Capacity,
		ErrorRate:   s.ErrorRate,
		WindowSize:  s.WindowSize,
		QueueAlert:  s.QueueAlert,
		ErrorAlert:  s.ErrorAlert,
	}
	if !s.SampledAt.IsZero() {
		out.SampledAt = s.SampledAt.Format(dateTimeFormat)
	}
	return out
}

// ToSettings converts the API settings payload to engine settings.
func (p SettingsPayload) ToSettings() engine.Settings {
	regions := make([]engine.Region, 0, len(p.Regions))
	for _, r := range p.Regions {
		regions = append(regions, engine.Region{Start: r.Start, End: r.End})
	}
	if len(regions) == 0 {
		regions = nil
	}
	return engine.Settings{
		Denoise:          p.Denoise,
		Declip:           p.Declip,
		StereoEnhance:    p.StereoEnhance,
		RemoveBackground: p.RemoveBackground,
		Normalize:        p.Normalize,
		Regions:          regions,
		Format:           p.Format,
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}

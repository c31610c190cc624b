package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"overtone/internal/config"
)

const userAgent = "Overtone-Go/0.1.0"

// Service defines the notification surface exposed to the pool and
// monitor.
type Service interface {
	NotifyJobCompleted(ctx context.Context, projectID, operation string, duration time.Duration) error
	NotifyJobFailed(ctx context.Context, projectID, operation, errorMessage string) error
	NotifyQueueBacklog(ctx context.Context, depth, threshold int) error
	NotifyQueueRecovered(ctx context.Context, depth int) error
	NotifyErrorRateHigh(ctx context.Context, rate, threshold float64) error
	NotifyErrorRateRecovered(ctx context.Context, rate float64) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when
// configured. When no ntfy topic is configured, a noop implementation
// is returned.
func NewService(cfg *config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:    topic,
		client:      client,
		jobFailures: cfg.JobFailures,
		alerts:      cfg.Alerts,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	jobFailures bool
	alerts      bool
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, projectID, operation string, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Overtone - Job Complete",
		message: fmt.Sprintf("Finished %s for project %s in %s", strings.TrimSpace(operation), strings.TrimSpace(projectID), duration),
		tags:    []string{"overtone", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, projectID, operation, errorMessage string) error {
	if !n.jobFailures {
		return nil
	}
	errorMessage = strings.TrimSpace(errorMessage)
	if errorMessage == "" {
		errorMessage = "unknown error"
	}
	data := payload{
		title:    "Overtone - Job Failed",
		message:  fmt.Sprintf("Failed %s for project %s: %s", strings.TrimSpace(operation), strings.TrimSpace(projectID), errorMessage),
		tags:     []string{"overtone", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueBacklog(ctx context.Context, depth, threshold int) error {
	if !n.alerts {
		return nil
	}
	data := payload{
		title:    "Overtone - Queue Backlog",
		message:  fmt.Sprintf("Queue depth %d exceeds threshold %d", depth, threshold),
		tags:     []string{"overtone", "queue", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyQueueRecovered(ctx context.Context, depth int) error {
	if !n.alerts {
		return nil
	}
	data := payload{
		title:   "Overtone - Queue Recovered",
		message: fmt.Sprintf("Queue depth back to %d", depth),
		tags:    []string{"overtone", "queue", "recovered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyErrorRateHigh(ctx context.Context, rate, threshold float64) error {
	if !n.alerts {
		return nil
	}
	data := payload{
		title:    "Overtone - Error Rate High",
		message:  fmt.Sprintf("Job error rate %.1f%% exceeds threshold %.1f%%", rate*100, threshold*100),
		tags:     []string{"overtone", "errors", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyErrorRateRecovered(ctx context.Context, rate float64) error {
	if !n.alerts {
		return nil
	}
	data := payload{
		title:   "Overtone - Error Rate Recovered",
		message: fmt.Sprintf("Job error rate back to %.1f%%", rate*100),
		tags:    []string{"overtone", "errors", "recovered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Overtone - Test",
		message:  "Notification system test",
		tags:     []string{"overtone", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, string, time.Duration) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, string, string) error           { return nil }
func (noopService) NotifyQueueBacklog(context.Context, int, int) error                      { return nil }
func (noopService) NotifyQueueRecovered(context.Context, int) error                         { return nil }
func (noopService) NotifyErrorRateHigh(context.Context, float64, float64) error             { return nil }
func (noopService) NotifyErrorRateRecovered(context.Context, float64) error                 { return nil }
func (noopService) TestNotification(context.Context) error                                  { return nil }

package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"overtone/internal/config"
	"overtone/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Notifications{NtfyTopic: "", JobFailures: true, Alerts: true}
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyJobFailed(context.Background(), "project-1", "process", "boom"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	type capturedRequest struct {
		title    string
		tags     string
		priority string
		body     string
	}

	tests := []struct {
		name           string
		send           func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "job completed",
			send: func(svc notifications.Service) error {
				return svc.NotifyJobCompleted(context.Background(), "project-1", "process", 90*time.Second)
			},
			expectTitle:   "Overtone - Job Complete",
			expectMessage: "Finished process for project project-1 in 1m30s",
			expectTags:    "overtone,job,completed",
		},
		{
			name: "job failed",
			send: func(svc notifications.Service) error {
				return svc.NotifyJobFailed(context.Background(), "project-1", "inpaint", "decode input: wav: file too short")
			},
			expectTitle:    "Overtone - Job Failed",
			expectMessage:  "Failed inpaint for project project-1: decode input: wav: file too short",
			expectTags:     "overtone,job,failed",
			expectPriority: "high",
		},
		{
			name: "queue backlog",
			send: func(svc notifications.Service) error {
				return svc.NotifyQueueBacklog(context.Background(), 1200, 1000)
			},
			expectTitle:    "Overtone - Queue Backlog",
			expectMessage:  "Queue depth 1200 exceeds threshold 1000",
			expectTags:     "overtone,queue,alert",
			expectPriority: "high",
		},
		{
			name: "queue recovered",
			send: func(svc notifications.Service) error {
				return svc.NotifyQueueRecovered(context.Background(), 40)
			},
			expectTitle:   "Overtone - Queue Recovered",
			expectMessage: "Queue depth back to 40",
			expectTags:    "overtone,queue,recovered",
		},
		{
			name: "error rate high",
			send: func(svc notifications.Service) error {
				return svc.NotifyErrorRateHigh(context.Background(), 0.12, 0.05)
			},
			expectTitle:    "Overtone - Error Rate High",
			expectMessage:  "Job error rate 12.0% exceeds threshold 5.0%",
			expectTags:     "overtone,errors,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured capturedRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Notifications{
				NtfyTopic:      server.URL,
				RequestTimeout: 5,
				JobFailures:    true,
				Alerts:         true,
			}
			svc := notifications.NewService(&cfg)
			if err := tc.send(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsSuppression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed notification: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Notifications{
		NtfyTopic:   server.URL,
		JobFailures: false,
		Alerts:      false,
	}
	svc := notifications.NewService(&cfg)

	ctx := context.Background()
	if err := svc.NotifyJobFailed(ctx, "project-1", "process", "boom"); err != nil {
		t.Fatalf("suppressed job failure returned error: %v", err)
	}
	if err := svc.NotifyQueueBacklog(ctx, 5000, 1000); err != nil {
		t.Fatalf("suppressed backlog alert returned error: %v", err)
	}
	if err := svc.NotifyErrorRateHigh(ctx, 0.5, 0.05); err != nil {
		t.Fatalf("suppressed error rate alert returned error: %v", err)
	}
}

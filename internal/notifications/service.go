package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"adsplice/internal/config"
)

const userAgent = "Adsplice-Go/0.1.0"

// Event identifies a notifiable pipeline moment.
type Event string

const (
	EventAnalysisComplete    Event = "analysis_complete"
	EventPlanningComplete    Event = "planning_complete"
	EventGenerationComplete  Event = "generation_complete"
	EventCompositionComplete Event = "composition_complete"
	EventProcessingComplete  Event = "processing_complete"
	EventQueueStarted        Event = "queue_started"
	EventQueueCompleted      Event = "queue_completed"
	EventReviewRequired      Event = "review_required"
	EventError               Event = "error"
	EventTest                Event = "test"
)

// Payload carries event-specific values for message rendering.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dedup := time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		cfg:         cfg.Notifications,
		dedupWindow: dedup,
		recent:      map[string]time.Time{},
		now:         time.Now,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	cfg         config.Notifications
	dedupWindow time.Duration

	mu     sync.Mutex
	recent map[string]time.Time
	now    func() time.Time
}

// Publish renders and sends the event when its category is enabled. A
// repeat of the same message within the dedup window is dropped.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg := render(event, payload)
	if msg.body == "" {
		return nil
	}
	if n.isDuplicate(event, msg.body) {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventAnalysisComplete:
		return n.cfg.Analysis
	case EventPlanningComplete:
		return n.cfg.Planning
	case EventGenerationComplete:
		return n.cfg.Generation
	case EventCompositionComplete, EventProcessingComplete:
		return n.cfg.Composition
	case EventQueueStarted, EventQueueCompleted:
		return n.cfg.Queue
	case EventReviewRequired:
		return n.cfg.Review
	case EventError:
		return n.cfg.Errors
	default:
		return true
	}
}

func (n *ntfyService) isDuplicate(event Event, body string) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := string(event) + "\x00" + body
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.recent[key]; ok && now.Sub(last) < n.dedupWindow {
		return true
	}
	n.recent[key] = now
	for k, at := range n.recent {
		if now.Sub(at) >= n.dedupWindow {
			delete(n.recent, k)
		}
	}
	return false
}

func render(event Event, payload Payload) message {
	title := payloadString(payload, "title")
	switch event {
	case EventAnalysisComplete:
		return message{
			title: "Adsplice - Analyzed",
			body:  fmt.Sprintf("Analysis complete: %s (%.0fs)", title, payloadFloat(payload, "duration")),
			tags:  []string{"adsplice", "analyze", "completed"},
		}
	case EventPlanningComplete:
		return message{
			title: "Adsplice - Planned",
			body: fmt.Sprintf("Insertion planned: %s at %.1fs (%s)",
				title, payloadFloat(payload, "timestamp"), payloadString(payload, "tier")),
			tags: []string{"adsplice", "plan", "completed"},
		}
	case EventGenerationComplete:
		return message{
			title: "Adsplice - Generated",
			body:  fmt.Sprintf("Ad assets generated: %s", title),
			tags:  []string{"adsplice", "generate", "completed"},
		}
	case EventCompositionComplete:
		return message{
			title: "Adsplice - Composed",
			body:  fmt.Sprintf("Final video written: %s", payloadString(payload, "output")),
			tags:  []string{"adsplice", "compose", "completed"},
		}
	case EventProcessingComplete:
		return message{
			title:    "Adsplice - Complete",
			body:     fmt.Sprintf("Ready to publish: %s", title),
			tags:     []string{"adsplice", "workflow", "completed"},
			priority: "high",
		}
	case EventQueueStarted:
		return message{
			title: "Adsplice - Queue Started",
			body:  fmt.Sprintf("Started processing queue with %d items", payloadInt(payload, "count")),
			tags:  []string{"adsplice", "queue", "started"},
		}
	case EventQueueCompleted:
		return renderQueueCompleted(payload)
	case EventReviewRequired:
		return message{
			title: "Adsplice - Review Required",
			body:  fmt.Sprintf("Needs review: %s\n%s", title, payloadString(payload, "reason")),
			tags:  []string{"adsplice", "review"},
		}
	case EventError:
		return renderError(payload)
	case EventTest:
		return message{
			title:    "Adsplice - Test",
			body:     "Notification system test",
			tags:     []string{"adsplice", "test"},
			priority: "low",
		}
	default:
		return message{}
	}
}

func renderQueueCompleted(payload Payload) message {
	duration, _ := payload["duration"].(time.Duration)
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	processed := payloadInt(payload, "processed")
	failed := payloadInt(payload, "failed")
	if failed == 0 {
		return message{
			title: "Adsplice - Queue Complete",
			body:  fmt.Sprintf("Queue processing complete: %d items processed in %s", processed, durationText),
			tags:  []string{"adsplice", "queue", "completed"},
		}
	}
	return message{
		title: "Adsplice - Queue Complete (with errors)",
		body:  fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, durationText),
		tags:  []string{"adsplice", "queue", "completed"},
	}
}

func renderError(payload Payload) message {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel := payloadString(payload, "context"); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err, ok := payload["error"].(error); ok && err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}
	return message{
		title:    "Adsplice - Error",
		body:     builder.String(),
		tags:     []string{"adsplice", "error", "alert"},
		priority: "high",
	}
}

func payloadString(payload Payload, key string) string {
	if value, ok := payload[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func payloadInt(payload Payload, key string) int {
	switch value := payload[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	default:
		return 0
	}
}

func payloadFloat(payload Payload, key string) float64 {
	switch value := payload[key].(type) {
	case float64:
		return value
	case int:
		return float64(value)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Package webhook delivers domain events to subscriber endpoints.
// Deliveries fan out concurrently, never retry, and always leave a
// telemetry trace on the endpoint row.
package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"

	"github.com/docmine/server/internal/store"
)

// EventTest is the synthetic event used by endpoint test deliveries.
const EventTest = "webhook.test"

// Event is the wire body POSTed to endpoints.
type Event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
}

// Outcome is the per-endpoint delivery result. StatusCode is 0 when the
// endpoint never produced a response.
type Outcome struct {
	EndpointID uuid.UUID `json:"endpointId"`
	URL        string    `json:"url"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"statusCode"`
	Error      string    `json:"error,omitempty"`
}

// EndpointSource reads subscriber endpoints and records telemetry.
type EndpointSource interface {
	ListEnabled(ctx context.Context, ownerID uuid.UUID, eventType string) ([]store.WebhookEndpoint, error)
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*store.WebhookEndpoint, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, at time.Time, statusCode int, elapsed time.Duration) error
}

// Dispatcher fans domain events out to webhook endpoints.
type Dispatcher struct {
	endpoints EndpointSource
	client    *http.Client
	log       *slog.Logger
}

// NewDispatcher creates a Dispatcher whose deliveries time out after
// timeout per endpoint.
func NewDispatcher(endpoints EndpointSource, timeout time.Duration, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		endpoints: endpoints,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// Dispatch delivers event to every enabled endpoint the owner has
// subscribed to it, concurrently, and returns one outcome per endpoint
// in listing order. No failure short-circuits the others and nothing is
// raised to the caller; a lookup failure yields an empty list.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID uuid.UUID, event string, data interface{}) []Outcome {
	eps, err := d.endpoints.ListEnabled(ctx, ownerID, event)
	if err != nil {
		d.log.Error("webhook endpoint lookup failed", "owner_id", ownerID, "event", event, "error", err)
		return []Outcome{}
	}
	if len(eps) == 0 {
		return []Outcome{}
	}

	outcomes := make([]Outcome, len(eps))
	var wg sync.WaitGroup
	for i := range eps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = d.deliver(ctx, &eps[i], event, data)
		}(i)
	}
	wg.Wait()
	return outcomes
}

// Test fires a synthetic event at one endpoint, enabled or not. Returns
// store.ErrNotFound when the endpoint does not belong to the owner.
func (d *Dispatcher) Test(ctx context.Context, ownerID, endpointID uuid.UUID) (*Outcome, error) {
	ep, err := d.endpoints.GetByID(ctx, ownerID, endpointID)
	if err != nil {
		return nil, err
	}
	out := d.deliver(ctx, ep, EventTest, map[string]string{"message": "This is a test webhook"})
	return &out, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ep *store.WebhookEndpoint, event string, data interface{}) Outcome {
	body := Event{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := 0
	start := time.Now()
	err := requests.URL(ep.URL).
		BodyJSON(&body).
		Header("X-Webhook-Secret", ep.Secret).
		Client(d.client).
		AddValidator(nil).
		Handle(func(res *http.Response) error {
			status = res.StatusCode
			return nil
		}).
		Fetch(ctx)
	elapsed := time.Since(start)

	out := Outcome{EndpointID: ep.ID, URL: ep.URL, StatusCode: status}
	if err != nil {
		out.Error = err.Error()
	}
	out.Success = err == nil && status >= 200 && status < 300

	// Every attempt updates telemetry, reachable endpoint or not.
	if terr := d.endpoints.RecordDelivery(ctx, ep.ID, start, status, elapsed); terr != nil {
		d.log.Error("could not record webhook telemetry", "endpoint_id", ep.ID, "error", terr)
	}

	if out.Success {
		d.log.Info("webhook delivered", "endpoint_id", ep.ID, "event", event, "status", status, "elapsed", elapsed)
	} else {
		d.log.Warn("webhook delivery failed", "endpoint_id", ep.ID, "event", event, "status", status, "error", out.Error)
	}
	return out
}

package pushnotification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/taskforge-ai/taskforge/internal/eventbus"
)

// Dispatcher bridges the event bus to Web Push, notifying on events that need
// operator attention.
type Dispatcher struct {
	eventBus *eventbus.Bus
	sender   *Sender
}

func NewDispatcher(eventBus *eventbus.Bus, sender *Sender) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		sender:   sender,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	subID, ch := d.eventBus.Subscribe(256)
	defer d.eventBus.Unsubscribe(subID)

	slog.Info("push notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("push notification dispatcher stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			switch event.Type {
			case eventbus.EventTaskFailed:
				d.handleTaskFailed(ctx, event)
			case eventbus.EventAgentOffline:
				d.handleAgentOffline(ctx, event)
			}
		}
	}
}

func (d *Dispatcher) handleTaskFailed(ctx context.Context, event *eventbus.Event) {
	body := event.Payload
	if body == "" {
		body = fmt.Sprintf("Task %s failed", event.ResourceID)
	}
	d.sender.SendToAll(ctx, &NotificationPayload{
		Title: "Task Failed",
		Body:  body,
		URL:   fmt.Sprintf("/tasks/%s", event.ResourceID),
		Tag:   event.ID,
	})
}

func (d *Dispatcher) handleAgentOffline(ctx context.Context, event *eventbus.Event) {
	d.sender.SendToAll(ctx, &NotificationPayload{
		Title: "Agent Offline",
		Body:  fmt.Sprintf("Agent %s stopped responding", event.ResourceID),
		URL:   fmt.Sprintf("/agents/%s", event.ResourceID),
		Tag:   event.ID,
	})
}

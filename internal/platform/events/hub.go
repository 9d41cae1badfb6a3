package events

import (
	"context"

	"github.com/carepoint/portal/internal/platform/websocket"
)

// PatientTopic is the websocket topic carrying a patient's appointment events.
func PatientTopic(patientID string) string { return "patient:" + patientID }

// HubPublisher forwards events to the websocket clients watching the
// affected patient.
type HubPublisher struct {
	hub *websocket.Hub
}

func NewHubPublisher(hub *websocket.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(_ context.Context, event Event) error {
	if event.PatientID == "" {
		return nil
	}
	ev, err := websocket.NewEvent(event.Type, event)
	if err != nil {
		return err
	}
	p.hub.Broadcast(PatientTopic(event.PatientID), ev)
	return nil
}

package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"ledger/internal/server"
)

// EntryEvent announces a committed mutation. It identifies the entry;
// consumers fetch its contents through the service.
type EntryEvent struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Period    string    `json:"period"`
	Table     string    `json:"table"`
	EID       int       `json:"eid"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEntryEvent(ev server.Event) *EntryEvent {
	return &EntryEvent{
		ID:        uuid.NewString(),
		Command:   string(ev.Command),
		Period:    ev.Period,
		Table:     string(ev.Table),
		EID:       ev.EID,
		Timestamp: ev.At.UTC(),
	}
}

// RoutingKey is entry.<command>, so consumers can bind per command.
func (m *EntryEvent) RoutingKey() string {
	return "entry." + m.Command
}

func (m *EntryEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EntryEventFromJSON(data []byte) (*EntryEvent, error) {
	var msg EntryEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Package bus delivers typed change notifications to listeners in this
// process and, through a Transport, to buses in other processes.
package bus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventType names a notification.
type EventType string

const (
	JobPublished     EventType = "JOB_PUBLISHED"
	JobNotified      EventType = "JOB_NOTIFIED"
	ApplicationAdded EventType = "APPLICATION_ADDED"
	AppStatusChanged EventType = "APP_STATUS_CHANGED"
	DMSent           EventType = "DM_SENT"
	DMReply          EventType = "DM_REPLY"

	// AnyEvent subscribes a listener to every type.
	AnyEvent EventType = "*"
)

// Types lists the event set in a stable order.
var Types = []EventType{JobPublished, JobNotified, ApplicationAdded, AppStatusChanged, DMSent, DMReply}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Envelope is one emitted notification. Timestamp is unix milliseconds.
//
// Data decoded from a transport holds JSON values: whole numbers arrive as
// int and other numbers as float64, matching what the repositories emit.
type Envelope struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Origin    string         `json:"origin,omitempty"`
}

const (
	eventSource     = "/staffing-board/bus"
	originExtension = "origin"
)

// Encode renders env as a structured-mode CloudEvent.
func Encode(env Envelope) ([]byte, error) {
	e := cloudevents.NewEvent()
	id := env.ID
	if id == "" {
		id = uuid.NewString()
	}
	e.SetID(id)
	e.SetSource(eventSource)
	e.SetType(string(env.Type))
	e.SetTime(time.UnixMilli(env.Timestamp).UTC())
	if env.Origin != "" {
		e.SetExtension(originExtension, env.Origin)
	}
	data := env.Data
	if data == nil {
		data = map[string]any{}
	}
	if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return nil, fmt.Errorf("set event data: %w", err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return raw, nil
}

// Decode parses a CloudEvent produced by Encode.
func Decode(raw []byte) (Envelope, error) {
	var e cloudevents.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("invalid event: %w", err)
	}
	env := Envelope{
		ID:        e.ID(),
		Type:      EventType(e.Type()),
		Timestamp: e.Time().UnixMilli(),
		Data:      map[string]any{},
	}
	if len(e.Data()) > 0 {
		dec := json.NewDecoder(bytes.NewReader(e.Data()))
		dec.UseNumber()
		var data map[string]any
		if err := dec.Decode(&data); err != nil {
			return Envelope{}, fmt.Errorf("decode event data: %w", err)
		}
		for k, v := range data {
			env.Data[k] = normalizeNumber(v)
		}
	}
	var origin string
	if err := e.ExtensionAs(originExtension, &origin); err == nil {
		env.Origin = origin
	}
	return env, nil
}

// normalizeNumber replaces json.Number values with int when whole and
// float64 otherwise.
func normalizeNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeNumber(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeNumber(inner)
		}
		return t
	default:
		return v
	}
}

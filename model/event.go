package model

import (
	"fmt"
	"strings"
)

type (
	// MutationEvent is a list mutation broadcast to every subscriber.
	// The set of implementations is closed: AddEvent, RemoveEvent, MoveEvent.
	MutationEvent interface {
		Type() EventType
		Originator() DeviceId
		isMutationEvent()
	}

	// AddEvent is published after a new item was appended.
	AddEvent struct {
		OriginatorId DeviceId `json:"deviceId"`
		Id           int64    `json:"id"`
		Name         string   `json:"name"`
	}

	// RemoveEvent is published after an item was deleted.
	// Index is the position the originating device observed, receivers resolve by Id.
	RemoveEvent struct {
		OriginatorId DeviceId `json:"deviceId"`
		Id           int64    `json:"id"`
		Index        int      `json:"index"`
	}

	// MoveEvent is published after an item was repositioned.
	MoveEvent struct {
		OriginatorId DeviceId `json:"deviceId"`
		SrcId        int64    `json:"src_id"`
		DestId       int64    `json:"dest_id"`
		SrcIndex     int      `json:"src"`
		DestIndex    int      `json:"dest"`
	}
)

// Type implements MutationEvent.
func (e AddEvent) Type() EventType { return AddEventType }

// Originator implements MutationEvent.
func (e AddEvent) Originator() DeviceId { return e.OriginatorId }

func (AddEvent) isMutationEvent() {}

// Type implements MutationEvent.
func (e RemoveEvent) Type() EventType { return RemoveEventType }

// Originator implements MutationEvent.
func (e RemoveEvent) Originator() DeviceId { return e.OriginatorId }

func (RemoveEvent) isMutationEvent() {}

// Type implements MutationEvent.
func (e MoveEvent) Type() EventType { return MoveEventType }

// Originator implements MutationEvent.
func (e MoveEvent) Originator() DeviceId { return e.OriginatorId }

func (MoveEvent) isMutationEvent() {}

// String implements the stringer interface.
func (e AddEvent) String() string {
	return fmt.Sprintf("%s(%s): %d %q", e.Type(), e.OriginatorId, e.Id, e.Name)
}

// String implements the stringer interface.
func (e RemoveEvent) String() string {
	return fmt.Sprintf("%s(%s): %d [%d]", e.Type(), e.OriginatorId, e.Id, e.Index)
}

// String implements the stringer interface.
func (e MoveEvent) String() string {
	return fmt.Sprintf("%s(%s): %d [%d] -> [%d]", e.Type(), e.OriginatorId, e.SrcId, e.SrcIndex, e.DestIndex)
}

// Validate checks the event fields.
func (e AddEvent) Validate() error {
	if e.Id < 0 {
		return NewValidationError("%s: must be GTE 0", "id")
	}
	if strings.TrimSpace(e.Name) == "" {
		return NewValidationError("%s: empty", "name")
	}

	return nil
}

// Validate checks the event fields.
func (e RemoveEvent) Validate() error {
	if e.Id < 0 {
		return NewValidationError("%s: must be GTE 0", "id")
	}
	if e.Index < 0 {
		return NewValidationError("%s: must be GTE 0", "index")
	}

	return nil
}

// Validate checks the event fields.
func (e MoveEvent) Validate() error {
	if e.SrcId < 0 {
		return NewValidationError("%s: must be GTE 0", "src_id")
	}
	if e.SrcIndex < 0 {
		return NewValidationError("%s: must be GTE 0", "src")
	}
	if e.DestIndex < 0 {
		return NewValidationError("%s: must be GTE 0", "dest")
	}

	return nil
}

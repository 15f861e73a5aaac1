package model

import "time"

type (
	// DeviceId identifies the device that originated a mutation.
	DeviceId = string

	// ListItem is a single row of the shared list.
	ListItem struct {
		Id        int64     `json:"id"`
		Name      string    `json:"name"`
		Position  int       `json:"position"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

type EventType string

const (
	AddEventType    EventType = "addUser"
	RemoveEventType EventType = "removeUser"
	MoveEventType   EventType = "moveUser"
)

// DefaultTopic is the broadcast topic all list mutations are published to.
const DefaultTopic = "userslist"

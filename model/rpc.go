package model

// Get the ordered list RPC request.
type (
	ListRequest struct {
		// Requesting device
		DeviceId DeviceId
	}

	ListResponse struct {
		// Items in display order
		Items []ListItem
	}
)

// Append an item RPC request.
type (
	AddRequest struct {
		DeviceId DeviceId `json:"deviceId"`
		Name     string   `json:"name"`
	}

	AddResponse struct {
		Id   int64  `json:"id"`
		Name string `json:"name"`
	}
)

// Remove an item RPC request.
type (
	RemoveRequest struct {
		DeviceId DeviceId `json:"deviceId"`
		// Item id, the only stable correlation key
		Id int64 `json:"id"`
		// Display index observed by the device
		Index int `json:"index"`
	}

	RemoveResponse struct {
		Id    int64 `json:"id"`
		Index int   `json:"index"`
	}
)

// Move an item RPC request.
type (
	MoveRequest struct {
		DeviceId  DeviceId `json:"deviceId"`
		SrcIndex  int      `json:"src"`
		DestIndex int      `json:"dest"`
		SrcId     int64    `json:"src_id"`
		DestId    int64    `json:"dest_id"`
	}

	MoveResponse struct {
		SrcIndex  int `json:"src"`
		DestIndex int `json:"dest"`
	}
)

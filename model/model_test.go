package model

import (
	"errors"
	"net/rpc"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Codec_Decode(t *testing.T) {
	events := []MutationEvent{
		AddEvent{OriginatorId: "a", Id: 0, Name: "Alice"},
		RemoveEvent{OriginatorId: "b", Id: 3, Index: 1},
		MoveEvent{OriginatorId: "c", SrcId: 1, DestId: 2, SrcIndex: 0, DestIndex: 2},
	}

	for _, event := range events {
		raw, err := EncodeEvent(event)
		require.NoError(t, err)
		t.Logf("%s: %s", event.Type(), raw)

		decoded, err := DecodeEvent(raw)
		require.NoError(t, err, "%s", event)
		require.Equal(t, event, decoded)
	}
}

// Test checks the wire format keeps the existing event and field names.
func Test_Codec_WireFormat(t *testing.T) {
	raw := []byte(`{"event":"moveUser","data":{"deviceId":"dev","src":0,"dest":2,"src_id":5,"dest_id":7}}`)

	event, err := DecodeEvent(raw)
	require.NoError(t, err)
	require.Equal(t, MoveEvent{OriginatorId: "dev", SrcId: 5, DestId: 7, SrcIndex: 0, DestIndex: 2}, event)
}

// Test checks malformed payloads are rejected with a validation error instead of crashing.
func Test_Codec_Malformed(t *testing.T) {
	payloads := map[string]string{
		"not json":        `{"event":`,
		"not an object":   `[1, 2]`,
		"unknown event":   `{"event":"renameUser","data":{"deviceId":"a","id":1}}`,
		"missing data":    `{"event":"addUser"}`,
		"missing name":    `{"event":"addUser","data":{"deviceId":"a","id":1}}`,
		"empty name":      `{"event":"addUser","data":{"deviceId":"a","id":1,"name":""}}`,
		"string id":       `{"event":"removeUser","data":{"deviceId":"a","id":"1","index":0}}`,
		"negative index":  `{"event":"removeUser","data":{"deviceId":"a","id":1,"index":-1}}`,
		"fractional dest": `{"event":"moveUser","data":{"deviceId":"a","src":0,"dest":1.5,"src_id":1,"dest_id":2}}`,
		"missing src_id":  `{"event":"moveUser","data":{"deviceId":"a","src":0,"dest":1,"dest_id":2}}`,
	}

	for name, payload := range payloads {
		_, err := DecodeEvent([]byte(payload))
		require.ErrorIs(t, err, ErrValidation, name)
	}

	_, err := EncodeEvent(nil)
	require.ErrorIs(t, err, ErrValidation)
}

func Test_RestoreError(t *testing.T) {
	require.Nil(t, RestoreError(nil))

	typed := NewNotFoundError(3)
	require.Equal(t, typed, RestoreError(typed))

	// net/rpc flattens errors into rpc.ServerError strings
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrStorage, ErrTransport} {
		flat := rpc.ServerError(kind.Error() + ": details")
		restored := RestoreError(flat)
		require.ErrorIs(t, restored, kind)
		require.Contains(t, restored.Error(), "details")
	}

	other := errors.New("connection reset")
	require.Equal(t, other, RestoreError(other))
}

// Test applies events resolving items by id.
func Test_ApplyEvents(t *testing.T) {
	list := ItemList{{Id: 1, Name: "a"}, {Id: 2, Name: "b"}, {Id: 3, Name: "c"}}

	// Remove uses the id: the stale index is ignored
	got, err := ApplyEvents(list, RemoveEvent{Id: 3, Index: 0})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, got.Ids())
	require.Equal(t, []int64{1, 2, 3}, list.Ids(), "input modified")

	// Move by id to dest index
	got, err = ApplyEvents(list, MoveEvent{SrcId: 1, DestId: 3, SrcIndex: 0, DestIndex: 2})
	require.NoError(t, err)
	require.Equal(t, []int64{2, 3, 1}, got.Ids())

	// Dest index out of the bounds is clamped
	got, err = ApplyEvents(list, MoveEvent{SrcId: 3, SrcIndex: 2, DestIndex: 10})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, got.Ids())

	// Add appends, replayed Add and Remove are no-ops
	got, err = ApplyEvents(list,
		AddEvent{Id: 4, Name: "d"},
		AddEvent{Id: 4, Name: "d"},
		RemoveEvent{Id: 2, Index: 1},
		RemoveEvent{Id: 2, Index: 1},
	)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3, 4}, got.Ids())
	t.Logf("List:\n%s", got)

	// Move of an unknown item
	_, err = ApplyEvents(list, MoveEvent{SrcId: 42, DestIndex: 0})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = ApplyEvents(list, MoveEvent{SrcId: 1, DestIndex: -1})
	require.Error(t, err)
}

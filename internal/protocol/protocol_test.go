package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-core/internal/models"
)

func TestDecodeRegisterForms(t *testing.T) {
	for _, raw := range []string{
		`{"event":"register","data":7}`,
		`{"event":"register","data":{"user_id":7}}`,
	} {
		in, event, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, EventRegister, event)
		assert.Equal(t, Register{UserID: 7}, in)
	}

	_, event, err := Decode([]byte(`{"event":"register","data":0}`))
	assert.True(t, errors.Is(err, ErrMalformedFrame))
	assert.Equal(t, EventRegister, event)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	_, event, err := Decode([]byte(`{`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Empty(t, event)

	_, _, err = Decode([]byte(`{"data":1}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, event, err = Decode([]byte(`{"event":"nope","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.Equal(t, "nope", event)

	_, _, err = Decode([]byte(`{"event":"message"}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecodeMessage(t *testing.T) {
	in, _, err := Decode([]byte(`{"event":"message","data":{"from_user":1,"group_id":4,"text":"hi"}}`))
	require.NoError(t, err)
	msg, ok := in.(SendMessage)
	require.True(t, ok)
	assert.Equal(t, 1, msg.FromUser)
	require.NotNil(t, msg.GroupID)
	assert.Equal(t, 4, *msg.GroupID)
	assert.Nil(t, msg.ToUser)
}

func TestDecodeConnectionUpdate(t *testing.T) {
	in, _, err := Decode([]byte(`{"event":"users_connections:update","data":{"action":"send","from_user_id":1,"to_user_id":2}}`))
	require.NoError(t, err)
	assert.Equal(t, ConnectionUpdate{Action: models.ActionSend, FromUserID: 1, ToUserID: 2}, in)

	for _, raw := range []string{
		`{"event":"users_connections:update","data":{"action":"poke","from_user_id":1,"to_user_id":2}}`,
		`{"event":"users_connections:update","data":{"action":"send","from_user_id":1,"to_user_id":1}}`,
		`{"event":"users_connections:update","data":{"action":"send","from_user_id":0,"to_user_id":2}}`,
	} {
		_, _, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}

func TestDecodeMarkReadNeedsOneTarget(t *testing.T) {
	_, _, err := Decode([]byte(`{"event":"messages:read","data":{"to_user":2,"group_id":3,"message_id":9}}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, _, err = Decode([]byte(`{"event":"messages:read","data":{"to_user":2}}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	in, _, err := Decode([]byte(`{"event":"messages:read","data":{"group_id":3,"message_id":9}}`))
	require.NoError(t, err)
	assert.Equal(t, 9, in.(MarkRead).MessageID)
}

func TestDecodePresenceAndGroup(t *testing.T) {
	_, _, err := Decode([]byte(`{"event":"presence:update","data":{"presence":"sleeping"}}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, _, err = Decode([]byte(`{"event":"createGroup","data":{"name":"ops","members":[2,-1]}}`))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	in, _, err := Decode([]byte(`{"event":"createGroup","data":{"name":"ops","members":[2,3]}}`))
	require.NoError(t, err)
	assert.Equal(t, CreateGroup{Name: "ops", Members: []int{2, 3}}, in)
}

func TestEncode(t *testing.T) {
	raw, err := Encode(EventRegistered, Registered{UserID: 3})
	require.NoError(t, err)

	var f Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, EventRegistered, f.Event)
	assert.JSONEq(t, `{"user_id":3}`, string(f.Data))
}

package dispatch

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureEndpoint struct {
	sent []any
	err  error
}

func (c *captureEndpoint) SendJSON(v any) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, v)
	return nil
}

func (c *captureEndpoint) Close() error { return nil }

func TestSendBuildsReply(t *testing.T) {
	d := New(zerolog.Nop())
	ep := &captureEndpoint{}

	ok := d.Send(ep, "template_controls", true, map[string]any{"controllables": map[string]any{"a": 1}}, "")
	require.True(t, ok)
	require.Len(t, ep.sent, 1)

	reply := ep.sent[0].(Reply)
	assert.Equal(t, "template_controls", reply.Command)
	assert.Equal(t, StatusSuccess, reply.Status)
	assert.Empty(t, reply.MessageID)
	assert.NotNil(t, reply.Data)
}

func TestSendFailedStatus(t *testing.T) {
	d := New(zerolog.Nop())
	ep := &captureEndpoint{}

	require.True(t, d.Send(ep, "generate_video", false, nil, ""))
	reply := ep.sent[0].(Reply)
	assert.Equal(t, StatusFailed, reply.Status)
	assert.Nil(t, reply.Data)
}

func TestSendLiftsMessageIDFromData(t *testing.T) {
	d := New(zerolog.Nop())
	ep := &captureEndpoint{}

	d.Send(ep, "cmd", true, map[string]any{"message_id": "m-1"}, "")
	assert.Equal(t, "m-1", ep.sent[0].(Reply).MessageID)
}

func TestSendLiftsMessageIDFromNestedData(t *testing.T) {
	d := New(zerolog.Nop())
	ep := &captureEndpoint{}

	data := map[string]any{"data": map[string]any{"message_id": "m-2"}}
	d.Send(ep, "cmd", true, data, "")
	assert.Equal(t, "m-2", ep.sent[0].(Reply).MessageID)
}

func TestExplicitMessageIDWins(t *testing.T) {
	d := New(zerolog.Nop())
	ep := &captureEndpoint{}

	d.Send(ep, "cmd", true, map[string]any{"message_id": "from-data"}, "explicit")
	assert.Equal(t, "explicit", ep.sent[0].(Reply).MessageID)
}

func TestSendWithoutEndpointIsNoOp(t *testing.T) {
	d := New(zerolog.Nop())
	assert.False(t, d.Send(nil, "cmd", true, nil, ""))
}

func TestSendFailureReturnsFalse(t *testing.T) {
	d := New(zerolog.Nop())
	ep := &captureEndpoint{err: errors.New("connection reset")}
	assert.False(t, d.Send(ep, "cmd", true, nil, ""))
}

package nats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
	"github.com/caleheinzz25/realtime-energy-monitoring/natsclient"
	"github.com/caleheinzz25/realtime-energy-monitoring/reading"
	"github.com/caleheinzz25/realtime-energy-monitoring/transport"
)

func TestNew_RequiresURL(t *testing.T) {
	_, err := New("", nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestSubjectConventions(t *testing.T) {
	route := reading.DefaultRoute().WithSeparator(Separator)
	assert.Equal(t, "DATA.PM.*", route.Subscription(Wildcard))
}

func TestConnect_Unreachable(t *testing.T) {
	tr, err := New("nats://127.0.0.1:1", nil, natsclient.WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	err = tr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
}

func TestSubscribe_NotConnected(t *testing.T) {
	tr, err := New("nats://127.0.0.1:1", nil)
	require.NoError(t, err)

	err = tr.Subscribe(context.Background(), "DATA.PM.*", func(transport.Message) {})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.NoError(t, tr.Close(context.Background()))
}

package mqtt

import (
	"context"
	"crypto/tls"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caleheinzz25/realtime-energy-monitoring/errors"
)

func TestNormalizeBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://broker:1883", NormalizeBrokerURL("mqtt://broker:1883"))
	assert.Equal(t, "tcp://broker:1883", NormalizeBrokerURL("tcp://broker:1883"))
	assert.Equal(t, "ssl://broker:8883", NormalizeBrokerURL("ssl://broker:8883"))
	assert.Equal(t, "ssl://broker:8883", NormalizeBrokerURL("mqtts://broker:8883"))
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	tr, err := New(Config{BrokerURL: "mqtt://localhost:1883"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tcp://localhost:1883", tr.cfg.BrokerURL)
	assert.True(t, strings.HasPrefix(tr.ClientID(), "energy-monitor-"))
	assert.Equal(t, 10*time.Second, tr.cfg.ConnectTimeout)

	other, err := New(Config{BrokerURL: "tcp://localhost:1883"}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, tr.ClientID(), other.ClientID())
}

func TestClientOptions(t *testing.T) {
	tr, err := New(Config{BrokerURL: "tcp://localhost:1883", Username: "u", Password: "p"}, nil)
	require.NoError(t, err)

	opts := tr.clientOptions()
	assert.False(t, opts.AutoReconnect)
	assert.False(t, opts.ConnectRetry)
	assert.True(t, opts.Order)
	assert.True(t, opts.CleanSession)
	assert.Equal(t, "u", opts.Username)
	assert.Nil(t, opts.TLSConfig)

	secure := &tls.Config{MinVersion: tls.VersionTLS12}
	tr, err = New(Config{BrokerURL: "mqtts://broker:8883", TLS: secure}, nil)
	require.NoError(t, err)
	assert.Same(t, secure, tr.clientOptions().TLSConfig)
}

func TestConnect_Unreachable(t *testing.T) {
	tr, err := New(Config{BrokerURL: "tcp://127.0.0.1:1", ConnectTimeout: 2 * time.Second}, nil)
	require.NoError(t, err)

	err = tr.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransport))
	assert.True(t, errors.IsTransient(err))
	assert.NoError(t, tr.Close(context.Background()))
}

func TestConnect_ContextCancelled(t *testing.T) {
	tr, err := New(Config{BrokerURL: "tcp://10.255.255.1:1883", ConnectTimeout: 30 * time.Second}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = tr.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lisuiheng/sonic-go/audio"
	"github.com/lisuiheng/sonic-go/metrics"
	"github.com/lisuiheng/sonic-go/modem"
	"github.com/lisuiheng/sonic-go/pkg/interfaces"
	"github.com/lisuiheng/sonic-go/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu        sync.Mutex
	sent      []interfaces.Message
	in        chan interfaces.Message
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan interfaces.Message, 8)}
}

func (f *fakeTransport) Connect(context.Context) error { return nil }

func (f *fakeTransport) Send(data []byte, msgType interfaces.MessageType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, interfaces.Message{Payload: data, Type: msgType})
	return nil
}

func (f *fakeTransport) Receive() <-chan interfaces.Message { return f.in }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.in) })
	return nil
}

func (f *fakeTransport) ProtocolType() string { return "fake" }

// messages decodes the JSON messages sent so far.
func (f *fakeTransport) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, m := range f.sent {
		var v map[string]any
		if json.Unmarshal(m.Payload, &v) == nil {
			out = append(out, v)
		}
	}
	return out
}

func (f *fakeTransport) sentType(typ string) bool {
	for _, m := range f.messages() {
		if m["type"] == typ {
			return true
		}
	}
	return false
}

func testConfig() Config {
	var c Config
	c.Station = "test"
	c.Audio.Backend = "memory"
	c.Audio.PlaybackDevice = audio.DefaultDevice
	c.Audio.CaptureDevice = audio.DefaultDevice
	c.Modem.PayloadLength = 16
	c.Modem.Protocol = int(modem.DefaultProtocol)
	c.Modem.Volume = modem.DefaultVolume
	c.Scheduler.TickInterval = time.Millisecond
	return c
}

func TestNewClientValidates(t *testing.T) {
	cfg := testConfig()
	cfg.Modem.Volume = 0
	_, err := NewClient(cfg, audio.NewMemoryBackend(), ClientOptions{}, testLogger())
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewClient(testConfig(), nil, ClientOptions{}, testLogger())
	assert.Error(t, err)
	_, err = NewClient(testConfig(), audio.NewMemoryBackend(), ClientOptions{}, nil)
	assert.Error(t, err)
}

func TestClientRunWithoutDevices(t *testing.T) {
	backend := audio.NewMemoryBackend()
	backend.FailOpen(audio.Playback, errors.New("gone"))
	backend.FailOpen(audio.Capture, errors.New("gone"))

	c, err := NewClient(testConfig(), backend, ClientOptions{}, testLogger())
	require.NoError(t, err)
	assert.ErrorIs(t, c.Run(context.Background()), ErrConfiguration)
}

func TestClientRunWithBridge(t *testing.T) {
	cfg := testConfig()
	cfg.Bridge.Enabled = true
	cfg.Bridge.URL = "ws://relay.invalid/sonic"

	backend := audio.NewMemoryBackend()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	transport := newFakeTransport()

	var attempts int
	var mu sync.Mutex
	c, err := NewClient(cfg, backend, ClientOptions{
		Metrics: m,
		Backoff: utils.NewExponentialBackoffRange(time.Millisecond, 5*time.Millisecond),
		NewTransport: func(Config) (interfaces.TransportProtocol, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return nil, errors.New("relay down")
			}
			return transport, nil
		},
	}, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool { return transport.sentType("hello") }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BridgeConnects.WithLabelValues("error")))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.BridgeConnects.WithLabelValues("ok")) == 1
	}, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return c.GetStatus().BridgeConnected }, time.Second, time.Millisecond)

	// a send request from the relay is played out on the next tick
	transport.in <- interfaces.Message{Type: interfaces.MsgText, Payload: []byte(`{"type":"send","payload":"aGk=","volume":30}`)}
	assert.Eventually(t, func() bool {
		opened := backend.Opened(audio.Playback)
		return len(opened) == 1 && opened[0].QueuedBytes() > 0
	}, 2*time.Second, time.Millisecond)

	transport.in <- interfaces.Message{Type: interfaces.MsgText, Payload: []byte(`{not json`)}
	assert.Eventually(t, func() bool { return transport.sentType("error") }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	require.NoError(t, c.Close())
	assert.True(t, backend.Opened(audio.Playback)[0].Closed())
	assert.Equal(t, audio.StateIdle, c.GetStatus().State)
}

func TestClientCloseStopsRun(t *testing.T) {
	c, err := NewClient(testConfig(), audio.NewMemoryBackend(), ClientOptions{}, testLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	assert.Eventually(t, func() bool { return c.GetStatus().EngineActive }, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestClientForwardsReceivedPayloads(t *testing.T) {
	transport := newFakeTransport()
	c, err := NewClient(testConfig(), audio.NewMemoryBackend(), ClientOptions{
		NewTransport: func(Config) (interfaces.TransportProtocol, error) { return transport, nil },
	}, testLogger())
	require.NoError(t, err)

	// no bridge yet: only logged
	c.handlePayload(Payload{ID: uuid.New(), Timestamp: time.Now(), Data: []byte("x")})
	assert.Empty(t, transport.messages())

	require.NoError(t, c.connectBridge(context.Background()))
	id := uuid.New()
	c.handlePayload(Payload{ID: id, Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), Data: []byte("hi")})

	msgs := transport.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0]["type"])
	assert.Equal(t, "test", msgs[0]["station"])
	assert.Equal(t, map[string]any{
		"type":      "received",
		"id":        id.String(),
		"timestamp": "2024-05-01T12:00:00Z",
		"payload":   "aGk=",
	}, msgs[1])
}

func TestClientHandleTextMessage(t *testing.T) {
	c, err := NewClient(testConfig(), audio.NewMemoryBackend(), ClientOptions{}, testLogger())
	require.NoError(t, err)

	assert.ErrorIs(t, c.handleTextMessage([]byte(`{"type":"send","payload":"aGk="}`)), ErrNotInitialized)

	require.NoError(t, c.Scheduler().Initialize(testConfig().InitParams()))
	defer c.Scheduler().Teardown()

	assert.NoError(t, c.handleTextMessage(nil))
	assert.NoError(t, c.handleTextMessage([]byte(`{"type":"hello"}`)))
	assert.NoError(t, c.handleTextMessage([]byte(`{"type":"ping"}`)))
	assert.ErrorIs(t, c.handleTextMessage([]byte(`{"type":"send"}`)), ErrEmptyPayload)
	assert.Error(t, c.handleTextMessage([]byte(`[]`)))

	require.NoError(t, c.handleTextMessage([]byte(`{"type":"send","payload":"aGk=","protocol":5,"volume":80}`)))
	req := <-c.scheduler.txQueue
	assert.Equal(t, TxRequest{Data: []byte("hi"), Protocol: modem.ProtocolUltrasoundFastest, Volume: 80}, req)
}

func TestClientReadLines(t *testing.T) {
	c, err := NewClient(testConfig(), audio.NewMemoryBackend(), ClientOptions{}, testLogger())
	require.NoError(t, err)
	require.NoError(t, c.Scheduler().Initialize(testConfig().InitParams()))
	defer c.Scheduler().Teardown()

	long := strings.Repeat("x", 17)
	require.NoError(t, c.ReadLines(context.Background(), strings.NewReader("one\n\n"+long+"\ntwo\n")))

	require.Len(t, c.scheduler.txQueue, 2)
	assert.Equal(t, []byte("one"), (<-c.scheduler.txQueue).Data)
	assert.Equal(t, []byte("two"), (<-c.scheduler.txQueue).Data)
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motion_monitor/internal/config"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublishClient struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakePublishClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return fakeToken{err: c.err}
	}
	c.msgs = append(c.msgs, published{topic, qos, retained, payload.([]byte)})
	return fakeToken{}
}

func (c *fakePublishClient) take() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.msgs
	c.msgs = nil
	return out
}

func TestPublisherSendsOnlyChangedSensors(t *testing.T) {
	cfg := testConfig(t, config.ModeMulti)
	p, factory := newTestPipeline(t, cfg)
	client := &fakePublishClient{}
	pub := NewPublisher(client, p, "bench", time.Second)

	assert.Zero(t, pub.PublishChanged(), "nothing derived yet")

	factory.Sockets[1232].Push("10,0,0")
	factory.Sockets[1234].Push("1,1,1")
	p.Tick()

	assert.Equal(t, 2, pub.PublishChanged())
	msgs := client.take()
	require.Len(t, msgs, 2)

	assert.Equal(t, "bench/1", msgs[0].topic)
	assert.Equal(t, byte(0), msgs[0].qos)
	assert.False(t, msgs[0].retained)
	var m SampleMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &m))
	assert.Equal(t, 1, m.Sensor)
	assert.Equal(t, 1232, m.Port)
	assert.Equal(t, 1.0, m.Value)
	assert.Equal(t, 10.0, m.Magnitude)
	assert.True(t, m.Above)
	assert.False(t, m.Time.IsZero())

	assert.Equal(t, "bench/3", msgs[1].topic)

	// Unchanged sequences are not republished.
	p.Tick()
	assert.Zero(t, pub.PublishChanged())
}

func TestPublisherRetriesAfterError(t *testing.T) {
	cfg := testConfig(t, config.ModeMulti)
	p, factory := newTestPipeline(t, cfg)
	client := &fakePublishClient{err: errors.New("not connected")}
	pub := NewPublisher(client, p, "motion", time.Second)

	factory.Sockets[1231].Push("0,0,1")
	p.Tick()
	assert.Zero(t, pub.PublishChanged())

	client.err = nil
	assert.Equal(t, 1, pub.PublishChanged(), "a failed publish is retried on the next interval")
}

func TestSampleTopic(t *testing.T) {
	assert.Equal(t, "motion/2", SampleTopic("motion", 2))
}

func TestFormatSample(t *testing.T) {
	line := formatSample(SampleMessage{
		Sensor: 1, Port: 1232, Value: 1, Magnitude: 10, Above: true,
		Time: time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC),
	})
	assert.Equal(t, "[S1: 1232] value=   1.000  magnitude=  10.000  moving  05:06:07.008", line)
}

func startBroker(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{Type: "tcp", ID: "t1", Address: addr})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })

	return fmt.Sprintf("tcp://%s", addr)
}

func TestPublisherWithBroker(t *testing.T) {
	broker := startBroker(t)

	sub, err := ConnectMQTT(broker, "test-console")
	require.NoError(t, err)
	defer sub.Disconnect(100)

	got := make(chan SampleMessage, 8)
	require.NoError(t, subscribeSamples(sub, "motion", func(s SampleMessage) { got <- s }))

	cfg := testConfig(t, config.ModeMulti)
	p, factory := newTestPipeline(t, cfg)
	pubClient, err := ConnectMQTT(broker, "test-monitor")
	require.NoError(t, err)
	defer pubClient.Disconnect(100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewPublisher(pubClient, p, "motion", 5*time.Millisecond).Run(ctx)

	factory.Sockets[1233].Push("0,0,6")
	p.Tick()

	select {
	case s := <-got:
		assert.Equal(t, 2, s.Sensor)
		assert.Equal(t, 1233, s.Port)
		assert.Equal(t, 1.0, s.Value)
		assert.True(t, s.Above)
	case <-time.After(5 * time.Second):
		t.Fatal("no sample received from broker")
	}
}

func TestConnectMQTTFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = ConnectMQTT("tcp://"+addr, "nobody")
	require.Error(t, err)
}

package mqttstatus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ws2osc/internal/bridge"
	"ws2osc/internal/config"
	"ws2osc/internal/haptic"
	"ws2osc/internal/logger"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	connected    bool
	disconnected bool
	messages     []published
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }
func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.connectErr == nil
	return newToken(c.connectErr)
}
func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnected = true
}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return newToken(nil)
}
func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return newToken(nil)
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return newToken(nil)
}
func (c *fakeClient) Unsubscribe(...string) mqtt.Token         { return newToken(nil) }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)     {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

type staticSource struct {
	st bridge.Status
}

func (s staticSource) Status() bridge.Status { return s.st }

func newTestPublisher(client *fakeClient, interval time.Duration) *Publisher {
	l, _ := test.NewNullLogger()
	p := NewPublisher(logger.FromLogrus(l), MQTTConf{
		ClientID:    "test",
		Schema:      "tcp",
		Host:        "broker",
		Port:        "1883",
		Qos:         1,
		TopicPrefix: "haptics/",
		Interval:    interval,
	}, staticSource{st: bridge.Status{
		Running:        true,
		Clients:        2,
		OSCReady:       true,
		Target:         config.Target{Host: "127.0.0.1", Port: 8000},
		Mappings:       map[string]haptic.Channel{"a": 0},
		TimeoutSeconds: 3,
	}})
	p.newClient = func(*mqtt.ClientOptions) mqtt.Client { return client }
	p.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p
}

func TestPublisher_Topic(t *testing.T) {
	p := newTestPublisher(&fakeClient{}, time.Second)
	assert.Equal(t, "haptics/status", p.Topic())
}

func TestPublisher_PublishesAndStops(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher(client, 20*time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return len(client.sent()) >= 2 }, time.Second, 5*time.Millisecond)

	first := client.sent()[0]
	assert.Equal(t, "haptics/status", first.topic)
	assert.Equal(t, byte(1), first.qos)
	assert.True(t, first.retained)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(first.payload, &doc))
	assert.Equal(t, true, doc["running"])
	assert.Equal(t, float64(2), doc["clients"])
	assert.Equal(t, "2024-01-02T03:04:05Z", doc["timestamp"])
	assert.Equal(t, map[string]interface{}{"host": "127.0.0.1", "port": float64(8000)}, doc["osc_target"])

	require.NoError(t, p.Stop())
	msgs := client.sent()
	last := msgs[len(msgs)-1]
	require.NoError(t, json.Unmarshal(last.payload, &doc))
	assert.Equal(t, false, doc["running"])
	assert.Equal(t, float64(0), doc["clients"])
	assert.True(t, client.disconnected)

	count := len(client.sent())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, count, len(client.sent()), "no publishes after Stop")
}

func TestPublisher_ConnectError(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("refused")}
	p := newTestPublisher(client, time.Second)

	assert.EqualError(t, p.Start(context.Background()), "refused")
	assert.NoError(t, p.Stop())
	assert.Empty(t, client.sent())
}

func TestConvertConfig(t *testing.T) {
	cfg := config.Default().MQTT
	c := ConvertConfig(cfg)
	assert.Equal(t, "tcp", c.Schema)
	assert.Equal(t, "ws2osc", c.TopicPrefix)
	assert.Equal(t, 10*time.Second, c.Interval)
}

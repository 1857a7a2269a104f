package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err      error
	complete bool
	done     chan struct{}
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, complete: complete, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	token        pahomqtt.Token
	connectToken pahomqtt.Token
	messages     []published
	disconnected bool

	// when set, Publish signals started and waits for release
	started chan struct{}
	release chan struct{}
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Connect() pahomqtt.Token { return c.connectToken }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	if c.started != nil {
		c.started <- struct{}{}
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

type failureLog struct {
	mu   sync.Mutex
	errs []error
}

func (f *failureLog) record(_ string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func TestPublishAccessWritesJSONToLockTopic(t *testing.T) {
	client := &fakeClient{connected: true, token: newFakeToken(nil, true)}
	pub := newMQTTPublisher(client, MQTTConfig{QoS: 1})

	ts := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	err := pub.PublishAccess(context.Background(), AccessEvent{
		LockUUID:   "lock-uuid",
		LockID:     "lock-id",
		DeviceID:   "device-id",
		AccessType: "PIN",
		Result:     "SUCCESS",
		AccessLog:  "log-id",
		Timestamp:  ts,
	})
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	require.Len(t, client.messages, 1)
	msg := client.messages[0]
	require.Equal(t, "lockgate/locks/lock-uuid/access", msg.topic)
	require.EqualValues(t, 1, msg.qos)
	require.False(t, msg.retained)

	var decoded AccessEvent
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	require.Equal(t, "SUCCESS", decoded.Result)
	require.True(t, decoded.Timestamp.Equal(ts))
}

func TestPublishAccessCustomPrefix(t *testing.T) {
	pub := newMQTTPublisher(&fakeClient{connected: true}, MQTTConfig{TopicPrefix: "/site-a/"})
	defer pub.Close()
	require.Equal(t, "site-a/locks/abc/access", pub.AccessTopic("abc"))
}

func TestPublishAccessRejectsBeforeQueueing(t *testing.T) {
	offline := newMQTTPublisher(&fakeClient{connected: false}, MQTTConfig{})
	defer offline.Close()
	require.ErrorIs(t, offline.PublishAccess(context.Background(), AccessEvent{LockUUID: "x"}), ErrNotConnected)

	online := newMQTTPublisher(&fakeClient{connected: true, token: newFakeToken(nil, true)}, MQTTConfig{})
	require.Error(t, online.PublishAccess(context.Background(), AccessEvent{}))

	require.NoError(t, online.Close())
	require.ErrorIs(t, online.PublishAccess(context.Background(), AccessEvent{LockUUID: "x"}), ErrPublisherClosed)
	require.NoError(t, online.Close())
}

func TestPublishAccessReportsBrokerFailuresAsynchronously(t *testing.T) {
	boom := errors.New("broker refused")
	cases := map[string]struct {
		token pahomqtt.Token
		want  error
	}{
		"timeout": {newFakeToken(nil, false), ErrPublishTimeout},
		"refused": {newFakeToken(boom, true), boom},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			failures := &failureLog{}
			pub := newMQTTPublisher(&fakeClient{connected: true, token: tc.token}, MQTTConfig{})
			pub.report = failures.record

			require.NoError(t, pub.PublishAccess(context.Background(), AccessEvent{LockUUID: "x"}))
			require.NoError(t, pub.Close())

			require.Len(t, failures.errs, 1)
			require.ErrorIs(t, failures.errs[0], tc.want)
		})
	}
}

func TestPublishAccessDoesNotWaitForBroker(t *testing.T) {
	client := &fakeClient{
		connected: true,
		token:     newFakeToken(nil, true),
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	pub := newMQTTPublisher(client, MQTTConfig{QueueSize: 1})

	// the worker holds the first event while the broker is stalled
	require.NoError(t, pub.PublishAccess(context.Background(), AccessEvent{LockUUID: "a"}))
	<-client.started

	require.NoError(t, pub.PublishAccess(context.Background(), AccessEvent{LockUUID: "b"}))
	require.ErrorIs(t, pub.PublishAccess(context.Background(), AccessEvent{LockUUID: "c"}), ErrQueueFull)

	go func() {
		for range client.started {
		}
	}()
	close(client.release)
	require.NoError(t, pub.Close())
	close(client.started)

	require.Len(t, client.messages, 2)
	require.Equal(t, "lockgate/locks/b/access", client.messages[1].topic)
}

func TestCloseDisconnects(t *testing.T) {
	client := &fakeClient{connected: true}
	require.NoError(t, newMQTTPublisher(client, MQTTConfig{}).Close())
	require.True(t, client.disconnected)
}

func TestConnectDisconnectsOnFailure(t *testing.T) {
	stalled := &fakeClient{connectToken: newFakeToken(nil, false)}
	require.Error(t, connect(stalled, "tcp://broker:1883", time.Millisecond))
	require.True(t, stalled.disconnected)

	refused := &fakeClient{connectToken: newFakeToken(errors.New("not authorised"), true)}
	err := connect(refused, "tcp://broker:1883", time.Millisecond)
	require.ErrorContains(t, err, "not authorised")
	require.True(t, refused.disconnected)

	ok := &fakeClient{connectToken: newFakeToken(nil, true)}
	require.NoError(t, connect(ok, "tcp://broker:1883", time.Millisecond))
	require.False(t, ok.disconnected)
}

func TestNewMQTTPublisherRequiresBroker(t *testing.T) {
	_, err := NewMQTTPublisher(MQTTConfig{})
	require.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var pub Publisher = NopPublisher{}
	require.NoError(t, pub.PublishAccess(context.Background(), AccessEvent{}))
	require.NoError(t, pub.Close())
}

package redisbus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/presets/redisbus"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
	"github.com/AntonStoeckl/subsystem-go/testutil/helper"
)

type published struct {
	channel string
	message string
}

type publisherSpy struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *publisherSpy) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = append(p.messages, published{channel: channel, message: string(message.([]byte))})

	return redis.NewIntResult(1, p.err)
}

func (p *publisherSpy) channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	channels := make([]string, 0, len(p.messages))
	for _, message := range p.messages {
		channels = append(channels, message.channel)
	}

	return channels
}

func givenRouter(t *testing.T) subsystem.Router {
	t.Helper()

	registry := engine.NewRegistry()
	registry.RegisterRoute("routes", "greet", func(_ context.Context, call *subsystem.CallContext) (subsystem.Result, error) {
		body, _ := call.Input.Body.(map[string]any)
		return subsystem.Result{Output: &subsystem.Output{
			Headers: map[string]string{"x-subject": call.Context["subject"].(string)},
			Body:    "hello " + body["name"].(string),
		}}, nil
	})

	return helper.GivenServer(t, registry, t.TempDir(), nil).Router()
}

func Test_HandleMessage_PublishesReply(t *testing.T) {
	// arrange
	router := givenRouter(t)
	publisher := &publisherSpy{}

	// act
	err := redisbus.HandleMessage(context.Background(), router, publisher, "app.", "app.greet",
		`{"body": {"name": "ada"}, "reply": "inbox.1"}`)

	// assert
	require.NoError(t, err)
	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "inbox.1", publisher.messages[0].channel)
	assert.JSONEq(t, `{"headers": {"x-subject": "greet"}, "body": "hello ada", "code": 200}`, publisher.messages[0].message)
}

func Test_HandleMessage_WithoutReplyPublishesNothing(t *testing.T) {
	// arrange
	router := givenRouter(t)
	publisher := &publisherSpy{}

	// act
	err := redisbus.HandleMessage(context.Background(), router, publisher, "app.", "app.greet", `{"body": {"name": "ada"}}`)

	// assert
	require.NoError(t, err)
	assert.Empty(t, publisher.messages)
}

func Test_HandleMessage_UnknownSubjectIsSkipped(t *testing.T) {
	// arrange
	router := givenRouter(t)
	publisher := &publisherSpy{}

	// act
	err := redisbus.HandleMessage(context.Background(), router, publisher, "app.", "app.nope", `{"reply": "inbox.1"}`)

	// assert
	assert.ErrorIs(t, err, redisbus.ErrUnknownSubject)
	assert.Empty(t, publisher.messages)
}

func Test_HandleMessage_InvalidEnvelopeFails(t *testing.T) {
	// arrange
	router := givenRouter(t)
	publisher := &publisherSpy{}

	// act
	err := redisbus.HandleMessage(context.Background(), router, publisher, "app.", "app.greet", `{"body":`)

	// assert
	assert.ErrorContains(t, err, "decode envelope")
	assert.Empty(t, publisher.messages)
}

func Test_HandleMessage_PublishErrorIsReturned(t *testing.T) {
	// arrange
	router := givenRouter(t)
	publisher := &publisherSpy{err: errors.New("connection reset")}

	// act
	err := redisbus.HandleMessage(context.Background(), router, publisher, "app.", "app.greet",
		`{"body": {"name": "ada"}, "reply": "inbox.1"}`)

	// assert
	assert.EqualError(t, err, "connection reset")
}

func Test_Dispatch_SlowRouteDoesNotBlockOtherSubjects(t *testing.T) {
	// arrange
	release := make(chan struct{})
	registry := engine.NewRegistry()
	registry.RegisterRoute("routes", "slow", func(context.Context, *subsystem.CallContext) (subsystem.Result, error) {
		<-release
		return subsystem.Result{Output: &subsystem.Output{Body: "slow"}}, nil
	})
	registry.RegisterRoute("routes", "fast", helper.Respond(200, "fast"))
	router := helper.GivenServer(t, registry, t.TempDir(), nil).Router()
	publisher := &publisherSpy{}
	messages := make(chan *redis.Message, 2)
	messages <- &redis.Message{Channel: "app.slow", Payload: `{"reply": "inbox.slow"}`}
	messages <- &redis.Message{Channel: "app.fast", Payload: `{"reply": "inbox.fast"}`}
	done := make(chan struct{})

	// act
	go func() {
		redisbus.Dispatch(context.Background(), messages, router, publisher, "app.", 4)
		close(done)
	}()

	// assert
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"inbox.fast"}, publisher.channels())
	}, time.Second, 5*time.Millisecond, "fast subject should be answered while slow is in flight")

	close(release)
	close(messages)
	<-done
	assert.ElementsMatch(t, []string{"inbox.fast", "inbox.slow"}, publisher.channels())
}

func Test_Dispatch_FinishesCallsInFlightOnCancel(t *testing.T) {
	// arrange
	started := make(chan struct{})
	release := make(chan struct{})
	registry := engine.NewRegistry()
	registry.RegisterRoute("routes", "slow", func(context.Context, *subsystem.CallContext) (subsystem.Result, error) {
		close(started)
		<-release
		return subsystem.Result{Output: &subsystem.Output{Body: "slow"}}, nil
	})
	router := helper.GivenServer(t, registry, t.TempDir(), nil).Router()
	publisher := &publisherSpy{}
	messages := make(chan *redis.Message, 1)
	messages <- &redis.Message{Channel: "app.slow", Payload: `{"reply": "inbox.slow"}`}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	// act
	go func() {
		redisbus.Dispatch(ctx, messages, router, publisher, "app.", 1)
		close(done)
	}()
	<-started
	cancel()
	close(release)
	<-done

	// assert
	assert.Equal(t, []string{"inbox.slow"}, publisher.channels())
}

func Test_Bus_PublishWrapsBodyInEnvelope(t *testing.T) {
	// arrange
	publisher := &publisherSpy{}
	bus := redisbus.NewBus(publisher, "app.")

	// act
	err := bus.Publish(context.Background(), "audit", map[string]any{"event": "login"})

	// assert
	require.NoError(t, err)
	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "app.audit", publisher.messages[0].channel)

	var envelope redisbus.Envelope
	require.NoError(t, jsoniter.UnmarshalFromString(publisher.messages[0].message, &envelope))
	assert.Equal(t, map[string]any{"event": "login"}, envelope.Body)
	assert.Empty(t, envelope.Reply)
}

func Test_Module_ProvidesClientAndBus(t *testing.T) {
	// arrange
	registry := engine.NewRegistry()
	registry.Register(redisbus.Name, redisbus.Module())
	registry.RegisterRoute("routes", "bus", func(_ context.Context, call *subsystem.CallContext) (subsystem.Result, error) {
		_, ok := call.Context[redisbus.BusKey].(*redisbus.Bus)
		return subsystem.Result{Output: &subsystem.Output{Body: ok}}, nil
	})
	registry.Register("config", subsystem.Module{
		Config: func(context.Context, *subsystem.State) (subsystem.Values, error) {
			return subsystem.Values{"redis": subsystem.Values{"addr": "127.0.0.1:1", "channelPrefix": "test."}}, nil
		},
	})

	// act
	server := helper.GivenServer(t, registry, t.TempDir(), []string{redisbus.Name})
	call := helper.MustCall(t, server.Router(), "bus", subsystem.Input{})

	// assert
	client, ok := server.State().Context()[redisbus.ClientKey].(*redis.Client)
	require.True(t, ok)
	t.Cleanup(func() { _ = client.Close() })
	assert.Equal(t, "127.0.0.1:1", client.Options().Addr)
	assert.Equal(t, "test.", server.State().Context()[redisbus.ChannelPrefixKey])
	assert.Equal(t, true, call.Output.Body)
}

func Test_Ping_FailsWithoutServer(t *testing.T) {
	// arrange
	registry := engine.NewRegistry()
	registry.Register(redisbus.Name, redisbus.Module())
	registry.Register("config", subsystem.Module{
		Config: func(context.Context, *subsystem.State) (subsystem.Values, error) {
			return subsystem.Values{"redis": subsystem.Values{"addr": "127.0.0.1:1"}}, nil
		},
	})
	server := helper.GivenServer(t, registry, t.TempDir(), []string{redisbus.Name})

	// act
	report := server.Router().Healthcheck(context.Background())

	// assert
	assert.False(t, report.Healthy())
	require.Len(t, report.Errors, 1)
	assert.ErrorContains(t, report.Errors[0], "redis ping")
}

func Test_Connect_RejectsInvalidConfig(t *testing.T) {
	// arrange
	builder := subsystem.NewStateBuilder("test")
	require.NoError(t, builder.SeedConfig(subsystem.Values{"redis": subsystem.Values{"db": -1}}))

	// act
	_, err := redisbus.Connect(context.Background(), builder.State())

	// assert
	assert.ErrorContains(t, err, "redis config")
}

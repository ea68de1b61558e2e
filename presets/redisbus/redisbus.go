// Package redisbus is the "redis" preset: a Redis pub/sub adaptor that serves every route as a subject.
//
// A message published to <channelPrefix><route> carries a JSON envelope {headers, body, reply}.
// The route is called with the envelope's headers and body, and when reply is set the output is
// published as JSON to the reply channel.
package redisbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/subsystem-go/engine"
	"github.com/AntonStoeckl/subsystem-go/presets/presetkit"
	"github.com/AntonStoeckl/subsystem-go/subsystem"
)

// Name is the preset name used with --preset.
const Name = "redis"

const (
	// ClientKey is the context key holding the *redis.Client.
	ClientKey = "redis"

	// BusKey is the request context key holding the *Bus.
	BusKey = "bus"

	// ChannelPrefixKey is the context key holding the configured channel prefix.
	ChannelPrefixKey = "redisChannelPrefix"

	metaSubject = "subject"
	metaReply   = "reply"
)

var (
	// ErrUnknownSubject is returned by HandleMessage for a channel that names no route.
	ErrUnknownSubject = errors.New("unknown subject")

	envelopeJSON = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Config is read from the "redis" config section.
type Config struct {
	Addr          string `json:"addr" validate:"required"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	DB            int    `json:"db" validate:"gte=0"`
	ChannelPrefix string `json:"channelPrefix" validate:"required"`
	Concurrency   int    `json:"concurrency" validate:"gte=1"`
}

// DefaultConfig is applied to every zero field of the "redis" section.
var DefaultConfig = Config{
	Addr:          "localhost:6379",
	ChannelPrefix: "subsystem.",
	Concurrency:   64,
}

// Envelope is the JSON message format on request channels.
type Envelope struct {
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
	Reply   string            `json:"reply,omitempty"`
}

// Publisher is the part of *redis.Client used to send replies.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Bus lets handles publish messages to other subjects.
type Bus struct {
	publisher Publisher
	prefix    string
}

// NewBus returns a Bus publishing below prefix.
func NewBus(publisher Publisher, prefix string) *Bus {
	return &Bus{publisher: publisher, prefix: prefix}
}

// Publish sends body without a reply channel to subject.
func (b *Bus) Publish(ctx context.Context, subject string, body any) error {
	payload, err := envelopeJSON.Marshal(Envelope{Body: body})
	if err != nil {
		return err
	}

	return b.publisher.Publish(ctx, b.prefix+subject, payload).Err()
}

func init() {
	engine.Register(Name, Module())
}

// Module returns the preset for explicit composition.
func Module() subsystem.Module {
	return subsystem.Module{
		Name:           Name,
		File:           "presets/redisbus",
		Context:        Connect,
		RequestContext: provideBus,
		HealthCheck:    Ping,
		Adaptor:        Serve,
	}
}

// Connect creates the client and stores it in the context under ClientKey, next to the channel prefix.
func Connect(_ context.Context, state *subsystem.State) (subsystem.Values, error) {
	var config Config
	if err := presetkit.DecodeConfig(state, Name, &config, DefaultConfig); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Username: config.Username,
		Password: config.Password,
		DB:       config.DB,
	})

	return subsystem.Values{ClientKey: client, ChannelPrefixKey: config.ChannelPrefix}, nil
}

// Ping checks the connection.
func Ping(ctx context.Context, state *subsystem.State) error {
	client, err := presetkit.FromContext[*redis.Client](state.Context(), ClientKey)
	if err != nil {
		return err
	}

	if err = client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	return nil
}

func provideBus(_ context.Context, call *subsystem.CallContext) (subsystem.Values, error) {
	client, err := presetkit.FromContext[*redis.Client](call.Context, ClientKey)
	if err != nil {
		return nil, err
	}

	prefix, err := presetkit.FromContext[string](call.Context, ChannelPrefixKey)
	if err != nil {
		return nil, err
	}

	return subsystem.Values{BusKey: NewBus(client, prefix)}, nil
}

// Serve subscribes to every channel below the prefix and handles messages until ctx is canceled.
func Serve(ctx context.Context, state *subsystem.State, router subsystem.Router) error {
	var config Config
	if err := presetkit.DecodeConfig(state, Name, &config, DefaultConfig); err != nil {
		return err
	}

	client, err := presetkit.FromContext[*redis.Client](state.Context(), ClientKey)
	if err != nil {
		return err
	}

	pubsub := client.PSubscribe(ctx, config.ChannelPrefix+"*")
	defer pubsub.Close()

	if _, err = pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	Dispatch(ctx, pubsub.Channel(), router, client, config.ChannelPrefix, config.Concurrency)

	return nil
}

// Dispatch handles messages concurrently, at most limit at a time, until ctx is canceled or
// messages is closed. Calls in flight are finished and replied to before it returns.
func Dispatch(
	ctx context.Context,
	messages <-chan *redis.Message,
	router subsystem.Router,
	publisher Publisher,
	prefix string,
	limit int,
) {
	logger := slog.Default().With("preset", Name)
	callCtx := context.WithoutCancel(ctx)

	var group errgroup.Group
	group.SetLimit(limit)
	defer func() { _ = group.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}

			group.Go(func() error {
				err := HandleMessage(callCtx, router, publisher, prefix, message.Channel, message.Payload)
				switch {
				case errors.Is(err, ErrUnknownSubject):
					logger.DebugContext(callCtx, "skipping message", "channel", message.Channel)
				case err != nil:
					logger.WarnContext(callCtx, "message failed", "channel", message.Channel, "error", err)
				}

				return nil
			})
		}
	}
}

// HandleMessage calls the route named by channel and publishes the output to the envelope's reply channel.
func HandleMessage(
	ctx context.Context,
	router subsystem.Router,
	publisher Publisher,
	prefix, channel, payload string,
) error {
	subject := strings.TrimPrefix(channel, prefix)
	if !router.Has(subject) {
		return fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}

	var envelope Envelope
	if err := envelopeJSON.UnmarshalFromString(payload, &envelope); err != nil {
		return fmt.Errorf("decode envelope on %q: %w", channel, err)
	}

	call, err := router.Call(ctx, subject, subsystem.Input{Headers: envelope.Headers, Body: envelope.Body},
		subsystem.Values{metaSubject: subject, metaReply: envelope.Reply})
	if err != nil {
		return err
	}

	if envelope.Reply == "" {
		return nil
	}

	reply, err := envelopeJSON.Marshal(call.Output)
	if err != nil {
		return err
	}

	return publisher.Publish(ctx, envelope.Reply, reply).Err()
}

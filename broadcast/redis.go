package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wfunc/partygame/network"
)

const (
	channelPrefix   = "party:"
	roomChannel     = channelPrefix + "room:"
	clientChannel   = channelPrefix + "client:"
	inboundChannel  = channelPrefix + "in:"
	inboundPattern  = inboundChannel + "*"
	publishDeadline = 5 * time.Second
)

// RoomChannel is where room broadcasts are published.
func RoomChannel(roomID string) string { return roomChannel + roomID }

// ClientChannel is where messages for a single client are published.
func ClientChannel(clientID string) string { return clientChannel + clientID }

// InboundChannel is where a remote client publishes its events.
func InboundChannel(roomID string) string { return inboundChannel + roomID }

// InboundMessage is one client event received over redis.
type InboundMessage struct {
	RoomID   string          `json:"roomId"`
	ClientID string          `json:"clientId"`
	Role     string          `json:"role"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// Envelope returns the event part in wire format.
func (m InboundMessage) Envelope() network.Envelope {
	return network.Envelope{Type: m.Type, Data: m.Data}
}

// ParseInbound decodes a payload received on channel. The room id falls back
// to the channel suffix when the payload omits it.
func ParseInbound(channel, payload string) (InboundMessage, error) {
	var m InboundMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return m, fmt.Errorf("%w: %v", network.ErrInvalidMessage, err)
	}
	if m.RoomID == "" {
		m.RoomID = strings.TrimPrefix(channel, inboundChannel)
	}
	if m.ClientID == "" {
		return m, fmt.Errorf("%w: clientId required", network.ErrInvalidMessage)
	}
	if m.Type == "" {
		return m, fmt.Errorf("%w: type required", network.ErrInvalidMessage)
	}
	return m, nil
}

// RedisChannel 通过 redis pub/sub 收发消息，给不直接连 websocket 的客户端使用
type RedisChannel struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisChannel(client *redis.Client, logger *zap.Logger) *RedisChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisChannel{client: client, logger: logger}
}

func (r *RedisChannel) Broadcast(roomID string, msg network.Outbound) error {
	return r.publish(RoomChannel(roomID), msg)
}

func (r *RedisChannel) SendTo(roomID, clientID string, msg network.Outbound) error {
	return r.publish(ClientChannel(clientID), msg)
}

func (r *RedisChannel) publish(channel string, msg network.Outbound) error {
	body, err := network.Encode(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishDeadline)
	defer cancel()
	if err := r.client.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Consume 订阅 party:in:* 并把每条消息交给 handler，直到 ctx 取消
func (r *RedisChannel) Consume(ctx context.Context, handler func(ctx context.Context, m InboundMessage)) error {
	pubsub := r.client.PSubscribe(ctx, inboundPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	r.logger.Info("redis inbound subscribed", zap.String("pattern", inboundPattern))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m, err := ParseInbound(msg.Channel, msg.Payload)
			if err != nil {
				r.logger.Warn("bad inbound payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handler(ctx, m)
		}
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	commonlog "workhub/server/common/log"
	"workhub/server/notify/domain"
)

const notifyEventsChannel = "workhub:notify:events"

type Delivery string

const (
	DeliveredLocal Delivery = "local"
	// DeliveredRelay means the event was handed to the redis relay for
	// whichever process holds the user's connection.
	DeliveredRelay Delivery = "relayed"
	NotConnected   Delivery = "offline"
)

type relayEvent struct {
	Origin string          `json:"origin"`
	UserID string          `json:"user_id"`
	Event  json.RawMessage `json:"event"`
}

// Hub delivers events to connected users. A user connected to this process
// is written to directly; otherwise, when redis is configured, the event is
// relayed to the other processes.
type Hub struct {
	registry  ConnectionRegistry
	origin    string
	mu        sync.RWMutex
	redis     *redis.Client
	redisSub  *redis.PubSub
	subCancel context.CancelFunc
}

func NewHub(registry ConnectionRegistry) *Hub {
	if registry == nil {
		registry = NewLocalRegistry()
	}
	return &Hub{registry: registry, origin: uuid.NewString()}
}

func (h *Hub) Registry() ConnectionRegistry {
	return h.registry
}

func (h *Hub) UseRedis(client *redis.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = client
}

func (h *Hub) StartRedisSubscriber(ctx context.Context) error {
	h.mu.Lock()
	if h.redis == nil {
		h.mu.Unlock()
		return errors.New("redis client is nil")
	}
	if h.redisSub != nil {
		h.mu.Unlock()
		return nil
	}
	subCtx, cancel := context.WithCancel(ctx)
	sub := h.redis.Subscribe(subCtx, notifyEventsChannel)
	h.redisSub = sub
	h.subCancel = cancel
	h.mu.Unlock()

	go h.consumeEvents(subCtx, sub)
	return nil
}

func (h *Hub) StopRedisSubscriber() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subCancel != nil {
		h.subCancel()
		h.subCancel = nil
	}
	if h.redisSub != nil {
		_ = h.redisSub.Close()
		h.redisSub = nil
	}
}

// Deliver pushes event to userID's live connection. It never queues: a user
// that is not connected anywhere simply misses the push.
func (h *Hub) Deliver(ctx context.Context, userID string, event domain.Event) (Delivery, error) {
	if handle, ok := h.registry.Lookup(userID); ok {
		if err := handle.Send(event); err != nil {
			return DeliveredLocal, err
		}
		return DeliveredLocal, nil
	}

	h.mu.RLock()
	redisClient := h.redis
	h.mu.RUnlock()
	if redisClient == nil {
		return NotConnected, nil
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return NotConnected, err
	}
	b, err := json.Marshal(relayEvent{Origin: h.origin, UserID: userID, Event: raw})
	if err != nil {
		return NotConnected, err
	}
	if err := redisClient.Publish(ctx, notifyEventsChannel, b).Err(); err != nil {
		commonlog.Warnf("event=notify_hub action=publish status=failed user_id=%s error=%v", userID, err)
		return NotConnected, err
	}
	commonlog.Debugf("event=notify_hub action=publish status=ok user_id=%s event_name=%s", userID, event.Name)
	return DeliveredRelay, nil
}

func (h *Hub) consumeEvents(ctx context.Context, sub *redis.PubSub) {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		h.deliverRelayed([]byte(msg.Payload))
	}
}

func (h *Hub) deliverRelayed(payload []byte) bool {
	var relayed relayEvent
	if err := json.Unmarshal(payload, &relayed); err != nil {
		commonlog.Warnf("event=notify_hub action=consume status=skipped reason=decode error=%v", err)
		return false
	}
	if relayed.Origin == h.origin {
		return false
	}
	handle, ok := h.registry.Lookup(relayed.UserID)
	if !ok {
		return false
	}
	var event domain.Event
	if err := json.Unmarshal(relayed.Event, &event); err != nil {
		return false
	}
	if err := handle.Send(event); err != nil {
		pushTotal.WithLabelValues("failed").Inc()
		commonlog.Warnf("event=notify_hub action=consume status=failed user_id=%s error=%v", relayed.UserID, err)
		return false
	}
	pushTotal.WithLabelValues(string(DeliveredLocal)).Inc()
	commonlog.Debugf("event=notify_hub action=consume status=ok user_id=%s event_name=%s", relayed.UserID, event.Name)
	return true
}

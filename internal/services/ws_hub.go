package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"common-grounds-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const classChannelPrefix = "class:"

// WSMessage is the envelope for messages pushed over a class socket
type WSMessage struct {
	Type    string      `json:"type"`
	ClassID string      `json:"class_id,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type wsClient struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ClassHub fans posted messages out to sockets subscribed to class channels.
// Posts are published to redis, so sockets on any instance see them; the hub
// relays its pattern subscription to the local connections.
type ClassHub struct {
	mu     sync.RWMutex
	subs   map[string]map[*wsClient]struct{}
	byConn map[*websocket.Conn]*wsClient
	redis  *redis.Client
	pubsub *redis.PubSub
}

// NewClassHub creates a new hub
func NewClassHub(redisClient *redis.Client) *ClassHub {
	return &ClassHub{
		subs:   make(map[string]map[*wsClient]struct{}),
		byConn: make(map[*websocket.Conn]*wsClient),
		redis:  redisClient,
	}
}

// Run relays the redis class channels to local subscribers until ctx ends
func (h *ClassHub) Run(ctx context.Context) {
	h.pubsub = h.redis.PSubscribe(ctx, classChannelPrefix+"*")
	ch := h.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			classID := strings.TrimPrefix(msg.Channel, classChannelPrefix)
			h.deliver(classID, []byte(msg.Payload))
		}
	}
}

// Close tears down the redis subscription
func (h *ClassHub) Close() error {
	if h.pubsub != nil {
		return h.pubsub.Close()
	}
	return nil
}

// Register attaches a connection for a user and subscribes it to classIDs
func (h *ClassHub) Register(userID string, conn *websocket.Conn, classIDs []string) {
	client := &wsClient{conn: conn, userID: userID}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.byConn[conn] = client
	for _, classID := range classIDs {
		if h.subs[classID] == nil {
			h.subs[classID] = make(map[*wsClient]struct{})
		}
		h.subs[classID][client] = struct{}{}
	}

	log.Info().Str("user_id", userID).Int("classes", len(classIDs)).Msg("WebSocket connection registered")
}

// Unregister detaches a connection from every class channel
func (h *ClassHub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.byConn[conn]
	if !ok {
		return
	}
	delete(h.byConn, conn)
	for classID, set := range h.subs {
		delete(set, client)
		if len(set) == 0 {
			delete(h.subs, classID)
		}
	}

	log.Info().Str("user_id", client.userID).Msg("WebSocket connection unregistered")
}

// SubscriberCount reports how many local sockets follow a class
func (h *ClassHub) SubscriberCount(classID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[classID])
}

// BroadcastMessage publishes a posted message to the class's channel. The
// author flag is stripped first: a broadcast is seen by everyone.
func (h *ClassHub) BroadcastMessage(ctx context.Context, classID string, view *models.MessageView) error {
	public := *view
	public.IsOwnMessage = false

	payload, err := json.Marshal(WSMessage{
		Type:    "message",
		ClassID: classID,
		Data:    public,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}

	if err := h.redis.Publish(ctx, classChannelPrefix+classID, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish broadcast: %w", err)
	}
	return nil
}

func (h *ClassHub) deliver(classID string, payload []byte) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.subs[classID]))
	for client := range h.subs[classID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.send(payload); err != nil {
			log.Error().Err(err).Str("user_id", client.userID).Msg("Failed to deliver broadcast, dropping connection")
			client.conn.Close()
			h.Unregister(client.conn)
		}
	}
}

package http

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type notificationPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type hubClient struct {
	token string
	send  chan outboundMessage[any]
}

// NotificationHub pushes owner notifications to websocket clients registered under
// a push token. It satisfies app.Dispatcher.
type NotificationHub struct {
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger

	mu      sync.RWMutex
	clients map[string]map[*hubClient]struct{}
}

func NewNotificationHub(logger logrus.FieldLogger) *NotificationHub {
	return &NotificationHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[string]map[*hubClient]struct{}),
	}
}

// ServeWS upgrades the request and keeps the connection registered until the client goes away.
func (h *NotificationHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	client := &hubClient{token: token, send: make(chan outboundMessage[any], 16)}
	writerDone := make(chan struct{})

	// Only this goroutine writes to conn.
	go func() {
		defer close(writerDone)
		for msg := range client.send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.WithError(err).Debug("ws write error")
				return
			}
		}
	}()

	h.register(client)
	client.send <- outboundMessage[any]{Type: "registered", Payload: map[string]string{"token": token}}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(client)
	close(client.send)
	<-writerDone
}

// Notify delivers to every connected client of each recipient token. Slow clients
// drop messages instead of blocking the sender.
func (h *NotificationHub) Notify(_ context.Context, recipients []string, title, body string) error {
	msg := outboundMessage[any]{Type: "notification", Payload: notificationPayload{Title: title, Body: body}}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, token := range recipients {
		for client := range h.clients[token] {
			select {
			case client.send <- msg:
			default:
				h.logger.WithField("token", token).Warn("dropping notification for slow client")
			}
		}
	}
	return nil
}

// Connected returns how many clients are registered under token.
func (h *NotificationHub) Connected(token string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[token])
}

func (h *NotificationHub) register(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.token]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.clients[c.token] = set
	}
	set[c] = struct{}{}
}

func (h *NotificationHub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.token]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.token)
	}
}

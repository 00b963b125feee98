package chat

import (
	"context"
	"log"
)

// Hub routes change events to connected clients. A single goroutine owns the
// client set, so no locking is needed: registration, teardown and delivery
// all flow through channels.
type Hub struct {
	clients map[*Client]bool
	byUser  map[int]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	publish    chan Envelope // outbound: this instance -> broker
	deliver    chan Envelope // inbound: broker -> local sockets

	presence chan presenceQuery

	// Closed when Run returns so Notify and IsOnline cannot block on a hub
	// that is no longer draining its channels.
	done chan struct{}

	broker Broker
}

type presenceQuery struct {
	userID int
	reply  chan bool
}

func NewHub(broker Broker) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[int]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		publish:    make(chan Envelope, 64),
		deliver:    make(chan Envelope, 64),
		presence:   make(chan presenceQuery),
		done:       make(chan struct{}),
		broker:     broker,
	}
}

// Notify hands an envelope to the hub for cross-instance fan-out. Events
// offered after shutdown are dropped.
func (h *Hub) Notify(env Envelope) {
	select {
	case h.publish <- env:
	case <-h.done:
	}
}

// IsOnline reports whether the user has at least one socket on this instance.
// Used to decide whether an offline notification task is worth enqueueing.
// A stopped hub reports everyone offline.
func (h *Hub) IsOnline(userID int) bool {
	q := presenceQuery{userID: userID, reply: make(chan bool, 1)}
	select {
	case h.presence <- q:
		return <-q.reply
	case <-h.done:
		return false
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	go h.consumeBroker(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.clients[client] = true
			set := h.byUser[client.UserID]
			if set == nil {
				set = make(map[*Client]bool)
				h.byUser[client.UserID] = set
			}
			set[client] = true

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}

		case env := <-h.publish:
			if err := h.broker.Publish(ctx, env); err != nil {
				log.Printf("hub: publish failed: %v", err)
			}

		case env := <-h.deliver:
			for client := range h.byUser[env.UserID] {
				select {
				case client.Send <- env.Event:
				default:
					// Slow consumer: drop the socket rather than block the hub.
					h.drop(client)
				}
			}

		case q := <-h.presence:
			q.reply <- len(h.byUser[q.userID]) > 0
		}
	}
}

func (h *Hub) consumeBroker(ctx context.Context) {
	events, err := h.broker.Subscribe(ctx)
	if err != nil {
		// No retry: sockets on this instance stay connected but stale until
		// the process restarts. Clients recover via snapshot refetch.
		log.Printf("hub: broker subscribe failed: %v", err)
		return
	}
	for env := range events {
		select {
		case h.deliver <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	if set := h.byUser[client.UserID]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byUser, client.UserID)
		}
	}
	close(client.Send)
}

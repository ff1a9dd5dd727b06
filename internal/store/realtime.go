// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// heartbeatInterval keeps the realtime channel alive. The server
	// drops connections that miss two heartbeats.
	heartbeatInterval = 25 * time.Second

	pongWait = 90 * time.Second
)

// phoenixMessage is the realtime wire frame. The change feed speaks
// the Phoenix channel protocol: join a topic, receive broadcast events.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// changePayload is the payload of a postgres_changes event.
type changePayload struct {
	Data struct {
		Type   string  `json:"type"`
		Record Request `json:"record"`
	} `json:"data"`
}

// Subscription is an open change feed for a single approval row.
// Updates delivers the post-image row for every UPDATE event,
// at-least-once, until Close is called or the connection drops.
type Subscription struct {
	conn    *websocket.Conn
	updates chan Request
	done    chan struct{}

	writeMu   sync.Mutex // guards websocket writes (not goroutine-safe)
	closeOnce sync.Once
	seq       atomic.Int64
}

// Subscribe opens a realtime subscription for UPDATE events on the row
// with the given id. The caller owns the subscription and must Close it;
// the subscription holds no reference back to the caller.
//
// Dropped connections are not reconnected — the coordinator treats a
// drop as "no remote resolution" and relies on its other waits.
func (c *Client) Subscribe(ctx context.Context, id string) (*Subscription, error) {
	wsURL, err := c.realtimeURL()
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("store: realtime dial: %w", err)
	}

	sub := &Subscription{
		conn:    conn,
		updates: make(chan Request, 4),
		done:    make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	topic := "realtime:" + requestsTable + ":" + id
	join := map[string]any{
		"topic": topic,
		"event": "phx_join",
		"ref":   sub.nextRef(),
		"payload": map[string]any{
			"config": map[string]any{
				"postgres_changes": []map[string]string{{
					"event":  "UPDATE",
					"schema": "public",
					"table":  requestsTable,
					"filter": "id=eq." + id,
				}},
			},
		},
	}
	if err := sub.write(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: realtime join: %w", err)
	}

	go sub.heartbeatLoop()
	go sub.readLoop(c.logger.With("subsystem", "realtime", "id", id))

	return sub, nil
}

// Updates returns the stream of post-image rows. The channel is closed
// when the subscription ends.
func (s *Subscription) Updates() <-chan Request {
	return s.updates
}

// Close tears down the websocket and ends both background loops.
// Safe to call more than once and from any goroutine.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}

func (s *Subscription) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			beat := map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
				"ref":     s.nextRef(),
			}
			if err := s.write(beat); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Subscription) readLoop(logger interface{ Debug(string, ...any) }) {
	defer close(s.updates)
	defer s.Close()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				logger.Debug("realtime connection dropped", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg phoenixMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Debug("unparseable realtime frame", "error", err)
			continue
		}
		if msg.Event != "postgres_changes" {
			continue
		}

		var change changePayload
		if err := json.Unmarshal(msg.Payload, &change); err != nil {
			logger.Debug("unparseable change payload", "error", err)
			continue
		}
		if change.Data.Type != "UPDATE" {
			continue
		}

		select {
		case s.updates <- change.Data.Record:
		case <-s.done:
			return
		}
	}
}

func (s *Subscription) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Subscription) nextRef() string {
	return strconv.FormatInt(s.seq.Add(1), 10)
}

// realtimeURL converts the store base URL to its websocket endpoint.
func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("store: parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("store: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", c.apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Package relay collects zap receipt events from nostr relays with a
// bounded, best-effort concurrent sweep.
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Collector sweeps receipt events from many relays concurrently
type Collector struct {
	dialer *websocket.Dialer
	log    *slog.Logger
}

// NewCollector creates a Collector
func NewCollector(log *slog.Logger) *Collector {
	return &Collector{
		dialer: websocket.DefaultDialer,
		log:    log,
	}
}

type found struct {
	event Event
	relay string
}

// Sweep opens a connection to every relay concurrently, sends the filter,
// and collects events until the budget expires. Events are deduplicated
// by id, first seen wins, with every reporting relay recorded for
// provenance. Relays that error, refuse, or never answer are simply
// excluded; partial results are a normal outcome. The deadline is hard:
// Sweep returns whatever was collected when the budget runs out.
func (c *Collector) Sweep(ctx context.Context, relays []string, filter Filter, budget time.Duration) []Event {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	deadline, _ := ctx.Deadline()
	subID := "wb-" + uuid.NewString()[:8]

	results := make(chan found, 64)

	var wg sync.WaitGroup
	for _, url := range relays {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			c.sweepOne(ctx, url, subID, filter, deadline, results)
		}(url)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var events []Event
	index := make(map[string]int)

	for f := range results {
		i, dup := index[f.event.ID]
		if dup {
			events[i].RelaysSeen = append(events[i].RelaysSeen, f.relay)
			continue
		}
		f.event.RelaysSeen = []string{f.relay}
		index[f.event.ID] = len(events)
		events = append(events, f.event)
	}

	return events
}

func (c *Collector) sweepOne(ctx context.Context, url, subID string, filter Filter, deadline time.Time, results chan<- found) {
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.log.Debug("relay dial failed", "relay", url, "error", err)
		return
	}
	defer conn.Close()

	// Unblock any pending read when the budget expires.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	req, err := json.Marshal([]any{"REQ", subID, filter})
	if err != nil {
		return
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		c.log.Debug("relay request failed", "relay", url, "error", err)
		return
	}

	conn.SetReadDeadline(deadline)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame []json.RawMessage
		if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
			continue
		}

		var kind, gotSub string
		if json.Unmarshal(frame[0], &kind) != nil || json.Unmarshal(frame[1], &gotSub) != nil {
			continue
		}
		if gotSub != subID {
			continue
		}

		switch kind {
		case "EVENT":
			if len(frame) < 3 {
				continue
			}
			var ev Event
			if err := json.Unmarshal(frame[2], &ev); err != nil || ev.ID == "" {
				continue
			}
			select {
			case results <- found{event: ev, relay: url}:
			case <-ctx.Done():
				return
			}
		case "EOSE":
			// Relay has no more stored events for this filter.
			return
		}
	}
}

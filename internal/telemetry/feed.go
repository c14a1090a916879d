package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/fleetvis/markerpipe/pkg/core"
)

const (
	sampleChSize = 256
	entityChSize = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Feed is a WebSocket telemetry source. It maintains a single read
// loop per connection and reconnects with exponential backoff when the
// backend drops it.
type Feed struct {
	mu     sync.Mutex
	conn   *ws.Conn
	closed bool
	done   chan struct{} // closed on shutdown

	// The batch channels are never closed: route may still be draining
	// a final frame while Close runs. Done carries the shutdown signal.
	sampleCh chan []core.TelemetrySample
	entityCh chan []core.EntityRecord

	feedURL string
	secret  string

	logger *slog.Logger
}

// Dial connects to the telemetry feed and starts receiving batches.
func Dial(rawURL, secret string, logger *slog.Logger) (*Feed, error) {
	f := &Feed{
		done:     make(chan struct{}),
		sampleCh: make(chan []core.TelemetrySample, sampleChSize),
		entityCh: make(chan []core.EntityRecord, entityChSize),
		feedURL:  rawURL,
		secret:   secret,
		logger:   logger,
	}

	conn, err := f.dialOnce()
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	go f.readLoop()
	return f, nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (f *Feed) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(f.feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	if f.secret != "" {
		q := u.Query()
		q.Set("secret", f.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("feed dial failed: %w", err)
	}
	return conn, nil
}

// Samples returns the channel carrying telemetry batches.
func (f *Feed) Samples() <-chan []core.TelemetrySample {
	return f.sampleCh
}

// Entities returns the channel carrying roster snapshots.
func (f *Feed) Entities() <-chan []core.EntityRecord {
	return f.entityCh
}

// Done returns a channel closed when the feed has shut down, either by
// Close or after reconnection gave up.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// readLoop reads envelopes from the server and routes payloads to the
// batch channels. It returns on error or shutdown.
func (f *Feed) readLoop() {
	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()

		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.logger.Warn("Feed read error", "error", err)
			go f.reconnect()
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.logger.Debug("Malformed feed message", "raw", string(message))
			continue
		}
		f.route(env)
	}
}

// route dispatches one envelope. Full channels drop the batch: a stale
// telemetry frame is worthless once a newer one exists.
func (f *Feed) route(env Envelope) {
	switch env.Type {
	case MsgTelemetry:
		samples, err := DecodeSamples(env)
		if err != nil {
			f.logger.Warn("Bad telemetry payload", "error", err)
			return
		}
		select {
		case f.sampleCh <- samples:
		default:
			f.logger.Debug("Sample channel full, dropping batch", "samples", len(samples))
		}
	case MsgEntities:
		records, err := DecodeEntities(env)
		if err != nil {
			f.logger.Warn("Bad entities payload", "error", err)
			return
		}
		select {
		case f.entityCh <- records:
		default:
			f.logger.Debug("Entity channel full, dropping roster", "entities", len(records))
		}
	case MsgPing:
		// Keepalive only.
	default:
		f.logger.Debug("Unknown envelope type", "type", env.Type)
	}
}

// reconnect re-establishes the feed connection with exponential
// backoff and restarts the read loop.
func (f *Feed) reconnect() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
	f.mu.Unlock()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-f.done:
			return
		default:
		}

		f.logger.Info("Reconnecting to feed", "attempt", attempt, "backoff", backoff)
		time.Sleep(backoff)

		conn, err := f.dialOnce()
		if err != nil {
			f.logger.Warn("Feed reconnect failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// Close may have raced the dial; a closed feed must not come
		// back to life.
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			_ = conn.Close()
			return
		}
		f.conn = conn
		f.mu.Unlock()

		f.logger.Info("Feed reconnected", "attempt", attempt)
		go f.readLoop()
		return
	}

	f.logger.Error("Feed reconnect gave up", "maxAttempts", maxReconnect)
	f.shutdown()
}

// Close sends a close frame and shuts down the read loop. The batch
// channels stay open; Done signals consumers to stop receiving.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.done)
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()

	if conn != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		)
		return conn.Close()
	}
	return nil
}

// shutdown marks the feed closed after a terminal reconnect failure so
// consumers watching Done can exit.
func (f *Feed) shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
}

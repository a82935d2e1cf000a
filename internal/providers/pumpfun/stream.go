// Package pumpfun streams new token creations and trades from the pump.fun
// WebSocket feed. The stream is a discovery source only: candidates it emits
// still go through the batch manager for enrichment.
package pumpfun

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Config holds the stream settings.
type Config struct {
	URL              string        `yaml:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// ReconnectBackoff is the initial wait before a reconnect attempt; it
	// doubles per consecutive failure up to MaxReconnectBackoff.
	ReconnectBackoff    time.Duration `yaml:"reconnect_backoff"`
	MaxReconnectBackoff time.Duration `yaml:"max_reconnect_backoff"`
	// BufferSize is the event channel capacity; events beyond it are dropped
	// rather than blocking the read loop.
	BufferSize int `yaml:"buffer_size"`
}

// TokenEvent is one message from the feed.
type TokenEvent struct {
	// Mint is the token address.
	Mint   string `json:"mint"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	// TxType distinguishes "create" events from trades ("buy", "sell").
	TxType            string  `json:"txType"`
	MarketCapSol      float64 `json:"marketCapSol"`
	SolAmount         float64 `json:"solAmount"`
	VTokensInBonding  float64 `json:"vTokensInBondingCurve"`
	VSolInBondingCurve float64 `json:"vSolInBondingCurve"`
}

// Stream maintains the WebSocket connection, resubscribing and reconnecting
// with exponential backoff until its context is cancelled.
type Stream struct {
	cfg    Config
	events chan TokenEvent

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	dropped   int64
}

// NewStream creates a Stream. Run must be called to start it.
func NewStream(cfg Config) *Stream {
	if cfg.URL == "" {
		cfg.URL = "wss://pumpportal.fun/api/data"
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = time.Second
	}
	if cfg.MaxReconnectBackoff <= 0 {
		cfg.MaxReconnectBackoff = time.Minute
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &Stream{
		cfg:    cfg,
		events: make(chan TokenEvent, cfg.BufferSize),
	}
}

// Events is the stream output. The channel is closed when Run returns.
func (s *Stream) Events() <-chan TokenEvent { return s.events }

// Connected reports whether the socket is currently up.
func (s *Stream) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Stream) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Run connects and pumps events until ctx is cancelled. Connection drops
// trigger reconnects with exponential backoff; Run only returns on context
// cancellation.
func (s *Stream) Run(ctx context.Context) error {
	defer close(s.events)

	backoff := s.cfg.ReconnectBackoff
	for {
		if conn, err := s.connect(ctx); err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("pump.fun connection failed")
		} else {
			backoff = s.cfg.ReconnectBackoff
			err := s.readLoop(ctx, conn)
			s.teardown()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("pump.fun stream dropped")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxReconnectBackoff {
			backoff = s.cfg.MaxReconnectBackoff
		}
	}
}

func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	sub := map[string]interface{}{"method": "subscribeNewToken"}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	log.Info().Str("url", s.cfg.URL).Msg("pump.fun stream connected")
	return conn, nil
}

// readLoop pumps messages until the connection drops or ctx is cancelled. A
// watcher goroutine closes the connection on cancellation so the blocking
// read always returns.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		var event TokenEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Debug().Err(err).Msg("Skipping unparseable pump.fun message")
			continue
		}
		if event.Mint == "" {
			continue
		}

		select {
		case s.events <- event:
		default:
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
		}
	}
}

func (s *Stream) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
}

// Close force-closes the current connection. Run will reconnect unless its
// context is already cancelled.
func (s *Stream) Close() {
	s.teardown()
}

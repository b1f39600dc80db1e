package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// FundingUpdate is a single funding-rate push frame, decoupled from
// market.Funding so this package has no dependency on internal/market;
// the scheduler translates between the two.
type FundingUpdate struct {
	Symbol          string
	RatePercent     float64
	NextFundingTime int64
	Timestamp       time.Time
}

// TickerUpdate is a single last-price push frame, decoupled from
// market.PriceData for the same reason as FundingUpdate.
type TickerUpdate struct {
	Symbol    string
	LastPrice float64
	Timestamp time.Time
}

// state mirrors the Disconnected -> Connecting -> Connected -> Closing ->
// Disconnected machine.
type state int

const (
	stateDisconnected state = iota
	stateConnecting
	stateConnected
	stateClosing
)

const (
	heartbeatInterval = 20 * time.Second
	reconnectBackoff  = 5 * time.Second
)

// Stream maintains a resilient full-duplex connection to the exchange and
// fans updates out onto two ordered channels, each buffered to 256 entries;
// when a buffer is full the read loop blocks until it drains. It follows the
// reconnect/resubscribe/heartbeat shape of
// internal/providers/kraken/websocket.go WebSocketClient, generalized from
// a per-channel handler registry to two fixed output streams, one for
// funding updates and one for ticker updates.
type Stream struct {
	wsURL string

	mu            sync.Mutex
	conn          *websocket.Conn
	st            state
	subscriptions map[string]struct{}

	fundingCh chan FundingUpdate
	tickerCh  chan TickerUpdate

	closeCh chan struct{}
	once    sync.Once
}

// NewStream constructs a Stream for wsURL. Call Run to start the
// connect/reconnect loop; Subscribe records intent before or after Run.
func NewStream(wsURL string) *Stream {
	return &Stream{
		wsURL:         wsURL,
		subscriptions: make(map[string]struct{}),
		fundingCh:     make(chan FundingUpdate, 256),
		tickerCh:      make(chan TickerUpdate, 256),
		closeCh:       make(chan struct{}),
	}
}

// FundingStream returns the ordered, 256-buffered channel of funding updates.
func (s *Stream) FundingStream() <-chan FundingUpdate { return s.fundingCh }

// TickerStream returns the ordered, 256-buffered channel of ticker updates.
func (s *Stream) TickerStream() <-chan TickerUpdate { return s.tickerCh }

// Subscribe idempotently records subscription intent for symbol; if
// currently connected it issues the subscribe frames immediately. The
// intent set persists across reconnects.
func (s *Stream) Subscribe(sym string) {
	s.mu.Lock()
	_, already := s.subscriptions[sym]
	s.subscriptions[sym] = struct{}{}
	connected := s.st == stateConnected
	conn := s.conn
	s.mu.Unlock()

	if already || !connected {
		return
	}
	if err := sendSubscribe(conn, sym); err != nil {
		log.Warn().Err(err).Str("symbol", sym).Msg("subscribe frame failed")
	}
}

func sendSubscribe(conn *websocket.Conn, sym string) error {
	if conn == nil {
		return fmt.Errorf("no active connection")
	}
	for _, feed := range []string{"funding." + sym, "tickers." + sym} {
		frame := map[string]interface{}{"op": "subscribe", "args": []string{feed}}
		if err := conn.WriteJSON(frame); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the connect -> read -> reconnect loop until ctx is cancelled.
// It blocks; callers run it in its own goroutine.
func (s *Stream) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.close()
			return
		default:
		}

		if err := s.connectAndServe(ctx); err != nil {
			log.Warn().Err(err).Msg("stream connection ended, reconnecting")
		}

		select {
		case <-ctx.Done():
			s.close()
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (s *Stream) connectAndServe(ctx context.Context) error {
	s.setState(stateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		s.setState(stateDisconnected)
		return &TransportError{Op: "streamConnect", Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.st = stateConnected
	subs := make([]string, 0, len(s.subscriptions))
	for sym := range s.subscriptions {
		subs = append(subs, sym)
	}
	s.mu.Unlock()

	log.Info().Msg("stream connected")

	// Replay all accumulated subscriptions on (re)connect.
	for _, sym := range subs {
		if err := sendSubscribe(conn, sym); err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("resubscribe failed")
		}
	}

	readErrCh := make(chan error, 1)
	go func() { readErrCh <- s.readLoop(conn) }()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(stateClosing)
			_ = conn.Close()
			<-readErrCh
			s.setState(stateDisconnected)
			return nil
		case err := <-readErrCh:
			s.setState(stateDisconnected)
			return err
		case <-heartbeat.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.setState(stateDisconnected)
				_ = conn.Close()
				<-readErrCh
				return &TransportError{Op: "heartbeat", Err: err}
			}
		}
	}
}

func (s *Stream) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return &TransportError{Op: "streamRead", Err: err}
		}
		s.dispatchFrame(raw)
	}
}

type wireFrame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

func (s *Stream) dispatchFrame(raw []byte) {
	var frame wireFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Warn().Err(&ParseError{Op: "streamFrame", Err: err}).Msg("discarding malformed frame")
		return
	}
	if frame.Topic == "" {
		return // subscription ack / control frame, not a data update
	}

	switch {
	case strings.HasPrefix(frame.Topic, "funding."):
		sym := strings.TrimPrefix(frame.Topic, "funding.")
		var payload struct {
			FundingRate     json.Number `json:"fundingRate"`
			NextFundingTime int64       `json:"nextFundingTime"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			log.Warn().Err(&ParseError{Op: "fundingFrame", Err: err}).Msg("discarding malformed frame")
			return
		}
		rate, _ := strconv.ParseFloat(string(payload.FundingRate), 64)
		s.fundingCh <- FundingUpdate{
			Symbol:          sym,
			RatePercent:     rate * 100,
			NextFundingTime: payload.NextFundingTime,
			Timestamp:       time.Now(),
		}
	case strings.HasPrefix(frame.Topic, "tickers."):
		sym := strings.TrimPrefix(frame.Topic, "tickers.")
		var payload struct {
			LastPrice json.Number `json:"lastPrice"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			log.Warn().Err(&ParseError{Op: "tickerFrame", Err: err}).Msg("discarding malformed frame")
			return
		}
		price, _ := strconv.ParseFloat(string(payload.LastPrice), 64)
		s.tickerCh <- TickerUpdate{
			Symbol:    sym,
			LastPrice: price,
			Timestamp: time.Now(),
		}
	}
}

func (s *Stream) setState(st state) {
	s.mu.Lock()
	s.st = st
	s.mu.Unlock()
}

func (s *Stream) close() {
	s.once.Do(func() { close(s.closeCh) })
}

package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"github.com/gorilla/websocket"
)

// Stream consumes the Binance combined ticker and diff-depth stream.
type Stream struct {
	baseURL    string
	symbols    []string
	tickers    *TickerCache
	depth      *DepthManager
	resync     func(symbol string)
	delay      time.Duration
	maxRetries int
	dialer     *websocket.Dialer
	logger     *slog.Logger
	now        func() time.Time
}

// NewStream creates a stream client. resync is called with the symbol
// whenever a depth gap is detected; it may be nil.
func NewStream(baseURL string, symbols []string, tickers *TickerCache, depth *DepthManager, resync func(string), delay time.Duration, maxRetries int, logger *slog.Logger) *Stream {
	if resync == nil {
		resync = func(string) {}
	}
	return &Stream{
		baseURL:    strings.TrimRight(baseURL, "/"),
		symbols:    symbols,
		tickers:    tickers,
		depth:      depth,
		resync:     resync,
		delay:      delay,
		maxRetries: maxRetries,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger.With("component", "stream"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// URL returns the combined stream URL subscribing to ticker and depth
// events of every symbol.
func (s *Stream) URL() string {
	streams := make([]string, 0, 2*len(s.symbols))
	for _, sym := range s.symbols {
		lower := strings.ToLower(sym)
		streams = append(streams, lower+"@ticker", lower+"@depth")
	}
	return s.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

// Run connects and reconnects until ctx is cancelled or the server closes
// the stream normally. Reconnect delays double after each consecutive
// failure; a session that connected resets the count. Run gives up after
// maxRetries consecutive failed attempts.
func (s *Stream) Run(ctx context.Context) error {
	failures := 0
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			s.logger.Info("stream closed by server")
			return nil
		}
		if connected {
			failures = 0
		}
		failures++
		if failures > s.maxRetries {
			return fmt.Errorf("stream: giving up after %d consecutive failures: %w", failures, err)
		}

		wait := s.delay << (failures - 1)
		s.logger.Warn("stream disconnected, reconnecting", "error", err, "attempt", failures, "delay", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session runs one connection. connected reports whether the handshake
// succeeded; a nil error means a normal close.
func (s *Stream) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := s.dialer.DialContext(ctx, s.URL(), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	s.logger.Info("stream connected", "symbols", len(s.symbols))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, nil
			}
			return true, err
		}
		if err := s.handle(msg); err != nil {
			s.logger.Debug("stream message dropped", "error", err)
		}
	}
}

func (s *Stream) handle(msg []byte) error {
	var env streamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return fmt.Errorf("envelope: %w", err)
	}

	switch {
	case strings.HasSuffix(env.Stream, "@ticker"):
		var ev wsTicker
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("ticker: %w", err)
		}
		t, err := ev.toDomain(s.now())
		if err != nil {
			return err
		}
		s.tickers.Set(t)

	case strings.HasSuffix(env.Stream, "@depth"):
		var ev wsDepth
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("depth: %w", err)
		}
		delta, err := ev.toDomain()
		if err != nil {
			return err
		}
		if err := s.depth.ApplyDelta(delta, s.now()); err != nil {
			if errors.Is(err, domain.ErrStaleDepth) {
				s.resync(delta.Symbol)
			}
			return err
		}

	default:
		return fmt.Errorf("unknown stream %q", env.Stream)
	}
	return nil
}

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/spotsim/internal/domain"
	"golang.org/x/time/rate"
)

// RESTClient fetches tickers and depth snapshots from the Binance public
// REST API. Every request waits on a shared rate limiter.
type RESTClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRESTClient creates a client for baseURL allowing rps requests per
// second with a small burst.
func NewRESTClient(baseURL string, rps float64, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 10),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Tickers returns 24h statistics for the given symbols.
func (c *RESTClient) Tickers(ctx context.Context, symbols []string) ([]domain.Ticker, error) {
	quoted := make([]string, len(symbols))
	for i, s := range symbols {
		quoted[i] = strconv.Quote(strings.ToUpper(s))
	}
	q := url.Values{}
	q.Set("symbols", "["+strings.Join(quoted, ",")+"]")

	var raw []restTicker
	if err := c.get(ctx, "/api/v3/ticker/24hr", q, &raw); err != nil {
		return nil, err
	}

	at := c.now()
	out := make([]domain.Ticker, 0, len(raw))
	for _, r := range raw {
		t, err := r.toDomain(at)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Depth returns a depth snapshot of up to limit levels per side.
func (c *RESTClient) Depth(ctx context.Context, symbol string, limit int) (domain.DepthSnapshot, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("limit", strconv.Itoa(limit))

	var raw restDepth
	if err := c.get(ctx, "/api/v3/depth", q, &raw); err != nil {
		return domain.DepthSnapshot{}, err
	}
	return raw.toDomain(symbol)
}

func (c *RESTClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// Poller refreshes the ticker cache and depth mirror on a fixed interval
// and resyncs individual symbols on request.
type Poller struct {
	client     *RESTClient
	tickers    *TickerCache
	depth      *DepthManager
	symbols    []string
	interval   time.Duration
	depthLimit int
	resync     chan string
	logger     *slog.Logger
}

// NewPoller creates a Poller for symbols.
func NewPoller(client *RESTClient, tickers *TickerCache, depth *DepthManager, symbols []string, interval time.Duration, depthLimit int, logger *slog.Logger) *Poller {
	return &Poller{
		client:     client,
		tickers:    tickers,
		depth:      depth,
		symbols:    symbols,
		interval:   interval,
		depthLimit: depthLimit,
		resync:     make(chan string, len(symbols)+1),
		logger:     logger.With("component", "poller"),
	}
}

// RequestResync schedules a depth snapshot for symbol. Requests are
// dropped while the queue is full.
func (p *Poller) RequestResync(symbol string) {
	select {
	case p.resync <- symbol:
	default:
	}
}

// Run polls until ctx is cancelled. The first refresh happens immediately.
func (p *Poller) Run(ctx context.Context) error {
	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Refresh(ctx)
		case symbol := <-p.resync:
			p.refreshDepth(ctx, symbol)
		}
	}
}

// Refresh fetches every ticker and depth snapshot once. Failures are
// logged; the previous state stays in place.
func (p *Poller) Refresh(ctx context.Context) {
	tickers, err := p.client.Tickers(ctx, p.symbols)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("ticker refresh failed", "error", err)
		}
	} else {
		p.tickers.SetAll(tickers)
	}

	for _, symbol := range p.symbols {
		if ctx.Err() != nil {
			return
		}
		p.refreshDepth(ctx, symbol)
	}
}

func (p *Poller) refreshDepth(ctx context.Context, symbol string) {
	snap, err := p.client.Depth(ctx, symbol, p.depthLimit)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("depth refresh failed", "symbol", symbol, "error", err)
		}
		return
	}
	p.depth.ApplySnapshot(snap, p.client.now())
	p.logger.Debug("depth snapshot applied", "symbol", symbol, "last_update_id", snap.LastUpdateID)
}

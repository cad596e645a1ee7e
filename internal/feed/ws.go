package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

const (
	wsMaxRetries   = 10
	wsBaseDelay    = 1 * time.Second
	wsMaxDelay     = 60 * time.Second
	wsReadTimeout  = 90 * time.Second
	wsDialTimeout  = 10 * time.Second
)

// wireBar is the candle payload shape emitted by the bar relay.
type wireBar struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"` // UNIX seconds
	Open      string  `json:"open"`
	High      string  `json:"high"`
	Low       string  `json:"low"`
	Close     string  `json:"close"`
	Volume    string  `json:"volume"`
	Halted    bool    `json:"halted"`
	Seq       int64   `json:"seq"`
}

// WSWorker streams closed candles from a bar relay endpoint into barChan.
// It reconnects with exponential backoff and drops nothing on its side;
// the consumer owns backpressure via channel capacity.
type WSWorker struct {
	url     string
	symbols []string
	barChan chan<- domain.Bar

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWSWorker creates a streaming bar source for the given symbols.
func NewWSWorker(url string, symbols []string, barChan chan<- domain.Bar) *WSWorker {
	return &WSWorker{
		url:     url,
		symbols: symbols,
		barChan: barChan,
	}
}

// Connect starts the connection loop in the background.
func (w *WSWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.connectionLoop(ctx)

	return nil
}

func (w *WSWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bar feed panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("bar feed connection loop stopped")
			return
		default:
		}

		err := w.connect(ctx)
		if err != nil {
			slog.Warn("bar feed connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := w.calculateBackoff(retryCount)
			retryCount++
			if retryCount > wsMaxRetries {
				slog.Error("bar feed max retries exceeded, resetting counter")
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		w.readLoop(ctx)
	}
}

func (w *WSWorker) calculateBackoff(retryCount int) time.Duration {
	delay := wsBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > wsMaxDelay {
		delay = wsMaxDelay
	}
	return delay
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: wsDialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	slog.Info("bar feed connected",
		slog.String("url", w.url),
		slog.Int("symbols", len(w.symbols)),
	)

	return nil
}

func (w *WSWorker) subscribe() error {
	subscribeMsg := map[string]interface{}{
		"op":      "subscribe",
		"channel": "candles",
		"symbols": w.symbols,
	}

	msgBytes, err := json.Marshal(subscribeMsg)
	if err != nil {
		return err
	}

	return w.threadSafeWrite(websocket.TextMessage, msgBytes)
}

func (w *WSWorker) threadSafeWrite(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	return conn.WriteMessage(messageType, data)
}

func (w *WSWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("bar feed read error", slog.Any("error", err))
			}
			w.closeConnection()
			return
		}

		w.handleMessage(message)
	}
}

func (w *WSWorker) handleMessage(message []byte) {
	var wb wireBar
	if err := json.Unmarshal(message, &wb); err != nil {
		slog.Debug("bar feed message parse error", slog.Any("error", err))
		return
	}

	if wb.Type != "candle" {
		return
	}

	bar := domain.Bar{
		Time:   time.Unix(wb.Timestamp, 0).UTC(),
		Symbol: wb.Symbol,
		Status: domain.MarketOpen,
	}

	if wb.Halted {
		bar.Status = domain.MarketClosed
	} else {
		var ok bool
		if bar.Open, ok = parseDec(wb.Open); !ok {
			bar.Status = domain.MarketClosed
		}
		if bar.High, ok = parseDec(wb.High); !ok {
			bar.Status = domain.MarketClosed
		}
		if bar.Low, ok = parseDec(wb.Low); !ok {
			bar.Status = domain.MarketClosed
		}
		if bar.Close, ok = parseDec(wb.Close); !ok {
			bar.Status = domain.MarketClosed
		}
		bar.Volume, _ = parseDec(wb.Volume)
	}
	if bar.Status == domain.MarketClosed {
		bar.Open, bar.High, bar.Low, bar.Close, bar.Volume =
			decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	}

	if w.barChan != nil {
		select {
		case w.barChan <- bar:
		default:
			slog.Warn("bar feed channel full, dropping candle",
				slog.String("symbol", wb.Symbol),
				slog.Int64("seq", wb.Seq),
			)
		}
	}
}

func (w *WSWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

// Disconnect stops the worker and closes the connection.
func (w *WSWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
	slog.Info("bar feed disconnected")
}

// IsConnected returns connection status.
func (w *WSWorker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

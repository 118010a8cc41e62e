package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"market_go/internal/domain"
	"market_go/internal/event"
)

const (
	clientMaxRetries  = 10
	clientBaseDelay   = 1 * time.Second
	clientMaxDelay    = 60 * time.Second
	clientReadTimeout = pongWait
)

// Client follows one viewer's notification stream and reconnects with
// exponential backoff until Disconnect.
type Client struct {
	url       string
	viewer    domain.ViewerID
	out       chan<- event.Envelope
	conn      *websocket.Conn
	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger

	// baseDelay is the first retry delay; tests shorten it.
	baseDelay time.Duration
}

// NewClient creates a client for the stream at url (ws:// or wss://).
// Frames that arrive while out is full are dropped.
func NewClient(url string, viewer domain.ViewerID, out chan<- event.Envelope, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:       url,
		viewer:    viewer,
		out:       out,
		logger:    logger,
		baseDelay: clientBaseDelay,
	}
}

// Connect starts the connection loop in the background.
func (c *Client) Connect(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.connectionLoop(ctx)
	return nil
}

// Connected reports whether the socket is currently up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) connectionLoop(ctx context.Context) {
	defer c.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.connect(ctx); err != nil {
			c.logger.Warn("Notification stream connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := c.calculateBackoff(retryCount)
			retryCount++
			if retryCount > clientMaxRetries {
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
		c.readLoop(ctx)
	}
}

// calculateBackoff returns the delay for the current retry attempt
func (c *Client) calculateBackoff(retryCount int) time.Duration {
	delay := c.baseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > clientMaxDelay {
		delay = clientMaxDelay
	}
	return delay
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Set("X-Viewer-ID", c.viewer.String())

	conn, _, err := dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("Notification stream connected", slog.String("viewer", c.viewer.String()))
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	// Unblock ReadMessage when ctx ends.
	stop := context.AfterFunc(ctx, c.closeConnection)
	defer stop()

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(clientReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.closeConnection()
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg []byte) {
	ev, err := event.Decode(msg)
	if err != nil {
		c.logger.Debug("Dropping undecodable frame", slog.Any("error", err))
		return
	}
	select {
	case c.out <- ev:
	default: // DROP
	}
}

func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// Disconnect stops the loop and waits for it to exit.
func (c *Client) Disconnect() {
	if c.cancel != nil {
		c.cancel()
	}
	c.closeConnection()
	c.wg.Wait()
}

package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfig configures the confirmation watcher's connection behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default watcher configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Confirmation is the outcome of a signatureSubscribe notification. Err is
// the raw RPC error value; nil means the transaction landed successfully.
type Confirmation struct {
	Signature string
	Slot      int64
	Err       interface{}
}

// ConfirmationWatcher waits for transaction signatures to reach confirmed
// commitment over a WebSocket connection. Signature subscriptions are
// one-shot on the node side: the subscription is removed after the first
// notification, so the watcher tracks each wait independently and does not
// resubscribe on reconnect (callers re-check via RPC after a drop).
type ConfirmationWatcher struct {
	endpoint string
	config   WSConfig
	logger   *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// pending maps request ID to the wait that issued it; waits maps
	// subscription ID to the same wait once the node confirms it.
	pending   map[uint64]*confirmWait
	waits     map[int64]*confirmWait
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

type confirmWait struct {
	signature string
	result    chan Confirmation
	dropped   chan struct{}
}

// NewConfirmationWatcher connects to the endpoint and starts the read and
// ping loops.
func NewConfirmationWatcher(ctx context.Context, endpoint string, config *WSConfig, logger *log.Logger) (*ConfirmationWatcher, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	w := &ConfirmationWatcher{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		pending:  make(map[uint64]*confirmWait),
		waits:    make(map[int64]*confirmWait),
		done:     make(chan struct{}),
	}

	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	w.wg.Add(2)
	go w.readLoop()
	go w.pingLoop()

	return w, nil
}

func (w *ConfirmationWatcher) connect(ctx context.Context) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	w.conn = conn
	return nil
}

// ErrConnectionDropped is returned by WaitForConfirmation when the socket
// dies before the notification arrives. The signature may still have landed;
// callers should fall back to GetTransaction over RPC.
var ErrConnectionDropped = fmt.Errorf("websocket connection dropped before confirmation")

// WaitForConfirmation subscribes to the signature and blocks until the node
// reports it confirmed, the context ends, or the connection drops.
func (w *ConfirmationWatcher) WaitForConfirmation(ctx context.Context, signature string) (*Confirmation, error) {
	if w.closed.Load() {
		return nil, fmt.Errorf("watcher closed")
	}

	reqID := w.requestID.Add(1)
	wait := &confirmWait{
		signature: signature,
		result:    make(chan Confirmation, 1),
		dropped:   make(chan struct{}),
	}

	w.pendingMu.Lock()
	w.pending[reqID] = wait
	w.pendingMu.Unlock()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}

	w.connMu.Lock()
	if w.conn == nil {
		w.connMu.Unlock()
		w.removeWait(reqID)
		return nil, ErrConnectionDropped
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	err := w.conn.WriteJSON(req)
	w.connMu.Unlock()

	if err != nil {
		w.removeWait(reqID)
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case conf := <-wait.result:
		return &conf, nil
	case <-wait.dropped:
		return nil, ErrConnectionDropped
	case <-w.done:
		return nil, fmt.Errorf("watcher closed")
	case <-ctx.Done():
		w.removeWait(reqID)
		return nil, ctx.Err()
	}
}

func (w *ConfirmationWatcher) removeWait(reqID uint64) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	wait, ok := w.pending[reqID]
	if !ok {
		return
	}
	delete(w.pending, reqID)
	for subID, sw := range w.waits {
		if sw == wait {
			delete(w.waits, subID)
		}
	}
}

// Close shuts down the watcher. Outstanding waits fail with
// ErrConnectionDropped.
func (w *ConfirmationWatcher) Close() error {
	if w.closed.Swap(true) {
		return nil
	}

	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.failAllWaits()
	w.wg.Wait()
	return nil
}

// failAllWaits wakes every in-flight wait so callers can fall back to RPC.
func (w *ConfirmationWatcher) failAllWaits() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	seen := make(map[*confirmWait]bool)
	for id, wait := range w.pending {
		delete(w.pending, id)
		if !seen[wait] {
			seen[wait] = true
			close(wait.dropped)
		}
	}
	for id, wait := range w.waits {
		delete(w.waits, id)
		if !seen[wait] {
			seen[wait] = true
			close(wait.dropped)
		}
	}
}

// readLoop reads messages and dispatches confirmations.
func (w *ConfirmationWatcher) readLoop() {
	defer w.wg.Done()

	reconnectDelay := w.config.ReconnectDelay

	for !w.closed.Load() {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		if conn == nil {
			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}

			// One-shot subscriptions cannot be replayed; fail the waits
			// and let callers re-check over RPC.
			w.failAllWaits()

			if !w.reconnecting.Swap(true) {
				go w.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > w.config.MaxReconnectDelay {
				reconnectDelay = w.config.MaxReconnectDelay
			}

			select {
			case <-w.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = w.config.ReconnectDelay

		w.handleMessage(message)
	}
}

// reconnect re-establishes the connection for future waits.
func (w *ConfirmationWatcher) reconnect(delay time.Duration) {
	defer w.reconnecting.Store(false)

	if w.closed.Load() {
		return
	}

	select {
	case <-w.done:
		return
	case <-time.After(delay):
	}

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.connect(ctx); err != nil {
		w.logger.Printf("[ws] reconnect failed: %v", err)
	}
}

func (w *ConfirmationWatcher) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		w.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "signatureNotification" {
		w.handleSignatureNotification(&notif)
		return
	}

	var errResp struct {
		JSONRPC string `json:"jsonrpc"`
		ID      uint64 `json:"id"`
		Error   *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(message, &errResp); err == nil && errResp.Error != nil {
		w.logger.Printf("[ws] error response: code=%d msg=%s", errResp.Error.Code, errResp.Error.Message)
	}
}

// handleSubscribeResponse moves a pending wait under its subscription ID.
func (w *ConfirmationWatcher) handleSubscribeResponse(resp *wsSubscribeResponse) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	wait, ok := w.pending[resp.ID]
	if !ok {
		return
	}
	delete(w.pending, resp.ID)
	w.waits[resp.Result] = wait
}

// handleSignatureNotification resolves the wait for the notified
// subscription. The node removes the subscription after this fires.
func (w *ConfirmationWatcher) handleSignatureNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	subID := notif.Params.Subscription

	w.pendingMu.Lock()
	wait, ok := w.waits[subID]
	if ok {
		delete(w.waits, subID)
	}
	w.pendingMu.Unlock()

	if !ok {
		return
	}

	conf := Confirmation{
		Signature: wait.signature,
		Err:       notif.Params.Result.Value.Err,
	}
	if notif.Params.Result.Context != nil {
		conf.Slot = notif.Params.Result.Context.Slot
	}

	select {
	case wait.result <- conf:
	default:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (w *ConfirmationWatcher) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.connMu.Lock()
			if w.conn != nil {
				w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
				// Reader handles reconnect if the write fails.
				_ = w.conn.WriteMessage(websocket.PingMessage, nil)
			}
			w.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext       `json:"context"`
	Value   wsSignatureValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsSignatureValue struct {
	Err interface{} `json:"err"`
}

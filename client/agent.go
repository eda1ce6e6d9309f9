// Package client is the session side of notification delivery: it keeps a
// push connection open, merges pushes into local state and falls back to
// the REST endpoints for everything the push channel only accelerates.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HSouheill/barrim_notifications/models"
)

// ErrPermissionUnsupported is returned when no PermissionRequester is set
var ErrPermissionUnsupported = errors.New("native alerts are not supported")

const defaultDialTimeout = 10 * time.Second

// Conn is the client end of a push connection. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens push connections
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

type stopper interface {
	Stop() bool
}

// Config configures an Agent. URL and Presenter are required.
type Config struct {
	// URL of the push endpoint, e.g. wss://host/api/ws
	URL string
	// Token is sent as a bearer token on the handshake
	Token string

	API         API
	Presenter   Presenter
	Permission  PermissionRequester
	Dialer      Dialer
	Logger      *log.Logger
	DialTimeout time.Duration
}

// Agent is one client session: at most one connection attempt at a time,
// a single cancelable reconnect timer, and local state mutated only under
// its lock. Create one per authenticated session and Disconnect it on
// logout.
type Agent struct {
	cfg      Config
	logger   *log.Logger
	schedule func(time.Duration, func()) stopper

	mu       sync.Mutex
	state    State
	conn     Conn
	connSt   ConnState
	gen      uint64
	attempts int
	timer    stopper
}

// New creates an Agent in the disconnected state
func New(cfg Config) *Agent {
	if cfg.Dialer == nil {
		cfg.Dialer = WebSocketDialer{}
	}
	if cfg.Presenter == nil {
		cfg.Presenter = LogPresenter{Logger: cfg.Logger}
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Agent{
		cfg:    cfg,
		logger: logger,
		schedule: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// ConnState returns the current connection state
func (a *Agent) ConnState() ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connSt
}

// State returns a copy of the local notification state
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.clone()
}

// Connect opens the push connection and resets the reconnect counter. It is
// a no-op while an attempt is in flight or a connection is open. The
// returned error is the result of this first attempt; reconnection is
// scheduled either way.
func (a *Agent) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.connSt == StateConnecting || a.connSt == StateConnected {
		a.mu.Unlock()
		return nil
	}
	a.stopTimerLocked()
	a.gen++
	a.attempts = 0
	gen := a.gen
	a.mu.Unlock()

	return a.dial(ctx, gen)
}

// Disconnect cancels any pending reconnect and closes the connection.
// Calling it again has no effect.
func (a *Agent) Disconnect() {
	a.mu.Lock()
	a.gen++
	a.stopTimerLocked()
	conn := a.conn
	a.conn = nil
	changed := a.connSt != StateDisconnected
	a.connSt = StateDisconnected
	a.state.Connected = false
	a.state.Loading = false
	a.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if changed {
		a.cfg.Presenter.ConnectionChanged(StateDisconnected)
	}
}

func (a *Agent) dial(ctx context.Context, gen uint64) error {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return nil
	}
	a.connSt = StateConnecting
	a.mu.Unlock()
	a.cfg.Presenter.ConnectionChanged(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()

	header := http.Header{}
	if a.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+a.cfg.Token)
	}
	conn, err := a.cfg.Dialer.Dial(dialCtx, a.cfg.URL, header)

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return nil
	}
	if err != nil {
		next := a.scheduleReconnectLocked(gen)
		a.mu.Unlock()
		a.logger.Printf("Push connection failed: %v", err)
		a.cfg.Presenter.ConnectionChanged(next)
		return err
	}

	a.conn = conn
	a.connSt = StateConnected
	a.attempts = 0
	a.state.Connected = true
	a.state.Loading = true
	needPrefs := a.state.Preferences == nil
	a.mu.Unlock()
	a.cfg.Presenter.ConnectionChanged(StateConnected)

	// The server answers with a snapshot and the unread count
	if err := conn.WriteJSON(models.Message{Type: models.MessageSync}); err != nil {
		a.logger.Printf("Requesting sync failed: %v", err)
		a.mu.Lock()
		if gen == a.gen {
			a.state.Loading = false
		}
		a.mu.Unlock()
	}
	if needPrefs && a.cfg.API != nil {
		go a.LoadPreferences(context.Background())
	}

	go a.readLoop(gen, conn)
	return nil
}

// scheduleReconnectLocked arms the backoff timer, or gives up after
// MaxReconnectAttempts. It returns the resulting state.
func (a *Agent) scheduleReconnectLocked(gen uint64) ConnState {
	a.conn = nil
	a.state.Connected = false
	a.state.Loading = false

	if a.attempts >= MaxReconnectAttempts {
		a.connSt = StateDisconnected
		a.logger.Printf("Giving up after %d reconnect attempts", a.attempts)
		return a.connSt
	}

	delay := BackoffDelay(a.attempts)
	a.attempts++
	a.connSt = StateReconnecting
	a.timer = a.schedule(delay, func() {
		a.dial(context.Background(), gen)
	})
	return a.connSt
}

func (a *Agent) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Agent) readLoop(gen uint64, conn Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			a.handleClose(gen, conn, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		a.handleFrame(gen, data)
	}
}

func (a *Agent) handleClose(gen uint64, conn Conn, cause error) {
	a.mu.Lock()
	if gen != a.gen || a.conn != conn {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	next := a.scheduleReconnectLocked(gen)
	a.mu.Unlock()

	conn.Close()
	a.logger.Printf("Push connection closed: %v", cause)
	a.cfg.Presenter.ConnectionChanged(next)
}

// handleFrame merges one push into local state. Frames from a superseded
// connection are ignored.
func (a *Agent) handleFrame(gen uint64, data []byte) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		a.logger.Printf("Dropping malformed push: %v", err)
		return
	}

	switch msg.Type {
	case models.MessageNotification:
		snapshot, single, err := models.DecodeNotificationPayload(msg.Data)
		if err != nil {
			a.logger.Printf("Dropping malformed notification push: %v", err)
			return
		}
		if single == nil {
			a.mu.Lock()
			if gen == a.gen {
				a.state.replace(snapshot)
				a.state.Loading = false
			}
			a.mu.Unlock()
			return
		}
		a.receive(gen, *single)

	case models.MessageNotificationCount:
		var p models.CountPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			a.logger.Printf("Dropping malformed count push: %v", err)
			return
		}
		a.mu.Lock()
		if gen == a.gen {
			a.state.UnreadCount = p.UnreadCount
			if a.state.UnreadCount < 0 {
				a.state.UnreadCount = 0
			}
		}
		a.mu.Unlock()

	case models.MessageError:
		var p models.ErrorPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil || p.Error == "" {
			p.Error = "The notification server reported an error"
		}
		// a failed sync is answered with an error instead of a snapshot
		a.mu.Lock()
		if gen == a.gen {
			a.state.Loading = false
		}
		a.mu.Unlock()
		a.cfg.Presenter.Warn(p.Error)

	default:
		a.logger.Printf("Ignoring push of unknown type %q", msg.Type)
	}
}

func (a *Agent) receive(gen uint64, n models.Notification) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return
	}
	isNew := a.state.prepend(n)
	prefs := models.DefaultPreferences("")
	if a.state.Preferences != nil {
		prefs = *a.state.Preferences
	}
	a.mu.Unlock()

	if !isNew {
		return
	}
	if prefs.InApp {
		a.cfg.Presenter.NotificationReceived(n)
	}
	if prefs.NativeAlertAllowed() {
		a.cfg.Presenter.ShowNativeAlert(newNativeAlert(n, func() {
			if err := a.MarkAsRead(context.Background(), n.ID.Hex()); err != nil {
				a.logger.Printf("Marking notification %s read from alert failed: %v", n.ID.Hex(), err)
			}
			a.cfg.Presenter.Navigate(Destination(n))
		}))
	}
}

// Refresh replaces local state with the latest page and unread count from
// the REST API. On failure local state is left untouched.
func (a *Agent) Refresh(ctx context.Context) error {
	if a.cfg.API == nil {
		return nil
	}
	a.setLoading(true)
	defer a.setLoading(false)

	list, err := a.cfg.API.ListNotifications(ctx, MaxLocalNotifications, 0)
	if err != nil {
		a.cfg.Presenter.Warn("Failed to load notifications")
		return err
	}
	count, err := a.cfg.API.UnreadCount(ctx)
	if err != nil {
		a.cfg.Presenter.Warn("Failed to load unread count")
		return err
	}

	a.mu.Lock()
	a.state.replace(list)
	a.state.UnreadCount = count
	a.mu.Unlock()
	return nil
}

// FetchPage loads an older page without touching local state
func (a *Agent) FetchPage(ctx context.Context, limit, offset int) ([]models.Notification, error) {
	if a.cfg.API == nil {
		return nil, errors.New("no REST API configured")
	}
	list, err := a.cfg.API.ListNotifications(ctx, limit, offset)
	if err != nil {
		a.cfg.Presenter.Warn("Failed to load notifications")
		return nil, err
	}
	return list, nil
}

// MarkAsRead marks id read on the server and, once confirmed, locally
func (a *Agent) MarkAsRead(ctx context.Context, id string) error {
	if a.cfg.API == nil {
		return errors.New("no REST API configured")
	}
	if err := a.cfg.API.MarkRead(ctx, id); err != nil {
		a.cfg.Presenter.Warn("Failed to mark notification as read")
		return err
	}

	a.mu.Lock()
	a.state.markRead(id)
	a.mu.Unlock()
	return nil
}

// MarkAllAsRead marks every notification read on the server and locally
func (a *Agent) MarkAllAsRead(ctx context.Context) error {
	if a.cfg.API == nil {
		return errors.New("no REST API configured")
	}
	if _, err := a.cfg.API.MarkAllRead(ctx); err != nil {
		a.cfg.Presenter.Warn("Failed to mark notifications as read")
		return err
	}

	a.mu.Lock()
	a.state.markAllRead()
	a.mu.Unlock()
	return nil
}

// LoadPreferences fetches and caches the delivery preferences
func (a *Agent) LoadPreferences(ctx context.Context) (models.DeliveryPreferences, error) {
	if a.cfg.API == nil {
		return models.DeliveryPreferences{}, errors.New("no REST API configured")
	}
	prefs, err := a.cfg.API.GetPreferences(ctx)
	if err != nil {
		a.cfg.Presenter.Warn("Failed to load notification preferences")
		return models.DeliveryPreferences{}, err
	}
	a.setPreferences(prefs)
	return prefs, nil
}

// UpdatePreferences saves the whole preference object. The cache only
// changes after the server accepted it.
func (a *Agent) UpdatePreferences(ctx context.Context, prefs models.DeliveryPreferences) error {
	if a.cfg.API == nil {
		return errors.New("no REST API configured")
	}
	saved, err := a.cfg.API.UpdatePreferences(ctx, updateRequest(prefs))
	if err != nil {
		a.cfg.Presenter.Warn("Failed to save preferences")
		return err
	}
	a.setPreferences(saved)
	return nil
}

// RequestNativePermission asks for native alert permission once. A user who
// already denied it is not asked again. On grant the native channel is
// enabled and persisted; a failed save does not revoke the permission for
// this session.
func (a *Agent) RequestNativePermission(ctx context.Context) (bool, error) {
	a.mu.Lock()
	var prefs models.DeliveryPreferences
	cached := a.state.Preferences != nil
	if cached {
		prefs = *a.state.Preferences
	}
	a.mu.Unlock()

	if !cached {
		loaded, err := a.LoadPreferences(ctx)
		if err != nil {
			return false, err
		}
		prefs = loaded
	}

	if prefs.NativePermissionGranted {
		return true, nil
	}
	if prefs.NativePermissionAsked {
		return false, nil
	}
	if a.cfg.Permission == nil {
		return false, ErrPermissionUnsupported
	}

	granted, err := a.cfg.Permission.RequestPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("request native permission: %w", err)
	}

	prefs.NativePermissionAsked = true
	prefs.NativePermissionGranted = granted
	if granted {
		prefs.NativeAlert = true
	}
	a.setPreferences(prefs)

	if a.cfg.API != nil {
		saved, err := a.cfg.API.UpdatePreferences(ctx, updateRequest(prefs))
		if err != nil {
			a.cfg.Presenter.Warn("Failed to save notification permission")
			return granted, nil
		}
		a.setPreferences(saved)
	}
	return granted, nil
}

func (a *Agent) setPreferences(prefs models.DeliveryPreferences) {
	a.mu.Lock()
	a.state.Preferences = &prefs
	a.mu.Unlock()
}

func (a *Agent) setLoading(loading bool) {
	a.mu.Lock()
	a.state.Loading = loading
	a.mu.Unlock()
}

func updateRequest(p models.DeliveryPreferences) models.UpdatePreferencesRequest {
	return models.UpdatePreferencesRequest{
		InApp:                   p.InApp,
		NativeAlert:             p.NativeAlert,
		NativePermissionGranted: p.NativePermissionGranted,
		NativePermissionAsked:   p.NativePermissionAsked,
	}
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/barrim_notifications/models"
)

var errRefused = errors.New("connection refused")

// fakeConn feeds frames pushed through in until it is closed
type fakeConn struct {
	in        chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []models.Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.done:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v.(models.Message))
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// fakeDialer returns queued results, then errRefused
type fakeDialer struct {
	mu      sync.Mutex
	results []*fakeConn
	dials   int
	header  http.Header
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.header = header
	if len(d.results) == 0 {
		return nil, errRefused
	}
	conn := d.results[0]
	d.results = d.results[1:]
	if conn == nil {
		return nil, errRefused
	}
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeScheduler records timers instead of running them
type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *fakeScheduler) schedule(d time.Duration, fn func()) stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{fn: fn}
	s.delays = append(s.delays, d)
	s.timers = append(s.timers, t)
	return t
}

// fire runs the most recent timer once, as if its delay elapsed
func (s *fakeScheduler) fire() bool {
	s.mu.Lock()
	if len(s.timers) == 0 {
		s.mu.Unlock()
		return false
	}
	t := s.timers[len(s.timers)-1]
	s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.fired = true
	t.fn()
	return true
}

func (s *fakeScheduler) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type recordingPresenter struct {
	mu       sync.Mutex
	states   []ConnState
	toasts   []models.Notification
	alerts   []NativeAlert
	warnings []string
	visited  []string
}

func (p *recordingPresenter) ConnectionChanged(s ConnState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
}

func (p *recordingPresenter) NotificationReceived(n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toasts = append(p.toasts, n)
}

func (p *recordingPresenter) ShowNativeAlert(a NativeAlert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
}

func (p *recordingPresenter) Warn(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings = append(p.warnings, msg)
}

func (p *recordingPresenter) Navigate(dest string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visited = append(p.visited, dest)
}

func (p *recordingPresenter) warningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.warnings)
}

// fakeAPI is a scripted REST backend
type fakeAPI struct {
	mu          sync.Mutex
	list        []models.Notification
	count       int64
	prefs       models.DeliveryPreferences
	markErr     error
	updateErr   error
	marked      []string
	prefUpdates int
}

func (f *fakeAPI) ListNotifications(_ context.Context, limit, offset int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Notification(nil), f.list...), nil
}

func (f *fakeAPI) UnreadCount(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeAPI) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeAPI) MarkAllRead(context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeAPI) GetPreferences(context.Context) (models.DeliveryPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs, nil
}

func (f *fakeAPI) UpdatePreferences(_ context.Context, req models.UpdatePreferencesRequest) (models.DeliveryPreferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefUpdates++
	if f.updateErr != nil {
		return models.DeliveryPreferences{}, f.updateErr
	}
	f.prefs.InApp = req.InApp
	f.prefs.NativeAlert = req.NativeAlert
	f.prefs.NativePermissionGranted = req.NativePermissionGranted
	f.prefs.NativePermissionAsked = req.NativePermissionAsked
	return f.prefs, nil
}

func newTestAgent(dialer *fakeDialer, api API) (*Agent, *fakeScheduler, *recordingPresenter) {
	sched := &fakeScheduler{}
	presenter := &recordingPresenter{}
	cfg := Config{
		URL:       "ws://example.test/api/ws",
		Token:     "session-token",
		Presenter: presenter,
		Dialer:    dialer,
	}
	if api != nil {
		cfg.API = api
	}
	a := New(cfg)
	a.schedule = sched.schedule
	return a, sched, presenter
}

func notification(title string, category models.Category) models.Notification {
	return models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    "alice",
		Type:      category,
		Title:     title,
		Message:   title + " body",
		EntityID:  "req-7",
		Status:    models.StatusUnread,
		CreatedAt: time.Now(),
	}
}

func frame(msg models.Message, err error) []byte {
	if err != nil {
		panic(err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}

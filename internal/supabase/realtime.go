package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

const defaultHeartbeatInterval = 30 * time.Second

// ErrNotConnected is returned when writing without an open socket.
var ErrNotConnected = errors.New("realtime: not connected")

// ChangeEvent is a Postgres change delivered over Realtime.
type ChangeEvent struct {
	Topic           string         `json:"topic"`
	Type            string         `json:"type"` // INSERT, UPDATE, DELETE
	Schema          string         `json:"schema"`
	Table           string         `json:"table"`
	CommitTimestamp string         `json:"commit_timestamp,omitempty"`
	Record          map[string]any `json:"record,omitempty"`
	OldRecord       map[string]any `json:"old_record,omitempty"`
}

// RecordID returns the id of the changed row from record or old_record.
func (e ChangeEvent) RecordID() string {
	for _, rec := range []map[string]any{e.Record, e.OldRecord} {
		if id, ok := rec["id"]; ok && id != nil {
			return fmt.Sprint(id)
		}
	}
	return ""
}

// ChangeHandler handles change events. Handlers run on the read goroutine
// and must not block.
type ChangeHandler func(ChangeEvent)

// PostgresChangesConfig configures a postgres changes subscription.
type PostgresChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE, *
	Schema string
	Table  string
	Filter string // optional, e.g. "id=eq.1"
}

// Channel is a joined realtime topic.
type Channel struct {
	topic    string
	changes  PostgresChangesConfig
	handlers map[string][]ChangeHandler
	joined   bool
	joinRef  string
}

// Topic returns the channel topic.
func (c *Channel) Topic() string {
	return c.topic
}

// RealtimeClient handles Supabase Realtime subscriptions.
type RealtimeClient struct {
	mu       sync.Mutex
	writeMu  sync.Mutex
	url      string
	dialer   *websocket.Dialer
	conn     *websocket.Conn
	channels map[string]*Channel
	ref      int

	heartbeatInterval time.Duration
	reconnect         RetryConfig
}

// NewRealtimeClient creates a realtime client for a project URL.
func NewRealtimeClient(supabaseURL, apiKey string) *RealtimeClient {
	wsURL := supabaseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	wsURL = strings.TrimSuffix(wsURL, "/") + "/realtime/v1/websocket?apikey=" + url.QueryEscape(apiKey) + "&vsn=1.0.0"

	reconnect := DefaultRetryConfig()
	reconnect.InitialBackoff = time.Second
	reconnect.MaxBackoff = time.Minute

	return &RealtimeClient{
		url:               wsURL,
		dialer:            &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		channels:          make(map[string]*Channel),
		heartbeatInterval: defaultHeartbeatInterval,
		reconnect:         reconnect,
	}
}

// Realtime returns a realtime client for this project.
func (c *Client) Realtime() *RealtimeClient {
	return NewRealtimeClient(c.baseURL, c.apiKey)
}

// SetHeartbeatInterval overrides the heartbeat period.
func (r *RealtimeClient) SetHeartbeatInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.heartbeatInterval = d
	}
}

// Connect establishes the WebSocket connection.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	if r.conn != nil {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	conn, _, err := r.dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	for _, ch := range r.channels {
		ch.joined = false
	}
	r.mu.Unlock()
	return nil
}

// Close closes the WebSocket connection.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	r.writeMu.Lock()
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.writeMu.Unlock()
	closeErr := conn.Close()
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return closeErr
}

// Subscribe registers handler for changes on a table and joins the topic
// when connected. Channels are re-joined after a reconnect.
func (r *RealtimeClient) Subscribe(ctx context.Context, cfg PostgresChangesConfig, handler ChangeHandler) (*Channel, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("realtime: table is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}
	cfg.Event = strings.ToUpper(cfg.Event)

	topic := fmt.Sprintf("realtime:%s:%s", cfg.Schema, cfg.Table)
	if cfg.Filter != "" {
		topic += ":" + cfg.Filter
	}

	r.mu.Lock()
	ch, ok := r.channels[topic]
	if !ok {
		ch = &Channel{topic: topic, changes: cfg, handlers: make(map[string][]ChangeHandler)}
		r.channels[topic] = ch
	}
	ch.handlers[cfg.Event] = append(ch.handlers[cfg.Event], handler)
	connected := r.conn != nil
	r.mu.Unlock()

	if connected {
		if err := r.join(ch); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

// Unsubscribe leaves a channel and drops its handlers.
func (r *RealtimeClient) Unsubscribe(ch *Channel) error {
	r.mu.Lock()
	delete(r.channels, ch.topic)
	joined := ch.joined
	ch.joined = false
	ref := r.nextRef()
	r.mu.Unlock()

	if !joined {
		return nil
	}
	return r.send(map[string]any{
		"topic":    ch.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      ref,
		"join_ref": ch.joinRef,
	})
}

// Run connects, joins every channel and dispatches events until ctx is
// done, reconnecting with backoff when the socket drops.
func (r *RealtimeClient) Run(ctx context.Context) error {
	attempt := 0
	for {
		err := r.Connect(ctx)
		if err == nil {
			attempt = 0
			err = r.serve(ctx)
		}
		if ctx.Err() != nil {
			_ = r.Close()
			return ctx.Err()
		}
		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.reconnect.Backoff(attempt)):
		}
	}
}

func (r *RealtimeClient) serve(ctx context.Context) error {
	r.mu.Lock()
	conn := r.conn
	channels := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		channels = append(channels, ch)
	}
	interval := r.heartbeatInterval
	r.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	for _, ch := range channels {
		if err := r.join(ch); err != nil {
			r.drop(conn)
			return err
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close()
		case <-done:
		}
	}()
	go r.heartbeat(done, interval)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			r.drop(conn)
			return fmt.Errorf("websocket read: %w", err)
		}
		if ev, ok := ParseChangeEvent(message); ok {
			r.dispatch(ev)
		}
	}
}

func (r *RealtimeClient) drop(conn *websocket.Conn) {
	r.mu.Lock()
	if r.conn == conn {
		r.conn = nil
	}
	r.mu.Unlock()
	_ = conn.Close()
}

func (r *RealtimeClient) join(ch *Channel) error {
	r.mu.Lock()
	if ch.joined {
		r.mu.Unlock()
		return nil
	}
	ref := r.nextRef()
	ch.joinRef = ref
	r.mu.Unlock()

	change := map[string]any{
		"event":  ch.changes.Event,
		"schema": ch.changes.Schema,
		"table":  ch.changes.Table,
	}
	if ch.changes.Filter != "" {
		change["filter"] = ch.changes.Filter
	}
	err := r.send(map[string]any{
		"topic": ch.topic,
		"event": "phx_join",
		"payload": map[string]any{
			"config": map[string]any{
				"postgres_changes": []any{change},
			},
		},
		"ref":      ref,
		"join_ref": ref,
	})
	if err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	r.mu.Lock()
	ch.joined = true
	r.mu.Unlock()
	return nil
}

func (r *RealtimeClient) heartbeat(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			ref := r.nextRef()
			r.mu.Unlock()
			_ = r.send(map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
				"ref":     ref,
			})
		}
	}
}

func (r *RealtimeClient) send(msg map[string]any) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// nextRef must be called with mu held.
func (r *RealtimeClient) nextRef() string {
	r.ref++
	return strconv.Itoa(r.ref)
}

func (r *RealtimeClient) dispatch(ev ChangeEvent) {
	r.mu.Lock()
	var handlers []ChangeHandler
	for _, ch := range r.channels {
		if ch.topic != ev.Topic && !(ch.changes.Table == ev.Table && ch.changes.Schema == ev.Schema) {
			continue
		}
		handlers = append(handlers, ch.handlers[ev.Type]...)
		handlers = append(handlers, ch.handlers["*"]...)
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// ParseChangeEvent extracts a change event from a raw Realtime frame. It
// understands both the postgres_changes envelope and the legacy
// INSERT/UPDATE/DELETE frames; other frames yield false.
func ParseChangeEvent(message []byte) (ChangeEvent, bool) {
	if !gjson.ValidBytes(message) {
		return ChangeEvent{}, false
	}
	frame := gjson.ParseBytes(message)
	ev := ChangeEvent{Topic: frame.Get("topic").String()}

	var data gjson.Result
	switch event := frame.Get("event").String(); event {
	case "postgres_changes":
		data = frame.Get("payload.data")
	case "INSERT", "UPDATE", "DELETE":
		data = frame.Get("payload")
	default:
		return ChangeEvent{}, false
	}
	if !data.Exists() {
		return ChangeEvent{}, false
	}

	ev.Type = strings.ToUpper(data.Get("type").String())
	if ev.Type == "" {
		ev.Type = frame.Get("event").String()
	}
	ev.Schema = data.Get("schema").String()
	ev.Table = data.Get("table").String()
	ev.CommitTimestamp = data.Get("commit_timestamp").String()
	if rec := data.Get("record"); rec.IsObject() {
		ev.Record, _ = rec.Value().(map[string]any)
	}
	if old := data.Get("old_record"); old.IsObject() {
		ev.OldRecord, _ = old.Value().(map[string]any)
	}

	if ev.Table == "" {
		// realtime:{schema}:{table}
		parts := strings.SplitN(ev.Topic, ":", 4)
		if len(parts) >= 3 {
			ev.Schema, ev.Table = parts[1], parts[2]
		}
	}
	return ev, true
}

// Package session owns one logical socket connection to the exchange:
// connect, subscribe, heartbeat, staleness detection, reconnect with
// capped backoff, and snapshot-vs-incremental reconciliation per channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperflow/params"
	"github.com/uhyunpark/hyperflow/pkg/metrics"
	"github.com/uhyunpark/hyperflow/pkg/util"
)

// ErrStale is returned by the read loop when no inbound traffic arrived
// within the staleness timeout. It routes to a reconnect, never to Closed.
var ErrStale = errors.New("session: no inbound traffic within staleness timeout")

// channelState holds per-channel reconciliation state. Until a snapshot
// has been seen on the current connection, incrementals are discarded.
type channelState struct {
	snapshotSeen bool
	snapshot     json.RawMessage
	increments   []json.RawMessage
}

// Machine is the session state machine. It is the sole owner of the
// connection phase, the desired subscription set, and per-channel state.
// All mutation happens on the Run goroutine or under m.mu.
type Machine struct {
	cfg   params.Session
	tr    Transport
	url   string
	clock util.Clock
	log   *zap.Logger

	// OnHeartbeat fires on every pong received while Live; the caller
	// wires it to the dead-man's-switch renewal. Set before Run.
	OnHeartbeat func()
	// OnFrame, when set, observes every applied data frame.
	OnFrame func(Frame)

	mu            sync.Mutex
	phase         Phase
	conn          Conn
	subs          map[string]Subscription
	acked         map[string]bool
	channels      map[string]*channelState
	lastHeartbeat time.Time
	liveSince     time.Time

	closeOnce sync.Once
	closeCh   chan struct{}
}

func NewMachine(cfg params.Session, tr Transport, url string, clock util.Clock, log *zap.Logger) *Machine {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{
		cfg:      cfg,
		tr:       tr,
		url:      url,
		clock:    clock,
		log:      log,
		phase:    PhaseDisconnected,
		subs:     make(map[string]Subscription),
		acked:    make(map[string]bool),
		channels: make(map[string]*channelState),
		closeCh:  make(chan struct{}),
	}
}

// Subscribe adds a channel to the desired set. The set survives
// reconnects; duplicates are no-ops. When a connection is up the
// subscription is sent immediately.
func (m *Machine) Subscribe(sub Subscription) error {
	m.mu.Lock()
	key := sub.Key()
	if _, ok := m.subs[key]; ok {
		m.mu.Unlock()
		return nil
	}
	m.subs[key] = sub
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		if err := conn.WriteJSON(subscribeMessage{Method: "subscribe", Subscription: sub}); err != nil {
			return fmt.Errorf("send subscribe %s: %w", key, err)
		}
	}
	return nil
}

func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Machine) LastHeartbeat() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeartbeat
}

// ChannelData returns the last snapshot and the incrementals applied since
// it for one channel. ok is false until a snapshot has been accepted on
// the current connection.
func (m *Machine) ChannelData(channel string) (snapshot json.RawMessage, increments []json.RawMessage, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, exists := m.channels[channel]
	if !exists || !cs.snapshotSeen {
		return nil, nil, false
	}
	out := make([]json.RawMessage, len(cs.increments))
	copy(out, cs.increments)
	return cs.snapshot, out, true
}

// Close moves the machine to Closed and stops Run. Idempotent; this is
// the only path to Closed.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		close(m.closeCh)
		m.transition(EventClose)
	})
}

func (m *Machine) closed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

// Run drives the connect/subscribe/read/reconnect loop until Close or
// context cancellation. Transport errors are always recoverable and route
// back through Reconnecting.
func (m *Machine) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.cfg.BackoffMin
	bo.MaxInterval = m.cfg.BackoffMax

	for {
		if m.closed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		m.transition(EventDial)
		conn, err := m.tr.Dial(ctx, m.url)
		if err != nil {
			m.log.Warn("socket dial failed", zap.Error(err))
			if !m.reconnectDelay(ctx, bo) {
				return ctx.Err()
			}
			continue
		}

		m.transition(EventConnected)
		m.beginConnection(conn)
		if err := m.resubscribe(conn); err != nil {
			m.log.Warn("resubscribe failed", zap.Error(err))
		}

		err = m.readLoop(ctx, conn)
		conn.Close()
		m.endConnection(bo)

		if m.closed() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.log.Warn("session connection lost", zap.Error(err))
		if !m.reconnectDelay(ctx, bo) {
			return ctx.Err()
		}
	}
}

// beginConnection resets per-connection state: acks and snapshot markers
// are cleared so a fresh snapshot is mandatory before incrementals are
// trusted again.
func (m *Machine) beginConnection(conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conn = conn
	for k := range m.acked {
		delete(m.acked, k)
	}
	for _, cs := range m.channels {
		cs.snapshotSeen = false
		cs.increments = nil
	}
}

func (m *Machine) endConnection(bo *backoff.ExponentialBackOff) {
	m.mu.Lock()
	live := m.liveSince
	m.conn = nil
	m.liveSince = time.Time{}
	m.mu.Unlock()

	// a sustained Live period earns a fresh backoff schedule
	if !live.IsZero() && m.clock.Now().Sub(live) >= m.cfg.LiveResetAfter {
		bo.Reset()
	}
}

func (m *Machine) reconnectDelay(ctx context.Context, bo *backoff.ExponentialBackOff) bool {
	m.transition(EventTransportError)
	metrics.ReconnectsTotal.Inc()

	d := bo.NextBackOff()
	if d == backoff.Stop {
		d = m.cfg.BackoffMax
	}
	select {
	case <-ctx.Done():
		return false
	case <-m.closeCh:
		return false
	case <-m.clock.After(d):
		return true
	}
}

func (m *Machine) resubscribe(conn Conn) error {
	m.mu.Lock()
	subs := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		if err := conn.WriteJSON(subscribeMessage{Method: "subscribe", Subscription: s}); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.Key(), err)
		}
	}
	m.maybeLive() // no desired subscriptions means nothing to wait for
	return nil
}

func (m *Machine) readLoop(ctx context.Context, conn Conn) error {
	frames := make(chan Frame, 64)
	errc := make(chan error, 1)
	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				errc <- err
				return
			}
			select {
			case frames <- f:
			case <-m.closeCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	lastRx := m.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closeCh:
			return nil
		case err := <-errc:
			return fmt.Errorf("socket read: %w", err)
		case f := <-frames:
			lastRx = m.clock.Now()
			m.handleFrame(f)
		case <-m.clock.After(m.cfg.HeartbeatPeriod):
			idle := m.clock.Now().Sub(lastRx)
			if idle >= m.cfg.StalenessTimeout {
				return ErrStale
			}
			if idle >= m.cfg.IdlePingAfter {
				if err := conn.WriteJSON(pingMessage{Method: "ping"}); err != nil {
					return fmt.Errorf("ping: %w", err)
				}
			}
		}
	}
}

func (m *Machine) handleFrame(f Frame) {
	switch f.Channel {
	case "pong":
		m.markHeartbeat()
	case "subscriptionResponse":
		m.markAcked(f)
	case "error":
		m.log.Warn("socket error frame", zap.ByteString("data", f.Data))
	default:
		m.applyData(f)
	}
}

func (m *Machine) markHeartbeat() {
	m.mu.Lock()
	m.lastHeartbeat = m.clock.Now()
	cb := m.OnHeartbeat
	live := m.phase == PhaseLive
	m.mu.Unlock()

	if live && cb != nil {
		cb()
	}
}

func (m *Machine) markAcked(f Frame) {
	var resp struct {
		Method       string       `json:"method"`
		Subscription Subscription `json:"subscription"`
	}
	if err := json.Unmarshal(f.Data, &resp); err != nil || resp.Method != "subscribe" {
		return
	}
	m.mu.Lock()
	m.acked[resp.Subscription.Key()] = true
	m.mu.Unlock()
	m.maybeLive()
}

// applyData reconciles one data frame. A snapshot replaces the channel's
// state wholesale; an incremental is applied only after a snapshot has
// been seen on this connection, otherwise it is discarded.
func (m *Machine) applyData(f Frame) {
	m.mu.Lock()
	// first data frame on a desired channel counts as its acknowledgement
	for key, sub := range m.subs {
		if sub.Type == f.Channel {
			m.acked[key] = true
		}
	}

	cs, ok := m.channels[f.Channel]
	if !ok {
		cs = &channelState{}
		m.channels[f.Channel] = cs
	}
	applied := false
	switch {
	case f.IsSnapshot:
		cs.snapshot = f.Data
		cs.increments = nil
		cs.snapshotSeen = true
		applied = true
	case cs.snapshotSeen:
		cs.increments = append(cs.increments, f.Data)
		applied = true
	default:
		m.log.Debug("discarding incremental before snapshot", zap.String("channel", f.Channel))
	}
	cb := m.OnFrame
	m.mu.Unlock()

	m.maybeLive()
	if applied && cb != nil {
		cb(f)
	}
}

func (m *Machine) maybeLive() {
	m.mu.Lock()
	if m.phase != PhaseSubscribing {
		m.mu.Unlock()
		return
	}
	for key := range m.subs {
		if !m.acked[key] {
			m.mu.Unlock()
			return
		}
	}
	m.liveSince = m.clock.Now()
	m.mu.Unlock()
	m.transition(EventSubscribed)
}

func (m *Machine) transition(e Event) {
	m.mu.Lock()
	from := m.phase
	to := next(from, e)
	m.phase = to
	m.mu.Unlock()

	if from != to {
		metrics.SessionPhase.Set(float64(to))
		m.log.Info("session phase",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Stringer("event", e),
		)
	}
}

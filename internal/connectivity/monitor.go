// Package connectivity tracks network and remote-store reachability.
//
// The monitor is the single source of truth for "can we reach the remote
// store right now". Checks against the real endpoint are rate-limited, and
// an offline-to-online transition raises the reachability-restored
// notification exactly once per transition.
package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atriumlabs/stayops/backend/internal/logging"
	"github.com/atriumlabs/stayops/backend/internal/metrics"
	"github.com/atriumlabs/stayops/backend/internal/models"
)

// Pinger verifies the remote store with a real round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NetworkProber checks transport-level reachability without touching the
// remote store.
type NetworkProber interface {
	Reachable() bool
}

// DialProber probes transport reachability with a TCP dial.
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

// Reachable dials the probe address and reports success.
func (p DialProber) Reachable() bool {
	conn, err := net.DialTimeout("tcp", p.Addr, p.Timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Listener receives connectivity-changed notifications. Called once per
// remote reachability transition with the new value.
type Listener func(remoteReachable bool)

// Config holds monitor timing configuration.
type Config struct {
	// CheckTimeout bounds a single remote reachability check.
	CheckTimeout time.Duration
	// CacheWindow is the minimum interval between real remote checks.
	CacheWindow time.Duration
	// PollInterval is the background polling cadence. OS connectivity events
	// report transport reachability only; the poller covers the gap where the
	// network is up but the remote endpoint is not.
	PollInterval time.Duration
}

// DefaultConfig returns the default monitor timings.
func DefaultConfig() Config {
	return Config{
		CheckTimeout: 10 * time.Second,
		CacheWindow:  10 * time.Second,
		PollInterval: 15 * time.Second,
	}
}

// Monitor owns the process-wide connectivity state.
type Monitor struct {
	prober  NetworkProber
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Registry

	mu        sync.Mutex
	pinger    Pinger
	state     models.ConnectivityState
	lastCheck time.Time

	listenerMu sync.RWMutex
	listeners  []Listener

	runMu   sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a Monitor. pinger may be nil (no remote configured yet);
// until SetPinger is called every remote check reports unreachable.
func NewMonitor(pinger Pinger, prober NetworkProber, cfg Config, reg *metrics.Registry) *Monitor {
	return &Monitor{
		prober:  prober,
		cfg:     cfg,
		log:     logging.Component("connectivity"),
		metrics: reg,
		pinger:  pinger,
	}
}

// SetPinger installs or replaces the remote pinger.
func (m *Monitor) SetPinger(p Pinger) {
	m.mu.Lock()
	m.pinger = p
	m.mu.Unlock()
}

// AddListener registers a connectivity-changed listener. Listeners are called
// synchronously, once per transition.
func (m *Monitor) AddListener(l Listener) {
	m.listenerMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenerMu.Unlock()
}

// State returns the current connectivity snapshot.
func (m *Monitor) State() models.ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsNetworkReachable reports transport-level reachability. No remote-store
// round trip.
func (m *Monitor) IsNetworkReachable() bool {
	reachable := m.prober.Reachable()

	m.mu.Lock()
	m.state.NetworkReachable = reachable
	m.mu.Unlock()

	return reachable
}

// CheckRemoteReachable verifies the remote store, returning the cached value
// when called again inside the cache window. On a false-to-true transition
// the reachability-restored notification fires exactly once.
func (m *Monitor) CheckRemoteReachable(ctx context.Context) bool {
	m.mu.Lock()
	if !m.lastCheck.IsZero() && time.Since(m.lastCheck) < m.cfg.CacheWindow {
		cached := m.state.RemoteReachable
		m.mu.Unlock()
		return cached
	}
	m.mu.Unlock()

	return m.check(ctx)
}

// RefreshAndNotify forces an uncached check; a state flip raises the same
// notification as a cached check would.
func (m *Monitor) RefreshAndNotify(ctx context.Context) bool {
	return m.check(ctx)
}

// check performs the real probe and handles transitions. A probe error or
// timeout means unreachable, never a propagated failure.
func (m *Monitor) check(ctx context.Context) bool {
	m.mu.Lock()
	pinger := m.pinger
	m.mu.Unlock()

	reachable := false
	if pinger != nil {
		checkCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
		reachable = pinger.Ping(checkCtx) == nil
		cancel()
	}

	m.mu.Lock()
	was := m.state.RemoteReachable
	m.state.RemoteReachable = reachable
	m.state.LastChecked = time.Now().Unix()
	m.lastCheck = time.Now()
	m.mu.Unlock()

	if m.metrics != nil {
		if reachable {
			m.metrics.RemoteReachable.Set(1)
			m.metrics.RemoteChecks.WithLabelValues("reachable").Inc()
		} else {
			m.metrics.RemoteReachable.Set(0)
			m.metrics.RemoteChecks.WithLabelValues("unreachable").Inc()
		}
	}

	if was != reachable {
		m.log.Info().Bool("remote_reachable", reachable).Msg("remote reachability changed")
		m.notify(reachable)
	}

	return reachable
}

// notify fans the transition out to all listeners.
func (m *Monitor) notify(reachable bool) {
	m.listenerMu.RLock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenerMu.RUnlock()

	for _, l := range listeners {
		l(reachable)
	}
}

// Start launches the background polling loop.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	if m.running {
		m.runMu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.runMu.Unlock()

	m.wg.Add(1)
	go m.pollLoop(ctx)

	m.log.Info().Dur("interval", m.cfg.PollInterval).Msg("connectivity poller started")
}

// Stop stops the background polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.runMu.Unlock()

	m.wg.Wait()
	m.log.Info().Msg("connectivity poller stopped")
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.IsNetworkReachable()
			m.RefreshAndNotify(ctx)
		}
	}
}

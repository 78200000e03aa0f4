// Package connectivity provides unit tests for the connectivity monitor.
package connectivity

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakePinger counts calls and returns a configurable error.
type fakePinger struct {
	err   error
	calls int
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.calls++
	return p.err
}

type fakeProber struct {
	reachable bool
}

func (p fakeProber) Reachable() bool { return p.reachable }

func testConfig(window time.Duration) Config {
	return Config{
		CheckTimeout: time.Second,
		CacheWindow:  window,
		PollInterval: time.Hour,
	}
}

func TestCheckRemoteReachable(t *testing.T) {
	pinger := &fakePinger{}
	m := NewMonitor(pinger, fakeProber{reachable: true}, testConfig(0), nil)

	if !m.CheckRemoteReachable(context.Background()) {
		t.Error("Expected reachable with healthy pinger")
	}

	pinger.err = errors.New("connection refused")
	if m.CheckRemoteReachable(context.Background()) {
		t.Error("Expected unreachable with failing pinger")
	}
}

func TestCheckCachesInsideWindow(t *testing.T) {
	pinger := &fakePinger{}
	m := NewMonitor(pinger, fakeProber{reachable: true}, testConfig(time.Hour), nil)

	m.CheckRemoteReachable(context.Background())
	m.CheckRemoteReachable(context.Background())
	m.CheckRemoteReachable(context.Background())

	if pinger.calls != 1 {
		t.Errorf("Expected 1 real check inside cache window, got %d", pinger.calls)
	}

	// The cached result is served even after the remote goes down
	pinger.err = errors.New("connection refused")
	if !m.CheckRemoteReachable(context.Background()) {
		t.Error("Expected cached reachable result inside window")
	}
}

func TestRefreshBypassesCache(t *testing.T) {
	pinger := &fakePinger{}
	m := NewMonitor(pinger, fakeProber{reachable: true}, testConfig(time.Hour), nil)

	m.CheckRemoteReachable(context.Background())
	m.RefreshAndNotify(context.Background())

	if pinger.calls != 2 {
		t.Errorf("Expected forced refresh to hit the pinger, got %d calls", pinger.calls)
	}
}

func TestNotifyExactlyOncePerTransition(t *testing.T) {
	pinger := &fakePinger{err: errors.New("down")}
	m := NewMonitor(pinger, fakeProber{reachable: true}, testConfig(0), nil)

	var notifications []bool
	m.AddListener(func(reachable bool) {
		notifications = append(notifications, reachable)
	})

	// Initial state is unreachable; repeated failing checks are not transitions
	m.CheckRemoteReachable(context.Background())
	m.CheckRemoteReachable(context.Background())
	if len(notifications) != 0 {
		t.Fatalf("Expected no notifications while staying unreachable, got %v", notifications)
	}

	// Restoration fires exactly once
	pinger.err = nil
	m.CheckRemoteReachable(context.Background())
	m.CheckRemoteReachable(context.Background())
	if len(notifications) != 1 || !notifications[0] {
		t.Fatalf("Expected one restored notification, got %v", notifications)
	}

	// Loss fires exactly once
	pinger.err = errors.New("down")
	m.CheckRemoteReachable(context.Background())
	m.CheckRemoteReachable(context.Background())
	if len(notifications) != 2 || notifications[1] {
		t.Fatalf("Expected one lost notification, got %v", notifications)
	}
}

func TestNilPingerIsUnreachable(t *testing.T) {
	m := NewMonitor(nil, fakeProber{reachable: true}, testConfig(0), nil)

	if m.CheckRemoteReachable(context.Background()) {
		t.Error("Expected unreachable with no pinger configured")
	}
}

func TestSetPingerUpgradesMonitor(t *testing.T) {
	m := NewMonitor(nil, fakeProber{reachable: true}, testConfig(0), nil)

	m.SetPinger(&fakePinger{})
	if !m.CheckRemoteReachable(context.Background()) {
		t.Error("Expected reachable after pinger installed")
	}
}

func TestStateSnapshot(t *testing.T) {
	m := NewMonitor(&fakePinger{}, fakeProber{reachable: true}, testConfig(0), nil)

	if !m.IsNetworkReachable() {
		t.Error("Expected network reachable")
	}
	m.CheckRemoteReachable(context.Background())

	state := m.State()
	if !state.NetworkReachable || !state.RemoteReachable {
		t.Errorf("Unexpected state: %+v", state)
	}
	if !state.Online() {
		t.Error("Expected online mode with reachable remote")
	}
	if state.LastChecked == 0 {
		t.Error("Expected last_checked stamped")
	}
}

func TestOnlineRequiresRemote(t *testing.T) {
	pinger := &fakePinger{err: errors.New("endpoint down")}
	m := NewMonitor(pinger, fakeProber{reachable: true}, testConfig(0), nil)

	m.IsNetworkReachable()
	m.CheckRemoteReachable(context.Background())

	state := m.State()
	if !state.NetworkReachable {
		t.Error("Expected network reachable")
	}
	if state.Online() {
		t.Error("A reachable network with an unreachable endpoint is still offline")
	}
}

func TestStartStop(t *testing.T) {
	m := NewMonitor(&fakePinger{}, fakeProber{reachable: true},
		Config{CheckTimeout: time.Second, CacheWindow: 0, PollInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	m.Stop()

	if !m.State().RemoteReachable {
		t.Error("Expected poller to have refreshed state")
	}
}

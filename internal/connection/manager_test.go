package connection

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/muurk/nodelink/internal/bootloop"
	"github.com/muurk/nodelink/internal/clock"
	"github.com/muurk/nodelink/internal/provision"
	"github.com/muurk/nodelink/internal/radio"
	"github.com/muurk/nodelink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// scriptedRadio replays a fixed sequence of link statuses. The last status
// repeats once the script is exhausted.
type scriptedRadio struct {
	script  []radio.LinkStatus
	joinErr error
	apErr   error

	joins []string
	aps   []string
}

func (r *scriptedRadio) Join(ssid, password string) error {
	r.joins = append(r.joins, ssid)
	return r.joinErr
}

func (r *scriptedRadio) Status() radio.LinkStatus {
	if len(r.script) == 0 {
		return radio.StatusIdle
	}
	s := r.script[0]
	if len(r.script) > 1 {
		r.script = r.script[1:]
	}
	return s
}

func (r *scriptedRadio) StartAccessPoint(ssid, password string) error {
	if r.apErr != nil {
		return r.apErr
	}
	r.aps = append(r.aps, ssid)
	return nil
}

func (r *scriptedRadio) LocalIP() net.IP       { return net.ParseIP("192.168.1.77") }
func (r *scriptedRadio) AccessPointIP() net.IP { return net.ParseIP("192.168.4.1") }
func (r *scriptedRadio) MAC() string           { return "02:00:00:00:00:aa" }

type fakeAdapter struct {
	handler  provision.Handler
	beginErr error
	begins   int
	serviced int
	queue    []provision.Request
	replies  []string
}

func (a *fakeAdapter) OnMessage(h provision.Handler) { a.handler = h }

func (a *fakeAdapter) Begin() error {
	if a.beginErr != nil {
		return a.beginErr
	}
	a.begins++
	return nil
}

func (a *fakeAdapter) Service() {
	a.serviced++
	for _, req := range a.queue {
		a.replies = append(a.replies, a.handler(req))
	}
	a.queue = nil
}

func (a *fakeAdapter) Close() error { return nil }

type fakeListener struct {
	begins  int
	handled int
}

func (l *fakeListener) Begin(hostname, password string) error {
	l.begins++
	return nil
}

func (l *fakeListener) Handle() { l.handled++ }

type restartLog struct {
	reasons []string
}

func (r *restartLog) Restart(reason string) {
	r.reasons = append(r.reasons, reason)
}

type fixture struct {
	store    *store.Memory
	radio    *scriptedRadio
	adapter  *fakeAdapter
	listener *fakeListener
	clock    *clock.Fake
	restarts *restartLog
	manager  *Manager
}

func newFixture(t *testing.T, script ...radio.LinkStatus) *fixture {
	t.Helper()
	f := &fixture{
		store:    store.NewMemory(),
		radio:    &scriptedRadio{script: script},
		adapter:  &fakeAdapter{},
		listener: &fakeListener{},
		clock:    clock.NewFake(epoch),
		restarts: &restartLog{},
	}
	f.clock.SetAutoAdvance(true)
	f.manager = NewManager(Deps{
		Store:     f.store,
		Radio:     f.radio,
		Adapter:   f.adapter,
		Listener:  f.listener,
		Clock:     f.clock,
		Restarter: f.restarts,
	}, Options{})
	t.Cleanup(f.manager.Stop)
	return f
}

func (f *fixture) setNetwork(t *testing.T, ssid, password string) {
	t.Helper()
	require.NoError(t, f.store.SetPair(store.NamespaceNetwork, store.KeySSID, ssid, store.KeyPassword, password))
}

func (f *fixture) setAccessPoint(t *testing.T, ssid, password string) {
	t.Helper()
	require.NoError(t, f.store.SetPair(store.NamespaceProvisioningAP, store.KeySSID, ssid, store.KeyPassword, password))
}

func (f *fixture) setUpdate(t *testing.T, hostname, password string) {
	t.Helper()
	require.NoError(t, f.store.SetPair(store.NamespaceUpdateChannel, store.KeyHostName, hostname, store.KeyPassword, password))
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Disconnected, "DISCONNECTED"},
		{Connected, "CONNECTED"},
		{Provisioning, "PROVISIONING"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestNewManager_InitialState(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Disconnected, f.manager.State())
	assert.Equal(t, "0.0.0.0", f.manager.IP().String())
	assert.Equal(t, "02:00:00:00:00:aa", f.manager.MAC())
	assert.False(t, f.manager.UpdateActive())
}

func TestConnect_StoredCredentials(t *testing.T) {
	f := newFixture(t, radio.StatusConnecting, radio.StatusConnecting, radio.StatusConnected)
	f.setNetwork(t, "homenet", "secretpw")

	got := f.manager.Connect(context.Background())

	require.Equal(t, Connected, got)
	assert.Equal(t, Connected, f.manager.State())
	assert.Equal(t, []string{"homenet"}, f.radio.joins)
	assert.Equal(t, "192.168.1.77", f.manager.IP().String())
	assert.Equal(t, time.Second, f.clock.Now().Sub(epoch), "two polls of 500ms")

	// No update credentials: the listener stays off.
	assert.Equal(t, 0, f.listener.begins)
	assert.False(t, f.manager.UpdateActive())

	count, err := f.store.GetInt(store.NamespaceBoot, store.KeyBootCount, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConnect_ActivatesUpdateChannel(t *testing.T) {
	f := newFixture(t, radio.StatusConnected)
	f.setNetwork(t, "homenet", "secretpw")
	f.setUpdate(t, "node-kitchen", "otasecret")

	require.Equal(t, Connected, f.manager.Connect(context.Background()))

	assert.Equal(t, 1, f.listener.begins)
	assert.True(t, f.manager.UpdateActive())
	assert.Equal(t, "node-kitchen", f.manager.UpdateConfig().Hostname)

	f.manager.Loop(context.Background())
	f.manager.Loop(context.Background())
	assert.Equal(t, 2, f.listener.handled)
}

func TestConnect_JoinTimeout(t *testing.T) {
	f := newFixture(t, radio.StatusConnecting)
	f.setNetwork(t, "homenet", "secretpw")

	got := f.manager.Connect(context.Background())

	require.Equal(t, Disconnected, got)
	assert.Equal(t, DefaultJoinTimeout, f.clock.Now().Sub(epoch))
	assert.Equal(t, "0.0.0.0", f.manager.IP().String())

	// The boot counter reset fell due during the join wait.
	count, err := f.store.GetInt(store.NamespaceBoot, store.KeyBootCount, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestConnect_JoinError(t *testing.T) {
	f := newFixture(t, radio.StatusConnected)
	f.radio.joinErr = errors.New("radio busy")
	f.setNetwork(t, "homenet", "secretpw")

	assert.Equal(t, Disconnected, f.manager.Connect(context.Background()))
	assert.Equal(t, epoch, f.clock.Now())
}

func TestConnect_ContextCancelled(t *testing.T) {
	f := newFixture(t, radio.StatusConnecting)
	f.clock.SetAutoAdvance(false)
	f.setNetwork(t, "homenet", "secretpw")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, Disconnected, f.manager.Connect(ctx))
	assert.Equal(t, epoch, f.clock.Now())
}

func TestConnect_Provisioning(t *testing.T) {
	tests := []struct {
		name      string
		apSSID    string
		apPass    string
		apErr     error
		beginErr  error
		wantState State
		wantBegin int
	}{
		{name: "valid AP credentials", apSSID: "nodelink-setup", apPass: "longenough1", wantState: Provisioning, wantBegin: 1},
		{name: "short AP password", apSSID: "nodelink-setup", apPass: "short", wantState: Disconnected},
		{name: "exactly minimum length", apSSID: "nodelink-setup", apPass: "12345678", wantState: Provisioning, wantBegin: 1},
		{name: "no AP credentials", wantState: Disconnected},
		{name: "AP start fails", apSSID: "nodelink-setup", apPass: "longenough1", apErr: errors.New("no radio"), wantState: Disconnected},
		{name: "adapter start fails", apSSID: "nodelink-setup", apPass: "longenough1", beginErr: errors.New("port in use"), wantState: Disconnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.radio.apErr = tt.apErr
			f.adapter.beginErr = tt.beginErr
			if tt.apSSID != "" {
				f.setAccessPoint(t, tt.apSSID, tt.apPass)
			}

			got := f.manager.Connect(context.Background())

			assert.Equal(t, tt.wantState, got)
			assert.Equal(t, tt.wantBegin, f.adapter.begins)
			assert.Empty(t, f.radio.joins, "no station join without network credentials")
			if tt.wantState == Provisioning {
				assert.Equal(t, "192.168.4.1", f.manager.IP().String())
				assert.NotNil(t, f.adapter.handler)
			}
		})
	}
}

func TestConnect_PartialNetworkCredentialsProvision(t *testing.T) {
	f := newFixture(t)
	f.setNetwork(t, "homenet", "")
	f.setAccessPoint(t, "nodelink-setup", "longenough1")

	assert.Equal(t, Provisioning, f.manager.Connect(context.Background()))
	assert.Empty(t, f.radio.joins)
}

func provisioningFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.setAccessPoint(t, "nodelink-setup", "longenough1")
	require.Equal(t, Provisioning, f.manager.Connect(context.Background()))
	return f
}

func TestProvisioning_SaveCredentials(t *testing.T) {
	f := provisioningFixture(t)
	f.adapter.queue = []provision.Request{{"ssid": "homenet", "password": "secretpw"}}

	f.manager.Loop(context.Background())

	require.Equal(t, []string{provision.ReplySaved}, f.adapter.replies)
	ssid, password, err := f.store.GetPair(store.NamespaceNetwork, store.KeySSID, store.KeyPassword, "", "")
	require.NoError(t, err)
	assert.Equal(t, "homenet", ssid)
	assert.Equal(t, "secretpw", password)
	assert.Equal(t, Provisioning, f.manager.State())
	assert.Empty(t, f.restarts.reasons)
}

func TestProvisioning_MissingFields(t *testing.T) {
	requests := []provision.Request{
		{"ssid": "homenet"},
		{"password": "secretpw"},
		{"ssid": "", "password": "secretpw"},
		{},
		{"restart": "false"},
	}

	for _, req := range requests {
		f := provisioningFixture(t)
		f.adapter.queue = []provision.Request{req}

		f.manager.Loop(context.Background())

		require.Equal(t, []string{provision.ReplyMissing}, f.adapter.replies, "request %v", req)
		assert.False(t, f.store.Has(store.NamespaceNetwork), "request %v touched storage", req)
	}
}

func TestProvisioning_RestartIsDeferred(t *testing.T) {
	f := provisioningFixture(t)
	f.adapter.queue = []provision.Request{{"restart": "true"}}

	f.manager.Loop(context.Background())

	require.Equal(t, []string{provision.ReplyRestarting}, f.adapter.replies)
	assert.Empty(t, f.restarts.reasons, "restart must not run synchronously")
	assert.True(t, f.manager.RestartPending())

	f.clock.Advance(ProvisioningRestartDelay - time.Millisecond)
	assert.Empty(t, f.restarts.reasons)

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"provisioning restart request"}, f.restarts.reasons)
}

func TestProvisioning_RestartWinsOverCredentials(t *testing.T) {
	f := provisioningFixture(t)
	f.adapter.queue = []provision.Request{{"restart": "true", "ssid": "homenet", "password": "secretpw"}}

	f.manager.Loop(context.Background())

	assert.Equal(t, []string{provision.ReplyRestarting}, f.adapter.replies)
	assert.False(t, f.store.Has(store.NamespaceNetwork))
}

func TestProvisioning_OnlyLiteralTrueRestarts(t *testing.T) {
	for _, v := range []string{"1", "t", "T", "TRUE", "True"} {
		t.Run(v, func(t *testing.T) {
			f := provisioningFixture(t)
			f.adapter.queue = []provision.Request{{"restart": v, "ssid": "homenet", "password": "secretpw"}}

			f.manager.Loop(context.Background())

			require.Equal(t, []string{provision.ReplySaved}, f.adapter.replies)
			assert.True(t, f.store.Has(store.NamespaceNetwork))
			assert.False(t, f.manager.RestartPending())
		})
	}
}

func TestProvisioning_SaveFailure(t *testing.T) {
	f := provisioningFixture(t)
	f.store.FailWrites = errors.New("flash worn out")
	f.adapter.queue = []provision.Request{{"ssid": "homenet", "password": "secretpw"}}

	f.manager.Loop(context.Background())

	assert.Equal(t, []string{provision.ReplySaveFailed}, f.adapter.replies)
}

func TestLoop_ProvisioningServicesAdapter(t *testing.T) {
	f := provisioningFixture(t)
	for i := 0; i < 3; i++ {
		f.manager.Loop(context.Background())
	}
	assert.Equal(t, 3, f.adapter.serviced)
	assert.Empty(t, f.radio.joins)
}

func TestLoop_ReconnectsAfterLinkLoss(t *testing.T) {
	f := newFixture(t,
		radio.StatusConnected,    // initial join
		radio.StatusDisconnected, // tick sees the link down
		radio.StatusConnecting,   // reconnect poll
		radio.StatusConnected,    // reconnect succeeds
	)
	f.setNetwork(t, "homenet", "secretpw")
	require.Equal(t, Connected, f.manager.Connect(context.Background()))

	f.manager.Loop(context.Background())

	assert.Equal(t, Connected, f.manager.State())
	assert.Equal(t, []string{"homenet", "homenet"}, f.radio.joins)
	assert.False(t, f.manager.RestartPending())

	count, err := f.store.GetInt(store.NamespaceBoot, store.KeyBootCount, -1)
	require.NoError(t, err)
	assert.LessOrEqual(t, count, 1, "reconnects do not count as boots")
}

func TestLoop_FailedReconnectSchedulesOneRestart(t *testing.T) {
	f := newFixture(t, radio.StatusConnected, radio.StatusDisconnected, radio.StatusConnecting)
	f.setNetwork(t, "homenet", "secretpw")
	require.Equal(t, Connected, f.manager.Connect(context.Background()))

	f.manager.Loop(context.Background())

	require.Equal(t, Disconnected, f.manager.State())
	require.True(t, f.manager.RestartPending())
	assert.Empty(t, f.restarts.reasons)

	joins := len(f.radio.joins)
	f.manager.Loop(context.Background())
	f.manager.Loop(context.Background())
	assert.Len(t, f.radio.joins, joins, "no further attempts while a restart is pending")

	f.clock.Advance(DefaultReconnectRestartDelay)
	assert.Equal(t, []string{"reconnection failed"}, f.restarts.reasons)
}

func TestLoop_DisconnectedWithoutCredentials(t *testing.T) {
	f := newFixture(t)
	f.setAccessPoint(t, "nodelink-setup", "short")
	require.Equal(t, Disconnected, f.manager.Connect(context.Background()))

	f.manager.Loop(context.Background())

	assert.True(t, f.manager.RestartPending())
	assert.Empty(t, f.restarts.reasons)
	f.clock.Advance(DefaultReconnectRestartDelay)
	assert.Len(t, f.restarts.reasons, 1)
}

func TestConnect_BootLoopRecovery(t *testing.T) {
	f := newFixture(t, radio.StatusConnected)
	f.setNetwork(t, "homenet", "secretpw")
	require.NoError(t, f.store.SetInt(store.NamespaceBoot, store.KeyBootCount, 3))

	got := f.manager.Connect(context.Background())

	assert.Equal(t, Disconnected, got)
	assert.Empty(t, f.radio.joins, "no network activity after a wipe")
	assert.Equal(t, []string{"boot loop detected"}, f.restarts.reasons)
	assert.False(t, f.store.Has(store.NamespaceNetwork))

	f.manager.Loop(context.Background())
	assert.Empty(t, f.radio.joins)
	assert.Len(t, f.restarts.reasons, 1)
}

func TestConnect_CustomBootLoopOptions(t *testing.T) {
	f := newFixture(t, radio.StatusConnected)
	f.manager = NewManager(Deps{
		Store:     f.store,
		Radio:     f.radio,
		Adapter:   f.adapter,
		Clock:     f.clock,
		Restarter: f.restarts,
	}, Options{BootLoop: bootloop.Options{Threshold: 2}})
	f.setNetwork(t, "homenet", "secretpw")
	require.NoError(t, f.store.SetInt(store.NamespaceBoot, store.KeyBootCount, 1))

	assert.Equal(t, Disconnected, f.manager.Connect(context.Background()))
	assert.Len(t, f.restarts.reasons, 1)
}

func TestCredentialSetters(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.manager.SetNetworkCredentials("homenet", "secretpw"))
	require.NoError(t, f.manager.SetAccessPointCredentials("nodelink-setup", "longenough1"))
	require.NoError(t, f.manager.SetUpdateCredentials("node-kitchen", "otasecret"))

	tests := []struct {
		ns, k1, k2 string
		v1, v2     string
	}{
		{store.NamespaceNetwork, store.KeySSID, store.KeyPassword, "homenet", "secretpw"},
		{store.NamespaceProvisioningAP, store.KeySSID, store.KeyPassword, "nodelink-setup", "longenough1"},
		{store.NamespaceUpdateChannel, store.KeyHostName, store.KeyPassword, "node-kitchen", "otasecret"},
	}
	for _, tt := range tests {
		v1, v2, err := f.store.GetPair(tt.ns, tt.k1, tt.k2, "", "")
		require.NoError(t, err)
		assert.Equal(t, tt.v1, v1, tt.ns)
		assert.Equal(t, tt.v2, v2, tt.ns)
	}

	f.store.FailWrites = errors.New("read-only")
	assert.Error(t, f.manager.SetNetworkCredentials("other", "password"))
}

func TestManager_WithSimulatedRadio(t *testing.T) {
	c := clock.NewFake(epoch)
	c.SetAutoAdvance(true)
	sim := radio.NewSim(radio.SimConfig{
		Networks: []radio.Network{{SSID: "homenet", Password: "secretpw", JoinDelay: 1200 * time.Millisecond}},
	}, c)
	s := store.NewMemory()
	require.NoError(t, s.SetPair(store.NamespaceNetwork, store.KeySSID, "homenet", store.KeyPassword, "secretpw"))

	m := NewManager(Deps{Store: s, Radio: sim, Adapter: &fakeAdapter{}, Clock: c, Restarter: &restartLog{}}, Options{})
	defer m.Stop()

	require.Equal(t, Connected, m.Connect(context.Background()))
	assert.Equal(t, radio.DefaultStationIP, m.IP().String())
	assert.Equal(t, 1500*time.Millisecond, c.Now().Sub(epoch))

	sim.Drop()
	m.Loop(context.Background())
	assert.Equal(t, Connected, m.State(), "rejoin restores the link")
}

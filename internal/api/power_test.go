package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencraft/opencraft/internal/compute"
	"github.com/opencraft/opencraft/internal/events"
	"github.com/opencraft/opencraft/internal/lock"
	"github.com/opencraft/opencraft/internal/notify"
	"github.com/opencraft/opencraft/internal/probe"
	"github.com/opencraft/opencraft/internal/reconciler"
	"github.com/opencraft/opencraft/pkg/types"
)

type stubProbe struct {
	info *probe.ServerInfo
	err  error
}

func (p *stubProbe) Info(context.Context) (*probe.ServerInfo, error) {
	return p.info, p.err
}

type stubNotifier struct{ err error }

func (n stubNotifier) SendStopDirective(context.Context) error { return n.err }

type recordingSink struct {
	mu     sync.Mutex
	events []events.PowerEvent
}

func (s *recordingSink) Publish(ev events.PowerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

type stubLocker struct {
	err      error
	released int
}

func (l *stubLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

func newTestServer(vm compute.Infrastructure, p probe.Probe, opts *ServerOpts, ropts ...reconciler.Option) *Server {
	return NewServer(reconciler.New(vm, p, ropts...), opts)
}

func do(s *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var resp types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(compute.NewLocalVM("local", ""), &stubProbe{}, nil)
	rec := do(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPowerOn_Starts(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerDeallocated)
	sink := &recordingSink{}
	s := newTestServer(vm, &stubProbe{}, &ServerOpts{Events: sink})

	rec := do(s, http.MethodPost, "/power/on", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.PowerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "start", resp.Action)
	assert.Equal(t, "Running", resp.Status)
	assert.Equal(t, "local", resp.MachineID)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "power_on", sink.events[0].Action)
	assert.Equal(t, "ok", sink.events[0].Outcome)
}

func TestPowerOn_AlreadyRunning(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerRunning)
	s := newTestServer(vm, &stubProbe{info: &probe.ServerInfo{Online: true}}, nil)

	rec := do(s, http.MethodPost, "/power/on", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, types.CodeAlreadyRunning, decodeError(t, rec).Code)
}

func TestPowerOn_Inconsistent(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerRunning)
	sink := &recordingSink{}
	s := newTestServer(vm, &stubProbe{}, &ServerOpts{Events: sink})

	rec := do(s, http.MethodPost, "/power/on", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, types.CodeInconsistentState, decodeError(t, rec).Code)

	require.Len(t, sink.events, 1)
	assert.Equal(t, types.CodeInconsistentState, sink.events[0].Outcome)
}

func TestPowerOn_ProbeUnavailable(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerDeallocated)
	s := newTestServer(vm, &stubProbe{err: errors.New("timeout")}, nil)

	rec := do(s, http.MethodPost, "/power/on", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, types.CodeProbeUnavailable, decodeError(t, rec).Code)

	status, _ := vm.Status(context.Background())
	assert.Equal(t, compute.PowerDeallocated, status)
}

func TestPowerOff_NotifierFailure(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerRunning)
	s := newTestServer(vm, &stubProbe{}, nil, reconciler.WithNotifier(stubNotifier{err: errors.New("Cannot trigger stop")}))

	rec := do(s, http.MethodPost, "/power/off", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, types.CodeNotifier, resp.Code)
	assert.True(t, strings.Contains(resp.Error, "Cannot trigger stop"))

	status, _ := vm.Status(context.Background())
	assert.Equal(t, compute.PowerRunning, status)
}

func TestPowerOff_Stops(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerRunning)
	var n notify.Notifier = stubNotifier{}
	s := newTestServer(vm, &stubProbe{}, nil, reconciler.WithNotifier(n))

	rec := do(s, http.MethodPost, "/power/off", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status, _ := vm.Status(context.Background())
	assert.Equal(t, compute.PowerDeallocated, status)
}

func TestPower_Locked(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerDeallocated)
	s := newTestServer(vm, &stubProbe{}, &ServerOpts{Locker: &stubLocker{err: lock.ErrLocked}})

	rec := do(s, http.MethodPost, "/power/on", nil)
	assert.Equal(t, http.StatusLocked, rec.Code)

	status, _ := vm.Status(context.Background())
	assert.Equal(t, compute.PowerDeallocated, status)
}

func TestPower_LockReleased(t *testing.T) {
	locker := &stubLocker{}
	vm := compute.NewLocalVM("local", compute.PowerDeallocated)
	s := newTestServer(vm, &stubProbe{}, &ServerOpts{Locker: locker})

	rec := do(s, http.MethodPost, "/power/on", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, locker.released)
}

func TestPower_RequiresAPIKey(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerDeallocated)
	s := newTestServer(vm, &stubProbe{}, &ServerOpts{APIKey: "secret"})

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodPost, "/power/on", nil).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodPost, "/power/on", map[string]string{"X-API-Key": "secret"}).Code)
}

func TestStatus(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerRunning)
	info := &probe.ServerInfo{Online: true, Host: "mc.example.com", Port: 25565, Players: probe.Players{Online: 2, Max: 10}}
	s := newTestServer(vm, &stubProbe{info: info}, nil)

	rec := do(s, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st types.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "Running", st.VMStatus)
	assert.True(t, st.ServerOnline)
	assert.True(t, st.Consistent)
	require.NotNil(t, st.Server)
	assert.Equal(t, 2, st.Server.PlayersOnline)
}

func TestStatus_Inconsistent(t *testing.T) {
	vm := compute.NewLocalVM("local", compute.PowerRunning)
	s := newTestServer(vm, &stubProbe{}, nil)

	rec := do(s, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st types.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.ServerOnline)
	assert.False(t, st.Consistent)
	assert.Nil(t, st.Server)
}

func TestErrorStatus(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{reconciler.ErrAlreadyRunning, http.StatusConflict, types.CodeAlreadyRunning},
		{reconciler.ErrInconsistentState, http.StatusInternalServerError, types.CodeInconsistentState},
		{errors.Join(reconciler.ErrProbeUnavailable, cause), http.StatusServiceUnavailable, types.CodeProbeUnavailable},
		{errors.Join(reconciler.ErrInfrastructure, cause), http.StatusBadGateway, types.CodeInfrastructure},
		{errors.Join(reconciler.ErrNotifier, cause), http.StatusBadGateway, types.CodeNotifier},
		{cause, http.StatusInternalServerError, types.CodeInternal},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

package owl

import (
	"bytes"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/OCAP2/owl/internal/protocol"
	"github.com/OCAP2/owl/internal/transport"
	"github.com/OCAP2/owl/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTables = "table=names markers=1 rigids=2 info=3 frame=5 options=6 streaming=7 frequency=8"

func open(t *testing.T, srv *mockServer, opts string) *Context {
	t.Helper()
	c := New(WithVersion("test"))
	t.Cleanup(func() { c.Close() })
	st := loop(t, func() (Status, error) { return c.Open(srv.address(), opts) })
	require.Equal(t, Ready, st)
	return c
}

func TestLifecycle_ZeroTimeoutLoop(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "timeout=0")

	assert.True(t, c.IsOpen())
	assert.Equal(t, PhaseOpen, c.Phase())
	srv.waitFor("protocol=")
	assert.Contains(t, srv.messages(), "protocol=2 version=test")
	assert.Equal(t, int32(1), Get[int32](c, "opened"))

	st := loop(t, func() (Status, error) { return c.Initialize("timeout=0 frequency=120") })
	require.Equal(t, Ready, st)
	assert.Equal(t, PhaseInitialized, c.Phase())
	assert.Contains(t, srv.messages(),
		"initialize event.raw=1 event.markers=1 event.rigids=1 event.info=1 frequency=120")

	srv.events(
		core.Event{ID: 5<<8 | 1, Type: core.TypeMarker, Time: 42, Data: core.Markers{{ID: 0, Time: 42, X: 1, Y: 2, Z: 3, Cond: 1}}},
		core.Event{ID: 5<<8 | 2, Type: core.TypeRigid, Time: 42, Data: core.Rigids{{ID: 1, Time: 42, Pose: [7]float32{0, 0, 0, 1, 0, 0, 0}, Cond: 1}}},
		core.Event{ID: 5, Type: core.TypeFrame, Time: 42},
	)

	e, err := c.NextEvent(2 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, core.TypeFrame, e.Type)
	assert.Equal(t, "frame", e.Name)
	assert.Equal(t, int64(42), e.Time)
	require.Len(t, e.Children, 2)

	markers, ok := core.Data[core.Markers](e.Find("markers"))
	require.True(t, ok)
	assert.Equal(t, float32(2), markers[0].Y)
	rigids, ok := core.Data[core.Rigids](e.Find("rigids"))
	require.True(t, ok)
	assert.Equal(t, uint32(1), rigids[0].ID)

	st = loop(t, func() (Status, error) { return c.Done("timeout=0") })
	require.Equal(t, Ready, st)
	assert.Equal(t, PhaseOpen, c.Phase())
	assert.Equal(t, 1, srv.waitFor("done"))

	require.NoError(t, c.Close())
	assert.False(t, c.IsOpen())
	assert.Empty(t, c.Properties())
	assert.Nil(t, c.TrackerInfo(1))
}

func TestOpen_BlockingWithTimeout(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := New()
	defer c.Close()

	st, err := c.Open(srv.address(), "timeout=2000000")
	require.NoError(t, err)
	assert.Equal(t, Ready, st)

	st, err = c.Open(srv.address(), "")
	require.NoError(t, err)
	assert.Equal(t, Ready, st, "open while open is a no-op")
}

func TestOpen_TimeoutIsPending(t *testing.T) {
	srv := newMockServer(t)
	c := New()
	defer c.Close()

	st, err := c.Open(srv.address(), "timeout=100000")
	assert.Equal(t, Pending, st)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, PhaseHandshake, c.Phase())
}

func TestOpen_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	if port <= BasePort {
		t.Skip("ephemeral port below base port")
	}

	c := New()
	st, err := c.Open("127.0.0.1:"+strconv.Itoa(port-BasePort), "timeout=2000000")
	assert.Equal(t, Failed, st)
	assert.ErrorIs(t, err, ErrConnect)
	assert.ErrorIs(t, c.LastError(), ErrConnect)
	assert.Equal(t, PhaseClosed, c.Phase())
}

func TestOpen_BadAddressAndOptions(t *testing.T) {
	c := New()
	st, err := c.Open("", "")
	assert.Equal(t, Failed, st)
	assert.ErrorIs(t, err, ErrAddress)

	_, err = c.Open("localhost", "timeout=soon")
	assert.ErrorIs(t, err, ErrOption)

	_, err = c.Open("host.invalid", "timeout=0")
	assert.ErrorIs(t, err, ErrResolve)
}

func TestOpen_ServerErrorFails(t *testing.T) {
	srv := newMockServer(t)
	c := New()
	defer c.Close()

	go func() {
		<-srv.accepted
		srv.errorText("license expired")
	}()

	st, err := c.Open(srv.address(), "timeout=2000000")
	assert.Equal(t, Failed, st)
	var se *ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "license expired", se.Message)
	assert.False(t, c.IsOpen())
}

func TestInitialize_RequiresOpen(t *testing.T) {
	c := New()
	st, err := c.Initialize("")
	assert.Equal(t, Failed, st)
	assert.ErrorIs(t, err, ErrNotOpen)

	_, err = c.Done("")
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, c.SetStreaming(1), ErrNotOpen)
	assert.ErrorIs(t, c.Pack(nil), ErrNotOpen)

	e, err := c.NextEvent(10 * time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, e)
}

func TestInitialize_ServerErrorKeepsSession(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	srv.mu.Lock()
	srv.autoReply = false
	srv.mu.Unlock()
	c := open(t, srv, "")

	go func() {
		srv.waitFor("initialize")
		srv.errorText("no cameras")
	}()
	st, err := c.Initialize("timeout=2000000")
	assert.Equal(t, Failed, st)
	var se *ServerError
	assert.True(t, errors.As(err, &se))
	assert.True(t, c.IsOpen())
	assert.Equal(t, PhaseOpen, c.Phase())
	assert.Equal(t, int32(0), Get[int32](c, "initialized"))
}

func TestDone_NoOpWhenNotInitialized(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "")

	st, err := c.Done("")
	require.NoError(t, err)
	assert.Equal(t, Ready, st)
	for _, m := range srv.messages() {
		assert.NotContains(t, m, "done")
	}
}

func TestDone_PendingInitializeIsNoOp(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	srv.mu.Lock()
	srv.autoReply = false
	srv.mu.Unlock()
	c := open(t, srv, "")

	st, err := c.Initialize("timeout=0")
	require.NoError(t, err)
	require.Equal(t, Pending, st)
	require.Equal(t, PhaseInitializing, c.Phase())
	srv.waitFor("initialize")

	st, err = c.Done("timeout=0")
	require.NoError(t, err)
	assert.Equal(t, Ready, st)
	assert.Equal(t, PhaseOpen, c.Phase())

	srv.mu.Lock()
	srv.autoReply = true
	srv.mu.Unlock()
	st, err = c.Initialize("")
	require.NoError(t, err)
	assert.Equal(t, Ready, st)
	for _, m := range srv.messages() {
		assert.NotContains(t, m, "done")
	}
}

func TestDone_FlushingDoesNotResend(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "")
	st, err := c.Initialize("")
	require.NoError(t, err)
	require.Equal(t, Ready, st)

	srv.mu.Lock()
	srv.autoReply = false
	srv.mu.Unlock()

	st, err = c.Done("timeout=0")
	require.NoError(t, err)
	require.Equal(t, Pending, st)
	assert.Equal(t, PhaseFlushing, c.Phase())

	start := time.Now()
	st, err = c.Done("timeout=1000000")
	require.NoError(t, err)
	assert.Equal(t, Pending, st)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "flushing done must not block")

	srv.text("initialized=0")
	st = loop(t, func() (Status, error) { return c.Done("") })
	assert.Equal(t, Ready, st)
	assert.Equal(t, 1, srv.waitFor("done"))
}

func TestDone_TimeoutIsPending(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "")
	_, err := c.Initialize("")
	require.NoError(t, err)

	srv.mu.Lock()
	srv.autoReply = false
	srv.mu.Unlock()

	st, err := c.Done("timeout=50000")
	assert.Equal(t, Pending, st)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, c.IsOpen())
}

func TestInitialize_ServerErrorLeavesLaterDataReadable(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	srv.mu.Lock()
	srv.autoReply = false
	srv.mu.Unlock()
	c := open(t, srv, "")

	go func() {
		srv.waitFor("initialize")
		var buf bytes.Buffer
		_ = protocol.Write(&buf, protocol.Header{Type: core.TypeError}, []byte("no cameras"))
		_ = protocol.WriteText(&buf, "site=lab")
		srv.write(buf.Bytes())
	}()
	st, _ := c.Initialize("timeout=2000000")
	require.Equal(t, Failed, st)

	// Nothing else is sent; the property after the error still applies.
	pollUntil(t, c, func() bool { return Get[string](c, "site") == "lab" })
	assert.Equal(t, "lab", Get[string](c, "site"))
}

func TestSession_TransportErrorIsFatal(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "")

	srv.dropConnection()
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for err == nil && time.Now().Before(deadline) {
		_, err = c.NextEvent(50 * time.Millisecond)
	}
	require.Error(t, err)
	assert.False(t, c.IsOpen())
	assert.Equal(t, err, c.LastError())
}

func TestSession_PropertiesAndTables(t *testing.T) {
	srv := newMockServer(t,
		testTables,
		"table=types marker=132 rigid=133 frame=128",
		"opened=1 api=1.2 frequency=120.5 streaming=1",
		"defaultprofile=gloves and wands",
		"table=enable markers=1 peaks=0",
		"table=trackers id=1 type=rigid name=wand mid=0,1",
		"table=markers id=2 tracker=1 name=tip",
		"table=devices hwid=0xab type=glove name=left",
		"status=devices hwid=0xab battery=80",
		"filter=lerp period=4",
		"table=pack type=marker id=9 ids=0,1,2",
	)
	c := open(t, srv, "")
	drain(t, c)

	assert.Equal(t, float32(120.5), c.Frequency())
	assert.Equal(t, int32(1), c.Streaming())
	assert.Equal(t, "gloves and wands", Get[string](c, "defaultprofile"))
	assert.Equal(t, int32(1), Get[int32](c, "enable.markers"))
	assert.Equal(t, "1.2", c.Option("api"))

	tr := c.TrackerInfo(1)
	require.NotNil(t, tr)
	assert.Equal(t, []uint32{0, 1, 2}, tr.MarkerIDs)
	assert.Equal(t, tr, c.FindTrackerInfo("wand"))
	require.NotNil(t, c.MarkerInfo(2))

	d := c.DeviceInfo(0xab)
	require.NotNil(t, d)
	assert.Equal(t, "left", d.Name)
	assert.Equal(t, "battery=80", d.Status)
	assert.Equal(t, d, c.FindDeviceInfo("left"))

	require.NotNil(t, c.FilterInfo("lerp"))
	assert.Equal(t, uint32(4), c.FilterInfo("lerp").Period)
	require.NotNil(t, c.PackInfo(9))
	assert.Equal(t, core.TypeMarker, c.PackInfo(9).Type)
	assert.Nil(t, c.PackInfo(1))
}

func TestSession_InfoEventsAndStatusIndependence(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "")

	srv.text("table=devices hwid=0xab type=glove name=left fw=1")
	srv.text("status=devices hwid=0xab battery=80")
	srv.text("table=devices hwid=0xab type=glove name=right fw=1")

	var infos []core.DeviceInfos
	deadline := time.Now().Add(2 * time.Second)
	for len(infos) < 3 && time.Now().Before(deadline) {
		e, err := c.NextEvent(50 * time.Millisecond)
		require.NoError(t, err)
		if e == nil {
			continue
		}
		assert.Equal(t, core.TypeDeviceInfo, e.Type)
		assert.Equal(t, "info", e.Name)
		d, ok := core.Data[core.DeviceInfos](e)
		require.True(t, ok)
		infos = append(infos, d)
	}
	require.Len(t, infos, 3)
	assert.Equal(t, "left", infos[1][0].Name)
	assert.Equal(t, "battery=80", infos[1][0].Status)
	assert.Equal(t, "right", infos[2][0].Name)
	assert.Equal(t, "battery=80", infos[2][0].Status)
}

func TestSession_CoercionFailureKeepsValue(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1 frequency=60")
	c := open(t, srv, "")
	drain(t, c)
	require.Equal(t, float32(60), c.Frequency())

	srv.text("frequency=fast")
	srv.text("marker=1")
	e, err := c.NextEvent(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.Equal(t, float32(60), c.Frequency())
}

func TestSession_NamedEventsMirrorProperties(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "")

	srv.events(
		core.Event{ID: 8, Type: core.TypeFloat, Data: core.Floats{480}},
		core.Event{ID: 6, Type: core.TypeByte, Data: core.Bytes("profile=default scale=0.001")},
	)
	var got []*core.Event
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		e, err := c.NextEvent(50 * time.Millisecond)
		require.NoError(t, err)
		if e != nil {
			got = append(got, e)
		}
	}
	require.Len(t, got, 2)
	assert.Equal(t, "frequency", got[0].Name)
	assert.Equal(t, float32(480), c.Frequency())
	assert.Equal(t, "profile=default scale=0.001", c.Options())
	assert.Equal(t, float32(0.001), c.Scale())
	assert.Equal(t, "default", Get[string](c, "profile"))

	// An id nobody named is dropped.
	srv.events(core.Event{ID: 42, Type: core.TypeInt, Data: core.Ints{1}})
	e, err := c.NextEvent(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestSession_PeekEvent(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "")

	srv.events(core.Event{ID: 1, Type: core.TypeMarker, Time: 7, Data: core.Markers{{ID: 3}}})
	e, err := c.PeekEvent(2 * time.Second)
	require.NoError(t, err)
	require.NotNil(t, e)
	again, err := c.NextEvent(0)
	require.NoError(t, err)
	assert.Same(t, e, again)
	assert.Equal(t, "markers", e.Name)
	assert.Equal(t, "marker", e.TypeName)
}

func TestSession_SlaveAndPack(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1")
	c := open(t, srv, "slave=1")

	assert.ErrorIs(t, c.SetFrequency(100), ErrSlave)
	assert.ErrorIs(t, c.CreateTracker(core.TrackerInfo{ID: 1, Type: "rigid"}), ErrSlave)
	assert.ErrorIs(t, c.Pack(nil), ErrNotSupported)

	srv2 := newMockServer(t, testTables, "opened=1 api=1")
	c2 := open(t, srv2, "")
	drain(t, c2)
	require.NoError(t, c2.Pack([]core.PackInfo{{Type: core.TypeMarker, ID: 4, IDs: []uint64{1, 2}}}))
	require.NoError(t, c2.CreateTrackers(core.TrackerInfo{ID: 1, Type: "rigid", MarkerIDs: []uint32{0, 1}}))
	require.NoError(t, c2.SetStreaming(1))
	srv2.waitFor("options")
	assert.Contains(t, srv2.messages(), "table=pack type=132 id=4 ids=1,2")
	assert.Contains(t, srv2.messages(), "createtracker id=1 type=rigid mid=0,1")
	assert.Contains(t, srv2.messages(), "options streaming=1")
}

func TestSession_MalformedPackClearsList(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1",
		"table=pack type=132 id=2 ids=0,1 type=133 id=3 ids=5")
	c := open(t, srv, "")
	pollUntil(t, c, func() bool { return len(c.PackInfos()) == 2 })
	require.Len(t, c.PackInfos(), 2)

	srv.text("table=pack type=132 id=4")
	pollUntil(t, c, func() bool { return len(c.PackInfos()) == 0 })
	assert.Empty(t, c.PackInfos())
	assert.Nil(t, c.PackInfo(2))
}

func TestSession_BroadcastFollowsStreaming(t *testing.T) {
	srv := newMockServer(t, testTables, "opened=1 streaming=1")
	c := open(t, srv, "")
	drain(t, c)
	require.False(t, c.mux.IsOpen(transport.Broadcast))

	srv.text("streaming=3")
	pollUntil(t, c, func() bool { return c.mux.IsOpen(transport.Broadcast) })
	assert.True(t, c.mux.IsOpen(transport.Broadcast))
	assert.Equal(t, int32(StreamingBroadcast), c.Streaming())

	srv.text("streaming=1")
	pollUntil(t, c, func() bool { return !c.mux.IsOpen(transport.Broadcast) })
	assert.False(t, c.mux.IsOpen(transport.Broadcast))
	assert.Equal(t, int32(1), c.Streaming())
}

func TestSession_InitialPropertiesRestored(t *testing.T) {
	srv := newMockServer(t, testTables, "site=lab", "opened=1")
	c := New()
	st := loop(t, func() (Status, error) { return c.Open(srv.address(), "timeout=0") })
	require.Equal(t, Ready, st)
	require.NoError(t, c.Close())
	assert.Empty(t, c.Properties())

	srv2 := newMockServer(t, testTables)
	_, err := c.Open(srv2.address(), "timeout=0")
	require.NoError(t, err)
	assert.Equal(t, "lab", Get[string](c, "site"))
	require.NoError(t, c.Close())

	srv3 := newMockServer(t, testTables)
	_, err = c.Open(srv3.address(), "timeout=0 reset=1")
	require.NoError(t, err)
	_, ok := c.Property("site")
	assert.False(t, ok)
	require.NoError(t, c.Close())
}

// drain processes pending input until a poll decodes nothing.
func drain(t *testing.T, c *Context) {
	t.Helper()
	for i := 0; i < 50; i++ {
		s, err := c.Poll(20 * time.Millisecond)
		require.NoError(t, err)
		if s.TCP+s.UDP+s.Broadcast == 0 && i > 0 {
			return
		}
	}
}

// pollUntil polls the session until cond holds or two seconds pass.
func pollUntil(t *testing.T, c *Context, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() && time.Now().Before(deadline) {
		_, err := c.Poll(20 * time.Millisecond)
		require.NoError(t, err)
	}
}

package messaging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/crossframe/internal/cookie"
	"github.com/GriffinCanCode/crossframe/internal/frame"
)

func TestBridgeRoundTrip(t *testing.T) {
	bus := NewBus(nil, nil)
	top := frame.NewTop("top", "https://a.example")
	remote := top.AppendFrame("remote", "https://b.example")
	inbox := collect(bus.Port(top))

	bridge := NewBridge(bus, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = bridge.ServeWindow(w, r, remote)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.IsRemote(remote) }, waitFor, tick)

	bus.Port(top).Send(Message{ID: intPtr(1), Cmd: CmdSyncCookieStart, Cookies: []cookie.ParsedCookie{{Key: "k", Value: "v"}}}, remote)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	packet, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, CmdSyncCookieStart, packet.Message.Cmd)
	assert.Equal(t, top.ID().String(), packet.Source)
	assert.Equal(t, remote.ID().String(), packet.Target)
	require.Len(t, packet.Message.Cookies, 1)
	assert.Equal(t, "v", packet.Message.Cookies[0].Value)

	reply, err := EncodePacket(Packet{Target: packet.Source, Message: Message{ID: packet.Message.ID, Cmd: CmdSyncCookieDone}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, reply))

	select {
	case got := <-inbox:
		assert.Equal(t, CmdSyncCookieDone, got.msg.Cmd)
		assert.Equal(t, 1, got.msg.IDValue())
		assert.Equal(t, remote, got.source)
	case <-time.After(waitFor):
		t.Fatal("reply not delivered")
	}
}

func TestBridgeSkipsInvalidPackets(t *testing.T) {
	bus := NewBus(nil, nil)
	top := frame.NewTop("top", "https://a.example")
	remote := top.AppendFrame("remote", "https://b.example")
	inbox := collect(bus.Port(top))

	bridge := NewBridge(bus, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = bridge.ServeWindow(w, r, remote)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":{"cmd":"bogus"}}`)))

	// no target: defaults to the remote window's top
	valid, err := EncodePacket(Packet{Message: Message{Cmd: CmdSyncCookieStart}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, valid))

	select {
	case got := <-inbox:
		assert.Equal(t, CmdSyncCookieStart, got.msg.Cmd)
		assert.Nil(t, got.msg.ID)
	case <-time.After(waitFor):
		t.Fatal("valid packet not delivered")
	}
}

func TestBridgeDetachesOnDisconnect(t *testing.T) {
	bus := NewBus(nil, nil)
	top := frame.NewTop("top", "https://a.example")
	remote := top.AppendFrame("remote", "https://b.example")

	bridge := NewBridge(bus, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = bridge.ServeWindow(w, r, remote)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bus.IsRemote(remote) }, waitFor, tick)

	conn.Close()
	assert.Eventually(t, func() bool { return !bus.IsRemote(remote) }, waitFor, tick)
}

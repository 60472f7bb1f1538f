package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usdfg/arenavoice/internal/adapters/store"
	"github.com/usdfg/arenavoice/internal/app"
)

func newTestController() *VoiceWSController {
	mem := store.NewMemory()
	deps := app.Deps{
		Signals:  mem.Signals(),
		Roster:   mem.Roster(),
		Requests: mem.Requests(),
		Mutes:    mem.Mutes(),
	}
	voice := app.NewVoiceService(deps, app.Settings{})
	admission := app.NewAdmissionController(mem.Roster(), mem.Requests())
	mutes := app.NewMuteOverrideSync(mem.Mutes())
	return NewVoiceWSController(voice, admission, mutes, mem.Roster(), mem.Requests())
}

func dialTestServer(t *testing.T, ctx context.Context, ctl *VoiceWSController) (*httptest.Server, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleVoice(ctx, c)
	})
	srv := httptest.NewServer(r)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return srv, conn
}

func TestServerShutdownClosesSocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctl := newTestController()

	srv, conn := dialTestServer(t, ctx, ctl)
	defer srv.Close()
	defer conn.Close()

	cancel()

	// The server side must close the socket; a blocked reader waiting on
	// the client is a shutdown leak.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "cancelled server context must close the connection")
}

func TestPingPong(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctl := newTestController()

	srv, conn := dialTestServer(t, ctx, ctl)
	defer srv.Close()
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}

package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/firebase"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/ws"
)

func newServer(t *testing.T) (*httptest.Server, *ws.WebSocketNotificationHub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := ws.NewNotificationHub()
	router := gin.New()
	RegisterRoutes(router.Group("/rps-api"), hub, middleware.VerifyAuthToken(firebase.InsecureVerifier{}))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, hub
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestGameStream(t *testing.T) {
	srv, hub := newServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/rps-api/ws/game/5?access_token=alice"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ListenerCount(ws.GameTopic(5)) == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(ws.GameTopic(5), map[string]any{"name": "GameJoined"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "GameJoined", got["name"])

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ListenerCount(ws.GameTopic(5)) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGameStreamRequiresToken(t *testing.T) {
	srv, _ := newServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/rps-api/ws/game/5"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGameStreamRejectsBadId(t *testing.T) {
	srv, _ := newServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/rps-api/ws/game/x?access_token=alice"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

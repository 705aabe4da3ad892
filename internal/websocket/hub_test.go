package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailme/backend/internal/domain"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, zap.NewNop())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/" + username
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_NotifyNewMessage(t *testing.T) {
	hub, server := startHub(t)
	bob := dial(t, server, "bob")
	carol := dial(t, server, "carol")

	assert.Equal(t, MessageTypeSubscribed, readMessage(t, bob).Type)
	assert.Equal(t, MessageTypeSubscribed, readMessage(t, carol).Type)
	assert.Equal(t, 1, hub.Subscribers("bob"))

	stored := &domain.StoredMessage{Message: domain.Message{
		ID:        "m-1",
		From:      "alice@example.com",
		To:        "bob@mailme.local",
		Subject:   "Hi",
		Snippet:   "hello",
		CreatedAt: time.Now().UTC(),
	}}
	require.NoError(t, hub.NotifyNewMessage(context.Background(), &domain.Mailbox{Username: "bob"}, stored))

	msg := readMessage(t, bob)
	assert.Equal(t, MessageTypeNewMail, msg.Type)
	assert.Equal(t, "bob", msg.Username)

	var data NewMailData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "m-1", data.MessageID)
	assert.Equal(t, "Hi", data.Subject)

	t.Run("其他邮箱收不到通知", func(t *testing.T) {
		require.NoError(t, carol.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, _, err := carol.ReadMessage()
		assert.Error(t, err)
	})
}

func TestHub_Ping(t *testing.T) {
	_, server := startHub(t)
	conn := dial(t, server, "bob")
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "bob")
	readMessage(t, conn)
	require.Equal(t, 1, hub.Subscribers("bob"))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return hub.Subscribers("bob") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewUpgrader_CheckOrigin(t *testing.T) {
	upgrader := newUpgrader([]string{"https://app.mailme.dev"})

	allowed := httptest.NewRequest(http.MethodGet, "/", nil)
	allowed.Header.Set("Origin", "https://app.mailme.dev")
	assert.True(t, upgrader.CheckOrigin(allowed))

	denied := httptest.NewRequest(http.MethodGet, "/", nil)
	denied.Header.Set("Origin", "https://evil.example")
	assert.False(t, upgrader.CheckOrigin(denied))

	assert.True(t, newUpgrader([]string{"*"}).CheckOrigin(denied))
}

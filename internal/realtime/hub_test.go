package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medstore/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolver(ctx context.Context, token string) (*models.Principal, error) {
	switch token {
	case "admin-token":
		return &models.Principal{ID: "admin-1", IsAdmin: true}, nil
	case "user-token":
		return &models.Principal{ID: "user-1"}, nil
	}
	return nil, errors.New("bad token")
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(testResolver, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWelcomeMessage(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url+"?token=user-token")

	msg := readMessage(t, conn)
	assert.Equal(t, "connected", msg.Type)
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "user-1", data["id"])
	assert.Equal(t, []interface{}{"user-user-1"}, data["rooms"])
}

func TestRoomDelivery(t *testing.T) {
	hub, url := startHub(t)

	admin := dial(t, url+"?token=admin-token")
	user := dial(t, url+"?token=user-token")
	guest := dial(t, url)
	for _, c := range []*websocket.Conn{admin, user, guest} {
		readMessage(t, c)
	}
	assert.Equal(t, 3, hub.Connections())

	order := &models.Order{ID: "o-1", OrderNumber: "AAZ-2026-000001"}
	ctx := context.Background()
	require.NoError(t, hub.Notify(ctx, models.OrderNotification(models.EventTypeNewOrder, models.RoomAdmins, order)))
	require.NoError(t, hub.Notify(ctx, models.OrderNotification(models.EventTypePaymentApproved, models.UserRoom("user-1"), order)))
	require.NoError(t, hub.Notify(ctx, &models.Notification{BaseEvent: models.NewBaseEvent(models.EventTypeAnalyticsUpdate)}))

	// each connection sees only its rooms, in order, then the broadcast
	assert.Equal(t, models.EventTypeNewOrder, readMessage(t, admin).Type)
	assert.Equal(t, models.EventTypeAnalyticsUpdate, readMessage(t, admin).Type)

	msg := readMessage(t, user)
	assert.Equal(t, models.EventTypePaymentApproved, msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "AAZ-2026-000001", data["order_number"])
	assert.Equal(t, models.EventTypeAnalyticsUpdate, readMessage(t, user).Type)

	assert.Equal(t, models.EventTypeAnalyticsUpdate, readMessage(t, guest).Type)
}

func TestInvalidTokenIsRefused(t *testing.T) {
	_, url := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	readMessage(t, conn)
	require.Equal(t, 1, hub.Connections())

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Connections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

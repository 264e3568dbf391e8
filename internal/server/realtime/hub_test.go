package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/taskmanager/internal/logging"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub(logging.Nop{})
	h.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func recv(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case b, ok := <-c.Send():
		require.True(t, ok, "client channel closed")
		var e Envelope
		require.NoError(t, json.Unmarshal(b, &e))
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Envelope{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.Send():
		t.Fatalf("unexpected event: %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func connect(t *testing.T, h *Hub, userID int64, name string) *Client {
	t.Helper()
	c := NewClient(Identity{UserID: userID, Username: name})
	require.True(t, h.Register(c))
	e := recv(t, c)
	require.Equal(t, EventUserConnected, e.Type)
	return c
}

func TestHub_RegisterBroadcastsPresence(t *testing.T) {
	h, _ := startHub(t)

	a := connect(t, h, 42, "alice")
	b := NewClient(Identity{UserID: 7, Username: "bob"})
	require.True(t, h.Register(b))

	for _, c := range []*Client{a, b} {
		e := recv(t, c)
		assert.Equal(t, EventUserConnected, e.Type)
		assert.Equal(t, "bob connected", e.Message)
		assert.Equal(t, "2024-01-02T03:04:05.000Z", e.Timestamp)
		assert.Equal(t, map[string]any{"userId": float64(7), "username": "bob"}, e.Data)
	}
}

func TestHub_TaskCreatedOnlyReachesOwner(t *testing.T) {
	h, _ := startHub(t)

	owner := connect(t, h, 42, "alice")
	other := connect(t, h, 7, "bob")
	recv(t, owner) // bob's presence

	h.TaskCreated(42, &models.Task{ID: 1, Title: "Buy milk", Status: "todo", UserID: 42})

	e := recv(t, owner)
	assert.Equal(t, EventTaskCreated, e.Type)
	data := e.Data.(map[string]any)
	assert.Equal(t, "Buy milk", data["title"])
	assert.Equal(t, "todo", data["status"])
	assert.Equal(t, float64(42), data["userId"])

	expectNothing(t, other)
}

func TestHub_AllConnectionsOfAUserReceive(t *testing.T) {
	h, _ := startHub(t)

	tab1 := connect(t, h, 42, "alice")
	tab2 := connect(t, h, 42, "alice")
	recv(t, tab1) // second tab's presence

	h.TaskUpdated(42, &models.Task{ID: 3, Title: "t", Status: "done", UserID: 42})

	assert.Equal(t, EventTaskUpdated, recv(t, tab1).Type)
	assert.Equal(t, EventTaskUpdated, recv(t, tab2).Type)
}

func TestHub_TaskDeletedCarriesOnlyID(t *testing.T) {
	h, _ := startHub(t)
	c := connect(t, h, 42, "alice")

	h.TaskDeleted(42, 5)

	e := recv(t, c)
	assert.Equal(t, EventTaskDeleted, e.Type)
	assert.Equal(t, map[string]any{"id": float64(5)}, e.Data)
}

func TestHub_NotifyWithoutConnectionsIsLost(t *testing.T) {
	h, _ := startHub(t)

	h.NotifyUser(99, EventTaskCreated, nil, "")
	c := connect(t, h, 99, "late")

	expectNothing(t, c)
}

func TestHub_BroadcastAll(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, 1, "a")
	b := connect(t, h, 2, "b")
	recv(t, a)

	h.BroadcastAll("maintenance", map[string]string{"at": "soon"}, "heads up")

	assert.Equal(t, "maintenance", recv(t, a).Type)
	assert.Equal(t, "maintenance", recv(t, b).Type)
}

func TestHub_SendNotificationDefaultsToInfo(t *testing.T) {
	h, _ := startHub(t)
	c := connect(t, h, 42, "alice")

	h.SendNotification(42, "Password changed", "Your password was updated", "")

	e := recv(t, c)
	assert.Equal(t, EventNotification, e.Type)
	assert.Equal(t, map[string]any{
		"title":            "Password changed",
		"message":          "Your password was updated",
		"notificationType": "info",
	}, e.Data)
}

func TestHub_NamedRooms(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, 1, "a")
	b := connect(t, h, 2, "b")
	recv(t, a)

	require.True(t, h.Join(b, "team"))
	h.EmitToRoom("team", "standup", nil, "")

	assert.Equal(t, "standup", recv(t, b).Type)
	expectNothing(t, a)

	h.Leave(b, "team")
	h.EmitToRoom("team", "standup", nil, "")
	expectNothing(t, b)
}

func TestHub_UserRoomsCannotBeJoined(t *testing.T) {
	h, _ := startHub(t)
	_ = connect(t, h, 42, "alice")
	spy := connect(t, h, 7, "mallory")

	assert.False(t, h.Join(spy, UserRoom(42)))
	assert.False(t, h.Join(spy, ""))

	h.TaskDeleted(42, 1)
	expectNothing(t, spy)
}

func TestHub_UnregisterClosesAndAnnounces(t *testing.T) {
	h, _ := startHub(t)
	a := connect(t, h, 1, "a")
	b := connect(t, h, 2, "b")
	recv(t, a)

	h.Unregister(b)

	e := recv(t, a)
	assert.Equal(t, EventUserDisconnected, e.Type)
	assert.Equal(t, "b disconnected", e.Message)

	_, ok := <-b.Send()
	assert.False(t, ok)

	// a second unregister is a no-op
	h.Unregister(b)
	expectNothing(t, a)
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	h, _ := startHub(t)
	c := connect(t, h, 1, "slow")

	for i := 0; i < clientQueueSize; i++ {
		c.send <- []byte("{}")
	}
	h.NotifyUser(1, EventTaskCreated, nil, "")

	// Work is applied in order, so once a later registration is visible
	// the notification has been handled.
	connect(t, h, 2, "later")

	drained := 0
	for range c.Send() {
		drained++
	}
	assert.Equal(t, clientQueueSize, drained)
}

func TestHub_EventsBeforeConnectAreNeverReplayed(t *testing.T) {
	h, _ := startHub(t)

	for i := 0; i < 200; i++ {
		h.NotifyUser(99, EventTaskCreated, nil, "")
		c := NewClient(Identity{UserID: 99, Username: "late"})
		require.True(t, h.Register(c))

		h.Unregister(c)
		for b := range c.Send() {
			var e Envelope
			require.NoError(t, json.Unmarshal(b, &e))
			require.Equal(t, EventUserConnected, e.Type, "run %d", i)
		}
	}
}

func TestHub_JoinThenEmitIsOrdered(t *testing.T) {
	h, _ := startHub(t)
	c := connect(t, h, 1, "a")

	for i := 0; i < 50; i++ {
		require.True(t, h.Join(c, "team"))
		h.EmitToRoom("team", "standup", nil, "")
		require.Equal(t, "standup", recv(t, c).Type, "run %d", i)
		h.Leave(c, "team")
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t)
	c := connect(t, h, 1, "a")

	cancel()

	select {
	case _, ok := <-c.Send():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("client not closed on shutdown")
	}

	<-h.done
	assert.False(t, h.Register(NewClient(Identity{UserID: 2})))
	h.NotifyUser(1, EventTaskCreated, nil, "")
}

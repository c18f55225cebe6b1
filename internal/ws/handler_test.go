package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/playchess/backend/internal/matchmaking"
	"github.com/playchess/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(zerolog.Nop())
	r := gin.New()
	r.GET("/queue/ws", hub.HandleQueueSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/queue/ws"
}

func dial(t *testing.T, hub *Hub, url, playerID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?playerId="+playerID, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for !hub.Connected(playerID) {
		if time.Now().After(deadline) {
			t.Fatalf("%s never registered", playerID)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestHubDeliversMatchToBothPlayers(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, hub, url, "A")
	b := dial(t, hub, url, "B")

	hub.OnMatchFound(context.Background(), models.MatchFound{MatchID: "m1", Player1: "A", Player2: "B", Mode: "rapid"})

	msgA := readMessage(t, a)
	if msgA.Type != matchmaking.EventMatchFound || msgA.Opponent != "B" || msgA.MatchID != "m1" {
		t.Errorf("unexpected message for A: %+v", msgA)
	}
	msgB := readMessage(t, b)
	if msgB.Opponent != "A" || msgB.Mode != "rapid" {
		t.Errorf("unexpected message for B: %+v", msgB)
	}
}

func TestSendToUnknownPlayer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	if hub.SendToPlayer("nobody", Message{Type: "x"}) {
		t.Errorf("send to unknown player should report false")
	}
}

func TestRelayForwardsRedisEvents(t *testing.T) {
	hub, url := startHub(t)
	a := dial(t, hub, url, "A")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunMatchEventRelay(ctx, rdb, "match_events") }()

	pub := matchmaking.NewRedisPublisher(rdb, "match_events", zerolog.Nop())
	evt := models.MatchFound{MatchID: "m2", Player1: "Z", Player2: "A", Mode: "blitz"}

	// The relay subscribes asynchronously; publish until someone listens.
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := rdb.Publish(ctx, "match_events", "{}").Result()
		if err != nil {
			t.Fatal(err)
		}
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("relay never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := pub.OnMatchFound(ctx, evt); err != nil {
		t.Fatal(err)
	}

	msg := readMessage(t, a)
	if msg.MatchID != "m2" || msg.Opponent != "Z" {
		t.Errorf("unexpected relayed message: %+v", msg)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("relay returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("relay did not stop")
	}
}

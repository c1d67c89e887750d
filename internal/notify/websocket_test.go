package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-classroom/internal/notify"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.Dial(t.Context(), url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketChannel_Send(t *testing.T) {
	ch := notify.NewWebSocketChannel()
	srv := httptest.NewServer(ch)
	defer srv.Close()

	conn := dial(t, srv, "?user_id=u1")
	waitFor(t, func() bool { return ch.Connections("u1") == 1 })

	err := ch.Send(context.Background(), notify.Message{
		UserID: "u1",
		Type:   notify.TypeLessonAdvanced,
		Data:   map[string]string{"lesson_id": "lesson-1-2"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var got struct {
		UserID string            `json:"user_id"`
		Type   string            `json:"type"`
		Data   map[string]string `json:"data"`
	}
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("wsjson.Read() error = %v", err)
	}
	if got.Type != notify.TypeLessonAdvanced || got.Data["lesson_id"] != "lesson-1-2" {
		t.Errorf("received %+v", got)
	}
}

func TestWebSocketChannel_SendWithoutConnections(t *testing.T) {
	ch := notify.NewWebSocketChannel()
	if err := ch.Send(context.Background(), notify.Message{UserID: "nobody"}); err != nil {
		t.Errorf("Send() error = %v, want nil", err)
	}
}

func TestWebSocketChannel_Disconnect(t *testing.T) {
	ch := notify.NewWebSocketChannel()
	srv := httptest.NewServer(ch)
	defer srv.Close()

	conn := dial(t, srv, "?user_id=u1")
	waitFor(t, func() bool { return ch.Connections("u1") == 1 })

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, func() bool { return ch.Connections("u1") == 0 })
}

func TestWebSocketChannel_RequiresUserID(t *testing.T) {
	ch := notify.NewWebSocketChannel()
	rec := httptest.NewRecorder()
	ch.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

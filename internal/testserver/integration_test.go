package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"Courtyard/internal/api/config"
	"Courtyard/internal/api/dto"
	"Courtyard/internal/chat"
	"Courtyard/internal/pkg/rest"
	"Courtyard/internal/pkg/socket"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var _ chat.Gateway = (*rest.Client)(nil)

type side struct {
	userID  string
	rest    *rest.Client
	manager *socket.Manager
	conn    *socket.Conn
	raws    chan interface{}
	dlvs    chan dto.DeliveredEvent
	typs    chan dto.TypingEvent
}

func dialSide(t *testing.T, srvURL, userID string) *side {
	t.Helper()
	s := &side{
		userID: userID,
		rest: rest.New(&config.Config{
			Server:   config.ServerConfig{BaseURL: srvURL, RequestTimeout: 5},
			Identity: config.IdentityConfig{UserID: userID, CampusID: "campus-1"},
		}),
		manager: socket.NewManager(socket.Conf{
			DialTimeout:   2 * time.Second,
			ReconnectBase: 20 * time.Millisecond,
			ReconnectMax:  100 * time.Millisecond,
		}),
		raws: make(chan interface{}, 8),
		dlvs: make(chan dto.DeliveredEvent, 8),
		typs: make(chan dto.TypingEvent, 8),
	}
	s.conn = s.manager.GetOrCreate(srvURL, userID, "campus-1")
	s.conn.SubscribeMessages(func(raw interface{}) { s.raws <- raw })
	s.conn.SubscribeDelivered(func(ev dto.DeliveredEvent) { s.dlvs <- ev })
	s.conn.SubscribeTyping(func(ev dto.TypingEvent) { s.typs <- ev })
	t.Cleanup(s.manager.Teardown)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && s.conn.State() != socket.StateConnected {
		time.Sleep(5 * time.Millisecond)
	}
	if s.conn.State() != socket.StateConnected {
		t.Fatalf("%s never connected", userID)
	}
	return s
}

// typingBarrier 用打字信号确认双方的收发链路都已挂好
func typingBarrier(t *testing.T, from, to *side) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_ = from.conn.Emit("typing", dto.TypingReq{PeerID: to.userID})
		select {
		case ev := <-to.typs:
			if ev.FromUserID != from.userID {
				t.Fatalf("typing relay wrong sender: %+v", ev)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatalf("typing from %s never reached %s", from.userID, to.userID)
}

// TestEndToEndMessageFlow runs the whole contract against the in-memory
// backend: send, echo, push, dedup, history, delivery watermark, typing.
func TestEndToEndMessageFlow(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	alice := dialSide(t, srv.URL, "u1")
	bob := dialSide(t, srv.URL, "u2")

	typingBarrier(t, bob, alice)
	typingBarrier(t, alice, bob)

	// 发送：REST 落库，双方收推送
	err := alice.rest.SendMessage(context.Background(), dto.SendMessageReq{
		ToUserID: "u2", Body: "hello bob", ClientMsgID: "c-100",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case raw := <-bob.raws:
		msg := chat.Normalize(raw)
		if msg.Body != "hello bob" || msg.Seq != 1 || msg.SenderID != "u1" {
			t.Fatalf("pushed message wrong: %+v", msg)
		}
		if msg.ConversationID != "chat:u1:u2" {
			t.Fatalf("conversation id wrong: %q", msg.ConversationID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bob never received the push")
	}

	select {
	case raw := <-alice.raws:
		echo := chat.Normalize(raw)
		if echo.ClientMsgID != "c-100" || echo.Seq != 1 {
			t.Fatalf("echo wrong: %+v", echo)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alice never received the echo")
	}

	// 重发同一 client_msg_id：请求视同成功，且不再推送
	err = alice.rest.SendMessage(context.Background(), dto.SendMessageReq{
		ToUserID: "u2", Body: "hello bob", ClientMsgID: "c-100",
	})
	if err != nil {
		t.Fatalf("duplicate send must be success-equivalent: %v", err)
	}
	select {
	case raw := <-bob.raws:
		t.Fatalf("duplicate must not push again: %v", raw)
	case <-time.After(150 * time.Millisecond):
	}

	// 历史接口维持 snake_case 形态
	items, err := bob.rest.History(context.Background(), "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 history item; got %d", len(items))
	}
	if _, ok := items[0]["message_id"]; !ok {
		t.Fatalf("expected snake_case history keys; got %v", items[0])
	}
	if norm := chat.Normalize(items[0]); norm.MessageID == "" || norm.Seq != 1 {
		t.Fatalf("history item does not normalize: %+v", norm)
	}

	// 投递回执：钳制到会话最大 Seq，并推送给对端
	confirmed, err := bob.rest.AckDelivery(context.Background(), "u1", 99)
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("expected clamp to 1; got %d", confirmed)
	}

	select {
	case ev := <-alice.dlvs:
		if ev.PeerID != "u2" || ev.DeliveredSeq != 1 || ev.ConversationID != "chat:u1:u2" {
			t.Fatalf("delivered event wrong: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("alice never received the delivered event")
	}

	// 会话摘要：回执之后未读清零
	summaries, err := bob.rest.Conversations(context.Background())
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(summaries) != 1 || summaries[0].PeerID != "u1" || summaries[0].UnreadCount != 0 {
		t.Fatalf("summaries wrong: %+v", summaries)
	}
}

// TestHistoryLimit verifies the history endpoint keeps only the most
// recent messages when a limit is passed.
func TestHistoryLimit(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	sender := rest.New(&config.Config{
		Server:   config.ServerConfig{BaseURL: srv.URL, RequestTimeout: 5},
		Identity: config.IdentityConfig{UserID: "u1"},
	})
	for _, id := range []string{"c-1", "c-2", "c-3"} {
		if err := sender.SendMessage(context.Background(), dto.SendMessageReq{
			ToUserID: "u2", Body: "msg " + id, ClientMsgID: id,
		}); err != nil {
			t.Fatalf("send %s: %v", id, err)
		}
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/chat/conversations/u1/messages?limit=2", nil)
	req.Header.Set("X-User-Id", "u2")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var out dto.HistoryResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("expected 2 items under limit; got %d", len(out.Items))
	}
	first := chat.Normalize(out.Items[0])
	second := chat.Normalize(out.Items[1])
	if first.Seq != 2 || second.Seq != 3 {
		t.Fatalf("expected the newest window [2 3]; got [%d %d]", first.Seq, second.Seq)
	}
}

// TestIdentityRequired verifies requests without an identity header are
// rejected before reaching the handlers.
func TestIdentityRequired(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chat/conversations")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity; got %d", resp.StatusCode)
	}
}

// TestSendValidation verifies malformed send bodies fail with a 4xx status.
func TestSendValidation(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	client := rest.New(&config.Config{
		Server:   config.ServerConfig{BaseURL: srv.URL, RequestTimeout: 5},
		Identity: config.IdentityConfig{UserID: "u1"},
	})

	err := client.SendMessage(context.Background(), dto.SendMessageReq{ToUserID: "u2"})
	if err == nil {
		t.Fatal("expected validation failure for empty body")
	}

	err = client.SendMessage(context.Background(), dto.SendMessageReq{
		ToUserID: "u1", Body: "self", ClientMsgID: "c-1",
	})
	if err == nil {
		t.Fatal("expected rejection when messaging yourself")
	}
}

// TestHealthz verifies the liveness endpoint answers with the response
// envelope.
func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200; got %d", resp.StatusCode)
	}
}

package ws

import (
	"testing"
)

func testClient(buf int) *Client {
	return &Client{send: make(chan []byte, buf)}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.groups == nil {
		t.Error("NewHub() groups map is nil")
	}
}

func TestHub_Subscribers_EmptyGroup(t *testing.T) {
	hub := NewHub()
	if n := hub.Subscribers("chat_nope"); n != 0 {
		t.Errorf("Subscribers() for unknown group = %d, want 0", n)
	}
}

func TestHub_JoinLeave(t *testing.T) {
	hub := NewHub()
	a := testClient(4)
	b := testClient(4)

	hub.Join("chat_r1", a)
	hub.Join("chat_r1", b)
	if n := hub.Subscribers("chat_r1"); n != 2 {
		t.Fatalf("Subscribers() = %d, want 2", n)
	}

	hub.Leave("chat_r1", a)
	if n := hub.Subscribers("chat_r1"); n != 1 {
		t.Fatalf("Subscribers() after leave = %d, want 1", n)
	}

	// 最后一个成员离开后组被回收
	hub.Leave("chat_r1", b)
	if n := hub.Subscribers("chat_r1"); n != 0 {
		t.Fatalf("Subscribers() after all left = %d, want 0", n)
	}
	hub.mu.RLock()
	_, exists := hub.groups["chat_r1"]
	hub.mu.RUnlock()
	if exists {
		t.Error("empty group was not reclaimed")
	}
}

func TestHub_Leave_UnknownGroup(t *testing.T) {
	hub := NewHub()
	hub.Leave("chat_nope", testClient(1)) // must not panic
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	a := testClient(4)
	b := testClient(4)
	other := testClient(4)
	hub.Join("chat_r1", a)
	hub.Join("chat_r1", b)
	hub.Join("chat_r2", other)

	payload := []byte(`{"type":"text"}`)
	hub.Broadcast("chat_r1", payload)

	for name, c := range map[string]*Client{"a": a, "b": b} {
		select {
		case got := <-c.send:
			if string(got) != string(payload) {
				t.Errorf("client %s got %q, want %q", name, got, payload)
			}
		default:
			t.Errorf("client %s received nothing", name)
		}
	}
	select {
	case got := <-other.send:
		t.Errorf("client in another group received %q", got)
	default:
	}
}

func TestHub_Broadcast_OneClientInTwoGroups(t *testing.T) {
	hub := NewHub()
	c := testClient(4)
	hub.Join("chat_r1", c)
	hub.Join("notification_7", c)

	hub.Broadcast("chat_r1", []byte("room"))
	hub.Broadcast("notification_7", []byte("private"))

	if got := <-c.send; string(got) != "room" {
		t.Errorf("first payload = %q, want room", got)
	}
	if got := <-c.send; string(got) != "private" {
		t.Errorf("second payload = %q, want private", got)
	}
}

// 发送缓冲满的连接在广播时被当场剔除，不阻塞其他订阅者。
func TestHub_Broadcast_DropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := testClient(1)
	fast := testClient(4)
	hub.Join("chat_r1", slow)
	hub.Join("chat_r1", fast)

	hub.Broadcast("chat_r1", []byte("one")) // fills slow's buffer
	hub.Broadcast("chat_r1", []byte("two")) // slow gets dropped here

	if n := hub.Subscribers("chat_r1"); n != 1 {
		t.Fatalf("Subscribers() = %d, want 1 after slow client dropped", n)
	}
	if got := <-fast.send; string(got) != "one" {
		t.Errorf("fast first payload = %q", got)
	}
	if got := <-fast.send; string(got) != "two" {
		t.Errorf("fast second payload = %q", got)
	}
	// slow 的 send 通道被关闭
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("slow client send channel should be closed")
	}
}

func TestClient_Send_AfterClose(t *testing.T) {
	c := testClient(1)
	c.closeSend()
	c.Send([]byte("late")) // must not panic
}

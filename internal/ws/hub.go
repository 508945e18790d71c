package ws

import (
	"sync"
)

// Hub 是以组名为键的连接注册表，一个连接可以同时订阅多个组。
// 组名约定：chat_<room>、conference_<room>、notification_<userID>，
// 广播只投递给当前订阅者，不做重放；慢消费者直接被踢掉。
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[*Client]bool)}
}

// Join 把连接加入指定组，组不存在时懒创建。
func (h *Hub) Join(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.groups[group]
	if members == nil {
		members = make(map[*Client]bool)
		h.groups[group] = members
	}
	members[c] = true
}

// Leave 把连接移出指定组，最后一个成员离开后回收组。
func (h *Hub) Leave(group string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.groups[group]
	if members == nil {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Broadcast 向组内每个当前订阅者投递一份 payload（至多一次）。
// 发送缓冲已满的连接视为失联，当场移除并关闭。
func (h *Hub) Broadcast(group string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.groups[group]
	for c := range members {
		select {
		case c.send <- payload:
		default:
			delete(members, c)
			c.closeSend()
		}
	}
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// Subscribers 返回组内当前连接数，测试和调试用。
func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

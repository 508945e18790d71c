package service

import (
	"errors"
	"strconv"
)

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrEmailTaken         = errors.New("email taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
	ErrRoomNotFound       = errors.New("room not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrNotParticipant     = errors.New("user is not a room participant")
	ErrInvalidMedia       = errors.New("invalid media encoding")
	ErrPastDate           = errors.New("date cannot be in the past")
	ErrInvalidSlot        = errors.New("invalid time slot")
	ErrSlotTaken          = errors.New("time slot already booked")
	ErrUserNotFound       = errors.New("user not found")
	ErrApptNotFound       = errors.New("appointment not found")
	ErrNotApptOwner       = errors.New("appointment belongs to someone else")
)

// Broadcaster 是按组名投递的发布订阅抽象，由 ws.Hub 实现。
// 业务层只依赖这个接口，测试里用记录广播的桩实现。
type Broadcaster interface {
	Broadcast(group string, payload []byte)
}

// 组名约定，聊天、通话、私人通知各占一个前缀。
func ChatGroup(roomName string) string { return "chat_" + roomName }
func CallGroup(roomName string) string { return "conference_" + roomName }

func NotifyGroup(userID uint) string {
	return "notification_" + strconv.FormatUint(uint64(userID), 10)
}

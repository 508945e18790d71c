package service

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andr77eeeew/HospitalService/internal/metrics"
	"github.com/andr77eeeew/HospitalService/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// MessageService 封装消息的持久化、已读判定、房间扇出和未读通知。
//
// 已读与通知的规则以房间的实时在线计数为准：
//   - 创建时在线数为 2：双方都在看，消息落库即已读，不发通知；
//   - 在线数为 1：只有发送者在线，消息保持未读，向对端的私人通知组推一条；
//   - 编辑/删除只翻转对应标志位并重新广播，从不触发通知。
type MessageService struct {
	db           *gorm.DB
	bc           Broadcaster
	mediaDir     string
	mediaBaseURL string
}

func NewMessageService(db *gorm.DB, bc Broadcaster, mediaDir, mediaBaseURL string) *MessageService {
	return &MessageService{db: db, bc: bc, mediaDir: mediaDir, mediaBaseURL: mediaBaseURL}
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID         uint      `json:"id"`
	Sender     uint      `json:"sender"`
	Content    string    `json:"content"`
	Media      string    `json:"media,omitempty"`
	FileType   string    `json:"file_type,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RepliedTo  *string   `json:"replied_to"`
	IsEdited   bool      `json:"is_edited"`
	IsDeleted  bool      `json:"is_deleted"`
	ReadStatus bool      `json:"read_status"`
}

// NotificationDTO 不落库，由消息即时派生，只投到对端的私人通知组。
type NotificationDTO struct {
	MessageID  uint      `json:"message_id"`
	RoomName   string    `json:"room_name"`
	SenderID   uint      `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Preview    string    `json:"preview"`
	Timestamp  time.Time `json:"timestamp"`
}

// CreateText 持久化一条文本消息并按在线数做扇出与通知。
// replied_to 指向的消息不存在时按空引用处理，不让整个操作失败。
func (s *MessageService) CreateText(room *models.Room, sender models.User, content string, repliedTo *uint) (*models.Message, error) {
	msg := models.Message{
		RoomID:      room.ID,
		SenderID:    sender.ID,
		Content:     content,
		RepliedToID: s.resolveReply(room.ID, repliedTo),
	}
	return s.create(room, sender, &msg, "text")
}

// CreateMedia 解码 base64 附件、写入媒体目录并持久化一条媒体消息。
// 编码错误是局部错误（ErrInvalidMedia），调用方丢弃该事件但保持连接。
func (s *MessageService) CreateMedia(room *models.Room, sender models.User, mediaB64, fileName, fileType string, repliedTo *uint) (*models.Message, error) {
	data, err := DecodeMediaPayload(mediaB64)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%d_%d_%s", room.ID, time.Now().UnixNano(), filepath.Base(fileName))
	if err := os.MkdirAll(s.mediaDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(s.mediaDir, name), data, 0o644); err != nil {
		return nil, err
	}
	msg := models.Message{
		RoomID:      room.ID,
		SenderID:    sender.ID,
		MediaURL:    s.mediaBaseURL + "/" + name,
		FileType:    fileType,
		RepliedToID: s.resolveReply(room.ID, repliedTo),
	}
	return s.create(room, sender, &msg, "media")
}

// DecodeMediaPayload 校验并补齐 base64 填充后解码。
// 长度模 4 余 1 的串不可能是合法 base64，直接拒绝。
func DecodeMediaPayload(b64 string) ([]byte, error) {
	if len(b64)%4 == 1 {
		return nil, ErrInvalidMedia
	}
	if missing := len(b64) % 4; missing != 0 {
		for i := 0; i < 4-missing; i++ {
			b64 += "="
		}
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, ErrInvalidMedia
	}
	return data, nil
}

func (s *MessageService) resolveReply(roomID uint, repliedTo *uint) *uint {
	if repliedTo == nil {
		return nil
	}
	var target models.Message
	if err := s.db.Where("id = ? AND room_id = ?", *repliedTo, roomID).First(&target).Error; err != nil {
		// 引用的消息找不到就按无引用继续
		return nil
	}
	return &target.ID
}

func (s *MessageService) create(room *models.Room, sender models.User, msg *models.Message, kind string) (*models.Message, error) {
	active, err := activeUsersFromDB(s.db, room.ID)
	if err != nil {
		return nil, err
	}
	// 双方都在线：落库前直接置为已读
	if active == 2 {
		msg.ReadStatus = true
	}
	if err := s.db.Create(msg).Error; err != nil {
		return nil, err
	}
	metrics.WsMessagesTotal.Inc()

	s.broadcastMessage(room.Name, kind, *msg)

	// 发送者独处时给对端推未读通知；对方在场（在线数 2）则抑制
	if active == 1 {
		s.pushNotification(room, sender, *msg)
	}
	return msg, nil
}

func (s *MessageService) broadcastMessage(roomName, kind string, msg models.Message) {
	payload, err := json.Marshal(struct {
		Type    string     `json:"type"`
		Message MessageDTO `json:"message"`
	}{Type: kind, Message: s.format(msg)})
	if err != nil {
		log.Error().Err(err).Uint("message_id", msg.ID).Msg("marshal message envelope")
		return
	}
	s.bc.Broadcast(ChatGroup(roomName), payload)
}

func (s *MessageService) pushNotification(room *models.Room, sender models.User, msg models.Message) {
	preview := msg.Content
	if preview == "" && msg.MediaURL != "" {
		preview = "Media message"
	}
	payload, err := json.Marshal(struct {
		Type         string          `json:"type"`
		Notification NotificationDTO `json:"notification"`
	}{Type: "notification", Notification: NotificationDTO{
		MessageID:  msg.ID,
		RoomName:   room.Name,
		SenderID:   sender.ID,
		SenderName: sender.FullName(),
		Preview:    preview,
		Timestamp:  msg.CreatedAt,
	}})
	if err != nil {
		log.Error().Err(err).Uint("message_id", msg.ID).Msg("marshal notification envelope")
		return
	}
	metrics.NotificationsTotal.Inc()
	s.bc.Broadcast(NotifyGroup(room.OtherParty(sender.ID)), payload)
}

// Edit 把新内容写入原行并置 is_edited，重新广播，类型标记为 edit。
// 只动内容和 is_edited，read/deleted 标志保持原样。
func (s *MessageService) Edit(room *models.Room, messageID uint, newContent string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.Where("id = ? AND room_id = ?", messageID, room.ID).First(&msg).Error; err != nil {
		return nil, ErrMessageNotFound
	}
	msg.Content = newContent
	msg.IsEdited = true
	if err := s.db.Model(&msg).Updates(map[string]interface{}{"content": newContent, "is_edited": true}).Error; err != nil {
		return nil, err
	}
	s.broadcastMessage(room.Name, "edit", msg)
	return &msg, nil
}

// Delete 只置 is_deleted 标志，行不删除，重新广播，类型标记为 delete。
func (s *MessageService) Delete(room *models.Room, messageID uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.Where("id = ? AND room_id = ?", messageID, room.ID).First(&msg).Error; err != nil {
		return nil, ErrMessageNotFound
	}
	msg.IsDeleted = true
	if err := s.db.Model(&msg).UpdateColumn("is_deleted", true).Error; err != nil {
		return nil, err
	}
	s.broadcastMessage(room.Name, "delete", msg)
	return &msg, nil
}

// SweepUnread 在 user 连上房间后把对端发来的未读消息全部置为已读；
// 如果此刻双方都在线，再按条广播 update_status。返回扫到的条数。
func (s *MessageService) SweepUnread(room *models.Room, userID uint) (int, error) {
	var unread []models.Message
	if err := s.db.Where("room_id = ? AND read_status = ? AND sender_id <> ?", room.ID, false, userID).
		Order("id").Find(&unread).Error; err != nil {
		return 0, err
	}
	if len(unread) == 0 {
		return 0, nil
	}
	ids := make([]uint, 0, len(unread))
	for _, m := range unread {
		ids = append(ids, m.ID)
	}
	if err := s.db.Model(&models.Message{}).Where("id IN ?", ids).UpdateColumn("read_status", true).Error; err != nil {
		return 0, err
	}

	active, err := activeUsersFromDB(s.db, room.ID)
	if err != nil {
		return len(unread), err
	}
	if active == 2 {
		for _, id := range ids {
			payload, err := json.Marshal(struct {
				Type       string `json:"type"`
				ID         uint   `json:"id"`
				ReadStatus bool   `json:"read_status"`
			}{Type: "update_status", ID: id, ReadStatus: true})
			if err != nil {
				continue
			}
			s.bc.Broadcast(ChatGroup(room.Name), payload)
		}
	}
	return len(unread), nil
}

// History 按时间升序返回房间全部消息，连接时整体回放。
func (s *MessageService) History(roomID uint) ([]MessageDTO, error) {
	return s.HistoryPage(roomID, 0, 0)
}

// HistoryPage 支持 REST 侧分页，limit<=0 时返回全部。
func (s *MessageService) HistoryPage(roomID uint, limit, offset int) ([]MessageDTO, error) {
	q := s.db.Where("room_id = ?", roomID).Order("id")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	var msgs []models.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	out := make([]MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.format(m))
	}
	return out, nil
}

// HistoryEnvelope 把整段历史打包成一条 chat_history 消息。
func (s *MessageService) HistoryEnvelope(roomID uint) ([]byte, error) {
	history, err := s.History(roomID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type     string       `json:"type"`
		Messages []MessageDTO `json:"messages"`
	}{Type: "chat_history", Messages: history})
}

// UnreadBacklog 跨 user 的全部房间收集别人发来的未读消息，
// 通知端点连接时逐条回放。
func (s *MessageService) UnreadBacklog(user models.User) ([][]byte, error) {
	var rooms []models.Room
	if err := s.db.Where("doctor_id = ? OR patient_id = ?", user.ID, user.ID).Find(&rooms).Error; err != nil {
		return nil, err
	}
	var out [][]byte
	for _, room := range rooms {
		var unread []models.Message
		if err := s.db.Where("room_id = ? AND read_status = ? AND sender_id <> ?", room.ID, false, user.ID).
			Order("id").Find(&unread).Error; err != nil {
			return nil, err
		}
		for _, m := range unread {
			var sender models.User
			if err := s.db.First(&sender, m.SenderID).Error; err != nil {
				continue
			}
			preview := m.Content
			if preview == "" && m.MediaURL != "" {
				preview = "Media message"
			}
			payload, err := json.Marshal(struct {
				Type         string          `json:"type"`
				Notification NotificationDTO `json:"notification"`
			}{Type: "notification", Notification: NotificationDTO{
				MessageID:  m.ID,
				RoomName:   room.Name,
				SenderID:   sender.ID,
				SenderName: sender.FullName(),
				Preview:    preview,
				Timestamp:  m.CreatedAt,
			}})
			if err != nil {
				continue
			}
			out = append(out, payload)
		}
	}
	return out, nil
}

func (s *MessageService) format(m models.Message) MessageDTO {
	dto := MessageDTO{
		ID:         m.ID,
		Sender:     m.SenderID,
		Content:    m.Content,
		Media:      m.MediaURL,
		FileType:   m.FileType,
		Timestamp:  m.CreatedAt,
		IsEdited:   m.IsEdited,
		IsDeleted:  m.IsDeleted,
		ReadStatus: m.ReadStatus,
	}
	if m.RepliedToID != nil {
		var target models.Message
		if err := s.db.First(&target, *m.RepliedToID).Error; err == nil {
			content := target.Content
			dto.RepliedTo = &content
		}
	}
	return dto
}

// activeUsersFromDB 直接从存储读实时在线数，避免用任何进程内缓存值。
func activeUsersFromDB(db *gorm.DB, roomID uint) (int, error) {
	var room models.Room
	if err := db.First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrRoomNotFound
		}
		return 0, err
	}
	return room.ActiveUsers, nil
}

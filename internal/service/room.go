package service

import (
	"errors"
	"fmt"

	"github.com/andr77eeeew/HospitalService/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RoomService 管理医患会话房间和房间的在线人数计数。
type RoomService struct {
	db *gorm.DB
}

func NewRoomService(db *gorm.DB) *RoomService {
	return &RoomService{db: db}
}

// GetOrCreate 按 (doctor, patient) 精确匹配查找房间，没有就建一个。
// 依赖 (doctor_id, patient_id) 唯一索引：双方同时首次联系时，
// 输掉插入竞争的一方会撞上唯一约束，此时重查并返回已有的行。
// 第二个返回值表示本次调用是否新建了房间。
func (s *RoomService) GetOrCreate(doctorID, patientID uint) (*models.Room, bool, error) {
	var room models.Room
	err := s.db.Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).First(&room).Error
	if err == nil {
		return &room, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	room = models.Room{
		Name:      fmt.Sprintf("Room_%d_%d_%s", doctorID, patientID, uuid.NewString()),
		DoctorID:  doctorID,
		PatientID: patientID,
	}
	if err := s.db.Create(&room).Error; err != nil {
		// 唯一约束冲突：对方刚刚建好了同一个房间。
		var existing models.Room
		if err2 := s.db.Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).First(&existing).Error; err2 == nil {
			return &existing, false, nil
		}
		return nil, false, err
	}
	return &room, true, nil
}

// ByName 按房间名解析房间，WebSocket 握手用。
func (s *RoomService) ByName(name string) (*models.Room, error) {
	var room models.Room
	if err := s.db.Where("name = ?", name).First(&room).Error; err != nil {
		return nil, ErrRoomNotFound
	}
	return &room, nil
}

// RecentChatDTO 是"最近会话"列表的一项，展示对端参与者的信息。
type RecentChatDTO struct {
	RoomName string `json:"room_name"`
	UserID   uint   `json:"user_id"`
	UserName string `json:"user_name"`
	Avatar   string `json:"avatar,omitempty"`
}

// RecentChats 列出 user 参与的全部房间，附对端的姓名和头像。
func (s *RoomService) RecentChats(user models.User) ([]RecentChatDTO, error) {
	var rooms []models.Room
	q := s.db.Order("created_at desc")
	switch user.Role {
	case models.RoleDoctor:
		q = q.Where("doctor_id = ?", user.ID)
	case models.RolePatient:
		q = q.Where("patient_id = ?", user.ID)
	default:
		return []RecentChatDTO{}, nil
	}
	if err := q.Find(&rooms).Error; err != nil {
		return nil, err
	}

	out := make([]RecentChatDTO, 0, len(rooms))
	for _, r := range rooms {
		var other models.User
		if err := s.db.First(&other, r.OtherParty(user.ID)).Error; err != nil {
			continue
		}
		out = append(out, RecentChatDTO{
			RoomName: r.Name,
			UserID:   other.ID,
			UserName: other.FullName(),
			Avatar:   other.AvatarURL,
		})
	}
	return out, nil
}

// IsParticipant 检查 user 是否是房间的固定参与者之一。
func (s *RoomService) IsParticipant(room *models.Room, userID uint) bool {
	return room.DoctorID == userID || room.PatientID == userID
}

// Join 原子自增聊天在线计数并返回新值。
// 自增必须发生在数据库层（UPDATE ... SET n = n + 1），
// 绝不能在应用代码里读旧值加一写回：两个 socket 可能在同一瞬间连上。
func (s *RoomService) Join(roomID uint) (int, error) {
	return s.bump(roomID, "active_users", +1)
}

// Leave 原子自减聊天在线计数并返回新值，计数不会降到 0 以下。
func (s *RoomService) Leave(roomID uint) (int, error) {
	return s.bump(roomID, "active_users", -1)
}

// JoinVoice / LeaveVoice 是通话房间的同款计数。
func (s *RoomService) JoinVoice(roomID uint) (int, error) {
	return s.bump(roomID, "active_voice_users", +1)
}

func (s *RoomService) LeaveVoice(roomID uint) (int, error) {
	return s.bump(roomID, "active_voice_users", -1)
}

// ActiveUsers 读取当前聊天在线计数。
func (s *RoomService) ActiveUsers(roomID uint) (int, error) {
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return 0, ErrRoomNotFound
	}
	return room.ActiveUsers, nil
}

func (s *RoomService) bump(roomID uint, column string, delta int) (int, error) {
	q := s.db.Model(&models.Room{}).Where("id = ?", roomID)
	if delta < 0 {
		// 防止没有配对 connect 的 disconnect 把计数减成负数
		q = q.Where(column+" > 0")
	}
	if err := q.UpdateColumn(column, gorm.Expr(column+" + ?", delta)).Error; err != nil {
		return 0, err
	}
	var room models.Room
	if err := s.db.First(&room, roomID).Error; err != nil {
		return 0, err
	}
	if column == "active_voice_users" {
		return room.ActiveVoiceUsers, nil
	}
	return room.ActiveUsers, nil
}

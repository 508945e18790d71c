package models

import "time"

// 用户角色。只有医生和患者两种角色参与聊天与预约。
const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"not null"`
	FirstName    string `gorm:"size:64"`
	LastName     string `gorm:"size:64"`
	Phone        string `gorm:"size:20"`
	Role         string `gorm:"size:20;index;not null"`
	Gender       string `gorm:"size:20"`
	DateBirth    *time.Time
	AvatarURL    string `gorm:"size:255"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Room 是医生和患者之间唯一的会话上下文。
// (doctor_id, patient_id) 上的唯一索引保证并发首次联系只产生一条记录。
// ActiveUsers / ActiveVoiceUsers 只通过 SQL 原子自增/自减修改，区间 [0,2]。
type Room struct {
	ID               uint   `gorm:"primaryKey"`
	Name             string `gorm:"uniqueIndex;size:128;not null"`
	DoctorID         uint   `gorm:"uniqueIndex:idx_room_pair;not null"`
	PatientID        uint   `gorm:"uniqueIndex:idx_room_pair;not null"`
	ActiveUsers      int    `gorm:"not null;default:0"`
	ActiveVoiceUsers int    `gorm:"not null;default:0"`
	CreatedAt        time.Time
}

// OtherParty 返回房间里 userID 的对端参与者。
func (r Room) OtherParty(userID uint) uint {
	if userID == r.DoctorID {
		return r.PatientID
	}
	return r.DoctorID
}

// Message 的删除是标志位，行永远不会被物理删除（除非整个房间级联删除）。
// IsEdited / IsDeleted / ReadStatus 互相独立。
type Message struct {
	ID          uint   `gorm:"primaryKey"`
	RoomID      uint   `gorm:"index:idx_msg_room;not null"`
	Room        Room   `gorm:"constraint:OnDelete:CASCADE"`
	SenderID    uint   `gorm:"index;not null"`
	Content     string `gorm:"type:text"`
	MediaURL    string `gorm:"size:255"`
	FileType    string `gorm:"size:64"`
	RepliedToID *uint
	IsEdited    bool `gorm:"not null;default:false"`
	IsDeleted   bool `gorm:"not null;default:false"`
	ReadStatus  bool `gorm:"not null;default:false"`
	CreatedAt   time.Time
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

type Appointment struct {
	ID        uint      `gorm:"primaryKey"`
	PatientID uint      `gorm:"index;not null"`
	DoctorID  uint      `gorm:"index:idx_appt_doctor_date;not null"`
	Date      time.Time `gorm:"index:idx_appt_doctor_date;not null"`
	TimeSlot  string    `gorm:"size:5;not null"`
	Message   string    `gorm:"type:text"`
	CreatedAt time.Time
}

type MedicalRecord struct {
	ID          uint   `gorm:"primaryKey"`
	PatientID   uint   `gorm:"index;not null"`
	DoctorID    uint   `gorm:"index;not null"`
	Diagnosis   string `gorm:"type:text"`
	Description string `gorm:"type:text"`
	Treatment   string `gorm:"type:text"`
	TestsURL    string `gorm:"size:255"`
	CreatedAt   time.Time
}

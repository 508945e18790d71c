package service

import (
	"time"

	"github.com/andr77eeeew/HospitalService/internal/models"
	"gorm.io/gorm"
)

// TimeSlots 是可预约的固定整点时段，09:00 到 17:00。
var TimeSlots = []string{
	"09:00", "10:00", "11:00", "12:00",
	"13:00", "14:00", "15:00", "16:00", "17:00",
}

func validSlot(slot string) bool {
	for _, s := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// AppointmentService 封装预约的创建、列表和空闲时段查询。
type AppointmentService struct {
	db *gorm.DB
}

func NewAppointmentService(db *gorm.DB) *AppointmentService {
	return &AppointmentService{db: db}
}

// AppointmentDTO 是对外输出的预约数据。
type AppointmentDTO struct {
	ID          uint   `json:"id"`
	PatientID   uint   `json:"patient_id"`
	PatientName string `json:"patient_name"`
	DoctorID    uint   `json:"doctor_id"`
	DoctorName  string `json:"doctor_name"`
	Date        string `json:"date"`
	TimeSlot    string `json:"time"`
	Message     string `json:"message,omitempty"`
}

// Book 以 patient 的身份向 doctorID 预约 date 当天的 slot 时段。
// 校验：日期不在过去、时段合法、对方确实是医生、该时段未被占用。
func (s *AppointmentService) Book(patient models.User, doctorID uint, date time.Time, slot, message string) (*AppointmentDTO, error) {
	if patient.Role != models.RolePatient {
		return nil, ErrInvalidRole
	}
	var doctor models.User
	if err := s.db.First(&doctor, doctorID).Error; err != nil {
		return nil, ErrUserNotFound
	}
	if doctor.Role != models.RoleDoctor {
		return nil, ErrInvalidRole
	}
	if !validSlot(slot) {
		return nil, ErrInvalidSlot
	}
	// 按本地日历日比较。date 是 UTC 零点的日历日，
	// Truncate(24h) 按绝对纪元切会在非 UTC 时区把"今天"错判一天。
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return nil, ErrPastDate
	}

	var count int64
	if err := s.db.Model(&models.Appointment{}).
		Where("doctor_id = ? AND date = ? AND time_slot = ?", doctorID, date, slot).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrSlotTaken
	}

	appt := models.Appointment{
		PatientID: patient.ID,
		DoctorID:  doctorID,
		Date:      date,
		TimeSlot:  slot,
		Message:   message,
	}
	if err := s.db.Create(&appt).Error; err != nil {
		return nil, err
	}
	dto := s.format(appt, patient, doctor)
	return &dto, nil
}

// Cancel 删除一条预约。只有这条预约的患者或医生本人可以删，
// 时段随删除重新放开。
func (s *AppointmentService) Cancel(user models.User, apptID uint) error {
	var appt models.Appointment
	if err := s.db.First(&appt, apptID).Error; err != nil {
		return ErrApptNotFound
	}
	owner := (user.Role == models.RolePatient && appt.PatientID == user.ID) ||
		(user.Role == models.RoleDoctor && appt.DoctorID == user.ID)
	if !owner {
		return ErrNotApptOwner
	}
	return s.db.Delete(&appt).Error
}

// ListForUser 按角色列出 user 的预约，医生看自己的日程，患者看自己的挂号。
func (s *AppointmentService) ListForUser(user models.User) ([]AppointmentDTO, error) {
	var appts []models.Appointment
	q := s.db.Order("date, time_slot")
	switch user.Role {
	case models.RoleDoctor:
		q = q.Where("doctor_id = ?", user.ID)
	case models.RolePatient:
		q = q.Where("patient_id = ?", user.ID)
	default:
		return []AppointmentDTO{}, nil
	}
	if err := q.Find(&appts).Error; err != nil {
		return nil, err
	}

	out := make([]AppointmentDTO, 0, len(appts))
	for _, a := range appts {
		var patient, doctor models.User
		if err := s.db.First(&patient, a.PatientID).Error; err != nil {
			continue
		}
		if err := s.db.First(&doctor, a.DoctorID).Error; err != nil {
			continue
		}
		out = append(out, s.format(a, patient, doctor))
	}
	return out, nil
}

// FreeSlots 返回医生在 date 当天还没被占用的时段。
func (s *AppointmentService) FreeSlots(doctorID uint, date time.Time) ([]string, error) {
	var appts []models.Appointment
	if err := s.db.Where("doctor_id = ? AND date = ?", doctorID, date).Find(&appts).Error; err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(appts))
	for _, a := range appts {
		taken[a.TimeSlot] = true
	}
	free := make([]string, 0, len(TimeSlots))
	for _, slot := range TimeSlots {
		if !taken[slot] {
			free = append(free, slot)
		}
	}
	return free, nil
}

func (s *AppointmentService) format(a models.Appointment, patient, doctor models.User) AppointmentDTO {
	return AppointmentDTO{
		ID:          a.ID,
		PatientID:   a.PatientID,
		PatientName: patient.FullName(),
		DoctorID:    a.DoctorID,
		DoctorName:  doctor.FullName(),
		Date:        a.Date.Format("2006-01-02"),
		TimeSlot:    a.TimeSlot,
		Message:     a.Message,
	}
}

package service

import (
	"time"

	"github.com/andr77eeeew/HospitalService/internal/models"
	"gorm.io/gorm"
)

// RecordService 封装病历（诊断、治疗方案、检查结果）的读写。
type RecordService struct {
	db *gorm.DB
}

func NewRecordService(db *gorm.DB) *RecordService {
	return &RecordService{db: db}
}

// RecordInput 是医生写病历时提交的字段。
type RecordInput struct {
	PatientID   uint   `json:"patient_id"`
	Diagnosis   string `json:"diagnosis"`
	Description string `json:"description"`
	Treatment   string `json:"treatment"`
	TestsURL    string `json:"tests_url"`
}

// RecordDTO 是对外输出的病历数据。
type RecordDTO struct {
	ID          uint      `json:"id"`
	PatientID   uint      `json:"patient_id"`
	DoctorID    uint      `json:"doctor_id"`
	DoctorName  string    `json:"doctor_name"`
	Diagnosis   string    `json:"diagnosis"`
	Description string    `json:"description,omitempty"`
	Treatment   string    `json:"treatment,omitempty"`
	TestsURL    string    `json:"tests_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Create 由医生为患者新增一条病历。
func (s *RecordService) Create(doctor models.User, in RecordInput) (*RecordDTO, error) {
	if doctor.Role != models.RoleDoctor {
		return nil, ErrInvalidRole
	}
	var patient models.User
	if err := s.db.First(&patient, in.PatientID).Error; err != nil {
		return nil, ErrUserNotFound
	}
	if patient.Role != models.RolePatient {
		return nil, ErrInvalidRole
	}
	rec := models.MedicalRecord{
		PatientID:   in.PatientID,
		DoctorID:    doctor.ID,
		Diagnosis:   in.Diagnosis,
		Description: in.Description,
		Treatment:   in.Treatment,
		TestsURL:    in.TestsURL,
	}
	if err := s.db.Create(&rec).Error; err != nil {
		return nil, err
	}
	dto := s.format(rec, doctor)
	return &dto, nil
}

// ListForUser 医生看自己写过的病历，患者看自己的病历本。
func (s *RecordService) ListForUser(user models.User) ([]RecordDTO, error) {
	var recs []models.MedicalRecord
	q := s.db.Order("created_at desc")
	switch user.Role {
	case models.RoleDoctor:
		q = q.Where("doctor_id = ?", user.ID)
	case models.RolePatient:
		q = q.Where("patient_id = ?", user.ID)
	default:
		return []RecordDTO{}, nil
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]RecordDTO, 0, len(recs))
	for _, r := range recs {
		var doctor models.User
		if err := s.db.First(&doctor, r.DoctorID).Error; err != nil {
			continue
		}
		out = append(out, s.format(r, doctor))
	}
	return out, nil
}

func (s *RecordService) format(r models.MedicalRecord, doctor models.User) RecordDTO {
	return RecordDTO{
		ID:          r.ID,
		PatientID:   r.PatientID,
		DoctorID:    r.DoctorID,
		DoctorName:  doctor.FullName(),
		Diagnosis:   r.Diagnosis,
		Description: r.Description,
		Treatment:   r.Treatment,
		TestsURL:    r.TestsURL,
		CreatedAt:   r.CreatedAt,
	}
}

package service

import (
	"testing"
	"time"

	"github.com/andr77eeeew/HospitalService/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// calendarDay 返回本地日历上 now+offset 天对应的 UTC 零点，
// 和 REST 层 time.Parse("2006-01-02", ...) 的结果一致。
func calendarDay(offset int) time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day()+offset, 0, 0, 0, 0, time.UTC)
}

func tomorrow() time.Time {
	return calendarDay(1)
}

func TestBook(t *testing.T) {
	gdb := newTestDB(t)
	doctor := seedUser(t, gdb, "doc@test.com", models.RoleDoctor)
	patient := seedUser(t, gdb, "pat@test.com", models.RolePatient)
	svc := NewAppointmentService(gdb)

	appt, err := svc.Book(patient, doctor.ID, tomorrow(), "10:00", "knee pain")
	require.NoError(t, err)
	assert.Equal(t, patient.ID, appt.PatientID)
	assert.Equal(t, doctor.ID, appt.DoctorID)
	assert.Equal(t, "10:00", appt.TimeSlot)
	assert.Equal(t, "knee pain", appt.Message)
}

func TestBook_Validation(t *testing.T) {
	gdb := newTestDB(t)
	doctor := seedUser(t, gdb, "doc@test.com", models.RoleDoctor)
	patient := seedUser(t, gdb, "pat@test.com", models.RolePatient)
	otherPatient := seedUser(t, gdb, "pat2@test.com", models.RolePatient)
	svc := NewAppointmentService(gdb)

	_, err := svc.Book(patient, doctor.ID, tomorrow(), "10:00", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  models.User
		doctor  uint
		date    time.Time
		slot    string
		wantErr error
	}{
		{"past date", patient, doctor.ID, calendarDay(-2), "11:00", ErrPastDate},
		{"invalid slot", patient, doctor.ID, tomorrow(), "10:30", ErrInvalidSlot},
		{"slot taken", otherPatient, doctor.ID, tomorrow(), "10:00", ErrSlotTaken},
		{"doctor books", doctor, doctor.ID, tomorrow(), "11:00", ErrInvalidRole},
		{"counterpart not a doctor", patient, otherPatient.ID, tomorrow(), "11:00", ErrInvalidRole},
		{"unknown doctor", patient, 9999, tomorrow(), "11:00", ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(tt.caller, tt.doctor, tt.date, tt.slot, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBook_TodayIsNotPast(t *testing.T) {
	gdb := newTestDB(t)
	doctor := seedUser(t, gdb, "doc@test.com", models.RoleDoctor)
	patient := seedUser(t, gdb, "pat@test.com", models.RolePatient)
	svc := NewAppointmentService(gdb)

	// 当天挂号要在任何时区、任何墙上时间都被接受，
	// 昨天要被拒绝。按日历日比较，不能按 24h 纪元对齐截断。
	_, err := svc.Book(patient, doctor.ID, calendarDay(0), "17:00", "")
	assert.NoError(t, err)

	_, err = svc.Book(patient, doctor.ID, calendarDay(-1), "17:00", "")
	assert.ErrorIs(t, err, ErrPastDate)
}

func TestCancel(t *testing.T) {
	gdb := newTestDB(t)
	doctor := seedUser(t, gdb, "doc@test.com", models.RoleDoctor)
	patient := seedUser(t, gdb, "pat@test.com", models.RolePatient)
	stranger := seedUser(t, gdb, "pat2@test.com", models.RolePatient)
	svc := NewAppointmentService(gdb)

	appt, err := svc.Book(patient, doctor.ID, tomorrow(), "09:00", "")
	require.NoError(t, err)

	// 无关患者删不掉别人的预约
	assert.ErrorIs(t, svc.Cancel(stranger, appt.ID), ErrNotApptOwner)

	// 患者删自己的，时段重新放开
	require.NoError(t, svc.Cancel(patient, appt.ID))
	assert.ErrorIs(t, svc.Cancel(patient, appt.ID), ErrApptNotFound)

	slots, err := svc.FreeSlots(doctor.ID, tomorrow())
	require.NoError(t, err)
	assert.Contains(t, slots, "09:00")

	// 医生也可以取消自己日程上的预约
	appt, err = svc.Book(patient, doctor.ID, tomorrow(), "10:00", "")
	require.NoError(t, err)
	assert.NoError(t, svc.Cancel(doctor, appt.ID))
}

func TestFreeSlots(t *testing.T) {
	gdb := newTestDB(t)
	doctor := seedUser(t, gdb, "doc@test.com", models.RoleDoctor)
	patient := seedUser(t, gdb, "pat@test.com", models.RolePatient)
	svc := NewAppointmentService(gdb)

	date := tomorrow()
	_, err := svc.Book(patient, doctor.ID, date, "09:00", "")
	require.NoError(t, err)
	_, err = svc.Book(patient, doctor.ID, date, "14:00", "")
	require.NoError(t, err)

	slots, err := svc.FreeSlots(doctor.ID, date)
	require.NoError(t, err)
	assert.Len(t, slots, len(TimeSlots)-2)
	assert.NotContains(t, slots, "09:00")
	assert.NotContains(t, slots, "14:00")
	assert.Contains(t, slots, "10:00")

	// 另一天不受影响
	slots, err = svc.FreeSlots(doctor.ID, date.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, TimeSlots, slots)
}

func TestListForUser(t *testing.T) {
	gdb := newTestDB(t)
	doctor := seedUser(t, gdb, "doc@test.com", models.RoleDoctor)
	patient := seedUser(t, gdb, "pat@test.com", models.RolePatient)
	other := seedUser(t, gdb, "pat2@test.com", models.RolePatient)
	svc := NewAppointmentService(gdb)

	_, err := svc.Book(patient, doctor.ID, tomorrow(), "09:00", "")
	require.NoError(t, err)
	_, err = svc.Book(other, doctor.ID, tomorrow(), "10:00", "")
	require.NoError(t, err)

	// 医生看到全部两条，患者只看到自己那条
	appts, err := svc.ListForUser(doctor)
	require.NoError(t, err)
	assert.Len(t, appts, 2)

	appts, err = svc.ListForUser(patient)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, "09:00", appts[0].TimeSlot)
	assert.Equal(t, doctor.FullName(), appts[0].DoctorName)
}

package service

import (
	"testing"

	"github.com/andr77eeeew/HospitalService/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCreateAndList(t *testing.T) {
	gdb := newTestDB(t)
	doctor := seedUser(t, gdb, "doc@test.com", models.RoleDoctor)
	patient := seedUser(t, gdb, "pat@test.com", models.RolePatient)
	other := seedUser(t, gdb, "pat2@test.com", models.RolePatient)
	svc := NewRecordService(gdb)

	rec, err := svc.Create(doctor, RecordInput{
		PatientID: patient.ID,
		Diagnosis: "hypertension",
		Treatment: "lisinopril 10mg",
	})
	require.NoError(t, err)
	assert.Equal(t, doctor.FullName(), rec.DoctorName)

	_, err = svc.Create(doctor, RecordInput{PatientID: other.ID, Diagnosis: "flu"})
	require.NoError(t, err)

	// 患者只看到自己的病历，医生看到自己写的全部
	recs, err := svc.ListForUser(patient)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "hypertension", recs[0].Diagnosis)

	recs, err = svc.ListForUser(doctor)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRecordCreate_Rejections(t *testing.T) {
	gdb := newTestDB(t)
	doctor := seedUser(t, gdb, "doc@test.com", models.RoleDoctor)
	patient := seedUser(t, gdb, "pat@test.com", models.RolePatient)
	svc := NewRecordService(gdb)

	_, err := svc.Create(patient, RecordInput{PatientID: patient.ID})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.Create(doctor, RecordInput{PatientID: 9999})
	assert.ErrorIs(t, err, ErrUserNotFound)

	// 给另一个医生写病历也不行
	doc2 := seedUser(t, gdb, "doc2@test.com", models.RoleDoctor)
	_, err = svc.Create(doctor, RecordInput{PatientID: doc2.ID})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/andr77eeeew/HospitalService/internal/auth"
	"github.com/andr77eeeew/HospitalService/internal/config"
	"github.com/andr77eeeew/HospitalService/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.Message{},
		&models.RefreshToken{},
		&models.Appointment{},
		&models.MedicalRecord{},
	))
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, email, role string) models.User {
	t.Helper()
	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     role,
		Role:         role,
	}
	require.NoError(t, gdb.Create(&user).Error)
	return user
}

func seedRoom(t *testing.T, gdb *gorm.DB, doctor, patient models.User) *models.Room {
	t.Helper()
	room := models.Room{
		Name:      "Room_" + uuid.NewString(),
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
	}
	require.NoError(t, gdb.Create(&room).Error)
	return &room
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:             "test-secret",
		Env:                   "dev",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLDays:   7,
	}
}

// fakeBroadcaster 记录全部广播，供断言扇出行为。
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	Group   string
	Payload []byte
}

func (f *fakeBroadcaster) Broadcast(group string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastEvent{Group: group, Payload: payload})
}

func (f *fakeBroadcaster) byGroup(group string) []broadcastEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broadcastEvent
	for _, e := range f.events {
		if e.Group == group {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeBroadcaster) typesFor(t *testing.T, group string) []string {
	t.Helper()
	var out []string
	for _, e := range f.byGroup(group) {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(e.Payload, &env))
		out = append(out, env.Type)
	}
	return out
}

package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andr77eeeew/HospitalService/internal/auth"
	"github.com/andr77eeeew/HospitalService/internal/models"
	"github.com/andr77eeeew/HospitalService/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc *service.UserService
	roomSvc *service.RoomService
	msgSvc  *service.MessageService
	apptSvc *service.AppointmentService
	recSvc  *service.RecordService
}

func NewHandler(userSvc *service.UserService, roomSvc *service.RoomService, msgSvc *service.MessageService, apptSvc *service.AppointmentService, recSvc *service.RecordService) *Handler {
	return &Handler{userSvc: userSvc, roomSvc: roomSvc, msgSvc: msgSvc, apptSvc: apptSvc, recSvc: recSvc}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	result, err := h.userSvc.Register(req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "email taken"})
		case errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		default:
			log.Error().Err(err).Str("email", req.Email).Msg("register")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("email", req.Email).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          h.userSvc.Profile(result.User),
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// Me 返回当前用户资料。
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, h.userSvc.Profile(auth.CurrentUser(c)))
}

// ListDoctors 返回医生目录。
func (h *Handler) ListDoctors(c *gin.Context) {
	doctors, err := h.userSvc.Doctors()
	if err != nil {
		log.Error().Err(err).Msg("list doctors")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list doctors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"doctors": doctors})
}

// GetOrCreateRoom 把当前用户和对端配成一个会话房间。
// 医生提交患者的 user_id，患者提交医生的 user_id。
func (h *Handler) GetOrCreateRoom(c *gin.Context) {
	var req struct {
		UserID uint `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user := auth.CurrentUser(c)

	var doctorID, patientID uint
	switch user.Role {
	case models.RoleDoctor:
		doctorID, patientID = user.ID, req.UserID
	case models.RolePatient:
		doctorID, patientID = req.UserID, user.ID
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	other, err := h.userSvc.ByID(req.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if (user.Role == models.RoleDoctor && other.Role != models.RolePatient) ||
		(user.Role == models.RolePatient && other.Role != models.RoleDoctor) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "counterpart role mismatch"})
		return
	}

	room, created, err := h.roomSvc.GetOrCreate(doctorID, patientID)
	if err != nil {
		log.Error().Err(err).Uint("doctor_id", doctorID).Uint("patient_id", patientID).Msg("get or create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create room"})
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"room_name": room.Name})
}

// RecentChats 返回当前用户的最近会话列表。
func (h *Handler) RecentChats(c *gin.Context) {
	chats, err := h.roomSvc.RecentChats(auth.CurrentUser(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("recent chats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ListMessages 返回房间的消息历史（按时间升序），limit/offset 可选。
func (h *Handler) ListMessages(c *gin.Context) {
	room, err := h.roomSvc.ByName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if !h.roomSvc.IsParticipant(room, auth.GetUserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room participant"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	msgs, err := h.msgSvc.HistoryPage(room.ID, limit, offset)
	if err != nil {
		log.Error().Err(err).Str("room", room.Name).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// BookAppointment 处理患者挂号。
func (h *Handler) BookAppointment(c *gin.Context) {
	var req struct {
		DoctorID uint   `json:"doctor_id"`
		Date     string `json:"date"`
		Time     string `json:"time"`
		Message  string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.DoctorID == 0 || req.Date == "" || req.Time == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	appt, err := h.apptSvc.Book(auth.CurrentUser(c), req.DoctorID, date, req.Time, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "doctor not found"})
		case errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		case errors.Is(err, service.ErrPastDate), errors.Is(err, service.ErrInvalidSlot):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrSlotTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "time slot already booked"})
		default:
			log.Error().Err(err).Uint("doctor_id", req.DoctorID).Msg("book appointment")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to book appointment"})
		}
		return
	}
	c.JSON(http.StatusCreated, appt)
}

// CancelAppointment 删除预约，限预约双方本人。
func (h *Handler) CancelAppointment(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid appointment id"})
		return
	}
	if err := h.apptSvc.Cancel(auth.CurrentUser(c), uint(id)); err != nil {
		switch {
		case errors.Is(err, service.ErrApptNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
		case errors.Is(err, service.ErrNotApptOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "not your appointment"})
		default:
			log.Error().Err(err).Int("appointment_id", id).Msg("cancel appointment")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel appointment"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ListAppointments 按角色列出预约。
func (h *Handler) ListAppointments(c *gin.Context) {
	appts, err := h.apptSvc.ListForUser(auth.CurrentUser(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("list appointments")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list appointments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": appts})
}

// FreeSlots 返回某医生某天的空闲时段。
func (h *Handler) FreeSlots(c *gin.Context) {
	doctorID, err := strconv.Atoi(c.Query("doctor_id"))
	if err != nil || doctorID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid doctor_id"})
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	slots, err := h.apptSvc.FreeSlots(uint(doctorID), date)
	if err != nil {
		log.Error().Err(err).Int("doctor_id", doctorID).Msg("free slots")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list slots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// CreateRecord 医生写病历。
func (h *Handler) CreateRecord(c *gin.Context) {
	var req service.RecordInput
	if err := c.ShouldBindJSON(&req); err != nil || req.PatientID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	rec, err := h.recSvc.Create(auth.CurrentUser(c), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "patient not found"})
		case errors.Is(err, service.ErrInvalidRole):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		default:
			log.Error().Err(err).Uint("patient_id", req.PatientID).Msg("create record")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create record"})
		}
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// ListRecords 按角色列出病历。
func (h *Handler) ListRecords(c *gin.Context) {
	recs, err := h.recSvc.ListForUser(auth.CurrentUser(c))
	if err != nil {
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg("list records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

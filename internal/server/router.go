package server

import (
	"net/http"
	"time"

	"github.com/andr77eeeew/HospitalService/internal/auth"
	"github.com/andr77eeeew/HospitalService/internal/config"
	"github.com/andr77eeeew/HospitalService/internal/metrics"
	"github.com/andr77eeeew/HospitalService/internal/models"
	"github.com/andr77eeeew/HospitalService/internal/mw"
	"github.com/andr77eeeew/HospitalService/internal/service"
	"github.com/andr77eeeew/HospitalService/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub) *gin.Engine {
	userSvc := service.NewUserService(db, cfg)
	roomSvc := service.NewRoomService(db)
	msgSvc := service.NewMessageService(db, hub, cfg.MediaDir, cfg.MediaBaseURL)
	apptSvc := service.NewAppointmentService(db)
	recSvc := service.NewRecordService(db)
	h := NewHandler(userSvc, roomSvc, msgSvc, apptSvc, recSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40, "/ws/", cfg.MediaBaseURL+"/"))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.GET("/users/me", h.Me)
	authed.GET("/doctors", h.ListDoctors)

	authed.POST("/chat/rooms", h.GetOrCreateRoom)
	authed.GET("/chat/recent", h.RecentChats)
	authed.GET("/chat/rooms/:name/messages", h.ListMessages)

	authed.POST("/appointments", auth.RequireRole(models.RolePatient), h.BookAppointment)
	authed.GET("/appointments", h.ListAppointments)
	authed.GET("/appointments/slots", h.FreeSlots)
	authed.DELETE("/appointments/:id", h.CancelAppointment)

	authed.POST("/records", auth.RequireRole(models.RoleDoctor), h.CreateRecord)
	authed.GET("/records", h.ListRecords)

	// WebSocket 端点自己做鉴权（token 可走 query 参数）。
	r.GET("/ws/chat/:room", ws.ServeChat(hub, db, cfg, roomSvc, msgSvc))
	r.GET("/ws/call/:room", ws.ServeCall(hub, db, cfg, roomSvc))
	r.GET("/ws/notifications", ws.ServeNotifications(hub, db, cfg, msgSvc))

	// 聊天附件落在本地媒体目录，静态托管出去。
	r.Static(cfg.MediaBaseURL, cfg.MediaDir)

	return r
}

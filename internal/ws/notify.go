package ws

import (
	"github.com/andr77eeeew/HospitalService/internal/config"
	"github.com/andr77eeeew/HospitalService/internal/metrics"
	"github.com/andr77eeeew/HospitalService/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ServeNotifications 是每用户私人通知组的 WebSocket 端点。
// 连接后先逐条回放未读积压，之后接收消息服务实时推送的通知。
// 该连接只下行，入站数据一律丢弃，读循环仅用于感知断开。
func ServeNotifications(hub *Hub, gdb *gorm.DB, cfg config.Config, msgs *service.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := authUser(c, cfg, gdb)
		if !ok {
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newClient(conn, user.ID)
		go client.writePump()
		metrics.WsConnections.WithLabelValues("notification").Inc()

		group := service.NotifyGroup(user.ID)
		hub.Join(group, client)
		defer func() {
			hub.Leave(group, client)
			client.closeSend()
			metrics.WsConnections.WithLabelValues("notification").Dec()
		}()

		backlog, err := msgs.UnreadBacklog(user)
		if err != nil {
			log.Error().Err(err).Uint("user_id", user.ID).Msg("notification backlog")
		}
		for _, payload := range backlog {
			client.Send(payload)
		}

		client.setupRead()
		for {
			if _, _, err := client.conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

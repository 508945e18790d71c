package ws

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/andr77eeeew/HospitalService/internal/auth"
	"github.com/andr77eeeew/HospitalService/internal/config"
	"github.com/andr77eeeew/HospitalService/internal/metrics"
	"github.com/andr77eeeew/HospitalService/internal/models"
	"github.com/andr77eeeew/HospitalService/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// authUser 在升级前完成鉴权。WS 握手带不了自定义头时允许 token 走 query 参数。
func authUser(c *gin.Context, cfg config.Config, gdb *gorm.DB) (models.User, bool) {
	token := auth.BearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return models.User{}, false
	}
	claims, err := auth.ParseAccessToken(token, cfg.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return models.User{}, false
	}
	var user models.User
	if err := gdb.First(&user, claims.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return models.User{}, false
	}
	return user, true
}

func activeUsersEnvelope(n int) []byte {
	b, _ := json.Marshal(struct {
		Type  string `json:"type"`
		Users int    `json:"users"`
	}{Type: "active_users", Users: n})
	return b
}

type chatInbound struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	RepliedTo  *uint  `json:"replied_to"`
	Media      string `json:"media"`
	FileName   string `json:"file_name"`
	FileType   string `json:"file_type"`
	MessageID  uint   `json:"message_id"`
	NewMessage string `json:"new_message"`
}

// ServeChat 是聊天房间的 WebSocket 端点。
//
// 连接流程：鉴权 → 房间解析 → 升级 → 在线数原子 +1 → 入组 → 未读清扫 →
// 历史回放 → 读循环。计数回退挂在 defer 上，连接以任何方式断开
// （包括后续 setup 失败）都保证执行一次对应的 -1。
func ServeChat(hub *Hub, gdb *gorm.DB, cfg config.Config, rooms *service.RoomService, msgs *service.MessageService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := authUser(c, cfg, gdb)
		if !ok {
			return
		}
		room, err := rooms.ByName(c.Param("room"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if !rooms.IsParticipant(room, user.ID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a room participant"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newClient(conn, user.ID)
		go client.writePump()

		group := service.ChatGroup(room.Name)
		count, err := rooms.Join(room.ID)
		if err != nil {
			log.Error().Err(err).Str("room", room.Name).Msg("chat join counter")
			client.closeSend()
			return
		}
		// 计数指标和回退挂在同一个 defer 上，join 失败时两者都不发生
		metrics.WsConnections.WithLabelValues("chat").Inc()
		defer func() {
			if n, err := rooms.Leave(room.ID); err == nil {
				hub.Broadcast(group, activeUsersEnvelope(n))
			} else {
				log.Error().Err(err).Str("room", room.Name).Msg("chat leave counter")
			}
			hub.Leave(group, client)
			client.closeSend()
			metrics.WsConnections.WithLabelValues("chat").Dec()
		}()

		hub.Join(group, client)
		hub.Broadcast(group, activeUsersEnvelope(count))

		if _, err := msgs.SweepUnread(room, user.ID); err != nil {
			log.Error().Err(err).Str("room", room.Name).Uint("user_id", user.ID).Msg("unread sweep")
		}
		if env, err := msgs.HistoryEnvelope(room.ID); err == nil {
			client.Send(env)
		} else {
			log.Error().Err(err).Str("room", room.Name).Msg("chat history")
		}

		readChat(client, hub, room, user, msgs)
	}
}

// readChat 处理入站事件直到连接关闭。
// 单个事件出错只记日志并丢弃该事件，连接保持打开。
func readChat(client *Client, hub *Hub, room *models.Room, user models.User, msgs *service.MessageService) {
	client.setupRead()
	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var in chatInbound
		if err := json.Unmarshal(data, &in); err != nil {
			log.Warn().Err(err).Str("room", room.Name).Msg("malformed chat payload")
			continue
		}
		if in.Type == "" {
			in.Type = "text"
		}
		switch in.Type {
		case "text":
			if in.Message == "" {
				log.Warn().Str("room", room.Name).Msg("text payload missing message")
				continue
			}
			if _, err := msgs.CreateText(room, user, in.Message, in.RepliedTo); err != nil {
				log.Error().Err(err).Str("room", room.Name).Msg("create text message")
			}
		case "media":
			if in.Media == "" {
				log.Warn().Str("room", room.Name).Msg("media payload missing media")
				continue
			}
			if _, err := msgs.CreateMedia(room, user, in.Media, in.FileName, in.FileType, in.RepliedTo); err != nil {
				if errors.Is(err, service.ErrInvalidMedia) {
					log.Warn().Str("room", room.Name).Msg("invalid media encoding")
				} else {
					log.Error().Err(err).Str("room", room.Name).Msg("create media message")
				}
			}
		case "edit":
			if _, err := msgs.Edit(room, in.MessageID, in.NewMessage); err != nil {
				log.Warn().Err(err).Uint("message_id", in.MessageID).Msg("edit message")
			}
		case "delete":
			if _, err := msgs.Delete(room, in.MessageID); err != nil {
				log.Warn().Err(err).Uint("message_id", in.MessageID).Msg("delete message")
			}
		default:
			// 未知类型直接忽略
		}
	}
}

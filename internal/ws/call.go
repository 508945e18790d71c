package ws

import (
	"encoding/json"
	"net/http"

	"github.com/andr77eeeew/HospitalService/internal/config"
	"github.com/andr77eeeew/HospitalService/internal/metrics"
	"github.com/andr77eeeew/HospitalService/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type signalInbound struct {
	Type      string          `json:"type"`
	Signal    json.RawMessage `json:"signal"`
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

// ServeCall 是音视频通话房间的信令 WebSocket 端点。
//
// 四种载荷（signal / offer / answer / ice_candidate）原样转发给
// 通话组的所有成员：载荷保持 json.RawMessage，从不重新解析或改写，
// 发出去的字节和收进来的逐位一致。不落库，不保证跨发送者的顺序。
func ServeCall(hub *Hub, gdb *gorm.DB, cfg config.Config, rooms *service.RoomService) gin.HandlerFunc {
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

		group := service.CallGroup(room.Name)
		count, err := rooms.JoinVoice(room.ID)
		if err != nil {
			log.Error().Err(err).Str("room", room.Name).Msg("call join counter")
			client.closeSend()
			return
		}
		metrics.WsConnections.WithLabelValues("call").Inc()
		defer func() {
			if n, err := rooms.LeaveVoice(room.ID); err == nil {
				hub.Broadcast(group, activeUsersEnvelope(n))
			} else {
				log.Error().Err(err).Str("room", room.Name).Msg("call leave counter")
			}
			hub.Leave(group, client)
			client.closeSend()
			metrics.WsConnections.WithLabelValues("call").Dec()
		}()

		hub.Join(group, client)
		hub.Broadcast(group, activeUsersEnvelope(count))

		client.setupRead()
		for {
			_, data, err := client.conn.ReadMessage()
			if err != nil {
				return
			}
			var in signalInbound
			if err := json.Unmarshal(data, &in); err != nil {
				log.Warn().Err(err).Str("room", room.Name).Msg("malformed signaling payload")
				continue
			}
			out, ok := relayEnvelope(in)
			if !ok {
				continue
			}
			metrics.SignalsTotal.WithLabelValues(in.Type).Inc()
			hub.Broadcast(group, out)
		}
	}
}

// relayEnvelope 按类型打包转发载荷，未知类型丢弃。
func relayEnvelope(in signalInbound) ([]byte, bool) {
	var payload interface{}
	switch in.Type {
	case "signal":
		payload = struct {
			Type   string          `json:"type"`
			Signal json.RawMessage `json:"signal"`
		}{Type: "signal", Signal: in.Signal}
	case "offer":
		payload = struct {
			Type string          `json:"type"`
			SDP  json.RawMessage `json:"sdp"`
		}{Type: "offer", SDP: in.SDP}
	case "answer":
		payload = struct {
			Type string          `json:"type"`
			SDP  json.RawMessage `json:"sdp"`
		}{Type: "answer", SDP: in.SDP}
	case "ice_candidate":
		payload = struct {
			Type      string          `json:"type"`
			Candidate json.RawMessage `json:"candidate"`
		}{Type: "ice_candidate", Candidate: in.Candidate}
	default:
		return nil, false
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	return out, true
}

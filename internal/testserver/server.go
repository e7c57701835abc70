package testserver

import (
	"Courtyard/internal/api/dto"
	"Courtyard/internal/api/middleware"
	"Courtyard/internal/chat"
	"Courtyard/internal/model"
	"Courtyard/internal/pkg/consts"
	"Courtyard/internal/pkg/logger"
	"Courtyard/internal/pkg/response"
	log "log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server 联调用的内存聊天后端，实现客户端依赖的全部接口契约
type Server struct {
	store  *Store
	hub    *Hub
	engine *gin.Engine
}

func New() *Server {
	s := &Server{
		store: NewStore(),
		hub:   NewHub(),
	}

	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	r.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})

	chatGroup := r.Group("/chat")
	chatGroup.Use(middleware.IdentityMiddleware())
	{
		chatGroup.GET("", s.Connect)
		chatGroup.POST("/messages", s.SendMessage)
		chatGroup.GET("/conversations", s.GetConversationList)
		chatGroup.GET("/conversations/:peerId/messages", s.GetChatHistory)
		chatGroup.POST("/conversations/:peerId/deliveries", s.MarkDelivered)
	}

	s.engine = r
	return s
}

// Engine 暴露底层引擎，进程内起 http.Server 用
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler 作为 http.Handler 暴露，httptest 挂载用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// SendMessage 落库定序后回给发送方，再推送双方。
// 重复的 client_msg_id 返回 409 和已有消息
func (s *Server) SendMessage(c *gin.Context) {
	var req dto.SendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, chat.ErrParamInvalid)
		return
	}
	userID := c.GetString("user_id")
	if req.ToUserID == userID {
		response.Error(c, chat.ErrPeerRequired)
		return
	}

	msg, dup := s.store.AppendMessage(userID, req.ToUserID, req.Body, req.ClientMsgID)
	if dup {
		c.JSON(http.StatusConflict, msg.SnakeMap())
		return
	}

	s.hub.Push(userID, consts.EventEcho, msg.CamelMap())
	s.hub.Push(req.ToUserID, consts.EventMessage, msg.CamelMap())

	c.JSON(http.StatusOK, msg.SnakeMap())
}

// GetChatHistory 返回会话内最近 limit 条消息，Seq 升序
func (s *Server) GetChatHistory(c *gin.Context) {
	userID := c.GetString("user_id")
	peerID := c.Param("peerId")

	limit := consts.DefaultHistoryLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	msgs := s.store.History(userID, peerID)
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	items := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, m.SnakeMap())
	}
	c.JSON(http.StatusOK, dto.HistoryResp{Items: items})
}

// MarkDelivered 推进投递水位并把钳制后的值回给调用方，
// 同时向对端推送 chat:delivered
func (s *Server) MarkDelivered(c *gin.Context) {
	var req dto.DeliveryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, chat.ErrParamInvalid)
		return
	}
	userID := c.GetString("user_id")
	peerID := c.Param("peerId")

	effective := s.store.MarkDelivered(userID, peerID, req.DeliveredSeq)

	s.hub.Push(peerID, consts.EventDelivered, dto.DeliveredEvent{
		PeerID:         userID,
		ConversationID: model.ConversationKey(userID, peerID),
		DeliveredSeq:   effective,
		Source:         "ack",
	})

	c.JSON(http.StatusOK, dto.DeliveryResp{DeliveredSeq: effective})
}

// GetConversationList 返回当前用户的会话摘要
func (s *Server) GetConversationList(c *gin.Context) {
	userID := c.GetString("user_id")
	c.JSON(http.StatusOK, dto.ConversationsResp{Items: s.store.Summaries(userID)})
}

// Connect 升级 Websocket 并交给 hub 托管，
// 上行 typing 信号转发给目标用户
func (s *Server) Connect(c *gin.Context) {
	userID := c.GetString("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WS 协议升级失败", "err", err)
		return
	}

	s.hub.Serve(conn, userID, func(fromUserID, peerID string) {
		s.hub.Push(peerID, consts.EventTyping, dto.TypingEvent{
			FromUserID: fromUserID,
			PeerID:     peerID,
		})
	})
}

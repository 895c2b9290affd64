package handler

import (
	"Parley/internal/api/dto"
	"Parley/internal/pkg/bus"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/logger"
	"Parley/internal/pkg/response"
	"Parley/internal/pkg/security"
	"Parley/internal/pkg/util"
	"Parley/internal/service"
	"context"
	log "log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 上行帧类型
const (
	FrameTyping       = "typing"
	FramePresencePing = "presence-ping"
	FrameCallRinging  = "call-ringing"
	FrameCallOffer    = "call-offer"
	FrameCallAnswer   = "call-answer"
	FrameIceCandidate = "ice-candidate"
	FrameError        = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 64 * 1024
	outboundBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WsHandler struct {
	bus             bus.Bus
	presenceSvc     service.PresenceService
	conversationSvc service.ConversationService
	callSvc         service.CallService
}

func NewWsHandler(
	b bus.Bus,
	presenceSvc service.PresenceService,
	conversationSvc service.ConversationService,
	callSvc service.CallService,
) *WsHandler {
	return &WsHandler{
		bus:             b,
		presenceSvc:     presenceSvc,
		conversationSvc: conversationSvc,
		callSvc:         callSvc,
	}
}

// wsSession 一条长连接；conn 只由 writeLoop 写
type wsSession struct {
	h      *WsHandler
	userID uint64
	connID string
	conn   *websocket.Conn
	sub    bus.Subscription
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *WsHandler) Connect(c *gin.Context) {
	// 鉴权
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		response.Error(c, service.ErrUnauthenticated)
		return
	}
	claims, err := security.Authenticate(c.Request.Context(), token)
	if err != nil {
		log.WarnContext(c.Request.Context(), "WS 鉴权失败", "err", err)
		response.Error(c, service.ErrUnauthenticated)
		return
	}
	userID := claims.UserID
	// 同一用户多端连接各自登记，用于在线状态
	connID := uuid.NewString()

	// 连接生命周期独立于 HTTP 请求
	ctx, cancel := context.WithCancel(logger.NewTraceContext(context.Background(), "ws"))
	defer cancel()

	topics, err := s.initialTopics(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "获取会话列表失败", "userID", userID, "err", err)
		response.Error(c, err)
		return
	}

	// 升级 Websocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.ErrorContext(ctx, "WS 协议升级失败", "err", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	sub, err := s.bus.Subscribe(ctx, topics...)
	if err != nil {
		log.ErrorContext(ctx, "订阅推送总线失败", "userID", userID, "err", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "bus unavailable"),
			time.Now().Add(writeWait))
		return
	}
	defer func() {
		_ = sub.Close()
	}()

	if err = s.presenceSvc.Attach(ctx, userID, connID); err != nil {
		log.WarnContext(ctx, "标记在线失败", "userID", userID, "err", err)
	}
	defer func() {
		// ctx 已取消时仍需完成下线
		if err := s.presenceSvc.Detach(context.WithoutCancel(ctx), userID, connID); err != nil {
			log.WarnContext(ctx, "标记离线失败", "userID", userID, "err", err)
		}
	}()

	log.InfoContext(ctx, "用户 WS 连接已建立", "userID", userID, "topics", len(topics))

	session := &wsSession{
		h:      s,
		userID: userID,
		connID: connID,
		conn:   conn,
		sub:    sub,
		out:    make(chan []byte, outboundBuffer),
		done:   make(chan struct{}),
	}

	go session.readLoop(ctx)
	session.writeLoop(ctx)

	log.InfoContext(ctx, "用户 WS 连接已断开", "userID", userID)
}

// initialTopics 成员会话及其回执主题、本人私有主题、单聊对方的在线状态
func (s *WsHandler) initialTopics(ctx context.Context, userID uint64) ([]string, error) {
	convs, err := s.conversationSvc.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(convs)*3+len(consts.PrivateUserTopics))
	for _, conv := range convs {
		topics = append(topics, conversationTopics(conv)...)
	}
	for _, suffix := range consts.PrivateUserTopics {
		topics = append(topics, consts.UserTopic(userID, suffix))
	}
	return topics, nil
}

func conversationTopics(conv *dto.ConversationDTO) []string {
	topics := []string{
		consts.ConversationTopic(conv.ID),
		consts.ConversationStatusTopic(conv.ID),
	}
	if conv.Type == consts.ConversationTypePrivate && conv.PeerID != 0 {
		topics = append(topics, consts.UserTopic(conv.PeerID, consts.UserTopicStatus))
	}
	return topics
}

func (s *wsSession) stop() {
	s.once.Do(func() { close(s.done) })
}

// readLoop 处理客户端上行帧，出错即结束会话
func (s *wsSession) readLoop(ctx context.Context) {
	defer s.stop()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WarnContext(ctx, "WS 读取失败", "userID", s.userID, "err", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame dto.WSFrame
		if err = json.Unmarshal(raw, &frame); err != nil {
			s.replyError(ctx, "", service.ErrParamInvalid)
			continue
		}
		if err = s.h.handleFrame(ctx, s.userID, s.connID, &frame); err != nil {
			s.replyError(ctx, frame.Type, err)
		}
	}
}

// writeLoop 唯一的写协程：总线推送、错误回复与心跳
func (s *wsSession) writeLoop(ctx context.Context) {
	defer s.stop()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	ownConversations := consts.UserTopic(s.userID, consts.UserTopicConversations)

	for {
		select {
		case msg, ok := <-s.sub.C():
			if !ok {
				return
			}
			if msg.Topic == ownConversations {
				s.follow(ctx, msg.Payload)
			}
			if err := s.write(websocket.TextMessage, msg.Payload); err != nil {
				log.WarnContext(ctx, "WS 推送失败", "userID", s.userID, "err", err)
				return
			}
		case payload := <-s.out:
			if err := s.write(websocket.TextMessage, payload); err != nil {
				log.WarnContext(ctx, "WS 推送失败", "userID", s.userID, "err", err)
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *wsSession) write(messageType int, payload []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, payload)
}

// follow 新加入的会话在本连接上追加订阅
func (s *wsSession) follow(ctx context.Context, payload []byte) {
	var env dto.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Event != consts.EventConversationCreated {
		return
	}
	var conv dto.ConversationDTO
	if err := json.Unmarshal(env.Data, &conv); err != nil || conv.ID == 0 {
		return
	}
	if err := s.sub.Add(ctx, conversationTopics(&conv)...); err != nil {
		log.WarnContext(ctx, "追加订阅失败", "userID", s.userID, "conversationID", conv.ID, "err", err)
	}
}

func (s *wsSession) replyError(ctx context.Context, ref string, err error) {
	code, message := response.Resolve(err)
	if code == response.InternalServerError {
		log.ErrorContext(ctx, "WS 上行帧处理失败", "userID", s.userID, "type", ref, "err", err)
	}
	payload, mErr := json.Marshal(&dto.WSError{Type: FrameError, Code: code, Message: message, Ref: ref})
	if mErr != nil {
		return
	}
	select {
	case s.out <- payload:
	case <-s.done:
	default:
		log.WarnContext(ctx, "WS 下行缓冲已满，丢弃错误回复", "userID", s.userID)
	}
}

// handleFrame 上行帧分发，发送者身份总是取自已鉴权的连接
func (s *WsHandler) handleFrame(ctx context.Context, userID uint64, connID string, frame *dto.WSFrame) error {
	switch frame.Type {
	case FramePresencePing:
		return s.presenceSvc.Refresh(ctx, userID, connID)
	case FrameTyping:
		var req dto.WSTypingReq
		if err := decodeFrame(frame, &req); err != nil {
			return err
		}
		return s.conversationSvc.Typing(ctx, req.ConversationID, userID, req.Typing)
	case FrameCallRinging:
		var req dto.WSCallReq
		if err := decodeFrame(frame, &req); err != nil {
			return err
		}
		_, err := s.callSvc.MarkRinging(ctx, req.CallID, userID)
		return err
	case FrameCallOffer:
		var req dto.WSSignalReq
		if err := decodeFrame(frame, &req); err != nil {
			return err
		}
		return s.callSvc.RelayOffer(ctx, req.CallID, userID, req.SDP)
	case FrameCallAnswer:
		var req dto.WSSignalReq
		if err := decodeFrame(frame, &req); err != nil {
			return err
		}
		return s.callSvc.RelayAnswer(ctx, req.CallID, userID, req.SDP)
	case FrameIceCandidate:
		var req dto.WSIceCandidateReq
		if err := decodeFrame(frame, &req); err != nil {
			return err
		}
		return s.callSvc.RelayIceCandidate(ctx, userID, &req)
	default:
		return service.ErrParamInvalid
	}
}

func decodeFrame(frame *dto.WSFrame, v any) error {
	if len(frame.Data) == 0 {
		return service.ErrParamInvalid
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return service.ErrParamInvalid
	}
	if err := util.ValidateDTO(v); err != nil {
		return service.ErrParamInvalid
	}
	return nil
}

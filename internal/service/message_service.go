package service

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/model"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/es"
	"Parley/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

// MessageService 消息生命周期
type MessageService interface {
	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	EditMessage(ctx context.Context, msgID, senderID uint64, content string) (*dto.MessageDTO, error)
	DeleteMessage(ctx context.Context, msgID, senderID uint64) error
	MarkDelivered(ctx context.Context, msgID, recipientID uint64) (*dto.MessageStatusDTO, error)
	MarkRead(ctx context.Context, msgID, recipientID uint64) (*dto.MessageStatusDTO, error)
	AddReaction(ctx context.Context, msgID, recipientID uint64, reaction string) error
	ListMessages(ctx context.Context, convID, requesterID uint64, page, pageSize int) ([]*dto.MessageDTO, error)
	GetMessageStatuses(ctx context.Context, msgID, requesterID uint64) ([]*dto.MessageStatusDTO, error)
	SearchMessages(ctx context.Context, requesterID uint64, req *dto.SearchMessagesReq) ([]*dto.MessageSearchHit, error)
}

type messageServiceImpl struct {
	convRepo    repository.ConversationRepo
	messageRepo repository.MessageRepo
	members     MembershipLookup
	searchRepo  es.MessageRepo
	dispatcher  Dispatcher
	attempts    int
	backoff     time.Duration
}

func NewMessageService(
	convRepo repository.ConversationRepo,
	messageRepo repository.MessageRepo,
	members MembershipLookup,
	searchRepo es.MessageRepo,
	dispatcher Dispatcher,
	cfg config.MessageConfig,
) MessageService {
	attempts := cfg.SendAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.BackoffBase()
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &messageServiceImpl{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		members:     members,
		searchRepo:  searchRepo,
		dispatcher:  dispatcher,
		attempts:    attempts,
		backoff:     backoff,
	}
}

// SendMessage 消息、接收者状态、会话指针在同一事务；遇到死锁或锁等待超时整体重试
func (s *messageServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	if _, err := s.requireMember(ctx, req.ConversationID, senderID); err != nil {
		return nil, err
	}

	if req.ReplyToID != nil {
		reply, err := s.messageRepo.GetMessage(ctx, *req.ReplyToID)
		if err != nil {
			return nil, err
		}
		if reply == nil || reply.ConversationID != req.ConversationID {
			return nil, ErrReplyNotFound
		}
	}

	msgType := req.Type
	if msgType == "" {
		msgType = consts.MessageTypeText
	}

	var msg *model.Message
	err := retryRetryable(ctx, s.attempts, s.backoff, ErrSendRetryExhausted, func() error {
		msg = &model.Message{
			ConversationID: req.ConversationID,
			SenderID:       senderID,
			Content:        req.Content,
			Type:           msgType,
			ReplyToID:      req.ReplyToID,
			Version:        1,
			CreatedAt:      time.Now(),
		}
		return s.messageRepo.CreateWithStatuses(ctx, msg)
	}, "op", "send_message", "conversation_id", req.ConversationID, "sender_id", senderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	out := toMessageDTO(msg)
	s.dispatcher.Publish(ctx, consts.ConversationTopic(msg.ConversationID), consts.EventMessageSent, out)
	return out, nil
}

// EditMessage 仅发送者可编辑；版本不匹配说明被并发修改，重新读取后再试
func (s *messageServiceImpl) EditMessage(ctx context.Context, msgID, senderID uint64, content string) (*dto.MessageDTO, error) {
	for attempt := 1; ; attempt++ {
		msg, err := s.requireSender(ctx, msgID, senderID)
		if err != nil {
			return nil, err
		}
		if msg.Deleted {
			return nil, ErrMessageDeleted
		}

		now := time.Now()
		ok, err := s.messageRepo.UpdateContentCAS(ctx, msgID, msg.Version, content, now)
		if err != nil {
			return nil, err
		}
		if ok {
			msg.Content = content
			msg.Edited = true
			msg.EditedAt = &now
			msg.Version++
			out := toMessageDTO(msg)
			s.dispatcher.Publish(ctx, consts.ConversationTopic(msg.ConversationID), consts.EventMessageUpdated, out)
			return out, nil
		}
		if attempt >= s.attempts {
			return nil, ErrEditConflict
		}
	}
}

// DeleteMessage 墓碑删除，重复删除视为成功
func (s *messageServiceImpl) DeleteMessage(ctx context.Context, msgID, senderID uint64) error {
	for attempt := 1; ; attempt++ {
		msg, err := s.requireSender(ctx, msgID, senderID)
		if err != nil {
			return err
		}
		if msg.Deleted {
			return nil
		}

		ok, err := s.messageRepo.TombstoneCAS(ctx, msgID, msg.Version, time.Now())
		if err != nil {
			return err
		}
		if ok {
			msg.Deleted = true
			msg.Version++
			out := toMessageDTO(msg)
			out.Content = ""
			s.dispatcher.Publish(ctx, consts.ConversationTopic(msg.ConversationID), consts.EventMessageUpdated, out)
			return nil
		}
		if attempt >= s.attempts {
			return ErrEditConflict
		}
	}
}

func (s *messageServiceImpl) MarkDelivered(ctx context.Context, msgID, recipientID uint64) (*dto.MessageStatusDTO, error) {
	return s.advance(ctx, msgID, recipientID, model.StatusDelivered, consts.EventMessageDelivered)
}

func (s *messageServiceImpl) MarkRead(ctx context.Context, msgID, recipientID uint64) (*dto.MessageStatusDTO, error) {
	return s.advance(ctx, msgID, recipientID, model.StatusRead, consts.EventMessageRead)
}

// advance 已到达或越过目标状态时为空操作，不推送
func (s *messageServiceImpl) advance(ctx context.Context, msgID, recipientID uint64, target model.DeliveryStatus, event string) (*dto.MessageStatusDTO, error) {
	msg, err := s.messageRepo.GetMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	st, err := s.messageRepo.GetStatus(ctx, msgID, recipientID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, ErrNotRecipient
	}
	if st.Status >= target {
		return toStatusDTO(st), nil
	}

	now := time.Now()
	changed, err := s.messageRepo.AdvanceStatus(ctx, msgID, recipientID, target, now)
	if err != nil {
		return nil, err
	}
	if changed {
		s.dispatcher.Publish(ctx, consts.ConversationStatusTopic(msg.ConversationID), event, &dto.ReceiptDTO{
			MessageID:      msgID,
			ConversationID: msg.ConversationID,
			UserID:         recipientID,
			Status:         target,
			At:             now,
		})
	}

	st, err = s.messageRepo.GetStatus(ctx, msgID, recipientID)
	if err != nil {
		return nil, err
	}
	return toStatusDTO(st), nil
}

// AddReaction 与投递状态无关；空串表示取消
func (s *messageServiceImpl) AddReaction(ctx context.Context, msgID, recipientID uint64, reaction string) error {
	msg, err := s.messageRepo.GetMessage(ctx, msgID)
	if err != nil {
		return err
	}
	if msg == nil {
		return ErrMessageNotFound
	}
	st, err := s.messageRepo.GetStatus(ctx, msgID, recipientID)
	if err != nil {
		return err
	}
	if st == nil {
		return ErrNotRecipient
	}

	var value *string
	if reaction != "" {
		value = &reaction
	}
	if err = s.messageRepo.SetReaction(ctx, msgID, recipientID, value); err != nil {
		return err
	}
	s.dispatcher.Publish(ctx, consts.ConversationStatusTopic(msg.ConversationID), consts.EventMessageReacted, &dto.ReactionDTO{
		MessageID:      msgID,
		ConversationID: msg.ConversationID,
		UserID:         recipientID,
		Reaction:       value,
	})
	return nil
}

// ListMessages 新消息在前，不含已删除
func (s *messageServiceImpl) ListMessages(ctx context.Context, convID, requesterID uint64, page, pageSize int) ([]*dto.MessageDTO, error) {
	if _, err := s.requireMember(ctx, convID, requesterID); err != nil {
		return nil, err
	}
	limit, offset := pageBounds(page, pageSize)
	msgs, err := s.messageRepo.ListVisible(ctx, convID, offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageDTO(m))
	}
	return out, nil
}

// GetMessageStatuses 会话成员可查看每个接收者的状态
func (s *messageServiceImpl) GetMessageStatuses(ctx context.Context, msgID, requesterID uint64) ([]*dto.MessageStatusDTO, error) {
	msg, err := s.messageRepo.GetMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != requesterID {
		ok, err := s.members.IsMember(ctx, msg.ConversationID, requesterID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotAMember
		}
	}

	list, err := s.messageRepo.ListStatuses(ctx, msgID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.MessageStatusDTO, 0, len(list))
	for _, st := range list {
		out = append(out, toStatusDTO(st))
	}
	return out, nil
}

func (s *messageServiceImpl) SearchMessages(ctx context.Context, requesterID uint64, req *dto.SearchMessagesReq) ([]*dto.MessageSearchHit, error) {
	if _, err := s.requireMember(ctx, req.ConversationID, requesterID); err != nil {
		return nil, err
	}
	if s.searchRepo == nil {
		return nil, ErrSearchUnavailable
	}

	size := req.Size
	if size <= 0 {
		size = consts.DefaultPageSize
	}
	if size > consts.MaxPageSize {
		size = consts.MaxPageSize
	}
	from := max(req.From, 0)

	docs, err := s.searchRepo.SearchMessages(ctx, req.ConversationID, req.Keyword, from, size)
	if err != nil {
		log.ErrorContext(ctx, "search messages failed", "conversation_id", req.ConversationID, "err", err)
		return nil, ErrSearchUnavailable
	}
	out := make([]*dto.MessageSearchHit, 0, len(docs))
	for _, d := range docs {
		hit := &dto.MessageSearchHit{}
		_ = copier.Copy(hit, d)
		out = append(out, hit)
	}
	return out, nil
}

func (s *messageServiceImpl) requireMember(ctx context.Context, convID, userID uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	ok, err := s.members.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAMember
	}
	return conv, nil
}

func (s *messageServiceImpl) requireSender(ctx context.Context, msgID, senderID uint64) (*model.Message, error) {
	msg, err := s.messageRepo.GetMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.SenderID != senderID {
		return nil, ErrNotSender
	}
	return msg, nil
}

func toMessageDTO(m *model.Message) *dto.MessageDTO {
	out := &dto.MessageDTO{}
	_ = copier.Copy(out, m)
	return out
}

func toStatusDTO(st *model.MessageStatus) *dto.MessageStatusDTO {
	out := &dto.MessageStatusDTO{}
	_ = copier.Copy(out, st)
	return out
}

package service

import (
	"Parley/internal/api/dto"
	"Parley/internal/model"
	"Parley/internal/pkg/consts"
	"Parley/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"slices"

	"github.com/jinzhu/copier"
)

// ConversationService 会话与成员
type ConversationService interface {
	MembershipLookup
	CreatePrivateConversation(ctx context.Context, creatorID, peerID uint64) (*dto.ConversationDTO, error)
	CreateGroupConversation(ctx context.Context, creatorID uint64, req *dto.CreateGroupReq) (*dto.ConversationDTO, error)
	PrivateConversation(ctx context.Context, userA, userB uint64) (uint64, bool, error)
	AddMembers(ctx context.Context, convID, actorID uint64, userIDs []uint64) ([]uint64, error)
	LeaveConversation(ctx context.Context, convID, userID uint64) error
	ListConversations(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	GetConversation(ctx context.Context, convID, requesterID uint64) (*dto.ConversationDTO, error)
	Typing(ctx context.Context, convID, userID uint64, typing bool) error
}

type conversationServiceImpl struct {
	convRepo   repository.ConversationRepo
	gate       RelationshipGate
	dispatcher Dispatcher
}

func NewConversationService(convRepo repository.ConversationRepo, gate RelationshipGate, dispatcher Dispatcher) ConversationService {
	return &conversationServiceImpl{convRepo: convRepo, gate: gate, dispatcher: dispatcher}
}

// PeerKey 单聊唯一标识，小 ID 在前
func PeerKey(userA, userB uint64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d_%d", userA, userB)
}

// CreatePrivateConversation 仅好友之间可建；已存在则直接返回
func (s *conversationServiceImpl) CreatePrivateConversation(ctx context.Context, creatorID, peerID uint64) (*dto.ConversationDTO, error) {
	if creatorID == peerID {
		return nil, ErrSelfConversation
	}
	friends, err := s.gate.AreFriends(ctx, creatorID, peerID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, ErrNotFriends
	}

	key := PeerKey(creatorID, peerID)
	conv, created, err := s.convRepo.CreatePrivate(ctx, &model.Conversation{
		Type:      consts.ConversationTypePrivate,
		PeerKey:   &key,
		CreatorID: creatorID,
	}, creatorID, peerID)
	if err != nil {
		return nil, err
	}

	members := []uint64{creatorID, peerID}
	out := s.toConversationDTO(conv, members, creatorID)
	if created {
		for _, uid := range members {
			s.dispatcher.Publish(ctx, consts.UserTopic(uid, consts.UserTopicConversations), consts.EventConversationCreated, s.toConversationDTO(conv, members, uid))
		}
	}
	return out, nil
}

// CreateGroupConversation 创建者自动入群，成员去重后至少两人
func (s *conversationServiceImpl) CreateGroupConversation(ctx context.Context, creatorID uint64, req *dto.CreateGroupReq) (*dto.ConversationDTO, error) {
	members := append([]uint64{creatorID}, req.MemberIDs...)
	members = dedupe(members)
	if len(members) < 2 {
		return nil, kindError(ErrParamInvalid, "群聊至少需要两名成员")
	}

	conv := &model.Conversation{
		Type:      consts.ConversationTypeGroup,
		Name:      req.Name,
		CreatorID: creatorID,
	}
	if err := s.convRepo.CreateGroup(ctx, conv, members); err != nil {
		return nil, err
	}

	out := s.toConversationDTO(conv, members, creatorID)
	for _, uid := range members {
		s.dispatcher.Publish(ctx, consts.UserTopic(uid, consts.UserTopicConversations), consts.EventConversationCreated, out)
	}
	return out, nil
}

// PrivateConversation 两人之间的单聊是否已存在
func (s *conversationServiceImpl) PrivateConversation(ctx context.Context, userA, userB uint64) (uint64, bool, error) {
	conv, err := s.convRepo.GetConversationByPeerKey(ctx, PeerKey(userA, userB))
	if err != nil {
		return 0, false, err
	}
	if conv == nil {
		return 0, false, nil
	}
	return conv.ID, true, nil
}

// AddMembers 仅群聊，操作者需是成员；返回实际新增的用户
func (s *conversationServiceImpl) AddMembers(ctx context.Context, convID, actorID uint64, userIDs []uint64) ([]uint64, error) {
	conv, err := s.requireMember(ctx, convID, actorID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, ErrNotGroup
	}

	added, err := s.convRepo.AddMembers(ctx, convID, dedupe(userIDs))
	if err != nil {
		return nil, err
	}
	if len(added) == 0 {
		return []uint64{}, nil
	}

	event := &dto.MembersChangedDTO{ConversationID: convID, ActorID: actorID, UserIDs: added}
	s.dispatcher.Publish(ctx, consts.ConversationTopic(convID), consts.EventMembersAdded, event)

	members, err := s.convRepo.Members(ctx, convID)
	if err != nil {
		log.WarnContext(ctx, "load members for push failed", "conversation_id", convID, "err", err)
		return added, nil
	}
	for _, uid := range added {
		s.dispatcher.Publish(ctx, consts.UserTopic(uid, consts.UserTopicConversations), consts.EventConversationCreated, s.toConversationDTO(conv, members, uid))
	}
	return added, nil
}

// LeaveConversation 仅群聊可退出
func (s *conversationServiceImpl) LeaveConversation(ctx context.Context, convID, userID uint64) error {
	conv, err := s.requireMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if !conv.IsGroup() {
		return ErrNotGroup
	}
	removed, err := s.convRepo.RemoveMember(ctx, convID, userID)
	if err != nil {
		return err
	}
	if removed {
		s.dispatcher.Publish(ctx, consts.ConversationTopic(convID), consts.EventMemberLeft,
			&dto.MembersChangedDTO{ConversationID: convID, ActorID: userID, UserIDs: []uint64{userID}})
	}
	return nil
}

func (s *conversationServiceImpl) ListConversations(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	convs, err := s.convRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ConversationDTO, 0, len(convs))
	for _, conv := range convs {
		members, err := s.convRepo.Members(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, s.toConversationDTO(conv, members, userID))
	}
	return out, nil
}

func (s *conversationServiceImpl) GetConversation(ctx context.Context, convID, requesterID uint64) (*dto.ConversationDTO, error) {
	conv, err := s.requireMember(ctx, convID, requesterID)
	if err != nil {
		return nil, err
	}
	members, err := s.convRepo.Members(ctx, convID)
	if err != nil {
		return nil, err
	}
	return s.toConversationDTO(conv, members, requesterID), nil
}

// Typing 不落库，直接广播
func (s *conversationServiceImpl) Typing(ctx context.Context, convID, userID uint64, typing bool) error {
	if _, err := s.requireMember(ctx, convID, userID); err != nil {
		return err
	}
	s.dispatcher.Publish(ctx, consts.ConversationTopic(convID), consts.EventTyping,
		&dto.TypingDTO{ConversationID: convID, UserID: userID, Typing: typing})
	return nil
}

func (s *conversationServiceImpl) Members(ctx context.Context, convID uint64) ([]uint64, error) {
	return s.convRepo.Members(ctx, convID)
}

func (s *conversationServiceImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	return s.convRepo.IsMember(ctx, convID, userID)
}

func (s *conversationServiceImpl) requireMember(ctx context.Context, convID, userID uint64) (*model.Conversation, error) {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	ok, err := s.convRepo.IsMember(ctx, convID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAMember
	}
	return conv, nil
}

func (s *conversationServiceImpl) toConversationDTO(conv *model.Conversation, members []uint64, viewerID uint64) *dto.ConversationDTO {
	out := &dto.ConversationDTO{}
	_ = copier.Copy(out, conv)
	out.IsGroup = conv.IsGroup()
	out.Members = members
	if !out.IsGroup {
		for _, uid := range members {
			if uid != viewerID {
				out.PeerID = uid
			}
		}
	}
	return out
}

func dedupe(ids []uint64) []uint64 {
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

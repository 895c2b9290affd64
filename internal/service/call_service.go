package service

import (
	"Parley/internal/api/config"
	"Parley/internal/api/dto"
	"Parley/internal/model"
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/mongo"
	"Parley/internal/pkg/rtc"
	"Parley/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/jinzhu/copier"
	"github.com/pion/webrtc/v4"
)

const (
	callHistoryLimit = 50
	expireBatchSize  = 100
)

// 审计事件名
const (
	auditInitiated = "INITIATED"
	auditRinging   = "RINGING"
	auditAccepted  = "ACCEPTED"
	auditRejected  = "REJECTED"
	auditEnded     = "ENDED"
	auditTimeout   = "TIMEOUT"
	auditOffer     = "OFFER_UPDATED"
	auditAnswer    = "ANSWER_UPDATED"
)

// CallService 一对一通话信令
type CallService interface {
	InitiateCall(ctx context.Context, callerID uint64, req *dto.InitiateCallReq) (*dto.CallDTO, error)
	MarkRinging(ctx context.Context, callID, calleeID uint64) (*dto.CallDTO, error)
	AcceptCall(ctx context.Context, callID, calleeID uint64, answerSDP string) (*dto.CallDTO, error)
	RejectCall(ctx context.Context, callID, calleeID uint64) (*dto.CallDTO, error)
	EndCall(ctx context.Context, callID, userID uint64) (*dto.CallDTO, error)

	RelayOffer(ctx context.Context, callID, senderID uint64, sdp string) error
	RelayAnswer(ctx context.Context, callID, senderID uint64, sdp string) error
	RelayIceCandidate(ctx context.Context, senderID uint64, req *dto.WSIceCandidateReq) error

	GetCall(ctx context.Context, callID, requesterID uint64) (*dto.CallDTO, error)
	ListActiveCalls(ctx context.Context, userID uint64) ([]*dto.CallDTO, error)
	ListCallHistory(ctx context.Context, convID, requesterID uint64) ([]*dto.CallDTO, error)
	ListCallEvents(ctx context.Context, callID, requesterID uint64) ([]*dto.CallEventDTO, error)
	ExpireRinging(ctx context.Context, now time.Time) (int, error)
	ICEServers() []webrtc.ICEServer
}

type callServiceImpl struct {
	callRepo    repository.CallRepo
	convRepo    repository.ConversationRepo
	gate        RelationshipGate
	members     MembershipLookup
	dispatcher  Dispatcher
	auditor     CallAuditor
	ringTimeout time.Duration
	attempts    int
	backoff     time.Duration
	iceServers  []webrtc.ICEServer
}

func NewCallService(
	callRepo repository.CallRepo,
	convRepo repository.ConversationRepo,
	gate RelationshipGate,
	members MembershipLookup,
	dispatcher Dispatcher,
	auditor CallAuditor,
	callCfg config.CallConfig,
	rtcCfg config.WebRTCConfig,
) CallService {
	ringTimeout := callCfg.RingTimeoutDuration()
	if ringTimeout <= 0 {
		ringTimeout = 45 * time.Second
	}
	attempts := callCfg.CreateAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := callCfg.BackoffBase()
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &callServiceImpl{
		callRepo:    callRepo,
		convRepo:    convRepo,
		gate:        gate,
		members:     members,
		dispatcher:  dispatcher,
		auditor:     auditor,
		ringTimeout: ringTimeout,
		attempts:    attempts,
		backoff:     backoff,
		iceServers:  rtc.ICEServers(rtcCfg),
	}
}

// InitiateCall 前置条件依次为：会话存在、双方是好友、单聊、双方都是成员、双方都空闲
func (s *callServiceImpl) InitiateCall(ctx context.Context, callerID uint64, req *dto.InitiateCallReq) (*dto.CallDTO, error) {
	if callerID == req.CalleeID {
		return nil, ErrSelfConversation
	}

	conv, err := s.convRepo.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	friends, err := s.gate.AreFriends(ctx, callerID, req.CalleeID)
	if err != nil {
		return nil, err
	}
	if !friends {
		return nil, ErrNotFriends
	}
	if conv.IsGroup() {
		return nil, ErrGroupCallUnsupported
	}
	for _, uid := range []uint64{callerID, req.CalleeID} {
		ok, err := s.members.IsMember(ctx, conv.ID, uid)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotAMember
		}
	}

	if err = validateSDP(webrtc.SDPTypeOffer, req.OfferSDP, req.Type); err != nil {
		return nil, err
	}

	var (
		call *model.Call
		busy uint64
	)
	// 占线检查与建单在同一事务，双方同时互拨可能死锁，整体重试
	err = retryRetryable(ctx, s.attempts, s.backoff, ErrCallRetryExhausted, func() error {
		call = &model.Call{
			ConversationID: conv.ID,
			CallerID:       callerID,
			CalleeID:       req.CalleeID,
			Type:           req.Type,
			Status:         model.CallInitiated,
			OfferSDP:       req.OfferSDP,
			InitiatedAt:    time.Now(),
		}
		var err error
		busy, err = s.callRepo.CreateIfIdle(ctx, call)
		return err
	}, "op", "initiate_call", "conversation_id", conv.ID, "caller_id", callerID, "callee_id", req.CalleeID)
	if err != nil {
		return nil, err
	}
	switch busy {
	case 0:
	case callerID:
		return nil, ErrCallerBusy
	default:
		return nil, ErrCalleeBusy
	}

	s.audit(ctx, call.ID, callerID, auditInitiated, "", model.CallInitiated, string(call.Type))
	out := toCallDTO(call)
	s.dispatcher.Publish(ctx, consts.UserTopic(call.CalleeID, consts.UserTopicIncomingCall), consts.EventIncomingCall, out)
	return out, nil
}

// MarkRinging 被叫收到来电推送后回执，重复回执为空操作
func (s *callServiceImpl) MarkRinging(ctx context.Context, callID, calleeID uint64) (*dto.CallDTO, error) {
	call, err := s.requireCallee(ctx, callID, calleeID)
	if err != nil {
		return nil, err
	}
	if call.Status == model.CallRinging {
		return toCallDTO(call), nil
	}
	if call.Status != model.CallInitiated {
		return nil, stateError(call.Status)
	}

	ok, err := s.callRepo.MarkRinging(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.reloadAfterLostRace(ctx, callID, model.CallRinging)
	}

	call.Status = model.CallRinging
	s.audit(ctx, callID, calleeID, auditRinging, model.CallInitiated, model.CallRinging, "")
	out := toCallDTO(call)
	s.dispatcher.Publish(ctx, consts.UserTopic(call.CallerID, consts.UserTopicCallRinging), consts.EventCallRinging, out)
	return out, nil
}

// AcceptCall 只有合法的 answer 才会进入 CONNECTED
func (s *callServiceImpl) AcceptCall(ctx context.Context, callID, calleeID uint64, answerSDP string) (*dto.CallDTO, error) {
	call, err := s.requireCallee(ctx, callID, calleeID)
	if err != nil {
		return nil, err
	}
	if call.Status != model.CallInitiated && call.Status != model.CallRinging {
		return nil, stateError(call.Status)
	}
	if err = validateSDP(webrtc.SDPTypeAnswer, answerSDP, call.Type); err != nil {
		return nil, err
	}

	now := time.Now()
	ok, err := s.callRepo.Accept(ctx, callID, answerSDP, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.stateErrorAfterLostRace(ctx, callID)
	}

	from := call.Status
	call.Status = model.CallConnected
	call.AnswerSDP = answerSDP
	call.AnsweredAt = &now
	s.audit(ctx, callID, calleeID, auditAccepted, from, model.CallConnected, "")
	out := toCallDTO(call)
	s.dispatcher.Publish(ctx, consts.UserTopic(call.CallerID, consts.UserTopicCallAccepted), consts.EventCallAccepted, out)
	return out, nil
}

// RejectCall 被叫在任意非终态下拒绝
func (s *callServiceImpl) RejectCall(ctx context.Context, callID, calleeID uint64) (*dto.CallDTO, error) {
	call, err := s.requireCallee(ctx, callID, calleeID)
	if err != nil {
		return nil, err
	}
	if call.Status.IsTerminal() {
		return nil, ErrCallFinished
	}

	out, err := s.finish(ctx, call, calleeID, model.CallRejected, model.EndReasonRejected, auditRejected)
	if err != nil {
		return nil, err
	}
	s.dispatcher.Publish(ctx, consts.UserTopic(call.CallerID, consts.UserTopicCallRejected), consts.EventCallRejected, out)
	return out, nil
}

// EndCall 任一方挂断，双方都收到 call-ended
func (s *callServiceImpl) EndCall(ctx context.Context, callID, userID uint64) (*dto.CallDTO, error) {
	call, err := s.requireParticipant(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if call.Status.IsTerminal() {
		return nil, ErrCallFinished
	}

	out, err := s.finish(ctx, call, userID, model.CallEnded, model.EndReasonHangup, auditEnded)
	if err != nil {
		return nil, err
	}
	s.publishEnded(ctx, call, out)
	return out, nil
}

// finish 进入终态后重新读取，拿到库内计算的时长
func (s *callServiceImpl) finish(ctx context.Context, call *model.Call, actorID uint64, to model.CallStatus, reason, auditEvent string) (*dto.CallDTO, error) {
	from := call.Status
	ok, err := s.callRepo.Finish(ctx, call.ID, model.ActiveCallStatuses, to, reason, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCallFinished
	}

	updated, err := s.callRepo.GetCall(ctx, call.ID)
	if err != nil || updated == nil {
		log.WarnContext(ctx, "reload finished call failed", "call_id", call.ID, "err", err)
		updated = call
		updated.Status = to
		updated.EndReason = reason
	}
	s.audit(ctx, call.ID, actorID, auditEvent, from, to, reason)
	return toCallDTO(updated), nil
}

func (s *callServiceImpl) publishEnded(ctx context.Context, call *model.Call, out *dto.CallDTO) {
	for _, uid := range []uint64{call.CallerID, call.CalleeID} {
		s.dispatcher.Publish(ctx, consts.UserTopic(uid, consts.UserTopicCallEnded), consts.EventCallEnded, out)
	}
}

// RelayOffer 重协商 offer，目标由通话记录决定，发送者必须是参与者
func (s *callServiceImpl) RelayOffer(ctx context.Context, callID, senderID uint64, sdp string) error {
	return s.relaySDP(ctx, callID, senderID, sdp, true)
}

func (s *callServiceImpl) RelayAnswer(ctx context.Context, callID, senderID uint64, sdp string) error {
	return s.relaySDP(ctx, callID, senderID, sdp, false)
}

func (s *callServiceImpl) relaySDP(ctx context.Context, callID, senderID uint64, sdp string, offer bool) error {
	call, err := s.requireParticipant(ctx, callID, senderID)
	if err != nil {
		return err
	}
	if call.Status.IsTerminal() {
		return ErrCallFinished
	}

	sdpType, suffix, event, auditEvent := webrtc.SDPTypeAnswer, consts.UserTopicCallAnswer, consts.EventCallAnswer, auditAnswer
	if offer {
		sdpType, suffix, event, auditEvent = webrtc.SDPTypeOffer, consts.UserTopicCallOffer, consts.EventCallOffer, auditOffer
	}
	if err = validateSDP(sdpType, sdp, call.Type); err != nil {
		return err
	}

	ok, err := s.callRepo.UpdateSDP(ctx, callID, offer, sdp)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCallFinished
	}

	peer, _ := call.PeerOf(senderID)
	s.audit(ctx, callID, senderID, auditEvent, "", call.Status, "")
	s.dispatcher.Publish(ctx, consts.UserTopic(peer, suffix), event, &dto.SignalDTO{
		CallID:     callID,
		FromUserID: senderID,
		SDP:        sdp,
	})
	return nil
}

// RelayIceCandidate 不落库也不审计，仅转发
func (s *callServiceImpl) RelayIceCandidate(ctx context.Context, senderID uint64, req *dto.WSIceCandidateReq) error {
	call, err := s.requireParticipant(ctx, req.CallID, senderID)
	if err != nil {
		return err
	}
	if call.Status.IsTerminal() {
		return ErrCallFinished
	}
	if err = rtc.ValidateCandidate(req.Candidate); err != nil {
		return ErrInvalidCandidate
	}

	peer, _ := call.PeerOf(senderID)
	s.dispatcher.Publish(ctx, consts.UserTopic(peer, consts.UserTopicIceCandidate), consts.EventIceCandidate, &dto.IceCandidateDTO{
		CallID:        req.CallID,
		FromUserID:    senderID,
		Candidate:     req.Candidate,
		SDPMid:        req.SDPMid,
		SDPMLineIndex: req.SDPMLineIndex,
	})
	return nil
}

func (s *callServiceImpl) GetCall(ctx context.Context, callID, requesterID uint64) (*dto.CallDTO, error) {
	call, err := s.requireParticipant(ctx, callID, requesterID)
	if err != nil {
		return nil, err
	}
	return toCallDTO(call), nil
}

func (s *callServiceImpl) ListActiveCalls(ctx context.Context, userID uint64) ([]*dto.CallDTO, error) {
	calls, err := s.callRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toCallDTOs(calls), nil
}

// ListCallHistory 会话成员可查看
func (s *callServiceImpl) ListCallHistory(ctx context.Context, convID, requesterID uint64) ([]*dto.CallDTO, error) {
	conv, err := s.convRepo.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	ok, err := s.members.IsMember(ctx, convID, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAMember
	}

	calls, err := s.callRepo.ListByConversation(ctx, convID, callHistoryLimit)
	if err != nil {
		return nil, err
	}
	return toCallDTOs(calls), nil
}

func (s *callServiceImpl) ListCallEvents(ctx context.Context, callID, requesterID uint64) ([]*dto.CallEventDTO, error) {
	if _, err := s.requireParticipant(ctx, callID, requesterID); err != nil {
		return nil, err
	}
	return s.auditor.List(ctx, callID)
}

// ExpireRinging 振铃超时走正常的结束流程，时长为 0
func (s *callServiceImpl) ExpireRinging(ctx context.Context, now time.Time) (int, error) {
	calls, err := s.callRepo.ListPendingBefore(ctx, now.Add(-s.ringTimeout), expireBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, call := range calls {
		ok, err := s.callRepo.Finish(ctx, call.ID, model.PendingCallStatuses, model.CallEnded, model.EndReasonTimeout, now)
		if err != nil {
			log.ErrorContext(ctx, "expire ringing call failed", "call_id", call.ID, "err", err)
			continue
		}
		if !ok {
			// 期间已被接听或挂断
			continue
		}
		expired++

		from := call.Status
		call.Status = model.CallEnded
		call.EndedAt = &now
		call.EndReason = model.EndReasonTimeout
		call.Duration = 0
		s.audit(ctx, call.ID, 0, auditTimeout, from, model.CallEnded, model.EndReasonTimeout)
		s.publishEnded(ctx, call, toCallDTO(call))
	}
	return expired, nil
}

func (s *callServiceImpl) ICEServers() []webrtc.ICEServer {
	return s.iceServers
}

func (s *callServiceImpl) requireParticipant(ctx context.Context, callID, userID uint64) (*model.Call, error) {
	call, err := s.callRepo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, ErrCallNotFound
	}
	if !call.IsParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return call, nil
}

func (s *callServiceImpl) requireCallee(ctx context.Context, callID, calleeID uint64) (*model.Call, error) {
	call, err := s.requireParticipant(ctx, callID, calleeID)
	if err != nil {
		return nil, err
	}
	if call.CalleeID != calleeID {
		return nil, ErrNotCallee
	}
	return call, nil
}

// reloadAfterLostRace 条件更新未命中时，已是目标状态则视为成功
func (s *callServiceImpl) reloadAfterLostRace(ctx context.Context, callID uint64, want model.CallStatus) (*dto.CallDTO, error) {
	call, err := s.callRepo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call == nil {
		return nil, ErrCallNotFound
	}
	if call.Status == want {
		return toCallDTO(call), nil
	}
	return nil, stateError(call.Status)
}

func (s *callServiceImpl) stateErrorAfterLostRace(ctx context.Context, callID uint64) error {
	call, err := s.callRepo.GetCall(ctx, callID)
	if err != nil {
		return err
	}
	if call == nil {
		return ErrCallNotFound
	}
	return stateError(call.Status)
}

func (s *callServiceImpl) audit(ctx context.Context, callID, actorID uint64, event string, from, to model.CallStatus, detail string) {
	s.auditor.Record(ctx, &mongo.CallEvent{
		CallID:     callID,
		ActorID:    actorID,
		Event:      event,
		FromStatus: string(from),
		ToStatus:   string(to),
		Detail:     detail,
	})
}

func stateError(status model.CallStatus) error {
	if status.IsTerminal() {
		return ErrCallFinished
	}
	return ErrCallNotRinging
}

func validateSDP(t webrtc.SDPType, raw string, callType model.CallType) error {
	err := rtc.ValidateSDP(t, raw, callType == model.CallTypeVideo)
	if err == nil {
		return nil
	}
	if errors.Is(err, rtc.ErrMissingMedia) {
		return ErrMediaMismatch
	}
	return ErrInvalidSDP
}

func toCallDTO(c *model.Call) *dto.CallDTO {
	out := &dto.CallDTO{}
	_ = copier.Copy(out, c)
	return out
}

func toCallDTOs(calls []*model.Call) []*dto.CallDTO {
	out := make([]*dto.CallDTO, 0, len(calls))
	for _, c := range calls {
		out = append(out, toCallDTO(c))
	}
	return out
}

package service

import (
	"Parley/internal/api/dto"
	"Parley/internal/model"
	"Parley/internal/pkg/mongo"
	"Parley/internal/repository"
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// memStore 内存版仓储，同时实现会话、消息、通话、关注四个接口
type memStore struct {
	mu sync.Mutex

	convs    map[uint64]*model.Conversation
	members  map[uint64][]uint64
	messages map[uint64]*model.Message
	statuses map[[2]uint64]*model.MessageStatus
	calls    map[uint64]*model.Call
	follows  map[[2]uint64]time.Time
	nextID   uint64

	// 注入故障
	sendConflicts   int
	casConflicts    int
	createConflicts int

	// beforeSend 在下一次 CreateWithStatuses 加锁前执行一次，模拟并发写入
	beforeSend func()
}

func newMemStore() *memStore {
	return &memStore{
		convs:    map[uint64]*model.Conversation{},
		members:  map[uint64][]uint64{},
		messages: map[uint64]*model.Message{},
		statuses: map[[2]uint64]*model.MessageStatus{},
		calls:    map[uint64]*model.Call{},
		follows:  map[[2]uint64]time.Time{},
	}
}

func (m *memStore) id() uint64 {
	m.nextID++
	return m.nextID
}

// befriend 互相关注
func (m *memStore) befriend(a, b uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.follows[[2]uint64{a, b}] = time.Now()
	m.follows[[2]uint64{b, a}] = time.Now()
}

func (m *memStore) addConv(t int8, members ...uint64) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := &model.Conversation{ID: m.id(), Type: t, CreatorID: members[0], CreatedAt: time.Now()}
	if t == 1 {
		key := PeerKey(members[0], members[1])
		conv.PeerKey = &key
	}
	m.convs[conv.ID] = conv
	m.members[conv.ID] = slices.Clone(members)
	return conv.ID
}

// ---------------- ConversationRepo ----------------

func (m *memStore) CreatePrivate(_ context.Context, conv *model.Conversation, userA, userB uint64) (*model.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		if c.PeerKey != nil && *c.PeerKey == *conv.PeerKey {
			cp := *c
			return &cp, false, nil
		}
	}
	conv.ID = m.id()
	conv.CreatedAt = time.Now()
	m.convs[conv.ID] = conv
	m.members[conv.ID] = []uint64{userA, userB}
	cp := *conv
	return &cp, true, nil
}

func (m *memStore) CreateGroup(_ context.Context, conv *model.Conversation, memberIDs []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv.ID = m.id()
	conv.CreatedAt = time.Now()
	m.convs[conv.ID] = conv
	m.members[conv.ID] = slices.Clone(memberIDs)
	return nil
}

func (m *memStore) GetConversation(_ context.Context, convID uint64) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[convID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) GetConversationByPeerKey(_ context.Context, peerKey string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		if c.PeerKey != nil && *c.PeerKey == peerKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListByUser(_ context.Context, userID uint64) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Conversation
	for id, ms := range m.members {
		if slices.Contains(ms, userID) {
			cp := *m.convs[id]
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) Members(_ context.Context, convID uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.members[convID]), nil
}

func (m *memStore) IsMember(_ context.Context, convID uint64, userID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.members[convID], userID), nil
}

func (m *memStore) AddMembers(_ context.Context, convID uint64, userIDs []uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var added []uint64
	for _, uid := range userIDs {
		if !slices.Contains(m.members[convID], uid) {
			m.members[convID] = append(m.members[convID], uid)
			added = append(added, uid)
		}
	}
	return added, nil
}

func (m *memStore) RemoveMember(_ context.Context, convID uint64, userID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.members[convID], userID)
	if i < 0 {
		return false, nil
	}
	m.members[convID] = slices.Delete(m.members[convID], i, i+1)
	return true, nil
}

func (m *memStore) PeersOf(_ context.Context, userID uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint64
	for _, ms := range m.members {
		if !slices.Contains(ms, userID) {
			continue
		}
		for _, uid := range ms {
			if uid != userID && !slices.Contains(out, uid) {
				out = append(out, uid)
			}
		}
	}
	return out, nil
}

// ---------------- MessageRepo ----------------

func (m *memStore) CreateWithStatuses(_ context.Context, msg *model.Message) error {
	if hook := m.beforeSend; hook != nil {
		m.beforeSend = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendConflicts > 0 {
		m.sendConflicts--
		return &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	}
	conv, ok := m.convs[msg.ConversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	conv.MaxMsgSeq++
	msg.Seq = conv.MaxMsgSeq
	msg.ID = m.id()
	cp := *msg
	m.messages[msg.ID] = &cp
	for _, uid := range m.members[msg.ConversationID] {
		if uid == msg.SenderID {
			continue
		}
		m.statuses[[2]uint64{msg.ID, uid}] = &model.MessageStatus{MessageID: msg.ID, UserID: uid, Status: model.StatusSent}
	}
	conv.LastMessageID = msg.ID
	conv.LastSenderID = msg.SenderID
	at := msg.CreatedAt
	conv.LastMessageAt = &at
	return nil
}

func (m *memStore) GetMessage(_ context.Context, msgID uint64) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[msgID]
	if !ok {
		return nil, nil
	}
	cp := *msg
	return &cp, nil
}

func (m *memStore) UpdateContentCAS(_ context.Context, msgID uint64, version uint32, content string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.messages[msgID]
	if m.casConflicts > 0 {
		m.casConflicts--
		msg.Version++
	}
	if msg.Version != version || msg.Deleted {
		return false, nil
	}
	msg.Content = content
	msg.Edited = true
	msg.EditedAt = &at
	msg.Version++
	return true, nil
}

func (m *memStore) TombstoneCAS(_ context.Context, msgID uint64, version uint32, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := m.messages[msgID]
	if msg.Version != version {
		return false, nil
	}
	msg.Deleted = true
	msg.TombstonedAt = &at
	msg.Version++
	return true, nil
}

func (m *memStore) ListVisible(_ context.Context, convID uint64, offset, limit int) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Message
	for _, msg := range m.messages {
		if msg.ConversationID == convID && !msg.Deleted {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (m *memStore) GetStatus(_ context.Context, msgID, userID uint64) (*model.MessageStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[[2]uint64{msgID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) ListStatuses(_ context.Context, msgID uint64) ([]*model.MessageStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MessageStatus
	for k, st := range m.statuses {
		if k[0] == msgID {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memStore) AdvanceStatus(_ context.Context, msgID, userID uint64, target model.DeliveryStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[[2]uint64{msgID, userID}]
	if !ok || st.Status >= target {
		return false, nil
	}
	st.Status = target
	if st.DeliveredAt == nil {
		st.DeliveredAt = &at
	}
	if target == model.StatusRead {
		st.ReadAt = &at
	}
	return true, nil
}

func (m *memStore) SetReaction(_ context.Context, msgID, userID uint64, reaction *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.statuses[[2]uint64{msgID, userID}]; ok {
		st.Reaction = reaction
	}
	return nil
}

// ---------------- CallRepo ----------------

func (m *memStore) busy(userID uint64) bool {
	for _, c := range m.calls {
		if c.IsParticipant(userID) && !c.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// CreateIfIdle 整个检查与创建在同一把锁内
func (m *memStore) CreateIfIdle(_ context.Context, call *model.Call) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createConflicts > 0 {
		m.createConflicts--
		return 0, &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
	}
	for _, uid := range []uint64{call.CallerID, call.CalleeID} {
		if m.busy(uid) {
			return uid, nil
		}
	}
	call.ID = m.id()
	cp := *call
	m.calls[call.ID] = &cp
	return 0, nil
}

func (m *memStore) GetCall(_ context.Context, callID uint64) (*model.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) MarkRinging(_ context.Context, callID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.calls[callID]
	if c.Status != model.CallInitiated {
		return false, nil
	}
	c.Status = model.CallRinging
	return true, nil
}

func (m *memStore) Accept(_ context.Context, callID uint64, answerSDP string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.calls[callID]
	if !slices.Contains(model.PendingCallStatuses, c.Status) {
		return false, nil
	}
	c.Status = model.CallConnected
	c.AnswerSDP = answerSDP
	c.AnsweredAt = &at
	return true, nil
}

func (m *memStore) Finish(_ context.Context, callID uint64, from []model.CallStatus, to model.CallStatus, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.calls[callID]
	if !slices.Contains(from, c.Status) {
		return false, nil
	}
	c.Status = to
	c.EndedAt = &at
	c.EndReason = reason
	if c.AnsweredAt != nil {
		c.Duration = max(int64(at.Sub(*c.AnsweredAt)/time.Second), 0)
	}
	return true, nil
}

func (m *memStore) UpdateSDP(_ context.Context, callID uint64, offer bool, sdp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.calls[callID]
	if c.Status.IsTerminal() {
		return false, nil
	}
	if offer {
		c.OfferSDP = sdp
	} else {
		c.AnswerSDP = sdp
	}
	return true, nil
}

func (m *memStore) ListActiveByUser(_ context.Context, userID uint64) ([]*model.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Call
	for _, c := range m.calls {
		if c.IsParticipant(userID) && !c.Status.IsTerminal() {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListByConversation(_ context.Context, convID uint64, limit int) ([]*model.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Call
	for _, c := range m.calls {
		if c.ConversationID == convID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]*model.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Call
	for _, c := range m.calls {
		if slices.Contains(model.PendingCallStatuses, c.Status) && c.InitiatedAt.Before(before) {
			cp := *c
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------------- UserFollowRepo ----------------

func (m *memStore) GetUserFollow(_ context.Context, userID uint64, followingID uint64) (*model.UserFollow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.follows[[2]uint64{userID, followingID}]
	if !ok {
		return nil, nil
	}
	return &model.UserFollow{FollowerID: userID, FollowingID: followingID, CreatedAt: at}, nil
}

func (m *memStore) CreateUserFollow(_ context.Context, f *model.UserFollow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.follows[[2]uint64{f.FollowerID, f.FollowingID}]; !ok {
		m.follows[[2]uint64{f.FollowerID, f.FollowingID}] = f.CreatedAt
	}
	return nil
}

func (m *memStore) DeleteUserFollow(_ context.Context, f *model.UserFollow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.follows, [2]uint64{f.FollowerID, f.FollowingID})
	return nil
}

func (m *memStore) IsMutual(_ context.Context, a, b uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ab := m.follows[[2]uint64{a, b}]
	_, ba := m.follows[[2]uint64{b, a}]
	return ab && ba, nil
}

func (m *memStore) ListMutual(_ context.Context, userID uint64, limit, offset int) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint64
	for k := range m.follows {
		if k[0] != userID {
			continue
		}
		if _, ok := m.follows[[2]uint64{k[1], userID}]; ok {
			out = append(out, k[1])
		}
	}
	slices.Sort(out)
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

// ---------------- Dispatcher / Auditor ----------------

type published struct {
	Topic string
	Event string
	Data  any
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []published
}

func (d *recordingDispatcher) Publish(_ context.Context, topic string, event string, data any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, published{Topic: topic, Event: event, Data: data})
}

func (d *recordingDispatcher) Close() {}

// on 指定主题上收到的事件名
func (d *recordingDispatcher) on(topic string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, e := range d.events {
		if e.Topic == topic {
			out = append(out, e.Event)
		}
	}
	return out
}

func (d *recordingDispatcher) last() published {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events[len(d.events)-1]
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

type memAuditor struct {
	mu     sync.Mutex
	events []*mongo.CallEvent
}

func (a *memAuditor) Record(_ context.Context, e *mongo.CallEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *memAuditor) List(_ context.Context, callID uint64) ([]*dto.CallEventDTO, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []*dto.CallEventDTO{}
	for _, e := range a.events {
		if e.CallID == callID {
			out = append(out, &dto.CallEventDTO{CallID: e.CallID, ActorID: e.ActorID, Event: e.Event, FromStatus: e.FromStatus, ToStatus: e.ToStatus, Detail: e.Detail})
		}
	}
	return out, nil
}

func (a *memAuditor) Close() {}

// staticGate 固定返回值的关系校验
type staticGate struct {
	friends bool
	err     error
}

func (g staticGate) AreFriends(context.Context, uint64, uint64) (bool, error) {
	return g.friends, g.err
}

func buildSDP(media ...string) string {
	lines := []string{
		"v=0",
		"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
	}
	for i, m := range media {
		pt, codec := "111", "opus/48000/2"
		if m == "video" {
			pt, codec = "96", "VP8/90000"
		}
		lines = append(lines,
			"m="+m+" 9 UDP/TLS/RTP/SAVPF "+pt,
			"c=IN IP4 0.0.0.0",
			"a=mid:"+string(rune('0'+i)),
			"a=sendrecv",
			"a=rtpmap:"+pt+" "+codec,
		)
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

var (
	_ repository.ConversationRepo = (*memStore)(nil)
	_ repository.MessageRepo      = (*memStore)(nil)
	_ repository.CallRepo         = (*memStore)(nil)
	_ repository.UserFollowRepo   = (*memStore)(nil)
)

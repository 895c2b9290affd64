package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	Conflict            = 409
	UnprocessableEntity = 422
	InternalServerError = 500
	ServiceUnavailable  = 503
)

// 错误类别，具体错误通过 %w 归入其中一类
var (
	ErrParamInvalid    = errors.New("参数错误")
	ErrUnauthenticated = errors.New("未登录或登录已过期")
	ErrForbidden       = errors.New("权限不足")
	ErrNotFound        = errors.New("资源不存在")
	ErrInvalidState    = errors.New("当前状态不允许该操作")
	ErrConflict        = errors.New("资源冲突")
	ErrTransient       = errors.New("系统繁忙，请稍后重试")
	UnExpectedError    = errors.New("系统异常，请稍后重试")
)

var (
	ErrConversationNotFound = kindError(ErrNotFound, "会话不存在")
	ErrMessageNotFound      = kindError(ErrNotFound, "消息不存在")
	ErrCallNotFound         = kindError(ErrNotFound, "通话不存在")
	ErrReplyNotFound        = kindError(ErrNotFound, "引用的消息不存在")

	ErrNotAMember       = kindError(ErrForbidden, "不是会话成员")
	ErrNotSender        = kindError(ErrForbidden, "只有发送者可以修改消息")
	ErrNotRecipient     = kindError(ErrForbidden, "不是消息接收者")
	ErrNotParticipant   = kindError(ErrForbidden, "不是通话参与者")
	ErrNotCallee        = kindError(ErrForbidden, "只有被叫方可以执行该操作")
	ErrNotFriends       = kindError(ErrForbidden, "双方不是好友")
	ErrSelfConversation = kindError(ErrParamInvalid, "不能以自己为对象")
	ErrInvalidSDP       = kindError(ErrParamInvalid, "SDP 格式错误")
	ErrInvalidCandidate = kindError(ErrParamInvalid, "ICE candidate 格式错误")
	ErrMediaMismatch    = kindError(ErrParamInvalid, "SDP 缺少通话类型对应的媒体")

	ErrGroupCallUnsupported = kindError(ErrInvalidState, "群聊不支持通话")
	ErrNotGroup             = kindError(ErrInvalidState, "仅群聊支持该操作")
	ErrCallNotRinging       = kindError(ErrInvalidState, "通话已接通或已结束")
	ErrCallFinished         = kindError(ErrInvalidState, "通话已结束")
	ErrMessageDeleted       = kindError(ErrInvalidState, "消息已删除")

	ErrCallerBusy = kindError(ErrConflict, "主叫方正在通话中")
	ErrCalleeBusy = kindError(ErrConflict, "被叫方正在通话中")

	ErrSendRetryExhausted = kindError(ErrTransient, "消息发送冲突重试次数耗尽")
	ErrCallRetryExhausted = kindError(ErrTransient, "发起通话冲突重试次数耗尽")
	ErrEditConflict       = kindError(ErrTransient, "消息已被并发修改")
	ErrGateUnavailable    = kindError(ErrTransient, "成员服务不可用")
	ErrSearchUnavailable  = kindError(ErrTransient, "检索服务不可用")
)

// KindError 具体错误，Error() 只返回面向用户的描述，errors.Is 可匹配到类别
type KindError struct {
	Msg  string
	Kind error
}

func (e *KindError) Error() string { return e.Msg }

func (e *KindError) Unwrap() error { return e.Kind }

func kindError(kind error, msg string) error {
	return &KindError{Msg: msg, Kind: kind}
}

// ErrorMap 错误类别到业务码
var ErrorMap = map[error]int{
	ErrParamInvalid:    BadRequest,
	ErrUnauthenticated: Unauthorized,
	ErrForbidden:       Forbidden,
	ErrNotFound:        NotFound,
	ErrConflict:        Conflict,
	ErrInvalidState:    UnprocessableEntity,
	ErrTransient:       ServiceUnavailable,
	UnExpectedError:    InternalServerError,
}

// CodeOf 按类别查找业务码，未归类的错误返回 false
func CodeOf(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	if code, ok := ErrorMap[err]; ok {
		return code, true
	}
	for kind, code := range ErrorMap {
		if errors.Is(err, kind) {
			return code, true
		}
	}
	return InternalServerError, false
}

package chat

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid     = errors.New("参数错误")
	ErrPeerRequired     = errors.New("缺少会话对象")
	ErrIdentityMissing  = errors.New("缺少身份信息")
	ErrServerURLMissing = errors.New("缺少服务端地址")
	ErrSendFailed       = errors.New("消息发送失败，请稍后重试")
	ErrSendTimeout      = errors.New("发送超时，请检查网络")
	ErrHistoryFailed    = errors.New("历史消息拉取失败")
	ErrDeliveryFailed   = errors.New("投递回执上报失败")
	UnExpectedError     = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:     BadRequest,
	ErrPeerRequired:     BadRequest,
	ErrIdentityMissing:  Unauthorized,
	ErrServerURLMissing: BadRequest,
	ErrSendFailed:       InternalServerError,
	ErrSendTimeout:      InternalServerError,
	ErrHistoryFailed:    InternalServerError,
	ErrDeliveryFailed:   InternalServerError,
	UnExpectedError:     InternalServerError,
}

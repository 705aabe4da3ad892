package domain

import "errors"

// 领域错误，各层通过 errors.Is 判定。
var (
	ErrParse            = errors.New("payload could not be parsed")
	ErrDomainMismatch   = errors.New("recipient domain not served")
	ErrMailboxNotFound  = errors.New("mailbox not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidUsername  = errors.New("invalid username format")
)

package room

import (
	"errors"

	"github.com/wfunc/partygame/game"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/ratelimit"
)

var (
	ErrRoomClosed = errors.New("room closed")
	ErrRoomBusy   = errors.New("room inbox full")
	ErrForbidden  = errors.New("admin role required")
	ErrNotJoined  = errors.New("not in a room")
)

// 错误码，发给客户端的 error.code
const (
	CodeInvalidMessage       = "invalid_message"
	CodeForbidden            = "forbidden"
	CodeRateLimited          = "rate_limited"
	CodeTableAlreadyAnswered = "table_already_answered"
	CodeTableRequired        = "table_required"
	CodeQuizNotFound         = "quiz_not_found"
	CodeAllQuizzesRevealed   = "all_quizzes_revealed"
	CodeQuizAlreadyRevealed  = "quiz_already_revealed"
	CodeNotEligible          = "not_eligible"
	CodeNotJoined            = "not_joined"
	CodeIgnored              = "ignored"
	CodeBusy                 = "busy"
	CodeInternal             = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{network.ErrInvalidMessage, CodeInvalidMessage},
	{ErrForbidden, CodeForbidden},
	{ratelimit.ErrRateLimited, CodeRateLimited},
	{game.ErrTableAlreadyAnswered, CodeTableAlreadyAnswered},
	{game.ErrTableRequired, CodeTableRequired},
	{game.ErrQuizNotFound, CodeQuizNotFound},
	{game.ErrAllQuizzesRevealed, CodeAllQuizzesRevealed},
	{game.ErrQuizAlreadyRevealed, CodeQuizAlreadyRevealed},
	{game.ErrNotEligible, CodeNotEligible},
	{game.ErrUnsupportedEvent, CodeInvalidMessage},
	{ErrRoomBusy, CodeBusy},
	{ErrNotJoined, CodeNotJoined},
}

// ErrorCode maps an error to the code sent to clients.
func ErrorCode(err error) string {
	if game.Silent(err) {
		return CodeIgnored
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// NewErrorMessage builds the error event for err.
func NewErrorMessage(err error) network.ErrorMessage {
	msg := network.ErrorMessage{
		Code:    ErrorCode(err),
		Message: err.Error(),
	}
	var rl *ratelimit.Error
	if errors.As(err, &rl) {
		msg.RetryAfterMs = rl.RetryAfterMs()
	}
	if msg.Code == CodeInternal {
		msg.Message = "internal error"
	}
	return msg
}

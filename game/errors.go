package game

import "errors"

// Preconditions that were not met. The room drops these without telling anyone.
var (
	ErrWrongMode         = errors.New("event not accepted in current mode")
	ErrUnknownPlayer     = errors.New("connection has no player, send hello first")
	ErrNoActiveQuiz      = errors.New("no matching active quiz")
	ErrQuizClosed        = errors.New("quiz is closed")
	ErrDeadlinePassed    = errors.New("quiz deadline passed")
	ErrNoEligiblePlayers = errors.New("no eligible players for lottery kind")
)

// Errors reported back to whoever sent the event.
var (
	ErrTableAlreadyAnswered = errors.New("table already answered")
	ErrTableRequired        = errors.New("table number required")
	ErrQuizNotFound         = errors.New("quiz not found")
	ErrAllQuizzesRevealed   = errors.New("all quizzes revealed")
	ErrQuizAlreadyRevealed  = errors.New("quiz already revealed")
	ErrNotEligible          = errors.New("player not eligible for this quiz")
	ErrUnsupportedEvent     = errors.New("event not handled by room engine")
)

var silent = []error{
	ErrWrongMode,
	ErrUnknownPlayer,
	ErrNoActiveQuiz,
	ErrQuizClosed,
	ErrDeadlinePassed,
	ErrNoEligiblePlayers,
}

// Silent reports whether err is an unmet precondition that should be ignored.
func Silent(err error) bool {
	for _, s := range silent {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}

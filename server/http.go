package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/partygame/auth"
	"github.com/wfunc/partygame/room"
)

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

type eventRequest struct {
	Type string          `json:"type" binding:"required"`
	Data json.RawMessage `json:"data"`
}

var statusByCode = map[string]int{
	room.CodeInvalidMessage:       http.StatusBadRequest,
	room.CodeForbidden:            http.StatusForbidden,
	room.CodeQuizNotFound:         http.StatusNotFound,
	room.CodeAllQuizzesRevealed:   http.StatusConflict,
	room.CodeQuizAlreadyRevealed:  http.StatusConflict,
	room.CodeTableAlreadyAnswered: http.StatusConflict,
	room.CodeTableRequired:        http.StatusConflict,
	room.CodeNotEligible:          http.StatusConflict,
	room.CodeIgnored:              http.StatusConflict,
	room.CodeRateLimited:          http.StatusTooManyRequests,
	room.CodeBusy:                 http.StatusServiceUnavailable,
}

func (s *GameServer) handleHealth(c *gin.Context) {
	OK(c, gin.H{
		"rooms":       s.roomService.RoomCount(),
		"connections": s.opts.Sessions.Count(),
	})
}

// handleLogin POST /api/auth/login
func (s *GameServer) handleLogin(c *gin.Context) {
	if s.opts.Auth == nil {
		ServiceUnavailable(c, "auth disabled")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	token, err := s.opts.Auth.Login(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			Unauthorized(c, "invalid credentials")
			return
		}
		s.logger.Error("issue token", zap.Error(err))
		Fail(c, http.StatusInternalServerError, room.CodeInternal, "internal error")
		return
	}
	OK(c, gin.H{"token": token})
}

// handleRoomState GET /api/rooms/:id/state
func (s *GameServer) handleRoomState(c *gin.Context) {
	state, err := s.roomService.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	OK(c, state)
}

// handleRoomSnapshot GET /api/rooms/:id/snapshot
func (s *GameServer) handleRoomSnapshot(c *gin.Context) {
	snap, err := s.roomService.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	OK(c, snap)
}

// handleRoomEvent POST /api/rooms/:id/events
func (s *GameServer) handleRoomEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, room.CodeInvalidMessage, "invalid request: "+err.Error())
		return
	}
	if err := s.roomService.Dispatch(c.Request.Context(), c.Param("id"), req.Type, req.Data); err != nil {
		s.fail(c, err)
		return
	}
	OK(c, gin.H{"type": req.Type})
}

func (s *GameServer) fail(c *gin.Context, err error) {
	msg := room.NewErrorMessage(err)
	status, ok := statusByCode[msg.Code]
	if !ok {
		status = http.StatusInternalServerError
		s.logger.Error("room request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	if msg.RetryAfterMs > 0 {
		c.Header("Retry-After-Ms", strconv.FormatInt(msg.RetryAfterMs, 10))
	}
	Fail(c, status, msg.Code, msg.Message)
}

package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wfunc/partygame/broadcast"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/room"
	"github.com/wfunc/partygame/session"
)

const leaveTimeout = 2 * time.Second

// handleWebSocket GET /ws?room=<id>&role=player|admin&token=<jwt>
func (s *GameServer) handleWebSocket(c *gin.Context) {
	roomID := c.DefaultQuery("room", room.DefaultRoomID)
	role := session.Role(c.DefaultQuery("role", string(session.RolePlayer)))
	if role != session.RolePlayer && role != session.RoleAdmin {
		BadRequest(c, "invalid role")
		return
	}
	if role == session.RoleAdmin && s.opts.Auth != nil && !s.opts.Auth.IsAdmin(c.Query("token")) {
		Unauthorized(c, "admin token required")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Info("failed to upgrade connection", zap.Error(err))
		return
	}
	s.handleConnection(network.NewWSConnection(conn), roomID, role)
}

func (s *GameServer) handleConnection(conn network.Connection, roomID string, role session.Role) {
	conn.SetHeartbeat(s.opts.Heartbeat)
	sess := session.NewSession(uuid.New().String(), conn, role)
	s.opts.Sessions.Add(sess)
	s.opts.Metrics.IncOnlinePlayers()

	log := s.logger.With(zap.String("session", sess.GetID()))
	log.Info("new connection", zap.Stringer("remote", conn.RemoteAddr()), zap.String("role", string(role)))

	done := make(chan struct{})
	defer func() {
		close(done)
		s.leave(sess)
		s.opts.Sessions.Remove(sess.GetID())
		s.opts.Metrics.DecOnlinePlayers()
		conn.Close()
		log.Info("connection closed", zap.Duration("idle", time.Since(sess.LastActive())))
	}()

	go s.pingLoop(sess, done)

	if err := s.join(sess, roomID); err != nil {
		log.Warn("join room failed", zap.String("room", roomID), zap.Error(err))
		return
	}

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sess.Touch()
		s.handleFrame(sess, raw)
	}
}

func (s *GameServer) handleFrame(sess *session.Session, raw []byte) {
	ev, err := network.DecodeBytes(raw)
	if err != nil {
		s.sendError(sess, err)
		return
	}

	switch ev := ev.(type) {
	case *network.RoomJoin:
		if ev.RoomID == sess.RoomID() {
			return
		}
		s.leave(sess)
		if err := s.join(sess, ev.RoomID); err != nil {
			s.sendError(sess, err)
		}
		return
	case *network.RoomLeave:
		if sess.RoomID() == "" {
			s.sendError(sess, room.ErrNotJoined)
			return
		}
		s.leave(sess)
		return
	}

	if sess.RoomID() == "" {
		s.sendError(sess, room.ErrNotJoined)
		return
	}
	r := s.opts.Rooms.GetOrCreate(s.ctx, sess.RoomID())
	if err := r.Submit(sess.GetID(), sess.IsAdmin(), ev); err != nil {
		s.sendError(sess, err)
	}
}

// join 先记录房间再订阅，保证房间回发的 state:update 能找到这个连接
func (s *GameServer) join(sess *session.Session, roomID string) error {
	if roomID == "" {
		roomID = room.DefaultRoomID
	}
	r := s.opts.Rooms.GetOrCreate(s.ctx, roomID)
	sess.SetRoomID(roomID)
	return r.Join(s.ctx, sess.GetID())
}

func (s *GameServer) leave(sess *session.Session) {
	roomID := sess.RoomID()
	if roomID == "" {
		return
	}
	sess.SetRoomID("")
	s.leaveRoom(roomID, sess.GetID())
}

// leaveRoom 房间已经关闭时什么都不做
func (s *GameServer) leaveRoom(roomID, clientID string) {
	r, ok := s.opts.Rooms.GetRoom(roomID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := r.Leave(ctx, clientID); err != nil {
		s.logger.Debug("leave room", zap.String("room", roomID), zap.String("client", clientID), zap.Error(err))
	}
}

func (s *GameServer) pingLoop(sess *session.Session, done <-chan struct{}) {
	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sess.Conn.Ping(); err != nil {
				// 写失败说明连接已断开，关闭后读循环退出
				sess.Close()
				return
			}
		}
	}
}

func (s *GameServer) sendError(sess *session.Session, err error) {
	msg := room.NewErrorMessage(err)
	s.opts.Metrics.IncRejected(msg.Code)
	data, encErr := network.Encode(msg)
	if encErr != nil {
		return
	}
	if sendErr := sess.Send(data); sendErr != nil {
		s.logger.Debug("send error message", zap.String("session", sess.GetID()), zap.Error(sendErr))
	}
}

// handleRedisInbound 处理 redis 通道上来的客户端事件，和 websocket 走同一个房间入口。
// room:join 订阅 data.roomId，之后房间通过 party:client:<id> 回发；其他事件投递到消息里的 roomId
func (s *GameServer) handleRedisInbound(ctx context.Context, m broadcast.InboundMessage) {
	ev, err := network.Decode(m.Envelope())
	if err == nil {
		switch ev := ev.(type) {
		case *network.RoomJoin:
			err = s.joinRemote(ctx, m.ClientID, ev.RoomID)
		case *network.RoomLeave:
			if !s.leaveRemote(m.ClientID) {
				err = room.ErrNotJoined
			}
		default:
			r := s.opts.Rooms.GetOrCreate(ctx, m.RoomID)
			err = r.Submit(m.ClientID, m.Role == string(session.RoleAdmin), ev)
		}
	}
	if err == nil {
		return
	}

	msg := room.NewErrorMessage(err)
	s.opts.Metrics.IncRejected(msg.Code)
	if sendErr := s.opts.Redis.SendTo(m.RoomID, m.ClientID, msg); sendErr != nil {
		s.logger.Debug("redis reply", zap.String("client", m.ClientID), zap.Error(sendErr))
	}
}

// joinRemote 切换 redis 客户端订阅的房间。重复 join 同一个房间会再收到一次 state:update
func (s *GameServer) joinRemote(ctx context.Context, clientID, roomID string) error {
	s.remoteMu.Lock()
	prev := s.remoteRooms[clientID]
	s.remoteRooms[clientID] = roomID
	s.remoteMu.Unlock()

	if prev != "" && prev != roomID {
		s.leaveRoom(prev, clientID)
	}
	return s.opts.Rooms.GetOrCreate(ctx, roomID).Join(ctx, clientID)
}

// leaveRemote 返回 false 表示这个客户端没有订阅任何房间
func (s *GameServer) leaveRemote(clientID string) bool {
	s.remoteMu.Lock()
	roomID, ok := s.remoteRooms[clientID]
	delete(s.remoteRooms, clientID)
	s.remoteMu.Unlock()

	if ok {
		s.leaveRoom(roomID, clientID)
	}
	return ok
}

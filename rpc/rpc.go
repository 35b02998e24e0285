package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/partygame/logger"
	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/room"
	"github.com/wfunc/partygame/services"
)

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer listens on addr and registers the room service.
func NewServer(addr string, rooms *services.RoomService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("RoomService", NewRoomService(rooms)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		server:   srv,
	}, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests. It returns after Stop.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomService is the struct that exposes RPC methods.
// Methods follow the net/rpc signature: exported args, pointer reply, error return.
type RoomService struct {
	rooms *services.RoomService
}

func NewRoomService(rooms *services.RoomService) *RoomService {
	return &RoomService{rooms: rooms}
}

type SnapshotArgs struct {
	RoomID string
}

type SnapshotReply struct {
	Snapshot models.RoomSnapshot
	State    network.StateUpdate
}

// Snapshot returns the persisted view and the live state:update of a room.
func (rs *RoomService) Snapshot(args *SnapshotArgs, reply *SnapshotReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	snap, err := rs.rooms.Snapshot(ctx, args.RoomID)
	if err != nil {
		return err
	}
	state, err := rs.rooms.State(ctx, args.RoomID)
	if err != nil {
		return err
	}
	reply.Snapshot = *snap
	reply.State = state
	return nil
}

type DispatchArgs struct {
	RoomID string
	Type   string
	Data   json.RawMessage
}

// DispatchReply Code 为空表示成功，否则是和 websocket error 相同的错误码
type DispatchReply struct {
	Code         string
	Message      string
	RetryAfterMs int64
}

// Dispatch sends one admin event to a room.
func (rs *RoomService) Dispatch(args *DispatchArgs, reply *DispatchReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	err := rs.rooms.Dispatch(ctx, args.RoomID, args.Type, args.Data)
	if err == nil {
		return nil
	}
	msg := room.NewErrorMessage(err)
	if msg.Code == room.CodeInternal {
		return err
	}
	reply.Code = msg.Code
	reply.Message = msg.Message
	reply.RetryAfterMs = msg.RetryAfterMs
	return nil
}

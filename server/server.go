package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/partygame/auth"
	"github.com/wfunc/partygame/broadcast"
	"github.com/wfunc/partygame/monitor"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/room"
	partyrpc "github.com/wfunc/partygame/rpc"
	"github.com/wfunc/partygame/services"
	"github.com/wfunc/partygame/session"
)

const (
	defaultHeartbeat = 30 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Channel 是服务端用到的 redis 通道：消费客户端事件并单独回复
type Channel interface {
	Consume(ctx context.Context, handler func(ctx context.Context, m broadcast.InboundMessage)) error
	SendTo(roomID, clientID string, msg network.Outbound) error
}

type Options struct {
	HTTPAddress    string
	RPCAddress     string
	AllowedOrigins string

	Rooms    *room.Manager
	Sessions *session.Manager
	// Auth nil 表示不校验主持人身份，只适合封闭的局域网
	Auth *auth.Authenticator
	// Redis nil 表示不启用 redis 通道
	Redis     Channel
	Metrics   *monitor.Metrics
	Logger    *zap.Logger
	Heartbeat time.Duration
}

type GameServer struct {
	opts        Options
	upgrader    websocket.Upgrader
	roomService *services.RoomService
	httpServer  *http.Server
	rpcServer   *partyrpc.Server
	logger      *zap.Logger

	// redis 客户端当前订阅的房间，clientID -> roomID
	remoteRooms map[string]string
	remoteMu    sync.Mutex

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

func NewGameServer(opts Options) *GameServer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &GameServer{
		opts:        opts,
		roomService: services.NewRoomService(opts.Rooms),
		logger:      opts.Logger,
		remoteRooms: make(map[string]string),
		ctx:         ctx,
		cancel:      cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originAllowed(opts.AllowedOrigins),
		},
	}
	s.httpServer = &http.Server{
		Addr:              opts.HTTPAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start 启动 HTTP、RPC 和 redis 消费者，ctx 取消或任一组件出错时全部退出
func (s *GameServer) Start(ctx context.Context) error {
	if s.opts.RPCAddress != "" {
		rpcServer, err := partyrpc.NewServer(s.opts.RPCAddress, s.roomService)
		if err != nil {
			return err
		}
		s.rpcServer = rpcServer
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("game server listening", zap.String("addr", s.opts.HTTPAddress))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if s.rpcServer != nil {
		g.Go(func() error {
			s.rpcServer.Start()
			return nil
		})
	}

	if s.opts.Redis != nil {
		g.Go(func() error {
			return s.opts.Redis.Consume(gctx, s.handleRedisInbound)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.Shutdown()
		return nil
	})

	return g.Wait()
}

// Shutdown 关闭监听，断开所有连接，房间保存快照后退出
func (s *GameServer) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down game server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		s.cancel()
		s.opts.Sessions.CloseAll()
		s.opts.Rooms.Shutdown()
	})
}

// Handler 返回 gin 路由，测试里直接用
func (s *GameServer) Handler() http.Handler {
	return s.routes()
}

func (s *GameServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Logger(s.logger), CORS(s.opts.AllowedOrigins))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	r.GET("/ws", s.handleWebSocket)

	api := r.Group("/api")
	api.POST("/auth/login", s.handleLogin)

	rooms := api.Group("/rooms")
	rooms.GET("/:id/state", s.handleRoomState)

	admin := rooms.Group("")
	if s.opts.Auth != nil {
		admin.Use(JWT(s.opts.Auth.JWT()), RequireRole(auth.RoleAdmin))
	}
	admin.GET("/:id/snapshot", s.handleRoomSnapshot)
	admin.POST("/:id/events", s.handleRoomEvent)

	return r
}

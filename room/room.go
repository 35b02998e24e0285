// room/room.go
package room

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/partygame/game"
	"github.com/wfunc/partygame/models"
	"github.com/wfunc/partygame/monitor"
	"github.com/wfunc/partygame/network"
	"github.com/wfunc/partygame/persistence"
)

// DefaultRoomID 未指定房间时使用
const DefaultRoomID = "default"

// Options 创建房间所需的依赖，由 Manager 统一持有
type Options struct {
	// Engine is the template config. Rand is replaced per room by NewRand.
	Engine      game.Config
	NewRand     func() *rand.Rand
	Store       persistence.Store
	Broadcaster Broadcaster
	Metrics     *monitor.Metrics
	Logger      *zap.Logger

	TickInterval time.Duration
	SaveInterval time.Duration
	InboxSize    int
}

func (o *Options) setDefaults() {
	if o.NewRand == nil {
		o.NewRand = func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 100 * time.Millisecond
	}
	if o.SaveInterval <= 0 {
		o.SaveInterval = 2 * time.Second
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 256
	}
}

// 房间 inbox 消息
type msg interface{ isRoomMsg() }

type eventMsg struct {
	clientID string
	admin    bool
	event    network.Inbound
	received time.Time
	reply    chan error
}

type joinMsg struct{ clientID string }

type leaveMsg struct{ clientID string }

type stateMsg struct{ reply chan network.StateUpdate }

type snapshotMsg struct{ reply chan *models.RoomSnapshot }

func (eventMsg) isRoomMsg()    {}
func (joinMsg) isRoomMsg()     {}
func (leaveMsg) isRoomMsg()    {}
func (stateMsg) isRoomMsg()    {}
func (snapshotMsg) isRoomMsg() {}

// Room 是一个房间的 actor，所有状态只在 loop goroutine 里修改
type Room struct {
	ID string

	engine *game.Engine
	opts   Options
	log    *zap.Logger
	inbox  chan msg

	dirty    bool
	lastSave time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRoom 创建房间并启动主循环。snap 不为 nil 时从快照恢复
func NewRoom(parent context.Context, id string, snap *models.RoomSnapshot, opts Options) *Room {
	opts.setDefaults()

	cfg := opts.Engine
	cfg.Rand = opts.NewRand()
	engine := game.NewEngine(id, cfg)
	if snap != nil {
		engine.Restore(snap)
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		ID:       id,
		engine:   engine,
		opts:     opts,
		log:      opts.Logger.With(zap.String("room", id)),
		inbox:    make(chan msg, opts.InboxSize),
		lastSave: engine.Now(),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go r.loop()
	return r
}

// GetID 返回房间ID
func (r *Room) GetID() string {
	return r.ID
}

// Submit 投递事件后立即返回，inbox 满时返回 ErrRoomBusy
func (r *Room) Submit(clientID string, admin bool, ev network.Inbound) error {
	return r.offer(eventMsg{clientID: clientID, admin: admin, event: ev, received: time.Now()})
}

// Dispatch 投递事件并等待处理结果
func (r *Room) Dispatch(ctx context.Context, clientID string, admin bool, ev network.Inbound) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, eventMsg{clientID: clientID, admin: admin, event: ev, received: time.Now(), reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join 订阅房间，房间会立即给这个连接发一条 state:update
func (r *Room) Join(ctx context.Context, clientID string) error {
	return r.send(ctx, joinMsg{clientID: clientID})
}

// Leave 取消订阅，玩家和连接解绑
func (r *Room) Leave(ctx context.Context, clientID string) error {
	return r.send(ctx, leaveMsg{clientID: clientID})
}

// State 当前的 state:update
func (r *Room) State(ctx context.Context) (network.StateUpdate, error) {
	reply := make(chan network.StateUpdate, 1)
	if err := r.send(ctx, stateMsg{reply: reply}); err != nil {
		return network.StateUpdate{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return network.StateUpdate{}, ErrRoomClosed
	case <-ctx.Done():
		return network.StateUpdate{}, ctx.Err()
	}
}

// Snapshot 可持久化部分的拷贝
func (r *Room) Snapshot(ctx context.Context) (*models.RoomSnapshot, error) {
	reply := make(chan *models.RoomSnapshot, 1)
	if err := r.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 关闭房间，停止主循环并保存最后一次快照
func (r *Room) Close() {
	r.cancel()
	<-r.done
}

// Done 房间主循环退出后关闭
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) offer(m msg) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	select {
	case r.inbox <- m:
		return nil
	default:
		return ErrRoomBusy
	}
}

func (r *Room) send(ctx context.Context, m msg) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop 是房间的主循环，处理 inbox 并定时驱动倒计时
func (r *Room) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			r.flush()
			return

		case m := <-r.inbox:
			r.handle(m)

		case <-ticker.C:
			r.update()
		}
	}
}

func (r *Room) handle(m msg) {
	switch m := m.(type) {
	case eventMsg:
		err := r.apply(m)
		if m.reply != nil {
			m.reply <- err
		}
		r.opts.Metrics.ObserveMessageLatency(m.event.EventType(), time.Since(m.received))

	case joinMsg:
		r.sendTo(m.clientID, r.engine.State())

	case leaveMsg:
		r.emit(m.clientID, r.engine.Disconnect(m.clientID))

	case stateMsg:
		m.reply <- r.engine.State()

	case snapshotMsg:
		m.reply <- r.engine.Snapshot()
	}
}

func (r *Room) apply(m eventMsg) error {
	eventType := m.event.EventType()
	r.opts.Metrics.IncMessagesReceived(eventType)

	if network.IsAdminEvent(eventType) && !m.admin {
		r.reject(m.clientID, eventType, ErrForbidden)
		return ErrForbidden
	}

	out, err := r.engine.Handle(r.ctx, m.clientID, m.event)
	if err != nil {
		r.reject(m.clientID, eventType, err)
		return err
	}
	r.emit(m.clientID, out)
	return nil
}

// emit 先变更后广播，广播失败不回滚
func (r *Room) emit(clientID string, out game.Output) {
	for _, b := range out.Broadcasts {
		if r.opts.Broadcaster == nil {
			break
		}
		if err := r.opts.Broadcaster.Broadcast(r.ID, b); err != nil {
			r.log.Warn("broadcast failed", zap.String("type", b.EventType()), zap.Error(err))
			continue
		}
		r.opts.Metrics.IncBroadcasts()
	}
	for _, reply := range out.Replies {
		r.sendTo(clientID, reply)
	}
	if out.Changed {
		r.dirty = true
	}
}

func (r *Room) reject(clientID, eventType string, err error) {
	if game.Silent(err) {
		r.log.Debug("event ignored",
			zap.String("client", clientID),
			zap.String("type", eventType),
			zap.Error(err))
		return
	}

	msg := NewErrorMessage(err)
	r.opts.Metrics.IncRejected(msg.Code)
	if msg.Code == CodeInternal {
		r.log.Error("event failed", zap.String("client", clientID), zap.String("type", eventType), zap.Error(err))
	} else {
		r.log.Info("event rejected", zap.String("client", clientID), zap.String("type", eventType), zap.String("code", msg.Code))
	}
	r.sendTo(clientID, msg)
}

func (r *Room) sendTo(clientID string, m network.Outbound) {
	if clientID == "" || r.opts.Broadcaster == nil {
		return
	}
	if err := r.opts.Broadcaster.SendTo(r.ID, clientID, m); err != nil {
		r.log.Debug("send failed", zap.String("client", clientID), zap.String("type", m.EventType()), zap.Error(err))
	}
}

// update 由主循环定时调用，倒计时到期后自动结束并广播
func (r *Room) update() {
	now := r.engine.Now()
	if r.engine.Tick(now) {
		r.emit("", game.Output{
			Broadcasts: []network.Outbound{r.engine.State()},
			Changed:    true,
		})
	}
	if r.dirty && now.Sub(r.lastSave) >= r.opts.SaveInterval {
		r.save()
	}
}

func (r *Room) save() {
	if r.opts.Store == nil {
		r.dirty = false
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.lastSave = r.engine.Now()
	if err := r.opts.Store.SaveRoom(ctx, r.engine.Snapshot()); err != nil {
		r.log.Error("save room failed", zap.Error(err))
		return
	}
	r.dirty = false
}

func (r *Room) flush() {
	if r.dirty {
		r.save()
	}
}

// --- 房间管理器 ---

// Manager 管理所有房间
type Manager struct {
	rooms   map[string]*Room
	loading map[string]chan struct{}
	mutex   sync.Mutex
	opts    Options
	ctx     context.Context
}

// NewRoomManager 创建一个新的房间管理器，ctx 取消时所有房间退出
func NewRoomManager(ctx context.Context, opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		rooms:   make(map[string]*Room),
		loading: make(map[string]chan struct{}),
		opts:    opts,
		ctx:     ctx,
	}
}

// GetOrCreate 返回已有房间，没有则创建。存储里有快照时从快照恢复，读取失败则用新房间。
// 读取快照时不持有锁，同一个房间只读取一次
func (m *Manager) GetOrCreate(ctx context.Context, id string) *Room {
	if id == "" {
		id = DefaultRoomID
	}

	for {
		m.mutex.Lock()
		if room, exists := m.rooms[id]; exists {
			m.mutex.Unlock()
			return room
		}
		wait, loading := m.loading[id]
		if !loading {
			break
		}
		m.mutex.Unlock()
		<-wait
	}
	done := make(chan struct{})
	m.loading[id] = done
	m.mutex.Unlock()
	defer close(done)

	snap := m.load(ctx, id)
	room := NewRoom(m.ctx, id, snap, m.opts)

	m.mutex.Lock()
	m.rooms[id] = room
	delete(m.loading, id)
	m.opts.Metrics.SetActiveRooms(len(m.rooms))
	m.mutex.Unlock()

	m.opts.Logger.Info("room created", zap.String("room", id), zap.Bool("restored", snap != nil))
	return room
}

func (m *Manager) load(ctx context.Context, id string) *models.RoomSnapshot {
	if m.opts.Store == nil {
		return nil
	}
	snap, err := m.opts.Store.LoadRoom(ctx, id)
	switch {
	case err == nil:
		return snap
	case errors.Is(err, persistence.ErrRecordNotFound):
	default:
		m.opts.Logger.Warn("load room failed, starting fresh", zap.String("room", id), zap.Error(err))
	}
	return nil
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	room, exists := m.rooms[id]
	return room, exists
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	room, exists := m.rooms[id]
	if exists {
		delete(m.rooms, id)
		m.opts.Metrics.SetActiveRooms(len(m.rooms))
	}
	m.mutex.Unlock()

	if exists {
		room.Close()
	}
}

func (m *Manager) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.rooms)
}

// Shutdown 关闭所有房间，每个房间在退出前保存快照
func (m *Manager) Shutdown() {
	m.mutex.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, room := range m.rooms {
		rooms = append(rooms, room)
		delete(m.rooms, id)
	}
	m.opts.Metrics.SetActiveRooms(0)
	m.mutex.Unlock()

	for _, room := range rooms {
		room.Close()
	}
}

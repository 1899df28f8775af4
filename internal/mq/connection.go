package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrNotConnected 连接不可用
var ErrNotConnected = errors.New("mq: not connected")

// ConnectionState 连接状态
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionManager RabbitMQ 连接管理器，断线后按配置自动重连
type ConnectionManager struct {
	config *Config
	logger *zap.Logger

	conn      *amqp.Connection
	connMutex sync.RWMutex
	state     int32

	stopCh         chan struct{}
	stopOnce       sync.Once
	reconnectCount int32

	// 重连成功后回调，发布者借此重建通道
	onReconnected func()
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(config *Config, logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		config: config,
		logger: logger,
		state:  int32(StateDisconnected),
		stopCh: make(chan struct{}),
	}
}

// Connect 建立连接
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&cm.state, int32(StateDisconnected), int32(StateConnecting)) {
		return fmt.Errorf("connection is already in progress or connected")
	}

	cm.logger.Info("连接RabbitMQ", zap.String("url", cm.config.redactedURL()))

	if err := cm.dial(ctx); err != nil {
		atomic.CompareAndSwapInt32(&cm.state, int32(StateConnecting), int32(StateDisconnected))
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	cm.logger.Info("RabbitMQ连接成功")
	go cm.monitorConnection()
	return nil
}

// dial 拨号，ctx 的截止时间与 ConnectionTimeout 取较早者
func (cm *ConnectionManager) dial(ctx context.Context) error {
	timeout := cm.config.ConnectionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout || timeout <= 0 {
			timeout = left
		}
	}

	connConfig := amqp.Config{
		Heartbeat: cm.config.HeartbeatInterval,
		Locale:    "en_US",
	}
	if timeout > 0 {
		connConfig.Dial = amqp.DefaultDial(timeout)
	}

	conn, err := amqp.DialConfig(cm.config.URL, connConfig)
	if err != nil {
		return err
	}

	cm.connMutex.Lock()
	defer cm.connMutex.Unlock()
	// 拨号期间可能已被 Close
	if cm.GetState() == StateClosed {
		_ = conn.Close()
		return ErrNotConnected
	}
	cm.conn = conn
	atomic.StoreInt32(&cm.state, int32(StateConnected))
	return nil
}

// Channel 在当前连接上打开新通道
func (cm *ConnectionManager) Channel() (*amqp.Channel, error) {
	cm.connMutex.RLock()
	conn := cm.conn
	cm.connMutex.RUnlock()

	if conn == nil || conn.IsClosed() || !cm.IsConnected() {
		return nil, ErrNotConnected
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// IsConnected 检查是否已连接
func (cm *ConnectionManager) IsConnected() bool {
	return atomic.LoadInt32(&cm.state) == int32(StateConnected)
}

// GetState 获取连接状态
func (cm *ConnectionManager) GetState() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&cm.state))
}

// ReconnectCount 累计重连尝试次数
func (cm *ConnectionManager) ReconnectCount() int32 {
	return atomic.LoadInt32(&cm.reconnectCount)
}

// OnReconnected 注册重连成功回调
func (cm *ConnectionManager) OnReconnected(fn func()) {
	cm.onReconnected = fn
}

// Close 关闭连接，可重复调用
func (cm *ConnectionManager) Close() error {
	prev := ConnectionState(atomic.SwapInt32(&cm.state, int32(StateClosed)))
	if prev == StateClosed {
		return nil
	}

	cm.logger.Info("关闭RabbitMQ连接")
	cm.stopOnce.Do(func() { close(cm.stopCh) })

	cm.connMutex.Lock()
	defer cm.connMutex.Unlock()
	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		if err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	return nil
}

// monitorConnection 监听连接关闭事件
func (cm *ConnectionManager) monitorConnection() {
	cm.connMutex.RLock()
	conn := cm.conn
	cm.connMutex.RUnlock()
	if conn == nil {
		return
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case err := <-closeCh:
		if err != nil {
			cm.logger.Error("RabbitMQ连接意外关闭", zap.Error(err))
			cm.handleDisconnection(err)
		}
	case <-cm.stopCh:
	}
}

func (cm *ConnectionManager) handleDisconnection(err error) {
	if !atomic.CompareAndSwapInt32(&cm.state, int32(StateConnected), int32(StateReconnecting)) {
		return
	}
	cm.logger.Warn("RabbitMQ连接断开", zap.Error(err))

	if cm.config.EnableReconnect {
		go cm.reconnect()
	} else {
		atomic.CompareAndSwapInt32(&cm.state, int32(StateReconnecting), int32(StateDisconnected))
	}
}

func (cm *ConnectionManager) reconnect() {
	defer func() {
		if r := recover(); r != nil {
			cm.logger.Error("重连过程发生panic", zap.Any("panic", r))
		}
	}()

	maxAttempts := cm.config.MaxReconnectAttempts
	for attempts := 1; ; attempts++ {
		select {
		case <-cm.stopCh:
			return
		case <-time.After(cm.config.ReconnectInterval):
		}

		atomic.AddInt32(&cm.reconnectCount, 1)
		cm.logger.Info("尝试重连RabbitMQ", zap.Int("attempt", attempts), zap.Int("max_attempts", maxAttempts))

		ctx, cancel := context.WithTimeout(context.Background(), cm.config.ConnectionTimeout)
		err := cm.dial(ctx)
		cancel()

		if errors.Is(err, ErrNotConnected) {
			return
		}
		if err == nil {
			cm.logger.Info("RabbitMQ重连成功", zap.Int("attempts", attempts))
			if cm.onReconnected != nil {
				cm.onReconnected()
			}
			go cm.monitorConnection()
			return
		}

		cm.logger.Error("RabbitMQ重连失败", zap.Error(err), zap.Int("attempt", attempts))
		if maxAttempts > 0 && attempts >= maxAttempts {
			cm.logger.Error("RabbitMQ重连失败，达到最大重试次数", zap.Int("max_attempts", maxAttempts))
			atomic.CompareAndSwapInt32(&cm.state, int32(StateReconnecting), int32(StateDisconnected))
			return
		}
	}
}

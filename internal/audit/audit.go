// Package audit 把订单事件写入 MongoDB，供运营侧追溯订单状态变化。
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/config"
	"github.com/MorseWayne/cart_shop/internal/domain"
)

// Collection 审计集合名
const Collection = "order_audit"

// Entry 一条审计记录
type Entry struct {
	EventID        string                `bson:"_id" json:"event_id"`
	Type           domain.OrderEventType `bson:"type" json:"type"`
	OrderID        int64                 `bson:"order_id" json:"order_id"`
	UserID         int64                 `bson:"user_id" json:"user_id"`
	Status         domain.OrderStatus    `bson:"status" json:"status"`
	PreviousStatus domain.OrderStatus    `bson:"previous_status,omitempty" json:"previous_status,omitempty"`
	TotalAmount    string                `bson:"total_amount" json:"total_amount"`
	ItemCount      int                   `bson:"item_count,omitempty" json:"item_count,omitempty"`
	OccurredAt     time.Time             `bson:"occurred_at" json:"occurred_at"`
	RecordedAt     time.Time             `bson:"recorded_at" json:"recorded_at"`
}

// NewEntry 由订单事件生成审计记录。
// 金额以字符串保存，避免浮点误差。
func NewEntry(e *domain.OrderEvent) *Entry {
	count := 0
	for _, it := range e.Items {
		count += it.Quantity
	}
	return &Entry{
		EventID:        e.ID,
		Type:           e.Type,
		OrderID:        e.OrderID,
		UserID:         e.UserID,
		Status:         e.Status,
		PreviousStatus: e.PreviousStatus,
		TotalAmount:    e.TotalAmount.StringFixed(2),
		ItemCount:      count,
		OccurredAt:     e.OccurredAt,
	}
}

// Recorder 订单审计写入器
type Recorder struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewRecorder 连接 MongoDB 并确认可用
func NewRecorder(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	r := &Recorder{
		client:     client,
		collection: client.Database(cfg.Database).Collection(Collection),
		logger:     logger,
	}
	if err := r.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("order audit enabled", zap.String("database", cfg.Database), zap.String("collection", Collection))
	return r, nil
}

func (r *Recorder) ensureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "occurred_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

// Publish 写入一条审计记录。事件 ID 作主键，重复投递视为成功。
func (r *Recorder) Publish(ctx context.Context, e *domain.OrderEvent) error {
	entry := NewEntry(e)
	entry.RecordedAt = time.Now().UTC()

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History 返回某订单的审计记录，新记录在前
func (r *Recorder) History(ctx context.Context, orderID int64, limit int64) ([]*Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}}).SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("decode audit entries: %w", err)
	}
	return entries, nil
}

// Ping 健康检查
func (r *Recorder) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close 断开连接
func (r *Recorder) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

package service

import (
	"context"
	"errors"
	"sync"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo"
	"github.com/MorseWayne/cart_shop/internal/repo/memstore"
)

// MockUserRepository 用户仓储模拟实现
type MockUserRepository struct {
	users  map[string]*domain.User // username -> user
	emails map[string]*domain.User // email -> user
	nextID int64
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		users:  make(map[string]*domain.User),
		emails: make(map[string]*domain.User),
		nextID: 1,
	}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Username]; exists {
		return errors.New("username already exists")
	}
	if _, exists := m.emails[user.Email]; exists {
		return errors.New("email already exists")
	}

	user.ID = m.nextID
	m.nextID++

	m.users[user.Username] = user
	m.emails[user.Email] = user
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return m.users[username], nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.emails[email], nil
}

// recordingPublisher 记录收到的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, e *domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []domain.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// recordingEvicter 记录被失效的商品ID
type recordingEvicter struct {
	mu  sync.Mutex
	ids []int64
}

func (e *recordingEvicter) Evict(ctx context.Context, ids ...int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, ids...)
}

// stubMerger 记录登录时的合并调用
type stubMerger struct {
	calls []string
	err   error
}

func (m *stubMerger) MergeGuestIntoUser(ctx context.Context, sessionID string, userID int64) (*domain.CartView, error) {
	m.calls = append(m.calls, sessionID)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.CartView{UserID: &userID, Items: []domain.CartLine{}}, nil
}

// consumedCartStore 事务内每读到一个购物车就先把它删掉，
// 相当于另一个事务在加锁读之前已经消费了该购物车并提交
type consumedCartStore struct {
	*memstore.Store
}

func (s consumedCartStore) WithinTx(ctx context.Context, fn func(tx repo.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(tx repo.Repositories) error {
		tx.Carts = consumingCartRepo{CartRepository: tx.Carts}
		return fn(tx)
	})
}

type consumingCartRepo struct {
	repo.CartRepository
}

func (r consumingCartRepo) GetByOwnerForUpdate(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	cart, err := r.CartRepository.GetByOwnerForUpdate(ctx, owner)
	if err != nil || cart == nil {
		return cart, err
	}
	if _, err := r.CartRepository.Delete(ctx, cart.ID); err != nil {
		return nil, err
	}
	return cart, nil
}

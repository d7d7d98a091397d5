// Package session держит состояние покупателя между HTTP-запросами:
// корзину, машину оформления заказа и мост к мини-приложению.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/telegram-shop/internal/cart"
	"github.com/linemk/telegram-shop/internal/checkout"
	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/lib/metrics"
	"github.com/shopspring/decimal"
)

var ErrSessionNotFound = errors.New("session not found")

const storeTimeout = 2 * time.Second

// Key вычисляет ключ сессии: пользователь Telegram или анонимный uuid
func Key(identity models.Identity) string {
	if identity.ExternalUserID != 0 {
		return "tg:" + strconv.FormatInt(identity.ExternalUserID, 10)
	}
	return "anon:" + uuid.NewString()
}

// Session - состояние одного покупателя
type Session struct {
	key      string
	identity models.Identity
	log      *slog.Logger
	store    CartStore

	// bridge == nil означает, что мини-приложения нет и используется локальный заменитель
	bridge  *checkout.BridgeUI
	machine *checkout.Machine

	mu       sync.Mutex
	cart     *cart.Cart
	frozen   bool
	lastSeen time.Time
}

func (s *Session) Key() string { return s.key }

func (s *Session) Identity() models.Identity { return s.identity }

func (s *Session) Checkout() *checkout.Machine { return s.machine }

// Events забирает накопленные для мини-приложения события
func (s *Session) Events() []checkout.Event {
	if s.bridge == nil {
		return nil
	}
	return s.bridge.Drain()
}

// Bridge возвращает мост к мини-приложению или nil
func (s *Session) Bridge() *checkout.BridgeUI {
	return s.bridge
}

// CartView - снимок корзины для отображения
type CartView struct {
	Items     []models.LineItem `json:"items"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	ItemCount int               `json:"itemCount"`
}

func (s *Session) View() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) AddItem(ctx context.Context, p models.Product) (CartView, error) {
	return s.mutate(ctx, func(c *cart.Cart) error {
		c.AddItem(p)
		return nil
	})
}

func (s *Session) SetQuantity(ctx context.Context, id string, q int) (CartView, error) {
	return s.mutate(ctx, func(c *cart.Cart) error {
		return c.SetQuantity(id, q)
	})
}

func (s *Session) RemoveItem(ctx context.Context, id string) (CartView, error) {
	return s.mutate(ctx, func(c *cart.Cart) error {
		c.RemoveItem(id)
		return nil
	})
}

func (s *Session) mutate(ctx context.Context, fn func(c *cart.Cart) error) (CartView, error) {
	const op = "session.Session.mutate"

	s.mu.Lock()
	defer s.mu.Unlock()

	// пока заказ отправляется, корзина должна совпадать с тем, что в него попадет
	if s.frozen {
		return s.viewLocked(), fmt.Errorf("%s: %w", op, checkout.ErrSubmissionInFlight)
	}
	if err := fn(s.cart); err != nil {
		return s.viewLocked(), fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.Save(ctx, s.key, s.cart.Items()); err != nil {
		// корзина в памяти остается источником истины, снимок догонит при следующем изменении
		s.log.Warn("failed to persist cart", slog.String("op", op), slog.Any("error", err))
	}
	return s.viewLocked(), nil
}

func (s *Session) viewLocked() CartView {
	return CartView{
		Items:     s.cart.Items(),
		Subtotal:  s.cart.Subtotal(),
		ItemCount: s.cart.ItemCount(),
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// lockedCart дает машине оформления потокобезопасный доступ к корзине сессии
type lockedCart struct {
	s *Session
}

func (l lockedCart) Items() []models.LineItem {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.cart.Items()
}

func (l lockedCart) IsEmpty() bool {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.cart.IsEmpty()
}

func (l lockedCart) Freeze() {
	l.s.mu.Lock()
	l.s.frozen = true
	l.s.mu.Unlock()
}

func (l lockedCart) Thaw() {
	l.s.mu.Lock()
	l.s.frozen = false
	l.s.mu.Unlock()
}

func (l lockedCart) Clear() {
	l.s.mu.Lock()
	l.s.cart.Clear()
	l.s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := l.s.store.Delete(ctx, l.s.key); err != nil {
		l.s.log.Warn("failed to delete cart snapshot", slog.Any("error", err))
	}
}

// Config - зависимости, общие для всех сессий
type Config struct {
	Store          CartStore
	Builder        checkout.Builder
	Notifier       checkout.Notifier
	MerchantChatID string
	Metrics        *metrics.Metrics
	IdleTTL        time.Duration
}

type Manager struct {
	log *slog.Logger
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(log *slog.Logger, cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = NewMemoryCartStore()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 2 * time.Hour
	}
	return &Manager{
		log:      log,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open возвращает существующую сессию или создает новую, подтягивая корзину из хранилища.
// withBridge - есть ли у клиента мини-приложение, которому можно вернуть события UI
func (m *Manager) Open(ctx context.Context, key string, identity models.Identity, withBridge bool) (*Session, error) {
	const op = "session.Manager.Open"

	if s, err := m.Get(key); err == nil {
		return s, nil
	}

	// хранилище может быть медленным, поэтому грузим без блокировки реестра
	items, err := m.cfg.Store.Load(ctx, key)
	if err != nil {
		m.log.Warn("failed to load cart snapshot, starting empty", slog.String("op", op), slog.Any("error", err))
		items = nil
	}

	s := &Session{
		key:      key,
		identity: identity,
		log:      m.log.With(slog.String("session", key)),
		store:    m.cfg.Store,
		cart:     cart.FromItems(items),
		lastSeen: m.now(),
	}
	var ui checkout.HostUI
	if withBridge {
		s.bridge = checkout.NewBridgeUI()
		ui = s.bridge
	}
	s.machine = checkout.NewMachine(checkout.Deps{
		Log:            s.log,
		UI:             checkout.DetectHostUI(ui, s.log),
		Cart:           lockedCart{s: s},
		Builder:        m.cfg.Builder,
		Notifier:       m.cfg.Notifier,
		Identity:       checkout.StaticIdentity(identity),
		MerchantChatID: m.cfg.MerchantChatID,
		Metrics:        m.cfg.Metrics,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		// параллельный Open успел раньше
		existing.touch(m.now())
		return existing, nil
	}
	m.sessions[key] = s
	m.log.Info("session opened", slog.String("op", op), slog.String("session", key), slog.Bool("bridge", withBridge))
	return s, nil
}

// Get возвращает уже открытую сессию
func (m *Manager) Get(key string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Sweep закрывает сессии, простаивающие дольше IdleTTL.
// Сессии с идущей отправкой заказа не трогаются
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.cfg.IdleTTL)
	closed := 0
	for key, s := range m.sessions {
		if s.idleSince().After(cutoff) {
			continue
		}
		if st := s.machine.State(); st == checkout.StateSubmitting || st == checkout.StateValidating {
			continue
		}
		delete(m.sessions, key)
		closed++
	}
	if closed > 0 {
		m.log.Info("idle sessions closed", slog.Int("count", closed))
	}
	return closed
}

// Run периодически вызывает Sweep до отмены контекста
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

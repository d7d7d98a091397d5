// Package checkout ведет сессию оформления заказа: валидацию формы,
// единственную одновременную отправку и реакцию на результат рассылки.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/lib/metrics"
	"github.com/linemk/telegram-shop/internal/order"
)

const (
	minPhoneLen   = 6
	minAddressLen = 5

	FieldPhone           = "phone"
	FieldDeliveryAddress = "deliveryAddress"

	MsgEmptyCart      = "Add some items to your cart before ordering."
	MsgPhoneRequired  = "Please enter your phone number"
	MsgAddressMissing = "Please enter your delivery address"
	MsgOrderFailed    = "Sorry, we couldn't process your order. Please check your internet connection and try again."
	msgOrderPlacedFmt = "Order %s placed successfully! 🎉\n\nYou'll receive a confirmation message and updates about your order."
	msgConfirmCancel  = "Discard checkout and return to the cart?"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNotEditing         = errors.New("checkout is not in editing state")
	ErrSubmissionInFlight = errors.New("order submission is already in flight")
	ErrCancelDeclined     = errors.New("cancellation declined")
	ErrDispatchFailed     = errors.New("merchant was not notified")
)

type State int

const (
	StateIdle State = iota
	StateEditing
	StateValidating
	StateSubmitting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := StateIdle; st <= StateFailed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown checkout state %q", b)
}

// ValidationError - ошибка, которую пользователь может исправить сам
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Cart - доступ к корзине сессии, реализация сама отвечает за синхронизацию
type Cart interface {
	order.CartView
	IsEmpty() bool
	Clear()
}

// CartGuard - корзина, которая умеет запрещать изменения, пока заказ проверяется и отправляется.
// Между Freeze и Thaw в корзине остается ровно то, что попадет в заказ
type CartGuard interface {
	Freeze()
	Thaw()
}

type Builder interface {
	Build(c order.CartView, form models.CheckoutForm, identity models.Identity) (models.Order, error)
}

type Notifier interface {
	Notify(ctx context.Context, o models.Order, merchantChatID, customerChatID string) (models.DispatchResult, error)
}

// IdentitySource отдает данные покупателя из хост-окружения, если они есть
type IdentitySource interface {
	Identity() (models.Identity, bool)
}

// StaticIdentity - IdentitySource с заранее известными данными
type StaticIdentity models.Identity

func (s StaticIdentity) Identity() (models.Identity, bool) {
	return models.Identity(s), true
}

type Deps struct {
	Log            *slog.Logger
	UI             HostUI
	Cart           Cart
	Builder        Builder
	Notifier       Notifier
	Identity       IdentitySource
	MerchantChatID string
	Metrics        *metrics.Metrics
}

// Outcome - итог вызова Submit
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
)

type Result struct {
	Outcome  Outcome
	Order    *models.Order
	Dispatch models.DispatchResult
	Message  string
}

// Snapshot - состояние машины для отображения
type Snapshot struct {
	State  State               `json:"state"`
	Form   models.CheckoutForm `json:"form"`
	Errors map[string]string   `json:"errors,omitempty"`
	Order  *models.Order       `json:"lastOrder,omitempty"`
}

// FormPatch - частичное обновление формы, nil - поле не меняется
type FormPatch struct {
	Phone           *string
	OrderType       *models.OrderType
	DeliveryAddress *string
}

type Machine struct {
	log            *slog.Logger
	ui             HostUI
	cart           Cart
	builder        Builder
	notifier       Notifier
	identitySource IdentitySource
	merchantChatID string
	metrics        *metrics.Metrics

	// inFlight - единственная разделяемая отметка об идущей отправке
	inFlight atomic.Bool

	mu        sync.Mutex
	state     State
	form      models.CheckoutForm
	errors    map[string]string
	identity  models.Identity
	lastOrder *models.Order
}

func NewMachine(d Deps) *Machine {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	ui := d.UI
	if _, ok := ui.(safeUI); !ok {
		ui = DetectHostUI(ui, log)
	}
	return &Machine{
		log:            log,
		ui:             ui,
		cart:           d.Cart,
		builder:        d.Builder,
		notifier:       d.Notifier,
		identitySource: d.Identity,
		merchantChatID: d.MerchantChatID,
		metrics:        d.Metrics,
		state:          StateIdle,
		errors:         map[string]string{},
	}
}

// Enter открывает оформление заказа. Пустая корзина не пускается дальше
func (m *Machine) Enter() error {
	const op = "checkout.Machine.Enter"

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateEditing:
		return nil
	case StateSubmitting, StateValidating:
		return fmt.Errorf("%s: %w", op, ErrSubmissionInFlight)
	}

	if m.cart.IsEmpty() {
		m.ui.SignalHaptic(HapticError)
		m.ui.ShowMessage(MsgEmptyCart)
		return fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}

	m.identity = models.Identity{}
	if m.identitySource != nil {
		if id, ok := m.identitySource.Identity(); ok {
			m.identity = id
		}
	}
	m.form = models.CheckoutForm{OrderType: models.OrderTypePickup}
	m.errors = map[string]string{}
	m.state = StateEditing
	m.ui.SignalHaptic(HapticLight)
	m.log.Debug("checkout entered", slog.String("op", op), slog.Int64("userID", m.identity.ExternalUserID))
	return nil
}

// UpdateForm меняет черновик формы и сбрасывает ошибки измененных полей
func (m *Machine) UpdateForm(p FormPatch) error {
	const op = "checkout.Machine.UpdateForm"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateEditing {
		return fmt.Errorf("%s: %w", op, ErrNotEditing)
	}
	if p.Phone != nil {
		m.form.Phone = *p.Phone
		delete(m.errors, FieldPhone)
	}
	if p.OrderType != nil {
		m.form.OrderType = *p.OrderType
		delete(m.errors, FieldDeliveryAddress)
	}
	if p.DeliveryAddress != nil {
		m.form.DeliveryAddress = *p.DeliveryAddress
		delete(m.errors, FieldDeliveryAddress)
	}
	return nil
}

// Cancel возвращает к корзине без создания заказа. Во время отправки отмена невозможна
func (m *Machine) Cancel() error {
	const op = "checkout.Machine.Cancel"

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateSubmitting, StateValidating:
		return fmt.Errorf("%s: %w", op, ErrSubmissionInFlight)
	case StateIdle, StateCompleted:
		return nil
	}

	if strings.TrimSpace(m.form.Phone) != "" || strings.TrimSpace(m.form.DeliveryAddress) != "" {
		if !m.ui.Confirm(msgConfirmCancel) {
			return fmt.Errorf("%s: %w", op, ErrCancelDeclined)
		}
	}
	m.form = models.CheckoutForm{}
	m.errors = map[string]string{}
	m.state = StateIdle
	m.ui.SignalHaptic(HapticLight)
	return nil
}

// Submit проверяет форму, собирает заказ и рассылает уведомления.
// Пока одна отправка идет, остальные вызовы игнорируются
func (m *Machine) Submit(ctx context.Context) (Result, error) {
	const op = "checkout.Machine.Submit"
	logger := m.log.With(slog.String("op", op))

	if !m.inFlight.CompareAndSwap(false, true) {
		logger.Info("submit ignored, submission in flight")
		m.metrics.CheckoutOutcome(string(OutcomeIgnored))
		return Result{Outcome: OutcomeIgnored}, fmt.Errorf("%s: %w", op, ErrSubmissionInFlight)
	}
	defer m.inFlight.Store(false)

	m.mu.Lock()
	if m.state != StateEditing {
		m.mu.Unlock()
		return Result{}, fmt.Errorf("%s: %w", op, ErrNotEditing)
	}
	m.state = StateValidating
	m.errors = map[string]string{}
	if g, ok := m.cart.(CartGuard); ok {
		g.Freeze()
		defer g.Thaw()
	}
	if m.cart.IsEmpty() {
		m.state = StateEditing
		m.mu.Unlock()

		logger.Info("submit rejected, cart is empty")
		m.ui.SignalHaptic(HapticError)
		m.ui.ShowMessage(MsgEmptyCart)
		m.metrics.CheckoutOutcome(string(OutcomeInvalid))
		return Result{Outcome: OutcomeInvalid, Message: MsgEmptyCart}, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}
	if verr := validate(m.form); verr != nil {
		m.errors[verr.Field] = verr.Message
		m.state = StateEditing
		m.mu.Unlock()

		logger.Info("validation failed", slog.String("field", verr.Field))
		m.ui.SignalHaptic(HapticError)
		m.ui.ShowMessage(verr.Message)
		m.metrics.CheckoutOutcome(string(OutcomeInvalid))
		return Result{Outcome: OutcomeInvalid, Message: verr.Message}, verr
	}
	m.state = StateSubmitting
	form := m.form
	identity := m.identity
	m.mu.Unlock()

	m.ui.SignalHaptic(HapticLight)

	o, res, err := m.placeOrder(ctx, form, identity)
	if err != nil {
		logger.Error("order submission failed", slog.Any("error", err))
		m.mu.Lock()
		m.state = StateFailed
		logger.Debug("checkout failed, back to editing")
		// Failed сразу переходит в Editing, форма сохраняется для повторной попытки
		m.state = StateEditing
		m.mu.Unlock()

		m.ui.SignalHaptic(HapticError)
		m.ui.ShowMessage(MsgOrderFailed)
		m.metrics.CheckoutOutcome(string(OutcomeFailed))
		return Result{Outcome: OutcomeFailed, Dispatch: res, Message: MsgOrderFailed}, fmt.Errorf("%s: %w", op, err)
	}

	m.cart.Clear()
	msg := fmt.Sprintf(msgOrderPlacedFmt, o.OrderID)

	m.mu.Lock()
	m.state = StateCompleted
	m.lastOrder = &o
	m.form = models.CheckoutForm{}
	m.mu.Unlock()

	logger.Info("order completed", slog.String("orderID", o.OrderID), slog.Bool("customerNotified", res.CustomerNotified))
	m.ui.SignalHaptic(HapticSuccess)
	m.ui.ShowMessage(msg)
	m.metrics.CheckoutOutcome(string(OutcomeCompleted))
	return Result{Outcome: OutcomeCompleted, Order: &o, Dispatch: res, Message: msg}, nil
}

func (m *Machine) placeOrder(ctx context.Context, form models.CheckoutForm, identity models.Identity) (models.Order, models.DispatchResult, error) {
	o, err := m.builder.Build(m.cart, form, identity)
	if err != nil {
		return models.Order{}, models.DispatchResult{}, fmt.Errorf("failed to build order: %w", err)
	}

	var customerChatID string
	if identity.ExternalUserID != 0 {
		customerChatID = strconv.FormatInt(identity.ExternalUserID, 10)
	}

	res, err := m.notifier.Notify(ctx, o, m.merchantChatID, customerChatID)
	if err != nil {
		return o, res, err
	}
	if !res.Succeeded() {
		return o, res, ErrDispatchFailed
	}
	return o, res, nil
}

// Snapshot возвращает копию текущего состояния
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := make(map[string]string, len(m.errors))
	for k, v := range m.errors {
		errs[k] = v
	}
	return Snapshot{State: m.state, Form: m.form, Errors: errs, Order: m.lastOrder}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// validate: правила проверяются по порядку, возвращается первая ошибка
func validate(f models.CheckoutForm) *ValidationError {
	phone := strings.TrimSpace(f.Phone)
	if phone == "" || len([]rune(phone)) < minPhoneLen {
		return &ValidationError{Field: FieldPhone, Message: MsgPhoneRequired}
	}
	if f.OrderType == models.OrderTypeDelivery {
		addr := strings.TrimSpace(f.DeliveryAddress)
		if addr == "" || len([]rune(addr)) < minAddressLen {
			return &ValidationError{Field: FieldDeliveryAddress, Message: MsgAddressMissing}
		}
	}
	return nil
}

package checkout_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linemk/telegram-shop/internal/cart"
	"github.com/linemk/telegram-shop/internal/checkout"
	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/estimator"
	"github.com/linemk/telegram-shop/internal/notify"
	"github.com/linemk/telegram-shop/internal/order"
	"github.com/linemk/telegram-shop/internal/orderid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const merchantChat = "1823225052"

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// countingBuilder считает вызовы настоящего билдера
type countingBuilder struct {
	inner *order.Builder
	calls atomic.Int32
}

func (b *countingBuilder) Build(c order.CartView, f models.CheckoutForm, id models.Identity) (models.Order, error) {
	b.calls.Add(1)
	return b.inner.Build(c, f, id)
}

// recordingSender запоминает сообщения, может блокироваться и отвечать отказом
type recordingSender struct {
	mu       sync.Mutex
	messages map[string][]string
	fail     map[string]error
	nack     map[string]bool
	gate     chan struct{}
	entered  chan struct{}
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		messages: map[string][]string{},
		fail:     map[string]error{},
		nack:     map[string]bool{},
	}
}

func (s *recordingSender) Send(ctx context.Context, text, chatID string) (bool, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[chatID] = append(s.messages[chatID], text)
	if err := s.fail[chatID]; err != nil {
		return false, err
	}
	return !s.nack[chatID], nil
}

func (s *recordingSender) sentTo(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.messages[chatID]...)
}

type fixture struct {
	cart       *cart.Cart
	ui         *checkout.BridgeUI
	sender     *recordingSender
	builder    *countingBuilder
	dispatcher *notify.Dispatcher
	machine    *checkout.Machine
}

type zeroRand struct{}

func (zeroRand) IntN(int) int { return 0 }

func newFixture(t *testing.T, identity checkout.IdentitySource) *fixture {
	t.Helper()
	now := func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	est := estimator.New(estimator.WithClock(now), estimator.WithRand(zeroRand{}), estimator.WithLocation(time.UTC))

	f := &fixture{
		cart:   cart.New(),
		ui:     checkout.NewBridgeUI(),
		sender: newRecordingSender(),
	}
	f.builder = &countingBuilder{inner: order.NewBuilder(orderid.New(), est, now)}
	f.dispatcher = notify.NewDispatcher(discard, f.sender, notify.NewFormatter(est, time.UTC), nil, notify.Config{
		SendTimeout:   time.Second,
		CustomerGrace: time.Second,
	})
	f.machine = checkout.NewMachine(checkout.Deps{
		Log:            discard,
		UI:             f.ui,
		Cart:           f.cart,
		Builder:        f.builder,
		Notifier:       f.dispatcher,
		Identity:       identity,
		MerchantChatID: merchantChat,
	})
	return f
}

func (f *fixture) addSnow() {
	f.cart.AddItem(models.Product{ID: "1", Name: "Snow Pizza", Price: decimal.RequireFromString("180.00"), Image: "❄️"})
}

func messages(events []checkout.Event) []string {
	var out []string
	for _, e := range events {
		if e.Type == "message" {
			out = append(out, e.Text)
		}
	}
	return out
}

func haptics(events []checkout.Event) []checkout.HapticKind {
	var out []checkout.HapticKind
	for _, e := range events {
		if e.Type == "haptic" {
			out = append(out, e.Haptic)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }

func typePtr(t models.OrderType) *models.OrderType { return &t }

func TestSubmit_PickupEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()

	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{Phone: strPtr("0612345678")}))
	f.ui.Drain()

	res, err := f.machine.Submit(context.Background())
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.Equal(t, checkout.OutcomeCompleted, res.Outcome)
	assert.True(t, f.cart.IsEmpty())
	assert.Equal(t, checkout.StateCompleted, f.machine.State())

	reports := f.sender.sentTo(merchantChat)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0], "$180.00")
	assert.Contains(t, reports[0], res.Order.OrderID)
	assert.True(t, strings.HasPrefix(res.Order.OrderID, "ORD-"))

	events := f.ui.Drain()
	msgs := messages(events)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Order "+res.Order.OrderID+" placed successfully!")
	assert.Equal(t, []checkout.HapticKind{checkout.HapticLight, checkout.HapticSuccess}, haptics(events))
}

func TestSubmit_DeliveryWithoutAddress(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{
		Phone:           strPtr("0612345678"),
		OrderType:       typePtr(models.OrderTypeDelivery),
		DeliveryAddress: strPtr(""),
	}))
	f.ui.Drain()

	res, err := f.machine.Submit(context.Background())

	var verr *checkout.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, checkout.FieldDeliveryAddress, verr.Field)
	assert.Equal(t, checkout.OutcomeInvalid, res.Outcome)
	assert.Equal(t, int32(0), f.builder.calls.Load())
	assert.Equal(t, 1, f.cart.ItemCount())
	assert.Equal(t, checkout.StateEditing, f.machine.State())

	events := f.ui.Drain()
	assert.Equal(t, []string{checkout.MsgAddressMissing}, messages(events))
	assert.Equal(t, []checkout.HapticKind{checkout.HapticError}, haptics(events))

	snap := f.machine.Snapshot()
	assert.Equal(t, checkout.MsgAddressMissing, snap.Errors[checkout.FieldDeliveryAddress])
}

func TestSubmit_ValidationOrder(t *testing.T) {
	cases := []struct {
		name    string
		patch   checkout.FormPatch
		field   string
		message string
	}{
		{"empty phone wins over address", checkout.FormPatch{Phone: strPtr("  "), OrderType: typePtr(models.OrderTypeDelivery)}, checkout.FieldPhone, checkout.MsgPhoneRequired},
		{"short phone after trim", checkout.FormPatch{Phone: strPtr("  12345  ")}, checkout.FieldPhone, checkout.MsgPhoneRequired},
		{"short address", checkout.FormPatch{Phone: strPtr("123456"), OrderType: typePtr(models.OrderTypeDelivery), DeliveryAddress: strPtr(" abcd ")}, checkout.FieldDeliveryAddress, checkout.MsgAddressMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.addSnow()
			require.NoError(t, f.machine.Enter())
			require.NoError(t, f.machine.UpdateForm(tc.patch))

			_, err := f.machine.Submit(context.Background())
			var verr *checkout.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, tc.message, verr.Message)
			assert.Len(t, f.machine.Snapshot().Errors, 1)
		})
	}
}

func TestSubmit_AddressIgnoredForPickup(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{Phone: strPtr("123456"), DeliveryAddress: strPtr("")}))

	res, err := f.machine.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkout.OutcomeCompleted, res.Outcome)
}

func TestSubmit_ConcurrentSubmitBuildsOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	f.sender.gate = make(chan struct{})
	f.sender.entered = make(chan struct{}, 4)
	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{Phone: strPtr("0612345678")}))

	first := make(chan checkout.Result, 1)
	go func() {
		res, _ := f.machine.Submit(context.Background())
		first <- res
	}()
	<-f.sender.entered // первая отправка ждет на gate

	assert.Equal(t, checkout.StateSubmitting, f.machine.State())
	for i := 0; i < 3; i++ {
		res, err := f.machine.Submit(context.Background())
		assert.ErrorIs(t, err, checkout.ErrSubmissionInFlight)
		assert.Equal(t, checkout.OutcomeIgnored, res.Outcome)
	}
	assert.ErrorIs(t, f.machine.Cancel(), checkout.ErrSubmissionInFlight)

	close(f.sender.gate)
	res := <-first
	f.dispatcher.Wait()

	assert.Equal(t, checkout.OutcomeCompleted, res.Outcome)
	assert.Equal(t, int32(1), f.builder.calls.Load())
	assert.Len(t, f.sender.sentTo(merchantChat), 1)
}

func TestSubmit_MerchantFailureKeepsFormAndAllowsRetry(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	f.sender.fail[merchantChat] = errors.New("connection reset")
	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{Phone: strPtr("0612345678")}))
	f.ui.Drain()

	res, err := f.machine.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, checkout.OutcomeFailed, res.Outcome)
	assert.Nil(t, res.Order)
	assert.Equal(t, checkout.StateEditing, f.machine.State())
	assert.Equal(t, "0612345678", f.machine.Snapshot().Form.Phone)
	assert.Equal(t, 1, f.cart.ItemCount())

	events := f.ui.Drain()
	assert.Equal(t, []string{checkout.MsgOrderFailed}, messages(events))
	assert.Equal(t, []checkout.HapticKind{checkout.HapticLight, checkout.HapticError}, haptics(events))

	// повторная попытка после восстановления канала
	f.sender.mu.Lock()
	delete(f.sender.fail, merchantChat)
	f.sender.mu.Unlock()

	res, err = f.machine.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkout.OutcomeCompleted, res.Outcome)
	assert.True(t, f.cart.IsEmpty())
}

func TestSubmit_MerchantNotAcknowledged(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	f.sender.nack[merchantChat] = true
	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{Phone: strPtr("0612345678")}))

	res, err := f.machine.Submit(context.Background())
	assert.ErrorIs(t, err, notify.ErrNotAcknowledged)
	assert.False(t, res.Dispatch.MerchantNotified)
	assert.False(t, f.cart.IsEmpty())
}

func TestSubmit_CustomerFailureStillCompletes(t *testing.T) {
	identity := checkout.StaticIdentity{ExternalUserID: 42, FirstName: "Ann", Username: "ann"}
	f := newFixture(t, identity)
	f.addSnow()
	f.sender.fail["42"] = errors.New("bot was blocked by the user")
	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{Phone: strPtr("0612345678")}))

	res, err := f.machine.Submit(context.Background())
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.Equal(t, checkout.OutcomeCompleted, res.Outcome)
	assert.True(t, res.Dispatch.MerchantNotified)
	assert.False(t, res.Dispatch.CustomerNotified)
	assert.Len(t, f.sender.sentTo("42"), 1)
	assert.Contains(t, f.sender.sentTo(merchantChat)[0], "@ann")
}

func TestEnter_EmptyCart(t *testing.T) {
	f := newFixture(t, nil)

	err := f.machine.Enter()
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
	assert.Equal(t, checkout.StateIdle, f.machine.State())
	assert.Equal(t, []string{checkout.MsgEmptyCart}, messages(f.ui.Drain()))
}

func TestSubmit_CartEmptiedAfterEnter(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{Phone: strPtr("0612345678")}))
	f.cart.RemoveItem("1")
	f.ui.Drain()

	res, err := f.machine.Submit(context.Background())
	require.ErrorIs(t, err, checkout.ErrEmptyCart)
	assert.Equal(t, checkout.OutcomeInvalid, res.Outcome)
	assert.Equal(t, checkout.MsgEmptyCart, res.Message)
	assert.Equal(t, int32(0), f.builder.calls.Load())
	assert.Equal(t, checkout.StateEditing, f.machine.State())
	assert.Empty(t, f.sender.sentTo(merchantChat))

	events := f.ui.Drain()
	assert.Equal(t, []string{checkout.MsgEmptyCart}, messages(events))
	assert.Equal(t, []checkout.HapticKind{checkout.HapticError}, haptics(events))
}

// guardedCart записывает, когда корзину заморозили и разморозили
type guardedCart struct {
	*cart.Cart
	mu  sync.Mutex
	log []string
}

func (g *guardedCart) Freeze() { g.record("freeze") }
func (g *guardedCart) Thaw()   { g.record("thaw") }

func (g *guardedCart) Clear() {
	g.record("clear")
	g.Cart.Clear()
}

func (g *guardedCart) record(s string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = append(g.log, s)
}

func (g *guardedCart) events() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.log...)
}

func TestSubmit_CartFrozenWhileSubmitting(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	guarded := &guardedCart{Cart: f.cart}
	m := checkout.NewMachine(checkout.Deps{
		Log:            discard,
		UI:             f.ui,
		Cart:           guarded,
		Builder:        f.builder,
		Notifier:       f.dispatcher,
		MerchantChatID: merchantChat,
	})
	require.NoError(t, m.Enter())
	require.NoError(t, m.UpdateForm(checkout.FormPatch{Phone: strPtr("0612345678")}))

	res, err := m.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, checkout.OutcomeCompleted, res.Outcome)
	assert.Equal(t, []string{"freeze", "clear", "thaw"}, guarded.events())
}

func TestSubmit_CartThawedAfterValidationFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	guarded := &guardedCart{Cart: f.cart}
	m := checkout.NewMachine(checkout.Deps{
		Log:            discard,
		UI:             f.ui,
		Cart:           guarded,
		Builder:        f.builder,
		Notifier:       f.dispatcher,
		MerchantChatID: merchantChat,
	})
	require.NoError(t, m.Enter())

	res, err := m.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, checkout.OutcomeInvalid, res.Outcome)
	assert.Equal(t, []string{"freeze", "thaw"}, guarded.events())
}

func TestSubmit_NotEditing(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.machine.Submit(context.Background())
	assert.ErrorIs(t, err, checkout.ErrNotEditing)
	assert.ErrorIs(t, f.machine.UpdateForm(checkout.FormPatch{}), checkout.ErrNotEditing)
}

func TestCancel(t *testing.T) {
	f := newFixture(t, nil)
	f.addSnow()
	require.NoError(t, f.machine.Enter())
	require.NoError(t, f.machine.UpdateForm(checkout.FormPatch{Phone: strPtr("0612")}))

	f.ui.SetConfirmAnswer(false)
	assert.ErrorIs(t, f.machine.Cancel(), checkout.ErrCancelDeclined)
	assert.Equal(t, checkout.StateEditing, f.machine.State())

	f.ui.SetConfirmAnswer(true)
	require.NoError(t, f.machine.Cancel())
	assert.Equal(t, checkout.StateIdle, f.machine.State())
	assert.Equal(t, int32(0), f.builder.calls.Load())
	assert.Equal(t, 1, f.cart.ItemCount())
}

type panickyUI struct{}

func (panickyUI) ShowMessage(string)               { panic("no webview") }
func (panickyUI) Confirm(string) bool              { panic("no webview") }
func (panickyUI) SignalHaptic(checkout.HapticKind) { panic("no webview") }

func TestMachine_DegradedHost(t *testing.T) {
	for name, ui := range map[string]checkout.HostUI{"absent": nil, "panicking": panickyUI{}} {
		t.Run(name, func(t *testing.T) {
			c := cart.New()
			c.AddItem(models.Product{ID: "1", Name: "Soup", Price: decimal.NewFromInt(5)})
			s := newRecordingSender()
			est := estimator.New()
			m := checkout.NewMachine(checkout.Deps{
				Log:            discard,
				UI:             ui,
				Cart:           c,
				Builder:        order.NewBuilder(orderid.New(), est, nil),
				Notifier:       notify.NewDispatcher(discard, s, notify.NewFormatter(est, nil), nil, notify.Config{}),
				MerchantChatID: merchantChat,
			})

			require.NotPanics(t, func() {
				require.NoError(t, m.Enter())
				_, err := m.Submit(context.Background())
				assert.Error(t, err)
				require.NoError(t, m.UpdateForm(checkout.FormPatch{Phone: strPtr("0612345678")}))
				res, err := m.Submit(context.Background())
				require.NoError(t, err)
				assert.Equal(t, checkout.OutcomeCompleted, res.Outcome)
			})
			assert.Contains(t, s.sentTo(merchantChat)[0], "Telegram:</b> N/A")
		})
	}
}

func TestState_TextRoundTrip(t *testing.T) {
	for st := checkout.StateIdle; st <= checkout.StateFailed; st++ {
		b, err := st.MarshalText()
		require.NoError(t, err)

		var got checkout.State
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, st, got)
	}

	var s checkout.State
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
}

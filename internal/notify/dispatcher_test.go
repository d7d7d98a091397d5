package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	chatID string
	text   string
}

// fakeSender отвечает по chatID заранее заданным результатом
type fakeSender struct {
	mu     sync.Mutex
	calls  []sent
	ok     map[string]bool
	errs   map[string]error
	panics map[string]bool
	block  map[string]chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		ok:     map[string]bool{},
		errs:   map[string]error{},
		panics: map[string]bool{},
		block:  map[string]chan struct{}{},
	}
}

func (f *fakeSender) Send(ctx context.Context, text, chatID string) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sent{chatID: chatID, text: text})
	ch := f.block[chatID]
	ok, err, p := f.ok[chatID], f.errs[chatID], f.panics[chatID]
	f.mu.Unlock()

	if ch != nil {
		<-ch
	}
	if p {
		panic("transport exploded")
	}
	return ok, err
}

func (f *fakeSender) chats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.chatID)
	}
	return out
}

func newDispatcher(s notify.Sender, grace time.Duration) *notify.Dispatcher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return notify.NewDispatcher(log, s, notify.NewFormatter(fixedEstimator(), time.UTC), nil, notify.Config{
		SendTimeout:   time.Second,
		CustomerGrace: grace,
	})
}

func TestNotify_MerchantAndCustomer(t *testing.T) {
	s := newFakeSender()
	s.ok["merchant"], s.ok["42"] = true, true
	d := newDispatcher(s, time.Second)

	res, err := d.Notify(context.Background(), sampleOrder(models.OrderTypePickup), "merchant", "42")
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, models.DispatchResult{MerchantNotified: true, CustomerNotified: true}, res)
	// продавец всегда первый
	assert.Equal(t, []string{"merchant", "42"}, s.chats())
}

func TestNotify_MerchantFailureSkipsCustomer(t *testing.T) {
	cases := map[string]func(*fakeSender){
		"transport error":  func(s *fakeSender) { s.errs["merchant"] = errors.New("dial tcp: refused") },
		"not acknowledged": func(s *fakeSender) { s.ok["merchant"] = false },
		"panic":            func(s *fakeSender) { s.panics["merchant"] = true },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			s := newFakeSender()
			s.ok["42"] = true
			setup(s)
			d := newDispatcher(s, time.Second)

			res, err := d.Notify(context.Background(), sampleOrder(models.OrderTypePickup), "merchant", "42")
			d.Wait()

			assert.Error(t, err)
			assert.False(t, res.MerchantNotified)
			assert.False(t, res.Succeeded())
			assert.Equal(t, []string{"merchant"}, s.chats())
		})
	}
}

func TestNotify_NotAcknowledgedIsSentinel(t *testing.T) {
	s := newFakeSender()
	d := newDispatcher(s, time.Second)

	_, err := d.Notify(context.Background(), sampleOrder(models.OrderTypePickup), "merchant", "")
	assert.ErrorIs(t, err, notify.ErrNotAcknowledged)
}

func TestNotify_CustomerFailureIsSwallowed(t *testing.T) {
	s := newFakeSender()
	s.ok["merchant"] = true
	s.errs["42"] = errors.New("timeout")
	d := newDispatcher(s, time.Second)

	res, err := d.Notify(context.Background(), sampleOrder(models.OrderTypePickup), "merchant", "42")
	require.NoError(t, err)
	d.Wait()

	assert.True(t, res.Succeeded())
	assert.False(t, res.CustomerNotified)
}

func TestNotify_CustomerPanicIsSwallowed(t *testing.T) {
	s := newFakeSender()
	s.ok["merchant"] = true
	s.panics["42"] = true
	d := newDispatcher(s, time.Second)

	res, err := d.Notify(context.Background(), sampleOrder(models.OrderTypePickup), "merchant", "42")
	require.NoError(t, err)
	d.Wait()
	assert.True(t, res.MerchantNotified)
	assert.False(t, res.CustomerNotified)
}

func TestNotify_NoCustomerChannel(t *testing.T) {
	s := newFakeSender()
	s.ok["merchant"] = true
	d := newDispatcher(s, time.Second)

	res, err := d.Notify(context.Background(), sampleOrder(models.OrderTypePickup), "merchant", "")
	require.NoError(t, err)

	assert.Equal(t, models.DispatchResult{MerchantNotified: true}, res)
	assert.Equal(t, []string{"merchant"}, s.chats())
}

func TestNotify_SlowCustomerDoesNotGateResult(t *testing.T) {
	s := newFakeSender()
	s.ok["merchant"], s.ok["42"] = true, true
	release := make(chan struct{})
	s.block["42"] = release
	d := newDispatcher(s, 20*time.Millisecond)

	res, err := d.Notify(context.Background(), sampleOrder(models.OrderTypePickup), "merchant", "42")
	require.NoError(t, err)
	assert.True(t, res.MerchantNotified)
	assert.False(t, res.CustomerNotified)

	close(release)
	d.Wait()
	assert.Equal(t, []string{"merchant", "42"}, s.chats())
}

func TestNotify_EmptyMerchantChat(t *testing.T) {
	s := newFakeSender()
	d := newDispatcher(s, time.Second)

	res, err := d.Notify(context.Background(), sampleOrder(models.OrderTypePickup), "", "42")
	assert.Error(t, err)
	assert.False(t, res.MerchantNotified)
	assert.Empty(t, s.chats())
}

package order_test

import (
	"errors"
	"testing"
	"time"

	"github.com/linemk/telegram-shop/internal/cart"
	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/estimator"
	"github.com/linemk/telegram-shop/internal/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIDs struct {
	id    string
	err   error
	calls int
}

func (f *fakeIDs) Generate() (string, error) {
	f.calls++
	return f.id, f.err
}

type fakeEstimator struct {
	gotType  models.OrderType
	gotCount int
}

func (f *fakeEstimator) Estimate(t models.OrderType, n int) estimator.Estimate {
	f.gotType, f.gotCount = t, n
	return estimator.Estimate{ReadyBy: "12:30", Minutes: 30}
}

var createdAt = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newBuilder(ids *fakeIDs, est *fakeEstimator) *order.Builder {
	return order.NewBuilder(ids, est, func() time.Time { return createdAt })
}

func sampleCart() *cart.Cart {
	c := cart.New()
	c.AddItem(models.Product{ID: "1", Name: "Margherita", Price: decimal.RequireFromString("180.00"), Image: "🍕"})
	c.AddItem(models.Product{ID: "2", Name: "Lemonade", Price: decimal.RequireFromString("4.50"), Image: "🍋"})
	_ = c.SetQuantity("2", 3)
	return c
}

func TestBuild_Snapshot(t *testing.T) {
	ids := &fakeIDs{id: "ORD-TEST-00001"}
	est := &fakeEstimator{}
	c := sampleCart()

	o, err := newBuilder(ids, est).Build(c, models.CheckoutForm{
		Phone:           "  0612345678 ",
		OrderType:       models.OrderTypeDelivery,
		DeliveryAddress: " 5 Main Street ",
	}, models.Identity{ExternalUserID: 42, FirstName: "Ann", Username: "ann"})
	require.NoError(t, err)

	assert.Equal(t, "ORD-TEST-00001", o.OrderID)
	assert.Equal(t, "193.50", o.Total.StringFixed(2))
	assert.Equal(t, "0612345678", o.Customer.Phone)
	assert.Equal(t, "@ann", o.Customer.TelegramHandle)
	assert.Equal(t, int64(42), o.Customer.ExternalUserID)
	assert.Equal(t, "5 Main Street", o.DeliveryAddress)
	assert.Equal(t, createdAt, o.CreatedAt)
	assert.Equal(t, "12:30 (~30 minutes)", o.EstimatedReadyAt)
	assert.Equal(t, models.OrderTypeDelivery, est.gotType)
	assert.Equal(t, 4, est.gotCount)

	// изменение корзины после сборки не влияет на заказ
	c.AddItem(models.Product{ID: "1"})
	c.RemoveItem("2")
	c.Clear()
	require.Len(t, o.Items, 2)
	assert.Equal(t, 1, o.Items[0].Quantity)
	assert.Equal(t, 3, o.Items[1].Quantity)
}

func TestBuild_PickupDropsAddress(t *testing.T) {
	o, err := newBuilder(&fakeIDs{id: "X"}, &fakeEstimator{}).Build(sampleCart(), models.CheckoutForm{
		Phone:           "0612345678",
		OrderType:       models.OrderTypePickup,
		DeliveryAddress: "leftover",
	}, models.Identity{})
	require.NoError(t, err)

	assert.Empty(t, o.DeliveryAddress)
	assert.Equal(t, "N/A", o.Customer.TelegramHandle)
}

func TestBuild_EmptyCart(t *testing.T) {
	ids := &fakeIDs{id: "X"}
	_, err := newBuilder(ids, &fakeEstimator{}).Build(cart.New(), models.CheckoutForm{Phone: "0612345678"}, models.Identity{})

	assert.ErrorIs(t, err, order.ErrEmptyCart)
	assert.Equal(t, 0, ids.calls)
}

func TestBuild_EmptyPhone(t *testing.T) {
	_, err := newBuilder(&fakeIDs{id: "X"}, &fakeEstimator{}).Build(sampleCart(), models.CheckoutForm{Phone: "   "}, models.Identity{})
	assert.ErrorIs(t, err, order.ErrEmptyPhone)
}

func TestBuild_IDGeneratorFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := newBuilder(&fakeIDs{err: boom}, &fakeEstimator{}).Build(sampleCart(), models.CheckoutForm{Phone: "0612345678"}, models.Identity{})
	assert.ErrorIs(t, err, boom)
}

// Package order собирает неизменяемый снимок заказа из корзины и формы оформления.
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/estimator"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart  = errors.New("cart is empty")
	ErrEmptyPhone = errors.New("phone is empty")
)

// CartView - то, что билдеру нужно от корзины
type CartView interface {
	Items() []models.LineItem
}

type IDGenerator interface {
	Generate() (string, error)
}

type Estimator interface {
	Estimate(orderType models.OrderType, itemCount int) estimator.Estimate
}

type Builder struct {
	ids IDGenerator
	est Estimator
	now func() time.Time
}

func NewBuilder(ids IDGenerator, est Estimator, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{ids: ids, est: est, now: now}
}

// Build не ходит в сеть и не трогает UI. Пустая корзина должна отсекаться раньше,
// здесь это лишь страховочная проверка
func (b *Builder) Build(c CartView, form models.CheckoutForm, identity models.Identity) (models.Order, error) {
	const op = "order.Builder.Build"

	items := c.Items()
	if len(items) == 0 {
		return models.Order{}, fmt.Errorf("%s: %w", op, ErrEmptyCart)
	}
	phone := strings.TrimSpace(form.Phone)
	if phone == "" {
		return models.Order{}, fmt.Errorf("%s: %w", op, ErrEmptyPhone)
	}

	id, err := b.ids.Generate()
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: failed to generate order id: %w", op, err)
	}

	snapshot := make([]models.LineItem, len(items))
	copy(snapshot, items)

	total := decimal.Zero
	for _, it := range snapshot {
		total = total.Add(it.ExtendedPrice())
	}

	orderType := form.OrderType
	if orderType == "" {
		orderType = models.OrderTypePickup
	}
	var address string
	if orderType == models.OrderTypeDelivery {
		address = strings.TrimSpace(form.DeliveryAddress)
	}

	o := models.Order{
		OrderID: id,
		Items:   snapshot,
		Total:   total,
		Customer: models.CustomerInfo{
			TelegramHandle: identity.Handle(),
			Phone:          phone,
			FirstName:      identity.FirstName,
			LastName:       identity.LastName,
			ExternalUserID: identity.ExternalUserID,
		},
		OrderType:       orderType,
		DeliveryAddress: address,
		CreatedAt:       b.now(),
	}
	o.EstimatedReadyAt = b.est.Estimate(orderType, o.ItemCount()).String()
	return o, nil
}

package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType - способ получения заказа
type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
)

// ParseOrderType разбирает строковое значение типа заказа
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(s) {
	case OrderTypePickup, OrderTypeDelivery:
		return OrderType(s), nil
	}
	return "", fmt.Errorf("unknown order type %q", s)
}

// CheckoutForm - черновик формы оформления. Живет только внутри сессии оформления
type CheckoutForm struct {
	Phone           string    `json:"phone"`
	OrderType       OrderType `json:"orderType"`
	DeliveryAddress string    `json:"deliveryAddress,omitempty"`
}

// Order - неизменяемый снимок оформленного заказа
type Order struct {
	OrderID          string          `json:"orderId"`
	Items            []LineItem      `json:"items"`
	Total            decimal.Decimal `json:"total"`
	Customer         CustomerInfo    `json:"customer"`
	OrderType        OrderType       `json:"orderType"`
	DeliveryAddress  string          `json:"deliveryAddress,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	EstimatedReadyAt string          `json:"estimatedReadyAt"`
}

// ItemCount - суммарное количество единиц товара в заказе
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// DispatchResult - итог рассылки уведомлений по заказу
type DispatchResult struct {
	MerchantNotified bool `json:"merchantNotified"`
	CustomerNotified bool `json:"customerNotified"`
}

// Succeeded - заказ считается принятым только если продавец получил уведомление
func (r DispatchResult) Succeeded() bool {
	return r.MerchantNotified
}

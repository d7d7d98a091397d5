package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/estimator"
)

const (
	rule            = "━━━━━━━━━━━━━━━━━━━━━━━━"
	timestampLayout = "2006-01-02 15:04:05"
)

type Estimator interface {
	Estimate(orderType models.OrderType, itemCount int) estimator.Estimate
}

// Formatter строит два текста по заказу: для продавца и для покупателя.
// Разметка - Telegram HTML, пользовательский ввод экранируется
type Formatter struct {
	est Estimator
	loc *time.Location
}

func NewFormatter(est Estimator, loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{est: est, loc: loc}
}

// MerchantReport - уведомление продавцу о новом заказе
func (f *Formatter) MerchantReport(o models.Order) string {
	var b strings.Builder

	b.WriteString("🍽️ <b>NEW ORDER RECEIVED!</b>\n")
	b.WriteString(rule + "\n\n")
	f.writeHeader(&b, o, "Ordered at")

	b.WriteString("👤 <b>CUSTOMER INFORMATION</b>\n")
	b.WriteString(rule + "\n")
	if name := o.Customer.FullName(); name != "" {
		fmt.Fprintf(&b, "📝 <b>Name:</b> %s\n", esc(name))
	}
	handle := o.Customer.TelegramHandle
	if handle == "" {
		handle = "N/A"
	}
	fmt.Fprintf(&b, "📱 <b>Telegram:</b> %s\n", esc(handle))
	fmt.Fprintf(&b, "☎️ <b>Phone:</b> %s\n", esc(o.Customer.Phone))
	if o.Customer.ExternalUserID != 0 {
		fmt.Fprintf(&b, "🆔 <b>User ID:</b> <code>%d</code>\n", o.Customer.ExternalUserID)
	}
	b.WriteString("\n")

	writeOrderType(&b, o, "Address")

	b.WriteString("\n🛒 <b>ORDER DETAILS</b>\n")
	b.WriteString(rule + "\n")
	for i, it := range o.Items {
		fmt.Fprintf(&b, "%d. %s <b>%s</b>\n", i+1, esc(it.Image), esc(it.Name))
		writeLinePrice(&b, it)
	}
	fmt.Fprintf(&b, "💳 <b>TOTAL AMOUNT: $%s</b>\n\n", o.Total.StringFixed(2))

	b.WriteString("⚡ <b>ACTION REQUIRED</b>\n")
	b.WriteString(rule + "\n")
	b.WriteString("1. 📞 Contact customer to confirm order\n")
	b.WriteString("2. 🍳 Start preparation\n")
	if o.OrderType == models.OrderTypeDelivery {
		b.WriteString("3. 🚚 Arrange delivery\n")
	} else {
		b.WriteString("3. 📢 Notify when ready for pickup\n")
	}
	b.WriteString("4. 💬 Update customer on progress\n\n")
	b.WriteString("🔔 <i>Customer will receive automatic confirmation.</i>")

	return b.String()
}

// CustomerReport - подтверждение для покупателя, без его персональных данных
func (f *Formatter) CustomerReport(o models.Order) string {
	var b strings.Builder

	b.WriteString("✅ <b>ORDER CONFIRMED!</b>\n")
	b.WriteString(rule + "\n\n")
	f.writeHeader(&b, o, "Placed")

	writeOrderType(&b, o, "Delivery to")

	b.WriteString("\n🛒 <b>YOUR ORDER</b>\n")
	b.WriteString(rule + "\n")
	for i, it := range o.Items {
		fmt.Fprintf(&b, "%d. %s <b>%s</b> × %d\n", i+1, esc(it.Image), esc(it.Name), it.Quantity)
		writeLinePrice(&b, it)
	}
	fmt.Fprintf(&b, "💳 <b>TOTAL: $%s</b>\n\n", o.Total.StringFixed(2))

	b.WriteString("📱 <b>WHAT HAPPENS NEXT?</b>\n")
	b.WriteString(rule + "\n")
	b.WriteString("1. 🍳 We'll start preparing your order\n")
	b.WriteString("2. 📞 You'll receive updates on progress\n")
	if o.OrderType == models.OrderTypeDelivery {
		b.WriteString("3. 🚚 Driver will contact you before delivery\n")
	} else {
		b.WriteString("3. 📢 We'll notify when ready for pickup\n")
	}
	b.WriteString("4. 😋 Enjoy your delicious meal!\n\n")

	b.WriteString("🔔 <i>You'll receive notifications about your order status.</i>\n")
	b.WriteString("🙏 <b>Thank you for your order!</b>")

	return b.String()
}

func (f *Formatter) writeHeader(b *strings.Builder, o models.Order, placedLabel string) {
	fmt.Fprintf(b, "📋 <b>Order ID:</b> <code>%s</code>\n", esc(o.OrderID))
	fmt.Fprintf(b, "🕐 <b>%s:</b> %s\n", placedLabel, o.CreatedAt.In(f.loc).Format(timestampLayout))
	fmt.Fprintf(b, "⏱️ <b>Est. %s Time:</b> %s\n\n", readyLabel(o.OrderType), f.estimate(o))
}

// estimate берет оценку из заказа, чтобы оба отчета совпадали;
// пересчитывает только если заказ собран без нее
func (f *Formatter) estimate(o models.Order) string {
	if o.EstimatedReadyAt != "" || f.est == nil {
		return esc(o.EstimatedReadyAt)
	}
	return f.est.Estimate(o.OrderType, o.ItemCount()).String()
}

func writeOrderType(b *strings.Builder, o models.Order, addressLabel string) {
	b.WriteString("📦 <b>ORDER TYPE</b>\n")
	b.WriteString(rule + "\n")
	if o.OrderType == models.OrderTypeDelivery {
		b.WriteString("🚚 <b>DELIVERY</b>\n")
		if o.DeliveryAddress != "" {
			fmt.Fprintf(b, "📍 <b>%s:</b> %s\n", addressLabel, esc(o.DeliveryAddress))
		}
		return
	}
	b.WriteString("🏪 <b>PICKUP</b>\n")
}

func writeLinePrice(b *strings.Builder, it models.LineItem) {
	fmt.Fprintf(b, "   💰 $%s × %d = <b>$%s</b>\n\n", it.UnitPrice.StringFixed(2), it.Quantity, it.ExtendedPrice().StringFixed(2))
}

func readyLabel(t models.OrderType) string {
	if t == models.OrderTypeDelivery {
		return "Delivery"
	}
	return "Ready"
}

func esc(s string) string {
	return html.EscapeString(s)
}

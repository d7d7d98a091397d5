// Package notify форматирует отчеты по заказу и рассылает их продавцу и покупателю.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/linemk/telegram-shop/internal/domain/models"
	"github.com/linemk/telegram-shop/internal/lib/metrics"
)

var ErrNotAcknowledged = errors.New("message was not acknowledged")

const (
	channelMerchant = "merchant"
	channelCustomer = "customer"

	defaultSendTimeout   = 10 * time.Second
	defaultCustomerGrace = 3 * time.Second
)

// Sender - транспорт сообщений. Ошибка и false трактуются одинаково
type Sender interface {
	Send(ctx context.Context, text, chatID string) (bool, error)
}

type Config struct {
	// SendTimeout ограничивает каждую отправку
	SendTimeout time.Duration
	// CustomerGrace - сколько Notify ждет подтверждение покупателю, прежде чем вернуть результат.
	// Отправка при этом продолжается в фоне
	CustomerGrace time.Duration
}

type Dispatcher struct {
	log       *slog.Logger
	sender    Sender
	formatter *Formatter
	metrics   *metrics.Metrics
	cfg       Config

	wg sync.WaitGroup
}

func NewDispatcher(log *slog.Logger, sender Sender, formatter *Formatter, m *metrics.Metrics, cfg Config) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.CustomerGrace <= 0 {
		cfg.CustomerGrace = defaultCustomerGrace
	}
	return &Dispatcher{
		log:       log,
		sender:    sender,
		formatter: formatter,
		metrics:   m,
		cfg:       cfg,
	}
}

// Notify отправляет отчет продавцу ровно один раз. Неудача здесь - ошибка всего заказа,
// покупателю тогда ничего не отправляется. Подтверждение покупателю (если задан customerChatID)
// отправляется после продавца, его ошибки только логируются
func (d *Dispatcher) Notify(ctx context.Context, o models.Order, merchantChatID, customerChatID string) (models.DispatchResult, error) {
	const op = "notify.Dispatcher.Notify"
	logger := d.log.With(slog.String("op", op), slog.String("orderID", o.OrderID))

	var res models.DispatchResult

	if err := d.send(ctx, channelMerchant, d.formatter.MerchantReport(o), merchantChatID); err != nil {
		logger.Error("merchant notification failed", slog.Any("error", err))
		return res, fmt.Errorf("%s: merchant notification: %w", op, err)
	}
	res.MerchantNotified = true
	logger.Info("merchant notified")

	if customerChatID == "" {
		return res, nil
	}

	text := d.formatter.CustomerReport(o)
	done := make(chan bool, 1)
	// отправка покупателю не зависит от отмены запроса
	cctx := context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.send(cctx, channelCustomer, text, customerChatID)
		if err != nil {
			logger.Warn("customer confirmation failed", slog.Any("error", err))
		} else {
			logger.Info("customer confirmation sent")
		}
		done <- err == nil
	}()

	timer := time.NewTimer(d.cfg.CustomerGrace)
	defer timer.Stop()
	select {
	case ok := <-done:
		res.CustomerNotified = ok
	case <-timer.C:
		logger.Warn("customer confirmation still in flight, not waiting")
	}
	return res, nil
}

// Wait дожидается фоновых отправок покупателям, используется при остановке
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, channel, text, chatID string) (err error) {
	start := time.Now()
	defer func() {
		d.metrics.ObserveDispatch(channel, err == nil, time.Since(start))
	}()
	defer func() {
		// транспорт не должен ронять оформление заказа
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()

	if chatID == "" {
		return errors.New("destination chat id is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	ok, err := d.sender.Send(ctx, text, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAcknowledged
	}
	return nil
}

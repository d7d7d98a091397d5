package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/telegram-shop/internal/checkout"
	"github.com/linemk/telegram-shop/internal/session"
)

// ErrOrderFailed - заказ собран, но продавец не получил уведомление
var ErrOrderFailed = errors.New("order was not delivered to the merchant")

// CheckoutView - ответ мини-приложению: состояние оформления, корзина
// и события UI, накопленные за запрос
type CheckoutView struct {
	Checkout checkout.Snapshot `json:"checkout"`
	Cart     session.CartView  `json:"cart"`
	Outcome  checkout.Outcome  `json:"outcome,omitempty"`
	Message  string            `json:"message,omitempty"`
	Events   []checkout.Event  `json:"events"`
}

type CheckoutService interface {
	Enter(ctx context.Context, p Principal) (CheckoutView, error)
	UpdateForm(ctx context.Context, p Principal, patch checkout.FormPatch) (CheckoutView, error)
	Submit(ctx context.Context, p Principal) (CheckoutView, error)
	Cancel(ctx context.Context, p Principal, confirmed bool) (CheckoutView, error)
	State(ctx context.Context, p Principal) (CheckoutView, error)
}

type checkoutService struct {
	log      *slog.Logger
	sessions Sessions
}

func NewCheckoutService(log *slog.Logger, sessions Sessions) CheckoutService {
	return &checkoutService{log: log, sessions: sessions}
}

func (s *checkoutService) Enter(ctx context.Context, p Principal) (CheckoutView, error) {
	const op = "service.checkoutService.Enter"
	return s.run(ctx, op, p, func(sess *session.Session, view *CheckoutView) error {
		return sess.Checkout().Enter()
	})
}

func (s *checkoutService) UpdateForm(ctx context.Context, p Principal, patch checkout.FormPatch) (CheckoutView, error) {
	const op = "service.checkoutService.UpdateForm"
	return s.run(ctx, op, p, func(sess *session.Session, view *CheckoutView) error {
		return sess.Checkout().UpdateForm(patch)
	})
}

// Submit не зависит от отмены запроса клиентом: начатая отправка доводится до конца,
// время ограничивает таймаут рассылки
func (s *checkoutService) Submit(ctx context.Context, p Principal) (CheckoutView, error) {
	const op = "service.checkoutService.Submit"
	return s.run(ctx, op, p, func(sess *session.Session, view *CheckoutView) error {
		res, err := sess.Checkout().Submit(context.WithoutCancel(ctx))
		view.Outcome = res.Outcome
		view.Message = res.Message
		if res.Outcome == checkout.OutcomeFailed {
			return fmt.Errorf("%w: %w", ErrOrderFailed, err)
		}
		return err
	})
}

// Cancel: confirmed - ответ пользователя на вопрос о сбросе заполненной формы
func (s *checkoutService) Cancel(ctx context.Context, p Principal, confirmed bool) (CheckoutView, error) {
	const op = "service.checkoutService.Cancel"
	return s.run(ctx, op, p, func(sess *session.Session, view *CheckoutView) error {
		if b := sess.Bridge(); b != nil {
			b.SetConfirmAnswer(confirmed)
			defer b.SetConfirmAnswer(true)
		}
		return sess.Checkout().Cancel()
	})
}

func (s *checkoutService) State(ctx context.Context, p Principal) (CheckoutView, error) {
	const op = "service.checkoutService.State"
	return s.run(ctx, op, p, func(*session.Session, *CheckoutView) error { return nil })
}

// run открывает сессию, выполняет действие и собирает ответ вместе с событиями UI,
// в том числе когда действие завершилось ошибкой
func (s *checkoutService) run(ctx context.Context, op string, p Principal, fn func(*session.Session, *CheckoutView) error) (CheckoutView, error) {
	logger := s.log.With(slog.String("op", op), slog.String("session", p.SessionKey))

	sess, err := open(ctx, s.sessions, p)
	if err != nil {
		logger.Error("failed to open session", slog.Any("error", err))
		return CheckoutView{}, fmt.Errorf("%s: %w", op, err)
	}

	var view CheckoutView
	actionErr := fn(sess, &view)

	view.Checkout = sess.Checkout().Snapshot()
	view.Cart = sess.View()
	view.Events = sess.Events()
	if view.Events == nil {
		view.Events = []checkout.Event{}
	}

	if actionErr != nil {
		logger.Info("checkout action rejected", slog.Any("error", actionErr))
		return view, fmt.Errorf("%s: %w", op, actionErr)
	}
	return view, nil
}

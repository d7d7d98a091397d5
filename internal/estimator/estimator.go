// Package estimator считает ориентировочное время готовности или доставки заказа.
// Результат намеренно содержит случайную составляющую: это запас по времени, а не расписание.
package estimator

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/linemk/telegram-shop/internal/domain/models"
)

const (
	basePrepMin      = 10
	basePrepMax      = 15
	minutesPerPair   = 3
	deliveryExtraMin = 15
	deliveryExtraMax = 25
)

// Rand - источник случайных чисел, *rand.Rand из math/rand/v2 подходит
type Rand interface {
	IntN(n int) int
}

// Estimate - результат оценки
type Estimate struct {
	ReadyBy string // HH:MM по локальному времени
	Minutes int
	At      time.Time
}

// String форматирует оценку как "HH:MM (~N minutes)"
func (e Estimate) String() string {
	return fmt.Sprintf("%s (~%d minutes)", e.ReadyBy, e.Minutes)
}

type Estimator struct {
	now func() time.Time
	loc *time.Location

	mu  sync.Mutex
	rnd Rand
}

type Option func(*Estimator)

// WithClock подменяет текущее время, нужно для тестов
func WithClock(now func() time.Time) Option {
	return func(e *Estimator) { e.now = now }
}

func WithRand(r Rand) Option {
	return func(e *Estimator) { e.rnd = r }
}

// WithLocation задает часовой пояс для HH:MM, по умолчанию time.Local
func WithLocation(loc *time.Location) Option {
	return func(e *Estimator) { e.loc = loc }
}

func New(opts ...Option) *Estimator {
	e := &Estimator{
		now: time.Now,
		loc: time.Local,
		rnd: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate: базовое время 10-15 минут, +3 минуты на каждые 2 единицы товара,
// для доставки еще 15-25 минут
func (e *Estimator) Estimate(orderType models.OrderType, itemCount int) Estimate {
	minutes := basePrepMin + e.intN(basePrepMax-basePrepMin+1)
	minutes += itemsExtra(itemCount)
	if orderType == models.OrderTypeDelivery {
		minutes += deliveryExtraMin + e.intN(deliveryExtraMax-deliveryExtraMin+1)
	}

	at := e.now().Add(time.Duration(minutes) * time.Minute).In(e.loc)
	return Estimate{
		ReadyBy: at.Format("15:04"),
		Minutes: minutes,
		At:      at,
	}
}

// Bounds возвращает допустимый диапазон минут для заданных параметров
func Bounds(orderType models.OrderType, itemCount int) (lo, hi int) {
	lo, hi = basePrepMin, basePrepMax
	extra := itemsExtra(itemCount)
	lo, hi = lo+extra, hi+extra
	if orderType == models.OrderTypeDelivery {
		lo, hi = lo+deliveryExtraMin, hi+deliveryExtraMax
	}
	return lo, hi
}

func itemsExtra(itemCount int) int {
	if itemCount < 0 {
		itemCount = 0
	}
	return (itemCount / 2) * minutesPerPair
}

func (e *Estimator) intN(n int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rnd.IntN(n)
}

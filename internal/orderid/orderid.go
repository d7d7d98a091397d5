// Package orderid выдает идентификаторы заказов вида ORD-<base36 ms>-<5 символов base36>.
package orderid

import (
	"errors"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	prefix       = "ORD"
	suffixLen    = 5
	maxAttempts  = 8
	retainIssued = time.Minute
)

var ErrExhausted = errors.New("order id: could not generate a unique id")

// Rand - источник случайности для суффикса
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Generator помнит выданные за последнюю минуту идентификаторы
// и перевыпускает id при совпадении
type Generator struct {
	now func() time.Time
	rnd Rand

	mu     sync.Mutex
	issued map[string]time.Time
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithRand(r Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

func New(opts ...Option) *Generator {
	g := &Generator{
		now:    time.Now,
		rnd:    globalRand{},
		issued: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate возвращает новый идентификатор, уникальный в пределах генератора
func (g *Generator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		id := format(now, g.suffix())
		if _, dup := g.issued[id]; dup {
			continue
		}
		g.issued[id] = now
		return id, nil
	}
	return "", ErrExhausted
}

func (g *Generator) suffix() string {
	var b strings.Builder
	for i := 0; i < suffixLen; i++ {
		b.WriteString(strconv.FormatInt(int64(g.rnd.IntN(36)), 36))
	}
	return b.String()
}

func (g *Generator) prune(now time.Time) {
	for id, at := range g.issued {
		if now.Sub(at) > retainIssued {
			delete(g.issued, id)
		}
	}
}

func format(t time.Time, suffix string) string {
	ts := strconv.FormatInt(t.UnixMilli(), 36)
	return strings.ToUpper(prefix + "-" + ts + "-" + suffix)
}

package checkout

import (
	"log/slog"
	"sync"
)

type HapticKind string

const (
	HapticLight   HapticKind = "light"
	HapticMedium  HapticKind = "medium"
	HapticHeavy   HapticKind = "heavy"
	HapticSuccess HapticKind = "success"
	HapticError   HapticKind = "error"
)

// HostUI - возможности хост-окружения (Telegram WebApp или его заменитель).
// Реализации не должны паниковать, но на всякий случай вызовы обернуты в safeUI
type HostUI interface {
	ShowMessage(text string)
	Confirm(text string) bool
	SignalHaptic(kind HapticKind)
}

// DetectHostUI выбирается один раз при создании сессии:
// живой мост, если он есть, иначе локальный заменитель, пишущий в лог
func DetectHostUI(bridge HostUI, log *slog.Logger) HostUI {
	if bridge != nil {
		return safeUI{ui: bridge, log: log}
	}
	return safeUI{ui: NewLocalUI(log), log: log}
}

// LocalUI используется, когда хост-окружения нет: сообщения уходят в лог,
// подтверждения считаются полученными
type LocalUI struct {
	log *slog.Logger
}

func NewLocalUI(log *slog.Logger) *LocalUI {
	return &LocalUI{log: log}
}

func (l *LocalUI) ShowMessage(text string) {
	l.log.Info("host message", slog.String("text", text))
}

func (l *LocalUI) Confirm(text string) bool {
	l.log.Info("host confirm (auto-accepted)", slog.String("text", text))
	return true
}

func (l *LocalUI) SignalHaptic(kind HapticKind) {
	l.log.Debug("host haptic", slog.String("kind", string(kind)))
}

// Event - то, что мост должен показать в мини-приложении
type Event struct {
	Type   string     `json:"type"` // message, confirm, haptic
	Text   string     `json:"text,omitempty"`
	Haptic HapticKind `json:"haptic,omitempty"`
}

// BridgeUI копит события для мини-приложения, HTTP-слой забирает их через Drain
// и возвращает в ответе. Ответ на Confirm задается заранее
type BridgeUI struct {
	mu        sync.Mutex
	events    []Event
	confirmed bool
}

func NewBridgeUI() *BridgeUI {
	return &BridgeUI{confirmed: true}
}

func (b *BridgeUI) ShowMessage(text string) {
	b.push(Event{Type: "message", Text: text})
}

func (b *BridgeUI) Confirm(text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, Event{Type: "confirm", Text: text})
	return b.confirmed
}

func (b *BridgeUI) SignalHaptic(kind HapticKind) {
	b.push(Event{Type: "haptic", Haptic: kind})
}

// SetConfirmAnswer задает ответ на следующие Confirm
func (b *BridgeUI) SetConfirmAnswer(ok bool) {
	b.mu.Lock()
	b.confirmed = ok
	b.mu.Unlock()
}

// Drain возвращает накопленные события и очищает очередь
func (b *BridgeUI) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

func (b *BridgeUI) push(e Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

type safeUI struct {
	ui  HostUI
	log *slog.Logger
}

func (s safeUI) ShowMessage(text string) {
	defer s.catch("ShowMessage")
	s.ui.ShowMessage(text)
}

func (s safeUI) Confirm(text string) (ok bool) {
	defer s.catch("Confirm")
	return s.ui.Confirm(text)
}

func (s safeUI) SignalHaptic(kind HapticKind) {
	defer s.catch("SignalHaptic")
	s.ui.SignalHaptic(kind)
}

func (s safeUI) catch(method string) {
	if r := recover(); r != nil {
		s.log.Warn("host ui call panicked", slog.String("method", method), slog.Any("panic", r))
	}
}

package models

import "strings"

// CustomerInfo - данные покупателя. Телефон вводит пользователь,
// остальное приходит из Telegram и может отсутствовать
type CustomerInfo struct {
	TelegramHandle string `json:"telegram,omitempty"`
	Phone          string `json:"phone"`
	FirstName      string `json:"firstName,omitempty"`
	LastName       string `json:"lastName,omitempty"`
	ExternalUserID int64  `json:"userId,omitempty"` // 0 - идентификатор неизвестен
}

// Identity - то, что отдает хост-окружение при входе в оформление заказа
type Identity struct {
	ExternalUserID int64  `json:"id,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Username       string `json:"username,omitempty"`
}

// Handle возвращает "@username" или "N/A"
func (i Identity) Handle() string {
	if i.Username == "" {
		return "N/A"
	}
	return "@" + strings.TrimPrefix(i.Username, "@")
}

// FullName собирает имя и фамилию, пустые части пропускаются
func (c CustomerInfo) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

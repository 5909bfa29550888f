package models

import "time"

// TokenPair — пара токенов, выдаваемая при входе.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — долгоживущий JWT, действующий пока в Redis жива запись сессии;
//   - AccessExpiresAt — момент истечения access-токена (UTC).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// Session — результат успешного входа: пользователь и выданные токены.
type Session struct {
	Principal *Principal
	Tokens    *TokenPair
}

// token выпускает и проверяет подписанные JWT (HS256) двух видов:
// короткоживущие access и долгоживущие refresh.
//
// Виды токенов подписываются независимыми секретами, поэтому access-токен,
// проверенный refresh-секретом (и наоборот), всегда даёт ErrInvalid.
// Codec не хранит состояния между вызовами и безопасен для конкурентного использования.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalid — подпись не сходится, алгоритм/issuer чужой или payload битый.
	ErrInvalid = errors.New("token invalid")
	// ErrExpired — подпись верна, но срок действия истёк.
	ErrExpired = errors.New("token expired")
)

// Kind — вид токена (определяет секрет и срок жизни).
type Kind int

const (
	Access Kind = iota
	Refresh
)

func (k Kind) String() string {
	switch k {
	case Access:
		return "access"
	case Refresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Claims — проверенное содержимое токена.
type Claims struct {
	Subject   uuid.UUID
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Params — параметры Codec.
type Params struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	// Now — источник времени; nil означает time.Now.
	Now func() time.Time
}

type signer struct {
	secret []byte
	ttl    time.Duration
}

// Codec выпускает и проверяет токены.
type Codec struct {
	access  signer
	refresh signer
	issuer  string
	now     func() time.Time
}

// New создаёт Codec. Пустые или совпадающие секреты — ошибка конфигурации.
func New(p Params) (*Codec, error) {
	const op = "token.New"

	if p.AccessSecret == "" || p.RefreshSecret == "" {
		return nil, fmt.Errorf("%s: empty secret", op)
	}

	if p.AccessSecret == p.RefreshSecret {
		return nil, fmt.Errorf("%s: access and refresh secrets must differ", op)
	}

	if p.AccessTTL <= 0 || p.RefreshTTL <= 0 {
		return nil, fmt.Errorf("%s: ttl must be > 0", op)
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		access:  signer{secret: []byte(p.AccessSecret), ttl: p.AccessTTL},
		refresh: signer{secret: []byte(p.RefreshSecret), ttl: p.RefreshTTL},
		issuer:  p.Issuer,
		now:     now,
	}, nil
}

// IssueAccess подписывает access-токен для субъекта.
func (c *Codec) IssueAccess(subject uuid.UUID) (string, time.Time, error) {
	return c.issue(Access, subject)
}

// IssueRefresh подписывает refresh-токен для субъекта.
func (c *Codec) IssueRefresh(subject uuid.UUID) (string, time.Time, error) {
	return c.issue(Refresh, subject)
}

// TTL возвращает срок жизни токенов указанного вида.
func (c *Codec) TTL(kind Kind) time.Duration {
	return c.signer(kind).ttl
}

func (c *Codec) issue(kind Kind, subject uuid.UUID) (string, time.Time, error) {
	const op = "token.issue"

	if subject == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("%s: empty subject", op)
	}

	s := c.signer(kind)
	now := c.now().UTC()
	exp := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		ID:        uuid.NewString(),
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: sign %s: %w", op, kind, err)
	}

	// Возвращаем exp с той же точностью, что и в токене (секунды).
	return signed, claims.ExpiresAt.Time.UTC(), nil
}

// Verify проверяет подпись и срок действия токена указанного вида.
// Возвращает ErrExpired, если подпись верна, а срок истёк; ErrInvalid — во всех
// остальных случаях отказа.
func (c *Codec) Verify(kind Kind, tokenStr string) (*Claims, error) {
	const op = "token.Verify"

	s := c.signer(kind)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}

		return s.secret, nil
	}, opts...)
	if err != nil {
		// jwt/v5 проверяет подпись раньше claims: ErrTokenExpired возможен
		// только для токена с верной подписью. Ошибки claims объединяются,
		// поэтому истёкший токен с чужим issuer остаётся invalid.
		if onlyExpired(err) {
			return nil, fmt.Errorf("%s: %s: %w", op, kind, ErrExpired)
		}

		return nil, fmt.Errorf("%s: %s: %w", op, kind, ErrInvalid)
	}

	if !tok.Valid {
		return nil, fmt.Errorf("%s: %s: %w", op, kind, ErrInvalid)
	}

	sub, err := uuid.Parse(claims.Subject)
	if err != nil || sub == uuid.Nil {
		return nil, fmt.Errorf("%s: %s: bad subject: %w", op, kind, ErrInvalid)
	}

	out := &Claims{
		Subject:   sub,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}

	return out, nil
}

func (c *Codec) signer(kind Kind) signer {
	if kind == Refresh {
		return c.refresh
	}

	return c.access
}

// onlyExpired — единственная претензия к токену: истёк срок действия.
func onlyExpired(err error) bool {
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return false
	}

	for _, other := range []error{
		jwt.ErrTokenInvalidIssuer,
		jwt.ErrTokenRequiredClaimMissing,
		jwt.ErrTokenUsedBeforeIssued,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenInvalidAudience,
		jwt.ErrTokenInvalidSubject,
	} {
		if errors.Is(err, other) {
			return false
		}
	}

	return true
}

// Package auth 登录相关: 密码加密和会话 token
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidToken = errors.New("invalid token")

// Session token 里携带的会话信息
type Session struct {
	TenantID int64  `json:"tenant_id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
}

type Claims struct {
	Session Session `json:"session"`
	jwt.RegisteredClaims
}

// TokenIssuer 签发和校验 HS256 token, Revoke 过的 token 在过期前都无效
type TokenIssuer struct {
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	revoked sync.Map // jti -> 过期时间
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate 生成 token
func (i *TokenIssuer) Generate(session Session) (string, error) {
	now := i.now()
	claims := &Claims{
		Session: session,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.WithMessage(err, "sign token failed")
	}
	return token, nil
}

// Validate 校验 token 并返回 claims
func (i *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, errors.WithMessagef(ErrInvalidToken, "%v", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, ok := i.revoked.Load(claims.ID); ok {
		return nil, errors.WithMessage(ErrInvalidToken, "token revoked")
	}
	return claims, nil
}

// Revoke 注销 token, 顺便清理已经过期的记录
func (i *TokenIssuer) Revoke(tokenString string) error {
	claims, err := i.Validate(tokenString)
	if err != nil {
		return err
	}
	now := i.now()
	i.revoked.Range(func(key, value any) bool {
		if exp, ok := value.(time.Time); ok && now.After(exp) {
			i.revoked.Delete(key)
		}
		return true
	})
	i.revoked.Store(claims.ID, claims.ExpiresAt.Time)
	return nil
}

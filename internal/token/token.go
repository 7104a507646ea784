// Package token issues and verifies the short-lived signaling tokens that
// admit participants to the media plane. Tokens are HS256-signed and carry
// the server-resolved role, never a client-asserted one.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	roomIdClaim    = "room"
	userIdClaim    = "user-id"
	userNameClaim  = "user-name"
	roleClaim      = "role"
	moderatorClaim = "moderator"
	expClaim       = "exp"
	iatClaim       = "iat"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the decoded content of a signaling token.
type Claims struct {
	RoomId    string
	UserId    string
	UserName  string
	Role      string
	Moderator bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Issuer struct {
	signingKey []byte
	ttl        time.Duration
}

func NewIssuer(signingKey []byte, ttl time.Duration) *Issuer {
	return &Issuer{signingKey: signingKey, ttl: ttl}
}

// Issue signs a token for the given participant. moderator mirrors whether
// role grants moderator privileges so the media plane need not know the
// role taxonomy.
func (i *Issuer) Issue(roomId, userId, userName, role string, moderator bool) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		roomIdClaim:    roomId,
		userIdClaim:    userId,
		userNameClaim:  userName,
		roleClaim:      role,
		moderatorClaim: moderator,
		iatClaim:       now.Unix(),
		expClaim:       exp.Unix(),
	})

	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, exp, nil
}

// Verify parses and validates a token string, returning its claims.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return i.signingKey, nil
	})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{}
	if claims.RoomId, ok = mapClaims[roomIdClaim].(string); !ok {
		return Claims{}, ErrInvalidToken
	}
	if claims.UserId, ok = mapClaims[userIdClaim].(string); !ok {
		return Claims{}, ErrInvalidToken
	}
	if claims.Role, ok = mapClaims[roleClaim].(string); !ok {
		return Claims{}, ErrInvalidToken
	}

	// optional claims
	claims.UserName, _ = mapClaims[userNameClaim].(string)
	claims.Moderator, _ = mapClaims[moderatorClaim].(bool)
	if iat, ok := mapClaims[iatClaim].(float64); ok {
		claims.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := mapClaims[expClaim].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}

	return claims, nil
}

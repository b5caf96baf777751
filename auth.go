package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/blake2b"
)

const (
	jwtExpiry        = 12 * time.Hour
	jwtIssuer        = "arena-server"
	loginRateWindow  = 60 * time.Second
	maxLoginAttempts = 10
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrTooManyAttempts    = errors.New("too many login attempts, try again later")
	ErrAdminDisabled      = errors.New("admin login is not configured")
)

// Auth checks the admin account and issues admin tokens. Its secret also
// keys the address hashes stored in the ban list.
type Auth struct {
	admin  AdminConfig
	secret []byte

	// Rate limiting for login attempts (IP -> attempts)
	rateMu  sync.Mutex
	rateMap map[string]*rateEntry
}

type rateEntry struct {
	Count   int
	ResetAt time.Time
}

// NewAuth creates a new Auth handler
func NewAuth(db *DB, admin AdminConfig) *Auth {
	return &Auth{
		admin:   admin,
		secret:  loadOrCreateSecret(db),
		rateMap: make(map[string]*rateEntry),
	}
}

// loadOrCreateSecret loads the signing secret from the database, or generates
// and persists a new one if none exists.
func loadOrCreateSecret(db *DB) []byte {
	if db != nil {
		if h := db.GetSetting("jwt_secret"); h != "" {
			if b, err := hex.DecodeString(h); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("failed to generate JWT secret: " + err.Error())
	}
	if db != nil {
		if err := db.SetSetting("jwt_secret", hex.EncodeToString(secret)); err != nil {
			log.Warn().Err(err).Msg("could not persist JWT secret")
		}
	}
	return secret
}

// HashAddr returns the keyed hash under which an address is stored
func (a *Auth) HashAddr(addr string) string {
	h, err := blake2b.New256(a.secret)
	if err != nil {
		// only fails for keys over 64 bytes
		panic(err)
	}
	h.Write([]byte(addr))
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Login checks the admin credentials and returns a signed token
func (a *Auth) Login(username, password, ip string) (string, error) {
	if a.admin.PasswordHash == "" {
		return "", ErrAdminDisabled
	}
	if !a.checkRate(ip) {
		return "", ErrTooManyAttempts
	}
	if username != a.admin.Username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.admin.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return a.generateToken(username)
}

// ValidateToken validates an admin token and returns its subject
func (a *Auth) ValidateToken(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("invalid token claims")
	}
	if sub != a.admin.Username {
		return "", fmt.Errorf("token subject %q is not the admin", sub)
	}
	return sub, nil
}

func (a *Auth) generateToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    jwtIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtExpiry)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Auth) checkRate(ip string) bool {
	a.rateMu.Lock()
	defer a.rateMu.Unlock()

	now := time.Now()
	entry, ok := a.rateMap[ip]
	if !ok || now.After(entry.ResetAt) {
		a.rateMap[ip] = &rateEntry{Count: 1, ResetAt: now.Add(loginRateWindow)}
		return true
	}
	entry.Count++
	return entry.Count <= maxLoginAttempts
}

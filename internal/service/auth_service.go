package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// Common auth errors.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSessionAlreadyActive = errors.New("another session is already active, please contact admin to reset")
	ErrNoActiveSession      = errors.New("no active session")
	ErrSessionInvalidated   = errors.New("session invalidated")
	ErrInvalidClaims        = errors.New("invalid token claims")
)

// TokenType distinguishes participant vs admin tokens.
type TokenType string

const (
	TokenTypeParticipant TokenType = "participant"
	TokenTypeAdmin       TokenType = "admin"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType   TokenType `json:"token_type"`
	UserID      int       `json:"user_id"`
	Permissions []string  `json:"permissions,omitempty"` // Admin only
}

// AuthService handles authentication, JWT, and single-device sessions.
type AuthService struct {
	cfg          *config.Config
	rdb          *redis.Client
	participants ParticipantReader
	clock        clock.Clock
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, rdb *redis.Client, participants ParticipantReader, clk clock.Clock) *AuthService {
	return &AuthService{cfg: cfg, rdb: rdb, participants: participants, clock: clk}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// LoginParticipant verifies credentials and issues a single-device token.
func (s *AuthService) LoginParticipant(ctx context.Context, username, password string) (*model.ParticipantLoginResponse, error) {
	p, err := s.participants.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrParticipantNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup participant: %w", err)
	}

	if err := s.CheckPassword(p.PasswordHash, password); err != nil {
		return nil, err
	}

	token, err := s.GenerateParticipantToken(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &model.ParticipantLoginResponse{Token: token, Participant: *p}, nil
}

// GenerateParticipantToken creates a JWT for a participant and registers the
// session in Redis. A second login while a session is active is rejected; the
// claim is taken with SET NX so two concurrent logins cannot both succeed.
func (s *AuthService) GenerateParticipantToken(ctx context.Context, participantID int) (string, error) {
	jti := uuid.New().String()
	sessionKey := config.CacheKey.ParticipantLoginKey(participantID)

	ok, err := s.rdb.SetNX(ctx, sessionKey, jti, s.cfg.JWTExpiry).Result()
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return "", ErrSessionAlreadyActive
	}

	signed, err := s.sign(jti, participantID, TokenTypeParticipant, nil)
	if err != nil {
		_ = s.rdb.Del(ctx, sessionKey).Err()
		return "", err
	}
	return signed, nil
}

// GenerateAdminToken creates a JWT for an operator with permissions embedded.
func (s *AuthService) GenerateAdminToken(adminID int, permissions []string) (string, error) {
	return s.sign(uuid.New().String(), adminID, TokenTypeAdmin, permissions)
}

func (s *AuthService) sign(jti string, userID int, tokenType TokenType, permissions []string) (string, error) {
	now := s.clock.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType:   tokenType,
		UserID:      userID,
		Permissions: permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

// ValidateParticipantSession checks that the token's JTI matches the active session in Redis.
func (s *AuthService) ValidateParticipantSession(ctx context.Context, participantID int, jti string) error {
	stored, err := s.rdb.Get(ctx, config.CacheKey.ParticipantLoginKey(participantID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoActiveSession
		}
		return fmt.Errorf("check session: %w", err)
	}
	if stored != jti {
		return ErrSessionInvalidated
	}
	return nil
}

// ResetParticipantLogin removes a participant's login from Redis, allowing a new login.
func (s *AuthService) ResetParticipantLogin(ctx context.Context, participantID int) error {
	return s.rdb.Del(ctx, config.CacheKey.ParticipantLoginKey(participantID)).Err()
}

package tasks

import (
	"context"
	"reflect"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Auther issues and refreshes access/refresh token pairs.
type Auther struct {
	provider        IdentityProvider
	signingKey      []byte
	accessTokenTTL  int
	refreshTokenTTL int
	issuer          string
	audience        []string
	logger          Logger
	tokenService    TokenService
	activitySink    ActivitySink
	tokenOptions    []TokenServiceOption
}

// TokenTypeBearer is the token_type reported in issued pairs.
const TokenTypeBearer = "bearer"

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config, tokenOpts ...TokenServiceOption) *Auther {
	accessTTL := opts.GetAccessTokenTTL()
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}

	refreshTTL := opts.GetRefreshTokenTTL()
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	a := &Auther{
		provider:        provider,
		signingKey:      []byte(opts.GetSigningKey()),
		accessTokenTTL:  accessTTL,
		refreshTokenTTL: refreshTTL,
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
		tokenOptions:    tokenOpts,
	}

	a.tokenService = a.newTokenService(a.logger)

	return a
}

func (s *Auther) newTokenService(logger Logger) TokenService {
	return NewTokenService(
		s.signingKey,
		s.issuer,
		jwt.ClaimStrings(s.audience),
		logger,
		s.tokenOptions...,
	)
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	s.tokenService = s.newTokenService(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials and issues a token pair.
func (s *Auther) Login(ctx context.Context, identifier, password string) (Identity, *TokenPair, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, identifier, password); err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return nil, nil, ErrIdentityNotFound
	}

	pair, err := s.issuePair(identity)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier": identifier,
	})

	return identity, pair, nil
}

// Refresh decodes the refresh token, resolves its subject to a live user,
// and issues a new pair. Every failure mode collapses into
// ErrRefreshInvalid: garbage tokens, expired tokens, access tokens passed
// in as refresh tokens, and subjects that no longer exist. The old refresh
// token is not revoked; it stays valid until its natural expiry.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (Identity, *TokenPair, error) {
	claims, err := s.tokenService.Validate(refreshToken)
	if err != nil {
		s.logger.Error("Refresh token validation failed", "error", err)
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"error": err.Error(),
		})
		return nil, nil, ErrRefreshInvalid
	}

	if claims.TokenUse() != TokenUseRefresh {
		s.logger.Error("Refresh called with non refresh token", "use", string(claims.TokenUse()))
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{Type: "unknown"}, claims.UserID(), map[string]any{
			"use": string(claims.TokenUse()),
		})
		return nil, nil, ErrRefreshInvalid
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil || identity == nil {
		s.logger.Error("Refresh subject no longer resolves", "user_id", claims.UserID())
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{Type: "unknown"}, claims.UserID(), map[string]any{
			"reason": "subject not found",
		})
		return nil, nil, ErrRefreshInvalid
	}

	pair, err := s.issuePair(identity)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"error": err.Error(),
		})
		return nil, nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, s.actorFromIdentity(identity), identity.ID(), nil)

	return identity, pair, nil
}

// IdentityFromToken validates an access token and resolves its subject.
func (s *Auther) IdentityFromToken(ctx context.Context, token string) (Identity, error) {
	claims, err := s.tokenService.Validate(token)
	if err != nil {
		return nil, err
	}

	if claims.TokenUse() != TokenUseAccess {
		return nil, ErrTokenMalformed
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil {
		s.logger.Error("IdentityFromToken find identity by identifier", "error", err)
		return nil, ErrTokenMalformed
	}

	return identity, nil
}

func (s *Auther) issuePair(identity Identity) (*TokenPair, error) {
	access, err := s.tokenService.Generate(identity, TokenUseAccess, s.accessTokenTTL)
	if err != nil {
		s.logger.Error("failed to sign access token", "error", err)
		return nil, err
	}

	refresh, err := s.tokenService.Generate(identity, TokenUseRefresh, s.refreshTokenTTL)
	if err != nil {
		s.logger.Error("failed to sign refresh token", "error", err)
		return nil, err
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.accessTokenTTL) * 60,
	}, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

var _ Authenticator = (*Auther)(nil)

package tasks

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-tasks/middleware/tokenware"
)

// ErrorResponse is the JSON error envelope for every failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Fields  any    `json:"fields,omitempty"`
}

// RouteAuthenticator wires token middleware and JSON error handling around
// an Authenticator.
type RouteAuthenticator struct {
	auth         Authenticator
	identities   IdentityProvider
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, identities IdentityProvider, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:        cfg,
		auth:       auther,
		identities: identities,
		Logger:     defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(l Logger) *RouteAuthenticator {
	if l != nil {
		a.Logger = l
	}
	return a
}

// ProtectedRoute guards a route group with bearer token validation. The
// token subject is resolved to a live identity; tokens whose subject no
// longer exists are rejected like any other invalid token.
func (a *RouteAuthenticator) ProtectedRoute(validator TokenService, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return tokenware.New(tokenware.Config{
		ErrorHandler:     errorHandler,
		AuthScheme:       a.cfg.GetAuthScheme(),
		ContextKey:       a.cfg.GetContextKey(),
		TokenLookup:      a.cfg.GetTokenLookup(),
		TokenValidator:   accessTokenValidator{service: validator},
		IdentityResolver: a.identityResolver(),
		ContextEnricher: func(ctx context.Context, claims tokenware.AuthClaims) context.Context {
			if authClaims, ok := claims.(AuthClaims); ok {
				return WithClaimsContext(ctx, authClaims)
			}
			return ctx
		},
	})
}

// MakeAuthErrorHandler maps token failures to the uniform JSON envelope.
// With optional set, failed auth falls through to the handler instead.
func (a *RouteAuthenticator) MakeAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if errors.As(err, &richErr) && richErr.Category == errors.CategoryAuth {
			// keep the mapped auth error
		} else {
			richErr = errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
				WithTextCode(ErrTokenMalformed.TextCode).
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) identityResolver() tokenware.IdentityResolver {
	return func(ctx context.Context, claims tokenware.AuthClaims) (any, error) {
		identity, err := a.identities.FindIdentityByIdentifier(ctx, claims.UserID())
		if err != nil {
			a.Logger.Info("token subject no longer resolves", "user_id", claims.UserID())
			return nil, ErrTokenMalformed
		}
		return identity, nil
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	return RespondError(c, err)
}

// accessTokenValidator rejects refresh tokens presented on protected routes.
type accessTokenValidator struct {
	service TokenService
}

func (v accessTokenValidator) Validate(tokenString string) (tokenware.AuthClaims, error) {
	claims, err := v.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.TokenUse() != TokenUseAccess {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// RespondError writes the JSON error envelope. Rich errors keep their
// category-derived status and message; anything else is reported as an
// opaque internal error so internals never leak to clients.
func RespondError(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := statusFromError(richErr)

	payload := ErrorResponse{
		Error:   errorLabel(status),
		Message: richErr.Message,
	}

	if richErr.Category == errors.CategoryValidation {
		if fields := richErr.ValidationMap(); len(fields) > 0 {
			payload.Fields = fields
		}
	}

	if status >= router.StatusInternalServerError {
		payload.Message = "An internal error occurred"
	}

	return c.JSON(status, payload)
}

func statusFromError(richErr *errors.Error) int {
	if richErr.Code > 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput:
		return router.StatusBadRequest
	case errors.CategoryAuth:
		return router.StatusUnauthorized
	case errors.CategoryAuthz:
		return router.StatusForbidden
	case errors.CategoryNotFound:
		return router.StatusNotFound
	case errors.CategoryConflict:
		return router.StatusConflict
	default:
		return router.StatusInternalServerError
	}
}

func errorLabel(status int) string {
	switch status {
	case router.StatusBadRequest:
		return "bad_request"
	case router.StatusUnauthorized:
		return "unauthorized"
	case router.StatusForbidden:
		return "forbidden"
	case router.StatusNotFound:
		return "not_found"
	case router.StatusConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

func debugPayload(logger Logger, label string, payload any) {
	logger.Debug(label, "payload", print.MaybePrettyJSON(payload))
}

package tasks_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-router"
	tasks "github.com/goliatone/go-tasks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func passthroughMiddleware(next router.HandlerFunc) router.HandlerFunc {
	return next
}

func newAuthController(repo tasks.RepositoryManager, auther tasks.Authenticator) *tasks.AuthController {
	return tasks.NewAuthController(func(c *tasks.AuthController) *tasks.AuthController {
		c.Repo = repo
		c.Auther = auther
		c.Protected = passthroughMiddleware
		return c
	}).WithLogger(testLogger{})
}

func bindPayload[T any](payload *T) func(mock.Arguments) {
	return func(args mock.Arguments) {
		target := args.Get(0).(*T)
		*target = *payload
	}
}

func TestRegisterPost(t *testing.T) {
	t.Run("creates the user", func(t *testing.T) {
		repo := newTestRepo(t)
		controller := newAuthController(repo, &MockAuthenticator{})

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.RegisterRequest{
				Name:     "Alice",
				Email:    "alice@example.com",
				Password: "sekret-password",
			})).
			Return(nil)
		ctx.On("Context").Return(context.Background())

		var record *tasks.User
		ctx.On("JSON", router.StatusOK, mock.Anything).
			Run(func(args mock.Arguments) {
				record = args.Get(1).(*tasks.User)
			}).
			Return(nil)

		require.NoError(t, controller.RegisterPost(ctx))
		require.NotNil(t, record)
		assert.Equal(t, "alice@example.com", record.Email)
		assert.Equal(t, "alice", record.Username)
		assert.NotEmpty(t, record.PasswordHash)

		stored, err := repo.Users().GetByIdentifier(context.Background(), "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, record.ID, stored.ID)
	})

	t.Run("rejects an invalid payload", func(t *testing.T) {
		repo := newTestRepo(t)
		controller := newAuthController(repo, &MockAuthenticator{})

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.RegisterRequest{
				Email:    "not-an-email",
				Password: "sekret-password",
			})).
			Return(nil)

		var payload tasks.ErrorResponse
		ctx.On("JSON", router.StatusBadRequest, mock.Anything).
			Run(func(args mock.Arguments) {
				payload = args.Get(1).(tasks.ErrorResponse)
			}).
			Return(nil)

		require.NoError(t, controller.RegisterPost(ctx))
		assert.Equal(t, "bad_request", payload.Error)
		assert.NotNil(t, payload.Fields)
	})

	t.Run("reports a taken email as a conflict", func(t *testing.T) {
		repo := newTestRepo(t)
		seedUser(t, repo, "alice", "alice@example.com", "sekret-password")
		controller := newAuthController(repo, &MockAuthenticator{})

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.RegisterRequest{
				Email:    "alice@example.com",
				Password: "another-password",
			})).
			Return(nil)
		ctx.On("Context").Return(context.Background())

		var payload tasks.ErrorResponse
		ctx.On("JSON", router.StatusConflict, mock.Anything).
			Run(func(args mock.Arguments) {
				payload = args.Get(1).(tasks.ErrorResponse)
			}).
			Return(nil)

		require.NoError(t, controller.RegisterPost(ctx))
		assert.Equal(t, "conflict", payload.Error)
		assert.Equal(t, "Email already registered", payload.Message)
	})
}

func TestLoginPost(t *testing.T) {
	t.Run("returns the bearer pair", func(t *testing.T) {
		auther := &MockAuthenticator{}
		identity := testIdentity{id: "user-1", username: "alice", email: "alice@example.com", role: "member"}
		pair := &tasks.TokenPair{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			TokenType:    "bearer",
			ExpiresIn:    1800,
		}
		auther.On("Login", mock.Anything, "alice@example.com", "sekret-password").
			Return(identity, pair, nil)

		controller := newAuthController(newTestRepo(t), auther)

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.LoginRequest{
				Identifier: "alice@example.com",
				Password:   "sekret-password",
			})).
			Return(nil)
		ctx.On("Context").Return(context.Background())

		var response tasks.LoginResponse
		ctx.On("JSON", router.StatusOK, mock.Anything).
			Run(func(args mock.Arguments) {
				response = args.Get(1).(tasks.LoginResponse)
			}).
			Return(nil)

		require.NoError(t, controller.LoginPost(ctx))
		assert.Equal(t, "access-token", response.AccessToken)
		assert.Equal(t, "refresh-token", response.RefreshToken)
		assert.Equal(t, "bearer", response.TokenType)
		assert.EqualValues(t, 1800, response.ExpiresIn)
		require.NotNil(t, response.User)
		assert.Equal(t, "alice", response.User.Username)

		auther.AssertExpectations(t)
	})

	t.Run("accepts username as the identifier", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("Login", mock.Anything, "alice", "sekret-password").
			Return(testIdentity{id: "user-1"}, &tasks.TokenPair{TokenType: "bearer"}, nil)

		controller := newAuthController(newTestRepo(t), auther)

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.LoginRequest{
				Username: "alice",
				Password: "sekret-password",
			})).
			Return(nil)
		ctx.On("Context").Return(context.Background())
		ctx.On("JSON", router.StatusOK, mock.Anything).Return(nil)

		require.NoError(t, controller.LoginPost(ctx))
		auther.AssertExpectations(t)
	})

	t.Run("bad credentials are unauthorized", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("Login", mock.Anything, "alice@example.com", "wrong").
			Return(nil, nil, tasks.ErrMismatchedHashAndPassword)

		controller := newAuthController(newTestRepo(t), auther)

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.LoginRequest{
				Identifier: "alice@example.com",
				Password:   "wrong",
			})).
			Return(nil)
		ctx.On("Context").Return(context.Background())

		var payload tasks.ErrorResponse
		ctx.On("JSON", router.StatusUnauthorized, mock.Anything).
			Run(func(args mock.Arguments) {
				payload = args.Get(1).(tasks.ErrorResponse)
			}).
			Return(nil)

		require.NoError(t, controller.LoginPost(ctx))
		assert.Equal(t, "incorrect username or password", payload.Message)
	})

	t.Run("missing identifier never reaches the authenticator", func(t *testing.T) {
		auther := &MockAuthenticator{}
		controller := newAuthController(newTestRepo(t), auther)

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.LoginRequest{Password: "sekret-password"})).
			Return(nil)
		ctx.On("JSON", router.StatusUnauthorized, mock.Anything).Return(nil)

		require.NoError(t, controller.LoginPost(ctx))
		auther.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRefreshPost(t *testing.T) {
	t.Run("issues a fresh pair", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("Refresh", mock.Anything, "refresh-token").
			Return(testIdentity{id: "user-1", username: "alice"}, &tasks.TokenPair{
				AccessToken:  "new-access",
				RefreshToken: "new-refresh",
				TokenType:    "bearer",
				ExpiresIn:    1800,
			}, nil)

		controller := newAuthController(newTestRepo(t), auther)

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.RefreshRequest{RefreshToken: "refresh-token"})).
			Return(nil)
		ctx.On("Context").Return(context.Background())

		var response tasks.LoginResponse
		ctx.On("JSON", router.StatusOK, mock.Anything).
			Run(func(args mock.Arguments) {
				response = args.Get(1).(tasks.LoginResponse)
			}).
			Return(nil)

		require.NoError(t, controller.RefreshPost(ctx))
		assert.Equal(t, "new-access", response.AccessToken)
		assert.Equal(t, "new-refresh", response.RefreshToken)
	})

	t.Run("requires the refresh token field", func(t *testing.T) {
		auther := &MockAuthenticator{}
		controller := newAuthController(newTestRepo(t), auther)

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.RefreshRequest{})).
			Return(nil)
		ctx.On("JSON", router.StatusBadRequest, mock.Anything).Return(nil)

		require.NoError(t, controller.RefreshPost(ctx))
		auther.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	})

	t.Run("invalid refresh tokens are unauthorized", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("Refresh", mock.Anything, "stale-token").
			Return(nil, nil, tasks.ErrRefreshInvalid)

		controller := newAuthController(newTestRepo(t), auther)

		ctx := &MockContext{}
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.RefreshRequest{RefreshToken: "stale-token"})).
			Return(nil)
		ctx.On("Context").Return(context.Background())

		var payload tasks.ErrorResponse
		ctx.On("JSON", router.StatusUnauthorized, mock.Anything).
			Run(func(args mock.Arguments) {
				payload = args.Get(1).(tasks.ErrorResponse)
			}).
			Return(nil)

		require.NoError(t, controller.RefreshPost(ctx))
		assert.Equal(t, "invalid or expired refresh token", payload.Message)
	})
}

func TestUserList(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "alice", "alice@example.com", "sekret-password")
	seedUser(t, repo, "bob", "bob@example.com", "sekret-password")
	controller := newAuthController(repo, &MockAuthenticator{})

	ctx := &MockContext{}
	ctx.On("QueryInt", "skip", 0).Return(0)
	ctx.On("QueryInt", "limit", 100).Return(100)
	ctx.On("Context").Return(context.Background())

	var records []*tasks.UserRecord
	ctx.On("JSON", router.StatusOK, mock.Anything).
		Run(func(args mock.Arguments) {
			records = args.Get(1).([]*tasks.UserRecord)
		}).
		Return(nil)

	require.NoError(t, controller.UserList(ctx))
	require.Len(t, records, 2)
	for _, record := range records {
		assert.NotEmpty(t, record.ID)
		assert.NotEmpty(t, record.Email)
	}
}

func TestUserShow(t *testing.T) {
	repo := newTestRepo(t)
	seeded := seedUser(t, repo, "alice", "alice@example.com", "sekret-password")
	controller := newAuthController(repo, &MockAuthenticator{})

	t.Run("returns the public record", func(t *testing.T) {
		ctx := &MockContext{}
		ctx.On("Param", "id").Return(seeded.ID.String())
		ctx.On("Context").Return(context.Background())

		var record *tasks.UserRecord
		ctx.On("JSON", router.StatusOK, mock.Anything).
			Run(func(args mock.Arguments) {
				record = args.Get(1).(*tasks.UserRecord)
			}).
			Return(nil)

		require.NoError(t, controller.UserShow(ctx))
		require.NotNil(t, record)
		assert.Equal(t, seeded.ID.String(), record.ID)
		assert.Equal(t, "alice@example.com", record.Email)
	})

	t.Run("unknown users are not found", func(t *testing.T) {
		ctx := &MockContext{}
		ctx.On("Param", "id").Return(uuid.New().String())
		ctx.On("Context").Return(context.Background())
		ctx.On("JSON", router.StatusNotFound, mock.Anything).Return(nil)

		require.NoError(t, controller.UserShow(ctx))
		ctx.AssertExpectations(t)
	})
}

func TestUserUpdate(t *testing.T) {
	t.Run("applies a partial patch", func(t *testing.T) {
		repo := newTestRepo(t)
		seeded := seedUser(t, repo, "alice", "alice@example.com", "sekret-password")
		controller := newAuthController(repo, &MockAuthenticator{})

		name := "Alice Cooper"
		ctx := &MockContext{}
		ctx.On("Param", "id").Return(seeded.ID.String())
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.UpdateUserRequest{Name: &name})).
			Return(nil)
		ctx.On("Context").Return(context.Background())

		var record *tasks.UserRecord
		ctx.On("JSON", router.StatusOK, mock.Anything).
			Run(func(args mock.Arguments) {
				record = args.Get(1).(*tasks.UserRecord)
			}).
			Return(nil)

		require.NoError(t, controller.UserUpdate(ctx))
		require.NotNil(t, record)
		assert.Equal(t, "Alice Cooper", record.Name)
		assert.Equal(t, "alice", record.Username)
	})

	t.Run("rejects a malformed id", func(t *testing.T) {
		controller := newAuthController(newTestRepo(t), &MockAuthenticator{})

		ctx := &MockContext{}
		ctx.On("Param", "id").Return("not-a-uuid")
		ctx.On("JSON", router.StatusBadRequest, mock.Anything).Return(nil)

		require.NoError(t, controller.UserUpdate(ctx))
		ctx.AssertExpectations(t)
	})

	t.Run("rejects an invalid email", func(t *testing.T) {
		repo := newTestRepo(t)
		seeded := seedUser(t, repo, "alice", "alice@example.com", "sekret-password")
		controller := newAuthController(repo, &MockAuthenticator{})

		email := "not-an-email"
		ctx := &MockContext{}
		ctx.On("Param", "id").Return(seeded.ID.String())
		ctx.On("Bind", mock.Anything).
			Run(bindPayload(&tasks.UpdateUserRequest{Email: &email})).
			Return(nil)
		ctx.On("JSON", router.StatusBadRequest, mock.Anything).Return(nil)

		require.NoError(t, controller.UserUpdate(ctx))
		ctx.AssertExpectations(t)
	})
}

func TestUserDelete(t *testing.T) {
	repo := newTestRepo(t)
	seeded := seedUser(t, repo, "alice", "alice@example.com", "sekret-password")
	controller := newAuthController(repo, &MockAuthenticator{})

	ctx := &MockContext{}
	ctx.On("Param", "id").Return(seeded.ID.String())
	ctx.On("Context").Return(context.Background())

	var payload map[string]string
	ctx.On("JSON", router.StatusOK, mock.Anything).
		Run(func(args mock.Arguments) {
			payload = args.Get(1).(map[string]string)
		}).
		Return(nil)

	require.NoError(t, controller.UserDelete(ctx))
	assert.Equal(t, "User deleted", payload["message"])

	_, err := repo.Users().GetByIdentifier(context.Background(), "alice@example.com")
	require.Error(t, err)
}

package tasks

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterAuthRoutes mounts registration, login, refresh and the user CRUD
// endpoints. Register, login and refresh are open; the rest sit behind the
// controller's Protected middleware.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Register, controller.RegisterPost).
		SetName("users.register")

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("users.login")

	app.Post(controller.Routes.Refresh, controller.RefreshPost).
		SetName("users.refresh")

	app.Get(controller.Routes.Users, controller.UserList, controller.Protected).
		SetName("users.list")
	app.Get(controller.Routes.User, controller.UserShow, controller.Protected).
		SetName("users.show")
	app.Put(controller.Routes.User, controller.UserUpdate, controller.Protected).
		SetName("users.update")
	app.Delete(controller.Routes.User, controller.UserDelete, controller.Protected).
		SetName("users.delete")
}

type AuthControllerRoutes struct {
	Register string
	Login    string
	Refresh  string
	Users    string
	User     string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Auther       Authenticator
	Protected    router.MiddlewareFunc
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: RespondError,
		Routes: &AuthControllerRoutes{
			Register: "/users",
			Login:    "/users/login",
			Refresh:  "/users/refresh",
			Users:    "/users",
			User:     "/users/:id",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Protected == nil {
		panic("Missing Protected middleware in auth controller...")
	}

	return c
}

func (a *AuthController) WithLogger(l Logger) *AuthController {
	if l != nil {
		a.Logger = l
	}
	return a
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Name, validation.Length(0, 200)),
			validation.Field(&r.Username, validation.Length(3, 100)),
			validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
			validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
		)
	}, "Invalid registration payload")
}

func (a *AuthController) RegisterPost(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		debugPayload(a.Logger, "register user", payload)
	}

	var record *User
	req := RegisterUserMessage{
		Name:     payload.Name,
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(u *User) {
			record = u
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo)
	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user execute", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

// LoginRequest payload. Identifier and Username are aliases so clients can
// send either key.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	if r.Identifier != "" {
		return r.Identifier
	}
	return r.Username
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// Validate will run validation rules
func (r LoginRequest) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Password, validation.Required),
		)
	}, "Invalid login payload")
}

// LoginResponse carries the issued pair plus the authenticated user
type LoginResponse struct {
	User         *UserRecord `json:"user,omitempty"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if payload.GetIdentifier() == "" {
		return a.ErrorHandler(ctx, ErrMismatchedHashAndPassword)
	}

	identity, pair, err := a.Auther.Login(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Info("login failed", "identifier", payload.GetIdentifier())
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, LoginResponse{
		User:         userRecordFromIdentity(identity),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// RefreshRequest payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshRequest) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.RefreshToken, validation.Required),
		)
	}, "Invalid refresh payload")
}

func (a *AuthController) RefreshPost(ctx router.Context) error {
	payload := new(RefreshRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	identity, pair, err := a.Auther.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, LoginResponse{
		User:         userRecordFromIdentity(identity),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
	})
}

// UserRecord is the public user DTO; it never carries the password hash.
type UserRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
}

func userRecordFromIdentity(identity Identity) *UserRecord {
	if identity == nil {
		return nil
	}
	return &UserRecord{
		ID:       identity.ID(),
		Username: identity.Username(),
		Email:    identity.Email(),
		Role:     identity.Role(),
	}
}

// NewUserDTO maps a stored user to the public record
func NewUserDTO(user *User) *UserRecord {
	if user == nil {
		return nil
	}
	return &UserRecord{
		ID:       user.ID.String(),
		Name:     user.Name,
		Username: user.Username,
		Email:    user.Email,
		Role:     string(user.Role),
	}
}

func (a *AuthController) UserList(ctx router.Context) error {
	skip := ctx.QueryInt("skip", 0)
	limit := ctx.QueryInt("limit", 100)

	records, err := a.Repo.Users().ListPage(ctx.Context(), skip, limit)
	if err != nil {
		a.Logger.Error("user list", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	out := make([]*UserRecord, 0, len(records))
	for _, record := range records {
		out = append(out, NewUserDTO(record))
	}

	return ctx.JSON(router.StatusOK, out)
}

func (a *AuthController) UserShow(ctx router.Context) error {
	id := ctx.Param("id")

	record, err := a.Repo.Users().GetByID(ctx.Context(), id)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, NewUserDTO(record))
}

// UpdateUserRequest is a partial profile update
type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

// Validate will run validation rules
func (r UpdateUserRequest) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Username, validation.By(optionalLength(3, 100))),
			validation.Field(&r.Email, validation.By(optionalEmail)),
		)
	}, "Invalid user update payload")
}

func (a *AuthController) UserUpdate(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, errors.New("Invalid user id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest))
	}

	payload := new(UpdateUserRequest)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	record, err := a.Repo.Users().UpdateProfile(ctx.Context(), id, UserPatch{
		Name:     payload.Name,
		Username: payload.Username,
		Email:    payload.Email,
	})
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, NewUserDTO(record))
}

func (a *AuthController) UserDelete(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return a.ErrorHandler(ctx, errors.New("Invalid user id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest))
	}

	if err := a.Repo.Users().DeleteByID(ctx.Context(), id); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{"message": "User deleted"})
}

func optionalLength(min, max int) validation.RuleFunc {
	return func(value any) error {
		s, ok := value.(*string)
		if !ok || s == nil {
			return nil
		}
		return validation.Validate(*s, validation.Length(min, max))
	}
}

func optionalEmail(value any) error {
	s, ok := value.(*string)
	if !ok || s == nil {
		return nil
	}
	return validation.Validate(*s, is.Email)
}

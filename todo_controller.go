package tasks

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterTodoRoutes mounts the todo endpoints. Reads are open; mutations and
// the productivity report require an authenticated identity.
func RegisterTodoRoutes[T any](app router.Router[T], opts ...TodoControllerOption) {
	controller := NewTodoController(opts...)

	app.Post(controller.Routes.Todos, controller.TodoCreate, controller.Protected).
		SetName("todos.create")

	app.Get(controller.Routes.Todos, controller.TodoList).
		SetName("todos.list")

	app.Get(controller.Routes.Productivity, controller.Productivity, controller.Protected).
		SetName("todos.productivity")

	app.Get(controller.Routes.Todo, controller.TodoShow).
		SetName("todos.show")
	app.Put(controller.Routes.Todo, controller.TodoUpdate, controller.Protected).
		SetName("todos.update")
	app.Delete(controller.Routes.Todo, controller.TodoDelete, controller.Protected).
		SetName("todos.delete")
}

type TodoControllerRoutes struct {
	Todos        string
	Todo         string
	Productivity string
}

type TodoController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *TodoControllerRoutes
	Insights     *InsightService
	Protected    router.MiddlewareFunc
	ContextKey   string
	ErrorHandler router.ErrorHandler
}

type TodoControllerOption func(*TodoController) *TodoController

func NewTodoController(opts ...TodoControllerOption) *TodoController {
	c := &TodoController{
		Logger:       defLogger{},
		ContextKey:   "user",
		ErrorHandler: RespondError,
		Routes: &TodoControllerRoutes{
			Todos:        "/todos",
			Todo:         "/todos/:id",
			Productivity: "/todos/productivity",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in todo controller...")
	}

	if c.Protected == nil {
		panic("Missing Protected middleware in todo controller...")
	}

	if c.Insights == nil {
		c.Insights = NewInsightService(c.Repo.Todos(), nil)
	}

	return c
}

func (t *TodoController) WithLogger(l Logger) *TodoController {
	if l != nil {
		t.Logger = l
	}
	return t
}

// ownerID resolves the authenticated user from the claims the token
// middleware stored in the request locals.
func (t *TodoController) ownerID(ctx router.Context) (uuid.UUID, error) {
	claims, ok := GetRouterClaims(ctx, t.ContextKey)
	if !ok {
		return uuid.Nil, ErrTokenMalformed
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return uuid.Nil, ErrTokenMalformed
	}

	return id, nil
}

// CreateTodoRequest is the todo creation payload
type CreateTodoRequest struct {
	Title    string     `json:"title"`
	Content  string     `json:"content"`
	Priority *int       `json:"priority"`
	DueDate  *time.Time `json:"due_date"`
}

// Validate will run validation rules
func (r CreateTodoRequest) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Title, validation.Required, validation.Length(1, 200)),
			validation.Field(&r.Priority, validation.By(optionalPriority)),
		)
	}, "Invalid todo payload")
}

func (t *TodoController) TodoCreate(ctx router.Context) error {
	owner, err := t.ownerID(ctx)
	if err != nil {
		return t.ErrorHandler(ctx, err)
	}

	payload := new(CreateTodoRequest)
	if err := ctx.Bind(payload); err != nil {
		t.Logger.Error("create todo parse payload", "error", err)
		return t.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return t.ErrorHandler(ctx, err)
	}

	if t.Debug {
		debugPayload(t.Logger, "create todo", payload)
	}

	record, err := t.Repo.Todos().CreateOwned(ctx.Context(), owner, &Todo{
		Title:    payload.Title,
		Content:  payload.Content,
		Priority: payload.Priority,
		DueDate:  payload.DueDate,
	})
	if err != nil {
		t.Logger.Error("create todo", "error", err)
		return t.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, record)
}

func (t *TodoController) TodoList(ctx router.Context) error {
	skip := ctx.QueryInt("skip", 0)
	limit := ctx.QueryInt("limit", 100)

	records, err := t.Repo.Todos().ListPage(ctx.Context(), skip, limit)
	if err != nil {
		t.Logger.Error("todo list", "error", err)
		return t.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, records)
}

func (t *TodoController) TodoShow(ctx router.Context) error {
	id := ctx.Param("id")

	record, err := t.Repo.Todos().GetByID(ctx.Context(), id)
	if err != nil {
		return t.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

// UpdateTodoRequest is a partial update; absent fields keep their value.
type UpdateTodoRequest struct {
	Title     *string    `json:"title"`
	Content   *string    `json:"content"`
	Completed *bool      `json:"completed"`
	Priority  *int       `json:"priority"`
	DueDate   *time.Time `json:"due_date"`
}

// Validate will run validation rules
func (r UpdateTodoRequest) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Title, validation.By(optionalLength(1, 200))),
			validation.Field(&r.Priority, validation.By(optionalPriority)),
		)
	}, "Invalid todo payload")
}

func (t *TodoController) TodoUpdate(ctx router.Context) error {
	owner, err := t.ownerID(ctx)
	if err != nil {
		return t.ErrorHandler(ctx, err)
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return t.ErrorHandler(ctx, errors.New("Invalid todo id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest))
	}

	payload := new(UpdateTodoRequest)
	if err := ctx.Bind(payload); err != nil {
		return t.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "Invalid request body").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return t.ErrorHandler(ctx, err)
	}

	record, err := t.Repo.Todos().UpdateOwned(ctx.Context(), owner, id, TodoPatch{
		Title:     payload.Title,
		Content:   payload.Content,
		Completed: payload.Completed,
		Priority:  payload.Priority,
		DueDate:   payload.DueDate,
	})
	if err != nil {
		return t.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, record)
}

func (t *TodoController) TodoDelete(ctx router.Context) error {
	owner, err := t.ownerID(ctx)
	if err != nil {
		return t.ErrorHandler(ctx, err)
	}

	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return t.ErrorHandler(ctx, errors.New("Invalid todo id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest))
	}

	if err := t.Repo.Todos().DeleteOwned(ctx.Context(), owner, id); err != nil {
		return t.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{"message": "Todo deleted"})
}

func (t *TodoController) Productivity(ctx router.Context) error {
	owner, err := t.ownerID(ctx)
	if err != nil {
		return t.ErrorHandler(ctx, err)
	}

	report, err := t.Insights.Report(ctx.Context(), owner)
	if err != nil {
		t.Logger.Error("productivity report", "error", err)
		return t.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, report)
}

func optionalPriority(value any) error {
	p, ok := value.(*int)
	if !ok || p == nil {
		return nil
	}
	return validation.Validate(*p, validation.Min(1), validation.Max(3))
}

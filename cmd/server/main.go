package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-router"
	tasks "github.com/goliatone/go-tasks"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	config *Config
	bunDB  *bun.DB
	auth   tasks.Authenticator
	auther *tasks.RouteAuthenticator
	repo   tasks.RepositoryManager
	srv    router.Server[*fiber.App]
}

// Config is the env backed application configuration
type Config struct {
	SigningKey      string
	Issuer          string
	Audience        []string
	AccessTokenTTL  int
	RefreshTokenTTL int
	DSN             string
	Address         string
	OllamaHost      string
	OllamaModel     string
	PingTimeout     time.Duration
	Debug           bool
}

func (c *Config) GetSigningKey() string    { return c.SigningKey }
func (c *Config) GetSigningMethod() string { return "HS256" }
func (c *Config) GetContextKey() string    { return "user" }
func (c *Config) GetAccessTokenTTL() int   { return c.AccessTokenTTL }
func (c *Config) GetRefreshTokenTTL() int  { return c.RefreshTokenTTL }
func (c *Config) GetTokenLookup() string   { return "header:" + router.HeaderAuthorization }
func (c *Config) GetAuthScheme() string    { return "Bearer" }
func (c *Config) GetIssuer() string        { return c.Issuer }
func (c *Config) GetAudience() []string    { return c.Audience }

func (c *Config) GetDebug() bool                { return c.Debug }
func (c *Config) GetPingTimeout() time.Duration { return c.PingTimeout }
func (c *Config) GetDriver() string             { return "" }
func (c *Config) GetServer() string             { return "" }
func (c *Config) GetOtelIdentifier() string     { return "" }

func LoadConfig() *Config {
	// Missing .env is fine, we read the process env either way
	godotenv.Load()

	cfg := &Config{
		SigningKey:      os.Getenv("TASKS_SIGNING_KEY"),
		Issuer:          getEnv("TASKS_TOKEN_ISSUER", "go-tasks"),
		AccessTokenTTL:  getEnvInt("TASKS_ACCESS_TOKEN_TTL", tasks.DefaultAccessTokenTTL),
		RefreshTokenTTL: getEnvInt("TASKS_REFRESH_TOKEN_TTL", tasks.DefaultRefreshTokenTTL),
		DSN:             getEnv("TASKS_DSN", "file:tasks.db?cache=shared"),
		Address:         getEnv("TASKS_ADDRESS", ":8000"),
		OllamaHost:      os.Getenv("TASKS_OLLAMA_HOST"),
		OllamaModel:     getEnv("TASKS_OLLAMA_MODEL", "llama3"),
		PingTimeout:     time.Duration(getEnvInt("TASKS_PING_TIMEOUT_SECONDS", 5)) * time.Second,
		Debug:           os.Getenv("TASKS_DEBUG") != "",
	}

	if audience := os.Getenv("TASKS_TOKEN_AUDIENCE"); audience != "" {
		cfg.Audience = strings.Split(audience, ",")
	}

	if cfg.SigningKey == "" {
		log.Fatal("TASKS_SIGNING_KEY is required")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", key, v)
	}
	return i
}

func main() {
	ctx := context.Background()

	app := &App{
		config: LoadConfig(),
	}

	if err := WithPersistence(ctx, app); err != nil {
		log.Fatal(err)
	}

	WithHTTPServer(app)

	if err := WithHTTPAuth(app); err != nil {
		log.Fatal(err)
	}

	app.srv.Serve(app.config.Address)

	WaitExitSignal()
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.config.DSN)
	if err != nil {
		return err
	}

	persistence.RegisterModel((*tasks.User)(nil))
	persistence.RegisterModel((*tasks.Todo)(nil))

	client, err := persistence.New(app.config, db, sqlitedialect.New())
	if err != nil {
		return err
	}

	migrationsFS, err := fs.Sub(tasks.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.repo = tasks.NewRepositoryManager(client.DB())

	return app.repo.Validate()
}

func WithHTTPServer(app *App) {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:           "go-tasks",
			EnablePrintRoutes: app.config.Debug,
		}))
	})

	srv.Router().Get("/", func(ctx router.Context) error {
		return ctx.JSON(router.StatusOK, map[string]string{
			"message": "API is running",
		})
	})

	app.srv = srv
}

type userStoreAdapter struct {
	users tasks.Users
}

func (a userStoreAdapter) GetByIdentifier(ctx context.Context, identifier string) (*tasks.User, error) {
	return a.users.GetByIdentifier(ctx, identifier)
}

func (a userStoreAdapter) TrackSuccessfulLogin(ctx context.Context, user *tasks.User) error {
	return a.users.TrackSuccessfulLogin(ctx, user)
}

func WithHTTPAuth(app *App) error {
	cfg := app.config

	provider := tasks.NewUserProvider(userStoreAdapter{users: app.repo.Users()})

	authenticator := tasks.NewAuthenticator(provider, cfg)
	app.auth = authenticator

	httpAuth, err := tasks.NewHTTPAuthenticator(authenticator, provider, cfg)
	if err != nil {
		return err
	}
	app.auther = httpAuth

	protected := httpAuth.ProtectedRoute(
		authenticator.TokenService(),
		httpAuth.MakeAuthErrorHandler(false),
	)

	tasks.RegisterAuthRoutes(app.srv.Router().Group("/"),
		func(ac *tasks.AuthController) *tasks.AuthController {
			ac.Debug = cfg.Debug
			ac.Repo = app.repo
			ac.Auther = app.auth
			ac.Protected = protected
			return ac
		})

	var advisor tasks.Advisor
	if cfg.OllamaHost != "" {
		advisor = tasks.NewOllamaAdvisor(tasks.OllamaAdvisorConfig{
			BaseURL: cfg.OllamaHost,
			Model:   cfg.OllamaModel,
		})
	}
	insights := tasks.NewInsightService(app.repo.Todos(), advisor)

	tasks.RegisterTodoRoutes(app.srv.Router().Group("/"),
		func(tc *tasks.TodoController) *tasks.TodoController {
			tc.Debug = cfg.Debug
			tc.Repo = app.repo
			tc.Insights = insights
			tc.Protected = protected
			tc.ContextKey = cfg.GetContextKey()
			return tc
		})

	return nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}

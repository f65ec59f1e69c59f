package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"locallibrary/pkg/accounts"
	"locallibrary/pkg/catalog"
	"locallibrary/pkg/circuitbreaker"
	"locallibrary/pkg/circulation"
	"locallibrary/pkg/config"
	"locallibrary/pkg/database"
	"locallibrary/pkg/logger"
	"locallibrary/pkg/models"
	"locallibrary/pkg/session"
	"locallibrary/pkg/validation"
)

var (
	db        *gorm.DB
	sessions  *session.Manager
	users     *accounts.Service
	loans     *circulation.Service
	authors   catalog.Repository[models.Author]
	books     *catalog.BookRepository
	genres    catalog.Repository[models.Genre]
	languages catalog.Repository[models.Language]
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Logger.Fatalf("Invalid LOG_LEVEL: %v", err)
	}
	logger.Logger.Info("Starting catalog service...")

	catalogDB, err := database.InitCatalogDB(cfg)
	if err != nil {
		logger.Logger.Fatalf("Failed to initialise database: %v", err)
	}

	store, err := sessionStore(cfg)
	if err != nil {
		logger.Logger.Fatalf("Failed to initialise session store: %v", err)
	}

	setup(catalogDB, session.NewManager(store, cfg.SessionSecret, cfg.SessionTTL), cfg.BcryptCost)

	if cfg.SeedData {
		seedTestData(context.Background(), cfg)
	}

	gin.SetMode(cfg.GinMode)
	server := newRouter()

	logger.Logger.Infof("Catalog service starting on %s", cfg.Addr)
	if err := server.Run(cfg.Addr); err != nil {
		logger.Logger.Fatalf("Server failed: %v", err)
	}
}

// setup wires the package-level services used by the handlers.
func setup(catalogDB *gorm.DB, manager *session.Manager, bcryptCost int) {
	db = catalogDB
	sessions = manager
	users = accounts.NewService(catalogDB, bcryptCost)
	loans = circulation.NewService(catalogDB)
	authors = catalog.NewAuthorRepository(catalogDB)
	books = catalog.NewBookRepository(catalogDB)
	genres = catalog.NewGenreRepository(catalogDB)
	languages = catalog.NewLanguageRepository(catalogDB)
}

// sessionStore keeps sessions in redis when REDIS_URL is set, behind a
// circuit breaker, and in process memory otherwise.
func sessionStore(cfg config.Config) (session.Store, error) {
	if cfg.RedisURL == "" {
		logger.Logger.Info("REDIS_URL not set, keeping sessions in memory")
		return session.NewMemoryStore(cfg.SessionTTL), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := session.Connect(ctx, cfg.RedisURL, 3, 5*time.Second)
	if err != nil {
		return nil, err
	}
	logger.Logger.Info("Redis connection established successfully")

	breaker := circuitbreaker.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerTimeout)
	return session.NewBreakerStore(session.NewRedisStore(client, cfg.SessionTTL), breaker), nil
}

func newRouter() *gin.Engine {
	validation.UseFormTagNames()

	server := gin.New()
	server.Use(logger.Middleware(), gin.Recovery())
	server.RedirectTrailingSlash = false

	server.GET("/manage/health", healthCheck)

	site := server.Group("/", sessionMiddleware())
	site.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/catalog/") })

	accountsGroup := site.Group("/accounts")
	accountsGroup.GET("/register/", registerForm)
	accountsGroup.POST("/register/", register)
	accountsGroup.GET("/login/", loginForm)
	accountsGroup.POST("/login/", login)
	accountsGroup.GET("/logout/", logout)
	accountsGroup.POST("/logout/", logout)

	cat := site.Group("/catalog")
	cat.GET("/", index)

	cat.GET("/books/", listBooks)
	cat.GET("/book/:id", getBook)
	cat.GET("/book/create/", bookCreateForm)
	cat.POST("/book/create/", createBook)
	cat.GET("/book/:id/update/", bookUpdateForm)
	cat.POST("/book/:id/update/", updateBook)
	cat.GET("/book/:id/delete/", bookDeleteConfirm)
	cat.POST("/book/:id/delete/", deleteBook)
	cat.GET("/book/:id/renew/", renewBookForm)
	cat.POST("/book/:id/renew/", renewBook)
	cat.GET("/book/:id/return/", returnBookForm)
	cat.POST("/book/:id/return/", returnBook)

	cat.GET("/borrow/:id", borrowPage)
	cat.POST("/borrow/:id", borrowBook)
	cat.GET("/borrow/:id/success", borrowResult)
	cat.GET("/borrow/:id/fail", borrowResult)

	cat.GET("/authors/", listAuthors)
	cat.GET("/author/:id", getAuthor)
	cat.GET("/author/create/", authorCreateForm)
	cat.POST("/author/create/", createAuthor)
	cat.GET("/author/:id/update/", authorUpdateForm)
	cat.POST("/author/:id/update/", updateAuthor)
	cat.GET("/author/:id/delete/", authorDeleteConfirm)
	cat.POST("/author/:id/delete/", deleteAuthor)

	cat.GET("/mybooks/", myBooks)
	cat.GET("/borrowed/", allBorrowed)

	cat.GET("/languages/", listLanguages)
	cat.POST("/language/create/", createLanguage)
	cat.POST("/language/update/", updateLanguage)
	cat.GET("/genres/", listGenres)
	cat.POST("/genre/create/", createGenre)
	cat.POST("/genre/update/", updateGenre)

	return server
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"speak/internal/adapter/api"
	"speak/internal/adapter/api/handler"
	apimiddleware "speak/internal/adapter/api/middleware"
	"speak/internal/adapter/api/router"
	"speak/internal/adapter/repository"
	domainrepo "speak/internal/domain/repository"
	"speak/internal/domain/service"
	"speak/internal/infrastructure/eventbus"
	"speak/internal/infrastructure/firebase"
	"speak/internal/infrastructure/ratelimit"
	"speak/internal/infrastructure/storage"
	"speak/internal/infrastructure/websocket"
	"speak/internal/usecase"
	"speak/pkg/config"
	"speak/pkg/logger"
	"speak/pkg/response"
)

const shutdownTimeout = 15 * time.Second

type backends struct {
	posts    domainrepo.PostRepository
	messages domainrepo.MessageRepository
	profiles domainrepo.ProfileRepository
	verifier service.TokenVerifier

	firebaseAuth   *firebase.FirebaseAuthClient
	pushSender     *firebase.PushSender
	allowCounselor func(email string)
	clientOptions  []option.ClientOption
	closers        []func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Configure(cfg.Environment, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}
	defer func() {
		for _, closeFn := range b.closers {
			closeFn()
		}
	}()

	blobs, err := setupBlobStore(ctx, cfg, b.clientOptions)
	if err != nil {
		log.Fatalf("Failed to initialize blob storage: %v", err)
	}
	defer blobs.Close()

	rateLimiter := ratelimit.NewRateLimiter(cfg.SendRatePerMinute)
	rateLimiter.StartCleanupRoutine(ctx.Done())

	dispatcher := usecase.NewNotificationDispatcher()
	if b.pushSender != nil {
		dispatcher.AddSender(b.pushSender)
	}

	uploader := usecase.NewAttachmentUploader(blobs)
	connectivity := service.ConnectivityCheckerFunc(b.profiles.Ping)

	authUseCase := usecase.NewAuthUseCase(b.profiles, b.verifier, connectivity)
	postUseCase := usecase.NewPostUseCase(b.posts, b.messages, uploader)
	chatUseCase := usecase.NewChatUseCase(b.posts, b.messages, uploader, dispatcher, rateLimiter)

	wsManager := websocket.NewManager(chatUseCase, postUseCase, b.profiles, rateLimiter, cfg.TypingQuietPeriod)
	wsManager.Start(ctx)

	// With Redis every instance publishes, and each delivers to its own sockets.
	if cfg.RedisURL != "" {
		rdb, err := eventbus.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()

		bus := eventbus.NewRedisBus(rdb)
		if err := bus.Subscribe(ctx, wsManager.Deliver); err != nil {
			log.Fatalf("Failed to subscribe to notification bus: %v", err)
		}
		dispatcher.AddSender(bus)
	} else {
		dispatcher.AddSender(wsManager)
	}

	handler.Setup(authUseCase, postUseCase, chatUseCase)
	handler.SetupHealthHandler(connectivity)
	handler.SetupDevTokenHandler(b.firebaseAuth, b.allowCounselor)

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		_ = response.Error(c, err)
	}

	authMiddleware := apimiddleware.NewAuthMiddleware(authUseCase)
	wsHandler := handler.NewWebSocketHandler(ctx, wsManager, authUseCase)

	router.Setup(e, authMiddleware, rateLimiter)
	router.SetupDevRouter(e, cfg.Environment)
	router.SetupWebSocketRouter(e, wsHandler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := e.Shutdown(shutdownCtx)
		dispatcher.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
	logger.Info("Server stopped")
}

// credentials prefers the service account JSON from the environment (production) and
// falls back to a key file (local development).
func credentials(cfg *config.Config) ([]option.ClientOption, error) {
	if cfg.FirebaseServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))}, nil
	}

	if cfg.FirebaseServiceAccountPath == "" {
		logger.Info("No service account configured, using application default credentials")
		return nil, nil
	}
	if _, err := os.Stat(cfg.FirebaseServiceAccountPath); err != nil {
		return nil, err
	}
	logger.Info("Using Firebase service account from file: %s", cfg.FirebaseServiceAccountPath)
	return []option.ClientOption{option.WithCredentialsFile(cfg.FirebaseServiceAccountPath)}, nil
}

func setupStore(ctx context.Context, cfg *config.Config) (*backends, error) {
	if cfg.StoreBackend == "memory" {
		if !cfg.IsDevelopment() {
			log.Fatalf("STORE_BACKEND=memory is only available in development")
		}
		logger.Warn("Using the in-memory document store and development tokens; data is lost on restart")

		store := repository.NewMemoryStore()
		return &backends{
			posts:          store.Posts(),
			messages:       store.Messages(),
			profiles:       store.Profiles(),
			verifier:       firebase.NewDevVerifier(),
			allowCounselor: store.AllowCounselorEmail,
		}, nil
	}

	opts, err := credentials(cfg)
	if err != nil {
		return nil, err
	}

	app, err := fbapp.NewApp(ctx, &fbapp.Config{
		ProjectID:     cfg.FirebaseProject,
		StorageBucket: cfg.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, err
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		return nil, err
	}

	firebaseAuth := firebase.NewFirebaseAuthClient(authClient)
	b := &backends{
		posts:         repository.NewFirestorePostRepository(firestoreClient),
		messages:      repository.NewFirestoreMessageRepository(firestoreClient),
		profiles:      repository.NewFirestoreProfileRepository(firestoreClient),
		verifier:      firebaseAuth,
		firebaseAuth:  firebaseAuth,
		clientOptions: opts,
		closers:       []func() error{firestoreClient.Close},
	}

	if cfg.PushEnabled {
		messagingClient, err := app.Messaging(ctx)
		if err != nil {
			return nil, err
		}
		b.pushSender = firebase.NewPushSender(messagingClient, b.profiles)
	}

	return b, nil
}

func setupBlobStore(ctx context.Context, cfg *config.Config, opts []option.ClientOption) (service.BlobStore, error) {
	switch cfg.StorageBackend {
	case "minio":
		return storage.NewMinioClient(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.StorageBucket, cfg.MinioUseSSL)
	case "memory":
		logger.Warn("Using the in-memory blob store; attachments are lost on restart")
		return storage.NewMemoryBlobStore(), nil
	default:
		return storage.NewCloudStorageClient(ctx, cfg.StorageBucket, opts...)
	}
}

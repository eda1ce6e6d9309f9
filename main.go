package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/HSouheill/barrim_notifications/config"
	"github.com/HSouheill/barrim_notifications/controllers"
	"github.com/HSouheill/barrim_notifications/middleware"
	"github.com/HSouheill/barrim_notifications/repositories"
	"github.com/HSouheill/barrim_notifications/routes"
	"github.com/HSouheill/barrim_notifications/services"
	"github.com/HSouheill/barrim_notifications/websocket"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// store is the notification log plus preference store pair a backend provides
type store struct {
	notifications services.NotificationLog
	prefs         interface {
		services.PreferenceStore
		services.TokenRemover
	}
	close func()
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer st.close()

	// Connection registry, optionally relayed across instances through Redis
	wsHub := websocket.NewHub()
	var (
		fanout   services.Fanout   = wsHub
		presence services.Presence = wsHub
	)
	if redisClient := config.ConnectRedis(cfg); redisClient != nil {
		defer redisClient.Close()
		if cfg.RedisRelay {
			relay := websocket.NewRelay(redisClient, wsHub)
			fanout, presence = relay, relay
			go func() {
				if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("Redis relay stopped: %v", err)
				}
			}()
			log.Println("Cross-instance relay enabled")
		}
	}

	var pusher services.NativePusher
	app, err := config.InitFirebase(cfg)
	if err != nil {
		log.Printf("Warning: Firebase initialization failed, native mobile push disabled: %v", err)
	} else if app != nil {
		fcm, err := services.NewFCMPusher(ctx, app, st.prefs)
		if err != nil {
			log.Printf("Warning: %v", err)
		} else {
			pusher = fcm
		}
	}

	dispatcher := services.NewDispatcher(st.notifications, st.prefs, fanout, presence, pusher)

	// Create a new Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	rateLimiter := middleware.NewRateLimiter()
	go rateLimiter.Cleanup(ctx.Done())

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.GlobalCORS(cfg.AllowedOrigins))
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())
	e.Use(middleware.SecurityHeadersWithConfig(middleware.SecurityConfig{
		ConnectSources: cfg.AllowedOrigins,
	}))

	routes.SetupRoutes(e, cfg.JWTSecret,
		controllers.NewNotificationController(dispatcher, st.notifications, st.prefs, wsHub),
		websocket.NewHandler(wsHub, dispatcher, cfg.AllowedOrigins, cfg.WSWriteTimeout, cfg.WSPingInterval),
	)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Error(err)
	}
}

func openStore(cfg config.Config) (store, error) {
	if cfg.Storage == config.StorageMemory {
		log.Println("Using in-memory storage; notifications are lost on restart")
		return store{
			notifications: repositories.NewMemoryNotificationRepository(),
			prefs:         repositories.NewMemoryPreferenceRepository(),
			close:         func() {},
		}, nil
	}

	client, err := config.ConnectDB(cfg)
	if err != nil {
		return store{}, err
	}
	db := client.Database(cfg.DBName)
	return store{
		notifications: repositories.NewNotificationRepository(db),
		prefs:         repositories.NewPreferenceRepository(db),
		close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		},
	}, nil
}

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

	gcs "cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/fleamarket-backend/internal/bootstrap"
	"github.com/shinyyama/fleamarket-backend/internal/config"
	"github.com/shinyyama/fleamarket-backend/internal/directory"
	"github.com/shinyyama/fleamarket-backend/internal/email"
	appmw "github.com/shinyyama/fleamarket-backend/internal/middleware"
	"github.com/shinyyama/fleamarket-backend/internal/repository"
	"github.com/shinyyama/fleamarket-backend/internal/server"
	"github.com/shinyyama/fleamarket-backend/internal/service"
	"github.com/shinyyama/fleamarket-backend/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := bootstrap.OpenDB(cfg)
	if err != nil {
		if cfg.StoreBackend == config.StoreMySQL {
			log.Fatalf("%v", err)
		}
		log.Printf("db unavailable, in-app notifications disabled: %v", err)
	}
	store, err := bootstrap.OpenStore(ctx, cfg, gdb)
	if err != nil {
		log.Fatalf("%v", err)
	}
	listings := repository.NewListingRepository(store, cfg.Location())

	identity := echo.MiddlewareFunc(appmw.HeaderIdentity)
	var dir directory.Directory
	if cfg.FirebaseProjectID != "" {
		authMw, err := appmw.NewAuthMiddleware(ctx, cfg.FirebaseProjectID)
		if err != nil {
			log.Fatalf("failed to init firebase auth: %v", err)
		}
		identity = authMw.RequireAuth
		dir = directory.NewCachedDirectory(directory.NewFirebaseDirectory(authMw.Client()), 1000, 10*time.Minute)
	} else {
		log.Printf("FIREBASE_PROJECT_ID not set; trusting %s headers (dev only)", appmw.HeaderUserID)
	}

	var notifRepo repository.NotificationRepository
	if gdb != nil {
		if notifRepo, err = repository.NewNotificationRepository(gdb); err != nil {
			log.Printf("notification migrate error: %v", err)
			notifRepo = nil
		}
	}
	notifications := service.NewNotificationService(notifRepo, dir, email.NewSMTPSender(cfg), cfg.SMTPFrom)

	var images storage.ImageStore
	if cfg.StorageBucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			log.Fatalf("storage client error: %v", err)
		}
		defer client.Close()
		images = storage.NewGCSImageStore(client, cfg.StorageBucket)
	}

	deps := server.Deps{
		Listings:        service.NewListingService(listings),
		Lifecycle:       service.NewLifecycleService(listings, notifications, cfg.Location()),
		Identity:        identity,
		AdminUIDs:       cfg.AdminUIDs,
		WriteRatePerMin: cfg.WriteRatePerMin,
		Images:          images,
		Directory:       dir,
		GitSHA:          cfg.GitSHA,
		BuildTime:       cfg.BuildTime,
	}
	if notifRepo != nil {
		deps.Notifications = notifications
	}
	srv := server.New(deps)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on %s", addr)
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/pdf-dispatcher/api/handlers"
	"github.com/feichai0017/pdf-dispatcher/api/routes"
	cfg "github.com/feichai0017/pdf-dispatcher/config"
	"github.com/feichai0017/pdf-dispatcher/internal/service/document"
	"github.com/feichai0017/pdf-dispatcher/pkg/logger"
	"github.com/feichai0017/pdf-dispatcher/pkg/version"
)

func main() {
	dc := cfg.GetDispatcherConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(dc.LogLevel),
		logger.WithEncoding(dc.LogEncoding),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
		logger.WithInitialFields(map[string]interface{}{"version": version.Version}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	docService, err := document.GetService(context.Background(), log)
	if err != nil {
		log.Fatal("Failed to get document service", logger.Error(err))
	}

	h := handlers.NewHandlers(docService, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	addr := ":" + os.Getenv("PORT")
	if addr == ":" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tvasek/gridball-backend/internal/httpapi"
	"github.com/tvasek/gridball-backend/internal/hub"
	"github.com/tvasek/gridball-backend/internal/rules"
	"github.com/tvasek/gridball-backend/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	r := rules.FromEnv()

	var persistence store.Persistence = store.NewMemory()
	if dsn := os.Getenv("GRIDBALL_POSTGRES_DSN"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			logger.Fatal("open postgres", zap.Error(err))
		}
		persistence, err = store.NewDB(db)
		if err != nil {
			logger.Fatal("migrate kv store", zap.Error(err))
		}
		logger.Info("using postgres persistence")
	} else {
		logger.Info("using in-memory persistence")
	}

	ctx := context.Background()
	h := hub.NewHub(ctx, r, persistence, logger)

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, logger)

	addr := os.Getenv("GRIDBALL_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	logger.Info("listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

//cmd/seeder/main.go
package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/config"
	"github.com/unclebandit/campaign-dispatch/internal/db"
	"github.com/unclebandit/campaign-dispatch/internal/logger"
)

// Applies the schema, then every seed file given on the command line, in order.
func main() {
	log, err := logger.NewDevelopmentLogger()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		log.Fatal("failed to apply schema", zap.Error(err))
	}
	log.Info("schema applied")

	seedFiles := os.Args[1:]
	if len(seedFiles) == 0 {
		seedFiles = []string{"seed/campaigns.sql"}
	}
	for _, file := range seedFiles {
		if err := db.ExecFile(ctx, conn, file); err != nil {
			log.Fatal("failed to seed", zap.String("file", file), zap.Error(err))
		}
		log.Info("seeded", zap.String("file", file))
	}

	log.Info("database seeding completed successfully!")
}

package main

import (
	"database/sql"
	"errors"
	"flag"
	"os"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var errNoDBURL = errors.New("DB_URL not set in environment")

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("APP_ENV"))
	defer logger.Sync()

	mode := flag.String("mode", db.MigrateUp, "migration mode: up or down")
	dir := flag.String("dir", "./migrations", "directory holding migration files")
	flag.Parse()

	if err := run(os.Getenv("DB_URL"), *mode, *dir, openPostgres); err != nil {
		logger.L().Fatal("migration failed", zap.Error(err))
	}
}

func openPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

func run(dbURL, mode, dir string, open func(string) (*sql.DB, error)) error {
	if dbURL == "" {
		return errNoDBURL
	}

	conn, err := open(dbURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(conn, mode, dir); err != nil {
		return err
	}

	logger.L().Info("migrations finished", zap.String("mode", mode))
	return nil
}

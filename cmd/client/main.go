package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"driveguard/internal/client/api"
	"driveguard/internal/client/cli"
	"driveguard/internal/client/session"
	"driveguard/internal/repository/sqlite"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	serverURL := flag.String("server", envOr("DRIVEGUARD_SERVER_URL", "http://localhost:9000"), "backend base URL")
	sessionPath := flag.String("session", envOr("DRIVEGUARD_SESSION_PATH", "data/session.db"), "session database path")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(*sessionPath)
	if err != nil {
		logger.Fatalf("open session database: %v", err)
	}
	defer db.Close()

	sess := session.NewManager(db)
	if err := sess.Init(ctx); err != nil {
		logger.Fatalf("init session store: %v", err)
	}

	app := cli.NewApp(api.NewClient(*serverURL), sess, os.Stdin, os.Stdout)
	app.Run(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

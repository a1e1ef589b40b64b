package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/devknot/devknot-cli/pkg/auth"
	"github.com/devknot/devknot-cli/pkg/config"
	"github.com/devknot/devknot-cli/pkg/presence"
	"github.com/devknot/devknot-cli/pkg/rest"
	"github.com/devknot/devknot-cli/pkg/transport"
	"github.com/devknot/devknot-cli/pkg/unread"
)

// program is set before Run so socket callbacks can push refresh messages
// into the UI loop.
var program *tea.Program

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// The TUI owns stdout, so logs go to a file.
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{cfg.File}
	zcfg.ErrorOutputPaths = []string{cfg.File}
	return zcfg.Build()
}

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: client -email you@example.com -password secret [-config config.yaml]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	sess, err := auth.Login(ctx, cfg.API.BaseURL, *email, *password)
	cancel()
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}
	logger.Info("logged in", zap.String("userId", sess.UserID))

	api := rest.New(cfg.API.BaseURL, sess.Token, logger)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+sess.Token)
	connector := transport.NewConnector(cfg.Socket.URL, header, logger)
	defer connector.Teardown()

	if _, err := connector.Get(); err != nil {
		log.Fatalf("socket connect failed: %v", err)
	}

	tracker := presence.NewTracker(logger)
	ledger := unread.NewLedger(logger)

	app := newApp(cfg, logger, sess, api, connector, tracker, ledger)
	program = tea.NewProgram(app, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		log.Fatalf("ui error: %v", err)
	}
}

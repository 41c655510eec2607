// Command memberdesk is a terminal client for the membership dashboard's
// notification and message feeds.
//
//	memberdesk [--config path]          run the dashboard
//	memberdesk login [--config path]    store an API token in the keyring
//	memberdesk logout [--config path]   forget the stored token
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/memberdesk/internal/api"
	"github.com/nhle/memberdesk/internal/app"
	"github.com/nhle/memberdesk/internal/credential"
	"github.com/nhle/memberdesk/internal/feed"
	"github.com/nhle/memberdesk/internal/logger"
	"github.com/nhle/memberdesk/internal/metrics"
	"github.com/nhle/memberdesk/internal/model"
	"github.com/nhle/memberdesk/internal/store"
	appsync "github.com/nhle/memberdesk/internal/sync"
	"github.com/nhle/memberdesk/internal/ui/login"
	"github.com/nhle/memberdesk/internal/watermark"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "memberdesk: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "run"
	if len(args) > 0 && (args[0] == "login" || args[0] == "logout") {
		cmd, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("memberdesk", flag.ContinueOnError)
	configPath := fs.StringP("config", "c", model.DefaultConfigPath(), "path to the config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	switch cmd {
	case "login":
		return runLogin(cfg, *configPath)
	case "logout":
		if err := credential.DeleteToken(cfg.API.Username); err != nil {
			return err
		}
		fmt.Println("Token removed.")
		return nil
	}
	return runDashboard(cfg, *configPath)
}

// runLogin asks for credentials outside the TUI.
func runLogin(cfg *model.AppConfig, configPath string) error {
	fields := login.Fields{
		BaseURL:  cfg.API.BaseURL,
		Username: cfg.API.Username,
	}
	if err := login.NewForm(&fields, 80).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	done, err := login.Saver{ConfigPath: configPath}.Verify(ctx, cfg, fields)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in to %s as %s (%d notifications).\n",
		done.Config.API.BaseURL, done.Config.API.Username, done.Notifications)
	return nil
}

func runDashboard(cfg *model.AppConfig, configPath string) error {
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Get()

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, m.Handler(), log)
	}

	token, err := credential.Token(cfg.API.Username)
	needsLogin := errors.Is(err, credential.ErrNoToken)
	if err != nil && !needsLogin {
		return err
	}

	client, err := api.NewClient(cfg.API.BaseURL, token, api.WithLogger(log))
	if err != nil {
		return err
	}

	wm := watermark.New(db, log)
	newFeed := func(kind model.FeedKind) *feed.Feed {
		return feed.New(feed.Options{
			Kind:       kind,
			Remote:     client,
			Watermarks: wm,
			Log:        log,
			Metrics:    m,
			PageSize:   cfg.Messages.PageSize,
		})
	}
	scheduler := appsync.New(appsync.Options{
		Interval: cfg.Poll.Interval(),
		Log:      log,
		Metrics:  m,
	})

	root := app.New(app.Options{
		Config:        cfg,
		Notifications: newFeed(model.FeedNotifications),
		Messages:      newFeed(model.FeedMessages),
		Scheduler:     scheduler,
		Login:         login.Saver{ConfigPath: configPath},
		Reconnect:     client.SetCredentials,
		NeedsLogin:    needsLogin,
		Log:           log,
	})

	p := tea.NewProgram(root, tea.WithAltScreen())

	err = model.WatchConfig(configPath,
		func(c *model.AppConfig) { p.Send(app.ConfigReloadedMsg{Config: c}) },
		func(err error) { log.Warnw("config reload failed", "error", err) },
	)
	if err != nil {
		log.Infow("config hot reload disabled", "path", configPath, "error", err)
	}

	log.Infow("starting", "api", cfg.API.BaseURL, "interval", cfg.Poll.Interval())
	_, err = p.Run()
	scheduler.Stop()
	return err
}

func serveMetrics(addr string, h http.Handler, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Infow("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("metrics server stopped", "error", err)
	}
}

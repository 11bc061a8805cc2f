// Package main provides the entry point for the RUNNERS command-line client.
// It signs in with Google, maintains the persisted session, and exposes a few
// read commands against the RUNNERS backend for inspecting the account state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	google "github.com/runners-app/runners-go/internal/auth/google"
	"github.com/runners-app/runners-go/internal/buildinfo"
	"github.com/runners-app/runners-go/internal/config"
	"github.com/runners-app/runners-go/internal/logging"
	"github.com/runners-app/runners-go/internal/watcher"
	"github.com/runners-app/runners-go/sdk/api"
	"github.com/runners-app/runners-go/sdk/session"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = ""
)

// init forwards the ldflags-injected build metadata to the shared buildinfo package.
func init() {
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// main parses command-line flags, loads configuration, and runs the requested
// command (login, logout, or one of the read commands).
func main() {
	fmt.Printf("RUNNERS CLI Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var login bool
	var noBrowser bool
	var logout bool
	var me bool
	var feed bool
	var notifications bool
	var configPath string

	flag.BoolVar(&login, "login", false, "Sign in with a Google account")
	flag.BoolVar(&noBrowser, "no-browser", false, "Don't open browser automatically for OAuth")
	flag.BoolVar(&logout, "logout", false, "Drop the persisted session")
	flag.BoolVar(&me, "me", false, "Show the signed-in user's profile")
	flag.BoolVar(&feed, "feed", false, "Show the first page of the post feed")
	flag.BoolVar(&notifications, "notifications", false, "Show the first page of notifications")
	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.Parse()

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}

	// Load environment variables from .env if present.
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	if configPath == "" {
		configPath = filepath.Join(wd, "config.yaml")
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Errorf("failed to load config from %s: %v", configPath, err)
		os.Exit(1)
	}
	logging.Setup(cfg)

	ctx := context.Background()
	sess, err := session.New(cfg)
	if err != nil {
		log.Errorf("failed to initialize session: %v", err)
		os.Exit(1)
	}

	switch {
	case login:
		runLogin(ctx, cfg, sess, noBrowser)
	case logout:
		if err = sess.Logout(); err != nil {
			log.Errorf("logout failed: %v", err)
			os.Exit(1)
		}
		fmt.Println("Signed out.")
	case me, feed, notifications:
		runRead(ctx, cfg, sess, me, feed, notifications)
	default:
		flag.Usage()
	}
}

func runLogin(ctx context.Context, cfg *config.Config, sess *session.Session, noBrowser bool) {
	flow := google.NewFlow(cfg.GoogleClientID, cfg.OAuthCallbackPort)
	idToken, err := flow.IDToken(ctx, noBrowser)
	if err != nil {
		log.Errorf("google sign-in failed: %v", err)
		os.Exit(1)
	}
	result, err := sess.Login(ctx, idToken)
	if err != nil {
		log.Errorf("login failed: %v", err)
		os.Exit(1)
	}
	if result.NewUser {
		fmt.Printf("Welcome to RUNNERS, %s! Account created.\n", result.Nickname)
	} else {
		fmt.Printf("Welcome back, %s.\n", result.Nickname)
	}
}

func runRead(ctx context.Context, cfg *config.Config, sess *session.Session, me, feed, notifications bool) {
	if !sess.Authenticated() {
		fmt.Println("No session found. Run with -login first.")
		os.Exit(1)
	}

	// Pick up token rotations made by other processes sharing the session dir.
	w := watcher.New(cfg.SessionDir, []string{"tokens.blob"}, func() {
		if errReload := sess.ReloadTokens(); errReload != nil {
			log.Warnf("token reload failed: %v", errReload)
		}
	})
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := w.Start(watchCtx); err != nil {
		log.Debugf("session watcher unavailable: %v", err)
	} else {
		defer w.Stop()
	}

	client := api.New(sess)
	switch {
	case me:
		user, err := client.Me(ctx)
		if err != nil {
			exitOnAPIError("fetch profile", err)
		}
		printJSON(user)
	case feed:
		page, err := client.ListPosts(ctx, "", cfg.PageSize)
		if err != nil {
			exitOnAPIError("fetch feed", err)
		}
		printJSON(page)
	case notifications:
		page, err := client.ListNotifications(ctx, "", cfg.PageSize)
		if err != nil {
			exitOnAPIError("fetch notifications", err)
		}
		printJSON(page)
	}
}

func exitOnAPIError(action string, err error) {
	if session.IsUnauthorized(err) {
		fmt.Println("Session expired. Run with -login again.")
		os.Exit(1)
	}
	log.Errorf("%s failed: %v", action, err)
	os.Exit(1)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Errorf("encode output failed: %v", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

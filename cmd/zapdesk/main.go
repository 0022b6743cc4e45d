package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"zapdesk/internal/backend"
	"zapdesk/internal/cache"
	"zapdesk/internal/config"
	"zapdesk/internal/durable"
	"zapdesk/internal/lock"
	"zapdesk/internal/logging"
	"zapdesk/internal/outbox"
	"zapdesk/internal/profile"
	"zapdesk/internal/registry"
	intsync "zapdesk/internal/sync"
	"zapdesk/internal/transport"
	"zapdesk/internal/tui"
)

func main() {
	var profileFlag string

	root := &cobra.Command{
		Use:          "zapdesk",
		Short:        "zapdesk terminal client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")

	setup := func() (string, *config.Config, error) {
		name := profile.Resolve(profileFlag)
		if err := profile.ValidateName(name); err != nil {
			return "", nil, err
		}
		cfg, err := config.Load(profile.ConfigPath())
		if err != nil {
			if !os.IsNotExist(err) {
				return "", nil, fmt.Errorf("load config: %w", err)
			}
			cfg = &config.Config{}
			cfg.ApplyDefaults()
		}
		return name, cfg, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "open the chat interface",
			RunE: func(_ *cobra.Command, _ []string) error {
				name, cfg, err := setup()
				if err != nil {
					return err
				}
				return runTUI(name, cfg)
			},
		},
		&cobra.Command{
			Use:   "chats",
			Short: "list chats from a running daemon",
			RunE: func(_ *cobra.Command, _ []string) error {
				_, cfg, err := setup()
				if err != nil {
					return err
				}
				return daemonGet(cfg, "/v1/chats")
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "show daemon status",
			RunE: func(_ *cobra.Command, _ []string) error {
				_, cfg, err := setup()
				if err != nil {
					return err
				}
				return daemonGet(cfg, "/v1/status")
			},
		},
		&cobra.Command{
			Use:   "send <chat-id> <text>",
			Short: "send a message through a running daemon",
			Args:  cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				_, cfg, err := setup()
				if err != nil {
					return err
				}
				return daemonSend(cfg, args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "config-init",
			Short: "write a default config file",
			RunE: func(_ *cobra.Command, _ []string) error {
				path := profile.ConfigPath()
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists at %s", path)
				}
				cfg := &config.Config{DefaultProfile: profile.DefaultProfileName}
				cfg.ApplyDefaults()
				if err := config.Save(path, cfg); err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runTUI wires the full stack in-process; no daemon is involved. The
// profile lock still applies, so a running daemon for the same profile
// is rejected rather than racing it on the cache database.
func runTUI(name string, cfg *config.Config) error {
	if err := profile.EnsureDir(name); err != nil {
		return err
	}
	lk, err := lock.Acquire(profile.Dir(name))
	if err != nil {
		return err
	}
	defer func() { _ = lk.Release() }()

	logger, err := logging.New(profile.LogPath(name), name)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := durable.Open(profile.CacheDBPath(name))
	if err != nil {
		return err
	}
	defer db.Close()
	if _, err := db.Migrate(); err != nil {
		return err
	}

	ns := cfg.Identity.UserID
	if ns == "" {
		ns = name
	}

	reg := registry.New()
	store := cache.New(reg, logger)
	api := backend.New(cfg.API.BaseURL, cfg.API.Token, cfg.FetchTimeout())
	engine := intsync.New(store, reg, api, db, &intsync.LogNotifier{Logger: logger}, intsync.Config{
		Namespace: ns,
		PageSize:  cfg.API.PageSize,
		TTL:       cfg.TTL(),
	}, logger)

	persister := durable.NewPersister(db, store, reg, ns, cfg.SaveDebounce(), logger)
	sender := outbox.NewSender(store, api, logger)

	push := transport.NewClient(transport.Options{
		URL:         cfg.Push.URL,
		BaseDelay:   cfg.BaseDelay(),
		MaxDelay:    cfg.MaxDelay(),
		MaxAttempts: cfg.Push.MaxAttempts,
	}, logger)
	engine.AttachTransport(push)

	engine.Hydrate()
	persister.Start()
	sender.Start(context.Background())
	if cfg.Push.URL != "" {
		go func() { _ = push.Connect(context.Background()) }()
	}

	app := tui.NewApp(reg, engine, sender)
	runErr := app.Run()

	push.Close()
	sender.Stop()
	persister.Stop()
	return runErr
}

func daemonURL(cfg *config.Config, path string) string {
	return "http://" + cfg.Listen + path
}

func daemonGet(cfg *config.Config, path string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(daemonURL(cfg, path))
	if err != nil {
		return fmt.Errorf("is zapdeskd running? %w", err)
	}
	defer resp.Body.Close()
	return printJSON(resp.Body)
}

func daemonSend(cfg *config.Config, chatID, text string) error {
	body, err := json.Marshal(map[string]string{"body": text})
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(daemonURL(cfg, "/v1/chats/"+chatID+"/messages"), "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("is zapdeskd running? %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon responded %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	return printJSON(resp.Body)
}

func printJSON(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(out.String())
	return nil
}

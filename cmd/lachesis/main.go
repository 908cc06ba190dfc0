// Command lachesis runs the role-playing narrator: a console chat loop
// backed by the function dispatcher, per-user persistence, and an optional
// diagnostics HTTP server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"

	"github.com/NolanChai/discord-gm/dispatch"
	"github.com/NolanChai/discord-gm/internal/actions"
	"github.com/NolanChai/discord-gm/internal/adventure"
	"github.com/NolanChai/discord-gm/internal/chat"
	"github.com/NolanChai/discord-gm/internal/config"
	"github.com/NolanChai/discord-gm/internal/llm"
	"github.com/NolanChai/discord-gm/internal/memory"
	"github.com/NolanChai/discord-gm/internal/ops"
	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
	"github.com/NolanChai/discord-gm/internal/textutil"
)

func main() {
	app := &cli.App{
		Name:  "lachesis",
		Usage: "role-playing narrator bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "data",
				Usage:   "root directory for per-user documents",
				EnvVars: []string{"LACHESIS_DATA_DIR"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "start the bot on the console",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "user",
						Value: "console",
						Usage: "user id for the console session",
					},
				},
				Action: runBot,
			},
			{
				Name:   "functions",
				Usage:  "list the functions the narrator can call",
				Action: listFunctions,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type bot struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	catalog    *dispatch.Catalog
	session    *chat.Session
	archive    *memory.Archive
}

func buildBot(ctx context.Context, dataDir string) (*bot, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.New(dataDir)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	profiles := profile.NewManager(cfg.DataDir, logger)
	states := state.NewManager(cfg.DataDir, logger)
	memories := memory.NewManager(cfg.DataDir, cfg.ShortTermLimit, logger)
	adventures, err := adventure.NewManager(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("adventure storage: %w", err)
	}
	archive, err := memory.OpenArchive(ctx, cfg.DataDir+"/memories.db")
	if err != nil {
		return nil, fmt.Errorf("memory archive: %w", err)
	}

	client := llm.NewClient(llm.Config{
		APIBase:     cfg.LLMAPIBase,
		APIKey:      cfg.LLMAPIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}, logger)

	dispatcher := dispatch.NewDispatcher(dispatch.WithLogger(logger))
	catalog := dispatch.NewCatalog()
	set := &actions.Set{
		Profiles:    profiles,
		States:      states,
		Memories:    memories,
		Adventures:  adventures,
		Completer:   client,
		AdminUserID: cfg.AdminUserID,
		Logger:      logger,
	}
	set.Register(dispatcher, catalog)

	session := &chat.Session{
		Profiles:   profiles,
		States:     states,
		Memories:   memories,
		Archive:    archive,
		Completer:  client,
		Extractor:  dispatch.NewExtractor(logger),
		Dispatcher: dispatcher,
		Catalog:    catalog,
		Creation:   set,
		Pacing:     textutil.NewPacing(),
		Logger:     logger,
	}
	return &bot{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		catalog:    catalog,
		session:    session,
		archive:    archive,
	}, nil
}

func runBot(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := buildBot(ctx, c.String("data-dir"))
	if err != nil {
		return err
	}
	defer b.archive.Close()

	if b.cfg.OpsAddr != "" {
		srv := &http.Server{
			Addr: b.cfg.OpsAddr,
			Handler: (&ops.Server{
				Dispatcher: b.dispatcher,
				Catalog:    b.catalog,
				Profiles:   b.session.Profiles,
				States:     b.session.States,
				Logger:     b.logger,
			}).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			b.logger.Info("ops server listening", "addr", b.cfg.OpsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				b.logger.Error("ops server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Background maintenance: archive oversized histories and flag idle users.
	sched := cron.New()
	if _, err := sched.AddFunc("@every 2m", func() { b.maintenance(ctx) }); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	return b.consoleLoop(ctx, c.String("user"))
}

func (b *bot) consoleLoop(ctx context.Context, userID string) error {
	ch := chat.NewConsoleChannel(os.Stdout)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	fmt.Println("Lachesis is listening. Type a message, or ctrl-d to quit.")
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := b.session.HandleMessage(ctx, userID, line, ch); err != nil {
				b.logger.Error("handling message", "error", err)
			}
		}
	}
}

const inactivityThreshold = 15 * time.Minute

func (b *bot) maintenance(ctx context.Context) {
	b.session.Sweep(ctx)
	for _, st := range []string{state.Adventure, state.CharacterCreation} {
		for _, id := range b.session.States.UsersIn(st) {
			last, _ := b.session.States.Metadata(id)["last_active"].(string)
			if last == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, last)
			if err != nil || time.Since(t) < inactivityThreshold {
				continue
			}
			b.logger.Info("user idle mid-session", "user_id", id, "state", st)
			b.session.States.UpdateMetadata(id, map[string]any{"last_active": ""})
		}
	}
}

func listFunctions(c *cli.Context) error {
	dispatcher := dispatch.NewDispatcher()
	catalog := dispatch.NewCatalog()
	set := &actions.Set{}
	set.Register(dispatcher, catalog)
	fmt.Println(catalog.Describe())
	return nil
}

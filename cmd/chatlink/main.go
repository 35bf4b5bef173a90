// chatlink is the real-time session daemon: it keeps one authenticated
// chat connection alive across lifecycle transitions, tracks peer
// presence, and merges push payloads into grouped notifications.
//
// Lifecycle transitions are driven by signals (SIGUSR1 backgrounds the
// session, SIGUSR2 foregrounds it) and push payloads are read as JSON
// lines from stdin, standing in for the OS push channel.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alexjbarnes/chatlink/internal/config"
	chaterrors "github.com/alexjbarnes/chatlink/internal/errors"
	"github.com/alexjbarnes/chatlink/internal/logging"
	"github.com/alexjbarnes/chatlink/internal/models"
	"github.com/alexjbarnes/chatlink/internal/navigation"
	"github.com/alexjbarnes/chatlink/internal/notify"
	"github.com/alexjbarnes/chatlink/internal/presence"
	"github.com/alexjbarnes/chatlink/internal/session"
	"github.com/alexjbarnes/chatlink/internal/state"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("chatlink starting",
		slog.String("version", Version),
		slog.String("server", cfg.ServerURL),
		slog.String("device", cfg.DeviceName),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appState, err := openState(cfg)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	defer appState.Close()

	tracker := presence.NewTracker(logging.WithComponent(logger, "presence"))
	register := navigation.NewRegister(appState, logging.WithComponent(logger, "navigation"))

	mgr := session.NewManager(session.Options{
		URL:               cfg.ServerURL,
		HeartbeatInterval: cfg.HeartbeatInterval,
		BackgroundTimeout: cfg.BackgroundTimeout,
	}, appState, tracker, logging.WithComponent(logger, "session"))

	avatars := notify.NewAvatarResolver(nil, cfg.AvatarFetchTimeout, logging.WithComponent(logger, "notify"))
	engine := notify.NewEngine(&logDisplayer{logger: logger}, avatars, mgr, register, logging.WithComponent(logger, "notify"))

	wireSubscriptions(mgr, engine, register, tracker, logger)

	identity, err := resolveIdentity(cfg, appState)
	if err != nil {
		return err
	}

	if err := mgr.StartSession(identity); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return lifecycleLoop(gctx, mgr, logger)
	})

	g.Go(func() error {
		return pushLoop(gctx, engine)
	})

	err = g.Wait()

	// Shutdown is not logout: the persisted identity survives so the
	// next start reconnects automatically.
	mgr.Shutdown()

	return err
}

func openState(cfg *config.Config) (*state.State, error) {
	if cfg.StateDBPath != "" {
		return state.LoadAt(cfg.StateDBPath)
	}

	return state.Load()
}

// resolveIdentity prefers the configured identity and falls back to
// the one persisted by a previous run.
func resolveIdentity(cfg *config.Config, appState *state.State) (models.Identity, error) {
	if cfg.HasIdentity() {
		return models.Identity{
			ID:          cfg.UserID,
			DisplayName: cfg.DisplayName,
			Token:       cfg.AuthToken,
		}, nil
	}

	persisted, err := appState.Identity()
	if err != nil {
		return models.Identity{}, fmt.Errorf("reading persisted identity: %w", err)
	}

	if persisted == nil {
		return models.Identity{}, fmt.Errorf("starting session: %w", chaterrors.ErrNoIdentity)
	}

	return *persisted, nil
}

func wireSubscriptions(mgr *session.Manager, engine *notify.Engine, register *navigation.Register, tracker *presence.Tracker, logger *slog.Logger) {
	var loginOnce sync.Once

	mgr.OnStateChange(func(s session.State) {
		logger.Info("session state changed", slog.String("state", s.String()))

		if s != session.StateConnected {
			return
		}

		loginOnce.Do(func() {
			engine.ShowLoginAlert(context.Background())

			// Consume the deferred navigation slot once the session is
			// up, after the settle delay the UI shell would observe.
			time.AfterFunc(navigation.SettleDelay, func() {
				if target, ok := register.Take(); ok {
					logger.Info("deferred navigation consumed",
						slog.String("chat_id", target.ChatID),
						slog.Bool("group", target.IsGroup),
					)
				}
			})
		})
	})

	mgr.OnMessage(func(msg models.Message) {
		logger.Info("message received",
			slog.String("chat_id", msg.ChatID),
			slog.String("sender_id", msg.SenderID),
		)
		engine.ClearConversation(msg.ChatID)
	})

	mgr.OnTyping(func(chatID string, typing bool) {
		logger.Debug("typing state",
			slog.String("chat_id", chatID),
			slog.Bool("typing", typing),
		)
	})

	mgr.OnChatListUpdate(func(upd models.ChatListUpdate) {
		logger.Debug("chat list update",
			slog.String("chat_id", upd.ChatID),
			slog.Int("unread", upd.UnreadCount),
		)
	})

	tracker.Subscribe(func() {
		logger.Debug("presence changed", slog.Int("online", len(tracker.ListOnline())))
	})
}

// lifecycleLoop maps SIGUSR1/SIGUSR2 to background/foreground
// transitions, standing in for the mobile app-lifecycle source.
func lifecycleLoop(ctx context.Context, mgr *session.Manager, logger *slog.Logger) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2)

	defer signal.Stop(sigs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				logger.Info("entering background")
				mgr.Background()

			case syscall.SIGUSR2:
				logger.Info("entering foreground")
				mgr.Foreground()
			}
		}
	}
}

// pushLoop feeds JSON lines from stdin to the merge engine. The
// scanner runs on its own goroutine so shutdown is not blocked on a
// pending read.
func pushLoop(ctx context.Context, engine *notify.Engine) error {
	lines := make(chan []byte)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := make([]byte, len(scanner.Bytes()))
			copy(line, scanner.Bytes())

			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep the daemon running on signals alone.
				<-ctx.Done()
				return nil
			}

			if len(line) == 0 {
				continue
			}

			engine.HandlePush(ctx, line)
		}
	}
}

// logDisplayer is the development stand-in for the OS notification
// surface: it logs what would be displayed.
type logDisplayer struct {
	logger *slog.Logger
}

func (d *logDisplayer) Display(_ context.Context, n notify.Notification) error {
	d.logger.Info("notification",
		slog.String("handle", n.Handle),
		slog.String("title", n.Title),
		slog.String("body", n.Body),
		slog.Int("messages", len(n.Messages)),
		slog.Bool("has_icon", n.Icon != nil),
	)

	return nil
}

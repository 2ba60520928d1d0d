// relaychat client: interactive terminal chat client
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/ashureev/relaychat/internal/client"
	"github.com/ashureev/relaychat/internal/config"
	"github.com/ashureev/relaychat/internal/domain"
	"github.com/ashureev/relaychat/internal/store"
	"github.com/joho/godotenv"
)

func main() {
	// Warn level keeps log noise out of the interactive prompt.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.ClientConfig) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdin := bufio.NewScanner(os.Stdin)

	userID := cfg.UserID
	if userID == "" {
		fmt.Print("identity: ")
		if !stdin.Scan() {
			return fmt.Errorf("no identity given")
		}
		userID = stdin.Text()
	}
	profile := domain.Profile{
		DisplayName: cfg.DisplayName,
		Email:       cfg.Email,
		Bio:         cfg.Bio,
		AvatarColor: cfg.AvatarColor,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = domain.TrimIdentity(userID)
	}

	blob, err := store.NewSQLite(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() {
		if closeErr := blob.Close(); closeErr != nil {
			slog.Warn("failed to close history store", "error", closeErr)
		}
	}()

	history := client.NewHistory(blob)
	session := client.NewSessionController(nil, history)
	view := client.NewPresenceView(session)

	// Connection failure is surfaced once and we exit; no retry loop.
	channel, err := client.Dial(ctx, cfg.ServerURL, session, view)
	if err != nil {
		return fmt.Errorf("cannot reach the chat server: %w", err)
	}
	defer func() {
		if closeErr := channel.Close(); closeErr != nil {
			slog.Debug("failed to close channel", "error", closeErr)
		}
	}()
	session.SetEmitter(channel)
	channel.OnError = func(err error) {
		fmt.Println("\nconnection lost:", err)
		cancel()
	}

	wireCallbacks(session, view)

	if err := session.Login(ctx, userID, profile); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Printf("logged in as %s. /users lists people, /msg <id> opens a conversation, /quit exits\n", session.Identity())

	go func() {
		_ = channel.Listen(ctx)
	}()

	return inputLoop(ctx, stdin, session, view, channel)
}

func wireCallbacks(session *client.SessionController, view *client.PresenceView) {
	session.OnOutbound = func(msg domain.Message) {
		fmt.Printf("[%s] you: %s\n", msg.Timestamp.Format("15:04:05"), msg.Text)
	}
	session.OnInbound = func(msg domain.Message) {
		name := msg.SenderProfile.DisplayName
		if name == "" {
			name = msg.SenderID
		}
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), name, msg.Text)
	}
	view.OnRoster = func(entries []domain.RosterEntry) {
		sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
		self := session.Identity()
		for _, entry := range entries {
			if entry.UserID == self {
				continue
			}
			fmt.Printf("  %s (%s) - %s\n", entry.DisplayName(), entry.UserID, entry.Status)
		}
	}
	view.OnStatus = func(userID, status string) {
		fmt.Printf("  %s is now %s\n", userID, status)
	}
	view.OnTyping = func(name string, active bool) {
		if active {
			fmt.Printf("  %s is typing...\n", name)
		}
	}
}

func inputLoop(ctx context.Context, stdin *bufio.Scanner, session *client.SessionController, view *client.PresenceView, channel *client.Channel) error {
	for stdin.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(stdin.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/users":
			if err := channel.RequestUserList(ctx); err != nil {
				fmt.Println("roster request failed:", err)
			}
		case strings.HasPrefix(line, "/msg "):
			target := strings.TrimSpace(strings.TrimPrefix(line, "/msg "))
			if target == "" {
				fmt.Println("usage: /msg <id>")
				continue
			}
			var profile domain.Profile
			if entry, ok := view.ActiveUser(target); ok {
				profile = entry.Profile
			}
			for _, msg := range session.SelectRecipient(target, profile) {
				prefix := msg.SenderID
				if msg.SenderID == session.Identity() {
					prefix = "you"
				}
				fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), prefix, msg.Text)
			}
			fmt.Printf("talking to %s\n", target)
		default:
			if _, ok := session.Recipient(); !ok {
				fmt.Println("select someone first with /msg <id>")
				continue
			}
			// Line-buffered stdin gives no per-keystroke events; signal
			// typing once per sent line to drive the debounce.
			session.NotifyTyping(ctx)
			if err := session.Send(ctx, line); err != nil {
				fmt.Println("send failed:", err)
			}
		}
	}
	return stdin.Err()
}

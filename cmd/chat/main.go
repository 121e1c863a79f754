// Chat widget terminal client
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ashureev/chat-widget/internal/agent"
	"github.com/ashureev/chat-widget/internal/chat"
	"github.com/ashureev/chat-widget/internal/config"
	"github.com/ashureev/chat-widget/internal/profile"
	"github.com/ashureev/chat-widget/internal/store"
	"github.com/joho/godotenv"
	"github.com/peterh/liner"
)

const usage = `Commands:
  /signin <credential>  sign in with an identity-provider credential
  /rate <1-5>           rate the conversation when asked
  /logout               forget the stored profile
  /quit                 leave the chat
Anything else is sent as a message.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = repo.Close() }()

	profilePath := cfg.ProfilePath
	if profilePath == "" {
		profilePath = profile.DefaultPath()
	}
	profiles := profile.NewFileRepository(profilePath)

	client := agent.NewClient(agent.ClientConfig{
		AssistantURL: cfg.AssistantURL,
		PrototypeURL: cfg.PrototypeURL,
		Timeout:      cfg.HTTPTimeout,
	})

	ctrl := chat.NewController(chat.Dependencies{
		Store:      repo,
		Assistant:  client,
		Prototyper: client,
		Profiles:   profiles,
		Logger:     logger,
	}, chat.Timings{
		TypingDelay:         cfg.Timings.TypingDelay,
		RevealDelay:         cfg.Timings.RevealDelay,
		SatisfactionDismiss: cfg.Timings.SatisfactionDismiss,
		SatisfactionReshow:  cfg.Timings.SatisfactionReshow,
	}, chat.DefaultMessages())
	defer func() {
		ctrl.Close()
		ctrl.Wait()
	}()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(filepath.Dir(profilePath), "chat_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}
	defer saveHistory(line, historyFile)

	ctx := context.Background()
	out := newTranscript(os.Stdout)

	if err := ctrl.Open(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "could not restore your conversation:", err)
	}
	out.replay(ctrl.Snapshot())

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	go func() {
		for snap := range updates {
			out.update(snap)
		}
	}()

	if ctrl.Snapshot().Phase == chat.PhaseUnauthenticated {
		fmt.Println("Sign in to start chatting.")
		fmt.Println(usage)
	}

	for {
		input, err := line.Prompt("you> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := handle(ctx, ctrl, profiles, input)
		if err != nil {
			fmt.Fprintln(os.Stderr, "!", err)
		}
		if quit {
			return nil
		}
	}
}

// handle runs one line of input and reports whether the client should exit.
func handle(ctx context.Context, ctrl *chat.Controller, profiles profile.Repository, input string) (bool, error) {
	if !strings.HasPrefix(input, "/") {
		return false, ctrl.Send(ctx, input)
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/signin":
		if arg == "" {
			return false, errors.New("usage: /signin <credential>")
		}
		return false, ctrl.SignIn(ctx, arg)
	case "/rate":
		score, err := strconv.Atoi(arg)
		if err != nil {
			return false, errors.New("usage: /rate <1-5>")
		}
		return false, ctrl.Rate(ctx, score)
	case "/logout":
		if err := profiles.Clear(ctx); err != nil {
			return false, err
		}
		fmt.Println("Profile forgotten. It takes effect on the next start.")
		return false, nil
	case "/help":
		fmt.Println(usage)
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
}

func saveHistory(line *liner.State, path string) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	_, _ = line.WriteHistory(f)
}

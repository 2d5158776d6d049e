package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/quokkaworks/mnemo/pkg/config"
	"github.com/quokkaworks/mnemo/pkg/memory"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Hierarchical conversation memory manager",
		Long: strings.TrimSpace(`mnemo retains, compresses, and retrieves long conversation histories.

Messages land in short-term memory, get summarized into medium/long-term
chunks, and are recalled by semantic similarity under a token budget.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newChatCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newSessionsCommand())
	return root
}

func newChatCommand() *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Feed a session interactively and inspect its memory",
		Long: strings.TrimSpace(`Interactive driver for a single session.

Plain input is recorded as a user turn. Slash commands:
  /assistant <text>   record an assistant turn
  /context <query>    show the assembled retrieval context
  /facts              list extracted facts
  /tiers              show tier sizes and chunk summaries
  /summarize          force a summarization pass`),
		Example: "  mnemo chat --session cli:default",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath())
			if err != nil {
				return err
			}
			log := newLogger(cfg)
			mgr, err := buildManager(cfg, log)
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer mgr.Close(ctx)

			cleanupCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go mgr.Sessions().RunCleanupLoop(
				cleanupCtx,
				cfg.Memory.CleanupCron,
				time.Duration(cfg.Memory.SessionMaxIdleHours)*time.Hour,
			)

			return chatLoop(ctx, mgr, session)
		},
	}

	cmd.Flags().StringVarP(&session, "session", "s", "cli:default", "Session key for continuity")
	return cmd
}

func chatLoop(ctx context.Context, mgr *memory.Manager, sessionID string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".mnemo_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Session %s (Ctrl+C to exit)\n\n", sessionID)
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		if strings.HasPrefix(input, "/") {
			runSlashCommand(ctx, mgr, sessionID, input)
			continue
		}

		mgr.AddMessage(ctx, sessionID, "user", input)
		fmt.Println("recorded user turn")
	}
}

func runSlashCommand(ctx context.Context, mgr *memory.Manager, sessionID, input string) {
	command, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "/assistant":
		if rest == "" {
			fmt.Println("usage: /assistant <text>")
			return
		}
		mgr.AddMessage(ctx, sessionID, "assistant", rest)
		fmt.Println("recorded assistant turn")
	case "/context":
		if rest == "" {
			fmt.Println("usage: /context <query>")
			return
		}
		out := mgr.GetContext(ctx, sessionID, rest, 2000)
		fmt.Printf("\n%s\n\n(~%d tokens)\n", out, memory.EstimateTokens(out))
	case "/facts":
		cc := mgr.Sessions().Get(ctx, sessionID)
		if len(cc.Facts) == 0 {
			fmt.Println("no facts extracted yet")
			return
		}
		for _, f := range cc.Facts {
			fmt.Printf("- %.2f %s\n", f.Confidence, f.Content)
		}
	case "/tiers":
		cc := mgr.Sessions().Get(ctx, sessionID)
		fmt.Printf("short-term: %d entries\nmedium-term: %d chunks\nlong-term: %d chunks\nlast summarized: %s\n",
			len(cc.ShortTerm), len(cc.MediumTerm), len(cc.LongTerm), formatTime(cc.LastSummarized))
		for _, c := range cc.MediumTerm {
			fmt.Printf("  [%d] %s\n", c.Importance, c.Summary)
		}
	case "/summarize":
		mgr.Summarize(ctx, sessionID)
		fmt.Println("summarization requested")
	default:
		fmt.Printf("unknown command %s\n", command)
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and provider readiness",
		Example: "  mnemo status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath())
			if err != nil {
				return err
			}
			fmt.Printf("workspace:      %s\n", cfg.WorkspacePath())
			fmt.Printf("context db:     %s\n", cfg.DBPath())
			fmt.Printf("generation:     %s (%s)\n", readiness(cfg.Provider.APIKey), cfg.Provider.Model)
			fmt.Printf("embedding:      %s (%s)\n", readiness(cfg.Embedding.APIKey), cfg.Embedding.Model)
			fmt.Printf("summarize at:   %d messages / %d minutes\n",
				cfg.Memory.SummarizeEveryMessages, cfg.Memory.SummarizeEveryMinutes)
			fmt.Printf("cleanup:        cron %q, idle > %dh\n",
				cfg.Memory.CleanupCron, cfg.Memory.SessionMaxIdleHours)
			return nil
		},
	}
}

func newSessionsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "sessions",
		Short:   "List durable sessions, most recently written first",
		Example: "  mnemo sessions --limit 20",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath())
			if err != nil {
				return err
			}
			store, err := memory.NewSQLiteStore(cfg.DBPath())
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			ids, err := store.ListSessionIDs(ctx, limit)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("no sessions persisted yet")
				return nil
			}
			for _, id := range ids {
				cc, found, err := store.Load(ctx, id)
				if err != nil || !found {
					fmt.Printf("%s (unreadable)\n", id)
					continue
				}
				fmt.Printf("%s  short=%d medium=%d long=%d facts=%d last=%s\n",
					id, len(cc.ShortTerm), len(cc.MediumTerm), len(cc.LongTerm),
					len(cc.Facts), formatTime(cc.LastActivity()))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum sessions to list")
	return cmd
}

func readiness(apiKey string) string {
	if strings.TrimSpace(apiKey) == "" {
		return "not configured"
	}
	return "ready"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

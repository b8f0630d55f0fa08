// CortexVoice - connectivity-aware voice assistant with reminders
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/cortexvoice/internal/app"
	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/config"
	"github.com/normanking/cortexvoice/internal/connectivity"
	"github.com/normanking/cortexvoice/internal/logging"
	"github.com/normanking/cortexvoice/internal/reminder"
	"github.com/normanking/cortexvoice/internal/speech"
	"github.com/normanking/cortexvoice/internal/timeparse"
)

const version = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cortexvoice",
		Short:         "Voice assistant that switches between online and offline conversation modes",
		Long:          "CortexVoice runs a voice assistant that follows network connectivity: a hosted conversational agent while online, a local command loop with reminders while offline.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssistant(cmd.Context())
		},
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newStatusCmd(),
		newRemindersCmd(),
	)
	return rootCmd
}

// runAssistant is the root behavior: bring the whole runtime up and block
// until interrupted or the conversation ends.
func runAssistant(parent context.Context) error {
	loaded := config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(cfg.Logging.Level)
	logCfg.Console = cfg.Logging.Console
	syslog, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer syslog.Close()

	if len(loaded) > 0 {
		zl := syslog.Zerolog()
		zl.Info().Strs("files", loaded).Msg("Loaded environment files")
	}

	rt, err := app.New(cfg, syslog)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.Run(ctx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cortexvoice %s\n", version)
			return err
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report connectivity and reminder counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			checker := connectivity.NewChecker(cfg.Connectivity.ProbeAddr, cfg.Connectivity.ProbeURL,
				cfg.Connectivity.ProbeTimeout, zerolog.Nop())
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Connectivity.ProbeTimeout)
			defer cancel()

			state := "offline"
			if checker.Check(ctx) {
				state = "online"
			}

			store, err := reminder.NewStore(cfg.Reminders.StorePath, zerolog.Nop())
			if err != nil {
				return fmt.Errorf("open reminder store: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connectivity: %s\n", state)
			fmt.Fprintf(out, "Reminder store: %s\n", store.Path())
			fmt.Fprintf(out, "Reminders: %d total, %d active and upcoming\n",
				len(store.All()), len(store.ActiveFuture(time.Now())))

			if cfg.Metrics.Enabled {
				if entries := fetchHistory(cmd.Context(), cfg.Metrics.Addr); len(entries) > 0 {
					fmt.Fprintln(out, "Recent activity:")
					for _, e := range entries {
						fmt.Fprintf(out, "  %s [%s] %s\n", e.Timestamp, e.Level, e.Message)
					}
				}
			}
			return nil
		},
	}
}

// fetchHistory pulls the recent log entries a running instance exposes next
// to its metrics. No running instance just means no activity section.
func fetchHistory(ctx context.Context, addr string) []logging.LogEntry {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/history", nil)
	if err != nil {
		return nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var entries []logging.LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil
	}
	return entries
}

func newRemindersCmd() *cobra.Command {
	remindersCmd := &cobra.Command{
		Use:   "reminders",
		Short: "Manage stored reminders",
	}
	remindersCmd.AddCommand(
		newRemindersListCmd(),
		newRemindersAddCmd(),
		newRemindersDeleteCmd(),
		newRemindersClearCmd(),
	)
	return remindersCmd
}

// openScheduler builds a scheduler over the configured store for one-shot CLI
// operations. Timers and the sweep are never started here.
func openScheduler() (*reminder.Scheduler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := reminder.NewStore(cfg.Reminders.StorePath, zerolog.Nop())
	if err != nil {
		return nil, fmt.Errorf("open reminder store: %w", err)
	}
	speaker := speech.NewConsoleSpeaker(zerolog.Nop(), os.Stdout)
	return reminder.NewScheduler(store, timeparse.New(), speaker, bus.NewEventBus(),
		zerolog.Nop(), reminder.SchedulerConfig{
			FallbackDelay: cfg.Reminders.FallbackDelay,
			SweepSchedule: cfg.Reminders.SweepSchedule,
		}), nil
}

func newRemindersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active upcoming reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := openScheduler()
			if err != nil {
				return err
			}

			items := sched.List()
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No active reminders.")
				return nil
			}
			now := time.Now()
			for i, item := range items {
				fmt.Fprintf(out, "%d. %s — %s\n", i+1, timeparse.FormatHuman(item.Time, now), item.Text)
			}
			return nil
		},
	}
}

func newRemindersAddCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a reminder",
		Long:  "Add a reminder. The time is taken from --at, or parsed out of the text itself (\"call mom tomorrow at 5pm\").",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := openScheduler()
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			fragment := at
			if fragment == "" {
				fragment = text
			}

			item, confirmation, err := sched.Create(text, fragment)
			if err != nil {
				if errors.Is(err, timeparse.ErrTimeAlreadyPassed) {
					return fmt.Errorf("that time has already passed today")
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (reminder %d)\n", confirmation, item.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "natural-language time (\"tomorrow at 5pm\", \"in 20 minutes\")")
	return cmd
}

func newRemindersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <number|text>",
		Short: "Delete a reminder by list number or by matching text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := openScheduler()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if n, convErr := strconv.Atoi(args[0]); convErr == nil && len(args) == 1 {
				deleted, err := sched.DeleteByNumber(n)
				if err != nil {
					if errors.Is(err, reminder.ErrNotFound) {
						return fmt.Errorf("no reminder numbered %d", n)
					}
					return err
				}
				fmt.Fprintf(out, "Deleted reminder %d: %s\n", n, deleted.Text)
				return nil
			}

			phrase := strings.Join(args, " ")
			deleted, err := sched.DeleteByContent(phrase)
			if err != nil {
				var ambiguous *reminder.AmbiguousMatchError
				if errors.As(err, &ambiguous) {
					fmt.Fprintf(out, "%d reminders match %q:\n", len(ambiguous.Matches), phrase)
					now := time.Now()
					for i, item := range ambiguous.Matches {
						fmt.Fprintf(out, "%d. %s — %s\n", i+1, timeparse.FormatHuman(item.Time, now), item.Text)
					}
					return fmt.Errorf("be more specific, or delete by number")
				}
				if errors.Is(err, reminder.ErrNotFound) {
					return fmt.Errorf("no reminder matches %q", phrase)
				}
				return err
			}
			fmt.Fprintf(out, "Deleted reminder: %s\n", deleted.Text)
			return nil
		},
	}
}

func newRemindersClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Deactivate every reminder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, err := openScheduler()
			if err != nil {
				return err
			}
			n, err := sched.ClearAll()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d reminders.\n", n)
			return nil
		},
	}
}

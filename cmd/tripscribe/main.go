package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wads/tripscribe/internal/bus"
	"github.com/wads/tripscribe/internal/config"
	"github.com/wads/tripscribe/internal/daemon"
	"github.com/wads/tripscribe/internal/deps"
	"github.com/wads/tripscribe/internal/logging"
	"github.com/wads/tripscribe/internal/models/whisper"
	"github.com/wads/tripscribe/internal/queue"
	"github.com/wads/tripscribe/internal/tui"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	tui.DisableColorsIfPiped()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "tripscribe",
	Short:        "Hands-free trip transcription daemon",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		statusCmd(),
		queueCmd(),
		retryCmd(),
		versionCmd(),
		stopCmd(),
		configureCmd(),
		modelsCmd(),
		languagesCmd(),
		doctorCmd(),
	)
}

func serveCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnv(envFile); err != nil {
				return err
			}

			cfg, err := config.LoadOrCreate()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := logging.New(cfg.ToLoggingOptions("tripscribe")...)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			mgr, err := config.NewManager(logger)
			if err != nil {
				return err
			}
			d, err := daemon.Build(mgr, logger, version)
			if err != nil {
				return fmt.Errorf("failed to create daemon: %w", err)
			}
			return d.Run()
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "load API keys from this file instead of ./.env and the config directory")

	return cmd
}

// loadEnv reads API keys from an env file. Variables already set in the environment win.
func loadEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	}

	candidates := []string{".env"}
	if configPath, err := config.GetConfigPath(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, path := range candidates {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

func toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Start or stop a trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdToggle)
			if err != nil {
				return fmt.Errorf("failed to toggle trip: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get current trip status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdStatus)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the chunks waiting for transcription",
		Long: `Show the transcription queue.
With the daemon running this prints its counters. Otherwise the queue directory is
read directly and every item is listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQueue)
			if err == nil {
				fmt.Print(tui.RenderQueueReply(resp))
				return nil
			}
			return withOfflineQueue(err, func(q *queue.Queue) error {
				fmt.Println(tui.RenderSnapshot(q.Snapshot()))
				return nil
			})
		},
	}
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [chunk-id]",
		Short: "Move failed chunks back to pending",
		Long: `Move failed chunks back to pending.
Without an argument every failed chunk is requeued. With a chunk id, or the short
id listed by "tripscribe queue", only that chunk is.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			resp, err := bus.SendRequest(bus.CmdRetry, id)
			if err == nil {
				fmt.Println(resp)
				if strings.HasPrefix(resp, "ERR") {
					return errors.New(strings.TrimPrefix(resp, "ERR "))
				}
				return nil
			}
			return withOfflineQueue(err, func(q *queue.Queue) error {
				if id == "" {
					n := q.ResetAllToPending()
					fmt.Printf("Requeued %d chunk(s); they are transcribed on the next trip.\n", n)
					return nil
				}
				full, ok := q.ResolveID(id)
				if !ok || !q.MarkRetry(full) {
					return fmt.Errorf("no failed chunk with id %s", id)
				}
				fmt.Printf("Requeued %s; it is transcribed on the next trip.\n", full)
				return nil
			})
		},
	}
}

// withOfflineQueue opens the queue directory when no daemon owns it. Opening runs
// recovery, so it must never happen under a live daemon.
func withOfflineQueue(sendErr error, fn func(q *queue.Queue) error) error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return fmt.Errorf("daemon running but not answering: %w", sendErr)
	}

	cfg, err := loadConfigOrDefault()
	if err != nil {
		return err
	}
	dir, err := cfg.QueueDir()
	if err != nil {
		return err
	}
	q, err := queue.Open(dir, logging.Nop())
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	return fn(q)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and daemon versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tripscribe %s (protocol %s)\n", version, bus.ProtoVer)
			resp, err := bus.SendCommand(bus.CmdVersion)
			if err != nil {
				fmt.Println("daemon: not running")
				return nil
			}
			fmt.Printf("daemon: %s\n", resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQuit)
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration editor for tripscribe.
This will guide you through setting up:
- The transcription engine, whisper model and fallback
- The recognizer language and backend
- Chunking thresholds
- Notifications and metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := loadConfigOrDefault()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration editor error: %w", err)
	}
	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}
	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println(tui.StyleSuccess.Render("Configuration saved."))
	showNextSteps(result.Config)
	return nil
}

func showNextSteps(cfg *config.Config) {
	fmt.Println()
	if _, err := bus.SendCommand(bus.CmdStatus); err == nil {
		fmt.Println("The running daemon picks up the change on its own.")
	} else {
		fmt.Println("Next Steps:")
		fmt.Println("1. Start the daemon: tripscribe serve")
		fmt.Println("2. Start a trip: tripscribe toggle")
	}

	dir, err := whisper.ExpandDir(cfg.Engine.ModelsDir)
	if err == nil && !whisper.IsInstalled(dir, cfg.Engine.Model) {
		fmt.Println()
		fmt.Println(tui.StyleWarning.Render(fmt.Sprintf("Model %s is not installed in %s", cfg.Engine.Model, dir)))
	}

	configPath, _ := config.GetConfigPath()
	fmt.Printf("\nConfig file location: %s\n", configPath)
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List whisper models and which are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}
			dir, err := whisper.ExpandDir(cfg.Engine.ModelsDir)
			if err != nil {
				return err
			}
			fmt.Println(tui.RenderModels(dir, cfg.Engine.Model))
			return nil
		},
	}
}

func languagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported recognizer languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOrDefault()
			if err != nil {
				return err
			}
			fmt.Println(tui.RenderLanguages(cfg.Engine.Language))
			return nil
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check programs, model and keys needed to run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

func runDoctor() error {
	if err := loadEnv(""); err != nil {
		return err
	}
	cfg, err := loadConfigOrDefault()
	if err != nil {
		return err
	}

	statuses := deps.CheckAll()
	fmt.Println(tui.RenderDeps(statuses))

	problems := len(deps.MissingRequired(statuses))

	dir, err := whisper.ExpandDir(cfg.Engine.ModelsDir)
	if err != nil {
		return err
	}
	if whisper.IsInstalled(dir, cfg.Engine.Model) {
		fmt.Println(tui.StyleSuccess.Render("Model " + cfg.Engine.Model + " installed"))
	} else if fb := cfg.FallbackEngine(); fb != "" {
		fmt.Println(tui.StyleWarning.Render(fmt.Sprintf("Model %s missing from %s; trips fall back to %s", cfg.Engine.Model, dir, fb)))
	} else {
		fmt.Println(tui.StyleError.Render(fmt.Sprintf("Model %s missing from %s and no fallback configured", cfg.Engine.Model, dir)))
		if cfg.Engine.Engine == "local" {
			problems++
		}
	}

	if cfg.APIKey() != "" {
		fmt.Println(tui.StyleSuccess.Render(cfg.Engine.Recognizer + " API key set"))
	} else {
		fmt.Println(tui.StyleWarning.Render(fmt.Sprintf("%s is not set; platform engines are unavailable", cfg.APIKeyEnv())))
	}

	if err := cfg.Validate(); err != nil {
		fmt.Println(tui.StyleError.Render("Config: " + err.Error()))
		problems++
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	return nil
}

// loadConfigOrDefault reads the config file, using defaults when none was written yet.
func loadConfigOrDefault() (*config.Config, error) {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrConfigNotFound) {
		return config.DefaultConfig(), nil
	}
	return cfg, err
}

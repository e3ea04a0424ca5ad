package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fmueller/voxjson/internal/config"
	"github.com/fmueller/voxjson/internal/download"
	"github.com/fmueller/voxjson/internal/logging"
	"github.com/fmueller/voxjson/internal/platform"
	"github.com/fmueller/voxjson/internal/version"
	"github.com/fmueller/voxjson/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose      bool
	jsonLogs     bool
	noProgress   bool
	configPath   string
	model        string
	modelDir     string
	language     string
	engine       string
	autoDownload bool
	output       string

	whisperCLIPath    string
	openAIWhisperPath string

	logger *zap.Logger
	errOut io.Writer
	getenv func(string) string

	newEngineFn func(name string, opts whisper.EngineOptions) (whisper.Engine, error)
	downloadFn  func(ctx context.Context, opts download.Options) error
}

func newAppState() *appState {
	defaults := config.Default()
	return &appState{
		model:        defaults.Model,
		language:     defaults.Language,
		engine:       defaults.Engine,
		autoDownload: defaults.AutoDownload,
		getenv:       os.Getenv,
		newEngineFn:  whisper.NewEngine,
		downloadFn:   download.DownloadFile,
	}
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voxjson <audio-file>",
		Short: "Transcribe an audio file with Whisper and print the segments as JSON",
		Long: "Transcribe an audio file with a local Whisper engine and emit a JSON document\n" +
			"with timestamped segments on stdout, or in the file given by --output.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Line(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			app.errOut = cmd.ErrOrStderr()

			if err := app.loadConfig(cmd); err != nil {
				return err
			}
			app.language = sanitizeLanguage(app.language)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runTranscribe(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindProgressFlag(cmd, app)
	bindModelFlags(cmd, app)
	cmd.PersistentFlags().StringVar(&app.configPath, "config", app.configPath, "Path to a YAML config file (default: per-user config directory)")
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language code (auto|ko|en|...) for transcription")
	cmd.Flags().StringVar(&app.engine, "engine", app.engine, "Transcription engine: "+strings.Join(whisper.EngineNames(), "|"))
	cmd.Flags().StringVar(&app.output, "output", app.output, "Write the JSON result to this file instead of stdout")

	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs and stream engine output to stderr")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
}

func bindProgressFlag(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.model, "model", app.model, "Model name or model file path")
	cmd.PersistentFlags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where whisper-cli models are stored")
	cmd.PersistentFlags().BoolVar(&app.autoDownload, "auto-download", app.autoDownload, "Automatically download missing whisper-cli models")
}

// loadConfig fills every flag the user did not set from the config file.
func (a *appState) loadConfig(cmd *cobra.Command) error {
	path := a.configPath
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		resolved, err := platform.ResolveConfigPath()
		if err != nil {
			a.log().Debug("no default config location", zap.Error(err))
		}
		path = resolved
	}

	cfg, err := config.Load(path, explicit)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(a.getenv)

	changed := cmd.Flags().Changed
	if !changed("model") {
		a.model = cfg.Model
	}
	if !changed("model-dir") {
		a.modelDir = cfg.ModelDir
	}
	if !changed("auto-download") {
		a.autoDownload = cfg.AutoDownload
	}
	if !changed("language") {
		a.language = cfg.Language
	}
	if !changed("engine") {
		a.engine = cfg.Engine
	}
	a.whisperCLIPath = cfg.WhisperCLIPath
	a.openAIWhisperPath = cfg.OpenAIWhisperPath

	a.log().Debug("configuration resolved",
		zap.String("config", path),
		zap.String("model", a.model),
		zap.String("engine", a.engine),
		zap.String("language", a.language),
	)
	return nil
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

// progressEnabled is false in verbose mode, where the engine's own output is
// streamed to stderr instead.
func (a *appState) progressEnabled() bool {
	if a.noProgress || a.verbose {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) engineProgress() io.Writer {
	if !a.verbose {
		return nil
	}
	if a.errOut == nil {
		return os.Stderr
	}
	return a.errOut
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}

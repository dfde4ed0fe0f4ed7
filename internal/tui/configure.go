package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/wads/tripscribe/internal/config"
	"github.com/wads/tripscribe/internal/language"
	"github.com/wads/tripscribe/internal/models/whisper"
	"github.com/wads/tripscribe/internal/transcriber"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionEngine        ConfigSection = "engine"
	SectionLanguage      ConfigSection = "language"
	SectionRecognizer    ConfigSection = "recognizer"
	SectionChunking      ConfigSection = "chunking"
	SectionNotifications ConfigSection = "notifications"
	SectionMetrics       ConfigSection = "metrics"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run starts the configuration menu on a copy of cfg.
func Run(existing *config.Config) (*ConfigureResult, error) {
	cfg := config.DefaultConfig()
	if existing != nil {
		c := *existing
		cfg = &c
	}

	for {
		ClearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := cfg.Validate(); err != nil {
				fmt.Println(StyleError.Render("Invalid configuration: " + err.Error()))
				waitEnter()
				continue
			}
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case SectionEngine:
			_ = editEngine(cfg)
		case SectionLanguage:
			_ = editLanguage(cfg)
		case SectionRecognizer:
			_ = editRecognizer(cfg)
		case SectionChunking:
			_ = editChunking(cfg)
		case SectionNotifications:
			_ = editNotifications(cfg)
		case SectionMetrics:
			_ = editMetrics(cfg)
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatEngineLabel(cfg), SectionEngine),
		huh.NewOption(formatLanguageLabel(cfg), SectionLanguage),
		huh.NewOption(formatRecognizerLabel(cfg), SectionRecognizer),
		huh.NewOption(formatChunkingLabel(cfg), SectionChunking),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption(formatMetricsLabel(cfg), SectionMetrics),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func formatEngineLabel(cfg *config.Config) string {
	fallback := cfg.Engine.Fallback
	if fallback == "" {
		fallback = "none"
	}
	return fmt.Sprintf("Engine: %s (model %s, fallback %s)", cfg.Engine.Engine, cfg.Engine.Model, fallback)
}

func formatLanguageLabel(cfg *config.Config) string {
	if lang, ok := language.FromTag(cfg.Engine.Language); ok {
		return fmt.Sprintf("Language: %s (%s)", lang.Name, lang.Tag)
	}
	return fmt.Sprintf("Language: %s", cfg.Engine.Language)
}

func formatRecognizerLabel(cfg *config.Config) string {
	state := "key missing"
	if cfg.APIKey() != "" {
		state = "key set"
	}
	return fmt.Sprintf("Platform recognizer: %s (%s: %s)", cfg.Engine.Recognizer, cfg.APIKeyEnv(), state)
}

func formatChunkingLabel(cfg *config.Config) string {
	return fmt.Sprintf("Chunking: flush after %s silence, max %s", cfg.Chunking.SilenceFlush, cfg.Chunking.MaxChunk)
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications: disabled"
	}
	return fmt.Sprintf("Notifications: %s", cfg.Notifications.Type)
}

func formatMetricsLabel(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return "Metrics: disabled"
	}
	return fmt.Sprintf("Metrics: http://%s/metrics", cfg.Metrics.Address)
}

func engineOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("Local whisper.cpp (offline)", string(transcriber.EngineLocal)),
		huh.NewOption("Platform, continuous session", string(transcriber.EnginePlatformContinuous)),
		huh.NewOption("Platform, session per chunk", string(transcriber.EnginePlatformInjected)),
	}
}

func fallbackOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("Platform, continuous session", string(transcriber.EnginePlatformContinuous)),
		huh.NewOption("Platform, session per chunk", string(transcriber.EnginePlatformInjected)),
		huh.NewOption("No fallback", ""),
	}
}

// modelOptions lists the whisper catalog, marking installed models.
func modelOptions(modelsDir string) []huh.Option[string] {
	models := whisper.ListModels()
	options := make([]huh.Option[string], 0, len(models))
	for _, m := range models {
		label := fmt.Sprintf("%s - %s (%s)", m.ID, m.Details, m.Size)
		if modelsDir != "" && whisper.IsInstalled(modelsDir, m.ID) {
			label += " [installed]"
		}
		options = append(options, huh.NewOption(label, m.ID))
	}
	return options
}

func languageOptions() []huh.Option[string] {
	langs := language.List()
	options := make([]huh.Option[string], 0, len(langs))
	for _, l := range langs {
		options = append(options, huh.NewOption(fmt.Sprintf("%s - %s", l.Name, l.NativeName), l.Tag))
	}
	return options
}

// languageWarning returns a message when the local model cannot transcribe tag.
func languageWarning(modelID, tag string) string {
	m := whisper.GetModel(modelID)
	if m == nil || m.SupportsLanguage(language.Base(tag)) {
		return ""
	}
	return fmt.Sprintf("Model '%s' is English only and will not transcribe %s.", m.ID, tag)
}

func editEngine(cfg *config.Config) error {
	engine := cfg.Engine.Engine
	fallback := cfg.Engine.Fallback
	model := cfg.Engine.Model

	modelsDir, _ := whisper.ExpandDir(cfg.Engine.ModelsDir)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transcription Engine").
				Description("Local runs whisper-cli; platform engines stream to the recognizer backend").
				Options(engineOptions()...).
				Value(&engine),
			huh.NewSelect[string]().
				Title("Fallback").
				Description("Used once when the local engine cannot start").
				Options(fallbackOptions()...).
				Value(&fallback),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Whisper Model").
				Description("Models are looked up in " + modelsDir).
				Options(modelOptions(modelsDir)...).
				Filtering(true).
				Value(&model),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Engine.Engine = engine
	cfg.Engine.Fallback = fallback
	cfg.Engine.Model = model
	warnLanguage(cfg)
	return nil
}

func editLanguage(cfg *config.Config) error {
	selected := language.Normalize(cfg.Engine.Language)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Language").
				Description("Recognizer language for every engine").
				Options(languageOptions()...).
				Filtering(true).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Engine.Language = selected
	warnLanguage(cfg)
	return nil
}

func warnLanguage(cfg *config.Config) {
	if msg := languageWarning(cfg.Engine.Model, cfg.Engine.Language); msg != "" {
		fmt.Println()
		fmt.Println(StyleWarning.Render("Language-Model Compatibility Warning"))
		fmt.Println(msg)
		fmt.Println(StyleMuted.Render("Pick a multilingual model or change the language."))
		waitEnter()
	}
}

func editRecognizer(cfg *config.Config) error {
	recognizer := cfg.Engine.Recognizer
	model := cfg.Engine.RecognizerModel

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Platform Recognizer").
				Description("API keys are read from the environment or a .env file").
				Options(
					huh.NewOption("Deepgram streaming (DEEPGRAM_API_KEY)", "deepgram"),
					huh.NewOption("OpenAI Whisper API (OPENAI_API_KEY)", "openai"),
				).
				Value(&recognizer),
			huh.NewInput().
				Title("Recognizer Model").
				Description("Leave empty for the backend default").
				Value(&model),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Engine.Recognizer = recognizer
	cfg.Engine.RecognizerModel = strings.TrimSpace(model)
	return nil
}

func editChunking(cfg *config.Config) error {
	minContext := cfg.Chunking.MinContext.String()
	silenceFlush := cfg.Chunking.SilenceFlush.String()
	maxChunk := cfg.Chunking.MaxChunk.String()
	trim := cfg.Chunking.TrimSilence
	drop := cfg.Chunking.DropSilent

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Minimum context").Value(&minContext).Validate(validateDuration),
			huh.NewInput().Title("Silence flush").Value(&silenceFlush).Validate(validateDuration),
			huh.NewInput().Title("Maximum chunk").Value(&maxChunk).Validate(validateDuration),
			huh.NewConfirm().Title("Trim leading and trailing silence?").Value(&trim),
			huh.NewConfirm().Title("Drop chunks without speech?").Value(&drop),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Chunking.MinContext, _ = time.ParseDuration(minContext)
	cfg.Chunking.SilenceFlush, _ = time.ParseDuration(silenceFlush)
	cfg.Chunking.MaxChunk, _ = time.ParseDuration(maxChunk)
	cfg.Chunking.TrimSilence = trim
	cfg.Chunking.DropSilent = drop
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("use a duration like 3s or 500ms")
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	kind := cfg.Notifications.Type
	if kind == "" {
		kind = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description("Trip start/stop, engine fallback and transcription errors").
				Value(&enabled),
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Log only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&kind),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = kind
	return nil
}

func editMetrics(cfg *config.Config) error {
	enabled := cfg.Metrics.Enabled
	address := cfg.Metrics.Address

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Expose Prometheus metrics?").
				Value(&enabled),
			huh.NewInput().
				Title("Listen address").
				Value(&address),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Metrics.Enabled = enabled
	cfg.Metrics.Address = strings.TrimSpace(address)
	return nil
}

// summaryLines describes cfg for the confirmation screen.
func summaryLines(cfg *config.Config) []string {
	lines := []string{
		fmt.Sprintf("%s %s", StyleLabel.Render("Engine:"), formatEngineLabel(cfg)),
		fmt.Sprintf("%s %s", StyleLabel.Render("Language:"), cfg.Engine.Language),
		fmt.Sprintf("%s %s", StyleLabel.Render("Recognizer:"), formatRecognizerLabel(cfg)),
		fmt.Sprintf("%s %s", StyleLabel.Render("Chunking:"), formatChunkingLabel(cfg)),
		fmt.Sprintf("%s %s", StyleLabel.Render("Notifications:"), formatNotificationsLabel(cfg)),
		fmt.Sprintf("%s %s", StyleLabel.Render("Metrics:"), formatMetricsLabel(cfg)),
	}
	if cfg.Engine.Engine != string(transcriber.EngineLocal) && cfg.APIKey() == "" {
		lines = append(lines, StyleWarning.Render(fmt.Sprintf("Set %s before starting a trip.", cfg.APIKeyEnv())))
	}
	return lines
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	for _, line := range summaryLines(cfg) {
		fmt.Println("  " + line)
	}
	fmt.Println()

	confirmed := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}

func waitEnter() {
	_ = huh.NewForm(
		huh.NewGroup(
			huh.NewNote().Title("Press enter to continue"),
		),
	).WithTheme(getTheme()).Run()
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lendfront/supportline/internal/api"
	"github.com/lendfront/supportline/internal/engine"
	"github.com/lendfront/supportline/internal/genai"
	"github.com/lendfront/supportline/internal/messaging"
	"github.com/lendfront/supportline/internal/models"
	"github.com/lendfront/supportline/internal/scheduler"
	"github.com/lendfront/supportline/internal/store"
	"github.com/lendfront/supportline/internal/twiliosupport"
	"github.com/lendfront/supportline/internal/util"
	"github.com/lendfront/supportline/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Supportline state data
	DefaultStateDir = "/var/lib/supportline"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "supportline.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow session database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSweepCron runs the stale voice conversation sweep every 5 minutes
	DefaultSweepCron = "*/5 * * * *"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping Supportline with configured modules")
	slog.Debug("Final configuration",
		"state_dir", *flags.stateDir,
		"dsn_set", *flags.dbDSN != "",
		"api_addr", *flags.apiAddr,
		"whatsapp_enabled", *flags.enableWhatsApp)

	if err := run(flags); err != nil {
		slog.Error("Supportline failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Supportline exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseDSN     string
	WhatsAppDSN     string
	StateDir        string
	OpenAIKey       string
	APIAddr         string
	BaseURL         string
	TwilioAuthToken string
	PersonaFile     string
	SweepCron       string
	StaleThreshold  time.Duration
	HistoryLimit    int
	EnableWhatsApp  bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	whatsappDSN    *string
	openaiKey      *string
	apiAddr        *string
	baseURL        *string
	personaFile    *string
	sweepCron      *string
	enableWhatsApp *bool
	qrOutput       *string
	numeric        *bool

	// carried through from the environment, no flag override
	twilioAuthToken string
	staleThreshold  time.Duration
	historyLimit    int
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:        os.Getenv("SUPPORTLINE_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		BaseURL:         os.Getenv("WEBHOOK_BASE_URL"),
		TwilioAuthToken: os.Getenv("TWILIO_AUTH_TOKEN"),
		PersonaFile:     os.Getenv("PERSONA_FILE"),
		SweepCron:       os.Getenv("SWEEP_SCHEDULE"),
		StaleThreshold:  util.ParseDurationEnv("STALE_THRESHOLD", engine.DefaultStaleThreshold),
		HistoryLimit:    util.ParseIntEnv("AI_HISTORY_LIMIT", engine.DefaultHistoryLimit),
		EnableWhatsApp:  util.ParseBoolEnv("ENABLE_WHATSAPP", false),
	}

	// Legacy DATABASE_URL support
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = os.Getenv("DATABASE_URL")
		if config.DatabaseDSN != "" {
			slog.Debug("Using DATABASE_URL as DATABASE_DSN", "dsn_set", true)
		}
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SUPPORTLINE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database DSN is provided, default to SQLite in the state directory
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}

	if config.SweepCron == "" {
		config.SweepCron = DefaultSweepCron
	}

	slog.Debug("environment variables loaded",
		"DATABASE_DSN_SET", config.DatabaseDSN != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"SUPPORTLINE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"WEBHOOK_BASE_URL", config.BaseURL,
		"TWILIO_AUTH_TOKEN_SET", config.TwilioAuthToken != "",
		"SWEEP_SCHEDULE", config.SweepCron,
		"STALE_THRESHOLD", config.StaleThreshold,
		"AI_HISTORY_LIMIT", config.HistoryLimit,
		"ENABLE_WHATSAPP", config.EnableWhatsApp)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for Supportline data (overrides $SUPPORTLINE_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseDSN, "database DSN for the conversation store (overrides $DATABASE_DSN or $DATABASE_URL)"),
		whatsappDSN:    flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		baseURL:        flag.String("base-url", config.BaseURL, "externally visible base URL for webhooks (overrides $WEBHOOK_BASE_URL)"),
		personaFile:    flag.String("persona-file", config.PersonaFile, "path to a persona prompt file (overrides $PERSONA_FILE)"),
		sweepCron:      flag.String("sweep-cron", config.SweepCron, "cron schedule for the stale voice conversation sweep (overrides $SWEEP_SCHEDULE)"),
		enableWhatsApp: flag.Bool("whatsapp", config.EnableWhatsApp, "enable the direct WhatsApp channel (overrides $ENABLE_WHATSAPP)"),
		qrOutput:       flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use a numeric WhatsApp login code instead of a QR code"),

		twilioAuthToken: config.TwilioAuthToken,
		staleThreshold:  config.StaleThreshold,
		historyLimit:    config.HistoryLimit,
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"whatsappDSN_set", *flags.whatsappDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"baseURL", *flags.baseURL,
		"personaFile", *flags.personaFile,
		"sweepCron", *flags.sweepCron,
		"enableWhatsApp", *flags.enableWhatsApp)

	// Update database DSNs if not explicitly set but state directory changed
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
			slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
		}
		if *flags.whatsappDSN == filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) {
			*flags.whatsappDSN = filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)
		}
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore opens the conversation store matching the DSN type.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildEngineOptions constructs engine configuration options
func buildEngineOptions(flags Flags, notifier engine.HandoffNotifier) ([]engine.Option, error) {
	opts := []engine.Option{
		engine.WithHistoryLimit(flags.historyLimit),
		engine.WithHandoffNotifier(notifier),
	}
	if *flags.personaFile != "" {
		persona, err := os.ReadFile(*flags.personaFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithPersona(string(persona)))
		slog.Info("Persona prompt loaded from file", "path", *flags.personaFile)
	}
	return opts, nil
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags, notifier engine.HandoffNotifier) []api.Option {
	opts := []api.Option{
		api.WithHandoffNotifier(notifier),
		api.WithStaleThreshold(flags.staleThreshold),
	}
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.baseURL != "" {
		opts = append(opts, api.WithBaseURL(*flags.baseURL))
	}
	if flags.twilioAuthToken != "" {
		opts = append(opts, api.WithValidator(twiliosupport.NewWebhookValidator(flags.twilioAuthToken)))
	}
	return opts
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	generator, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	twilioClient, err := twiliosupport.NewClient()
	if err != nil {
		return err
	}
	notifier := twiliosupport.NewHandoffNotifier(twilioClient, st)

	engineOpts, err := buildEngineOptions(flags, notifier)
	if err != nil {
		return err
	}
	eng := engine.NewEngine(st, generator, engineOpts...)

	msgService := messaging.NewTwilioService(twilioClient)
	if err := msgService.Start(ctx); err != nil {
		return err
	}
	defer msgService.Stop()

	// The stale voice sweep runs on a cron cadence alongside the API.
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.sweepCron, func() {
		if _, err := eng.SweepStaleVoice(time.Now(), flags.staleThreshold); err != nil {
			slog.Error("Stale voice conversation sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}

	if *flags.enableWhatsApp {
		waService, err := startWhatsAppChannel(ctx, flags, eng)
		if err != nil {
			return err
		}
		defer waService.Stop()
	}

	server := api.NewServer(st, eng, msgService, buildAPIOptions(flags, notifier)...)
	return server.Run(ctx)
}

// startWhatsAppChannel connects the direct WhatsApp client and pumps its
// inbound messages through the engine.
func startWhatsAppChannel(ctx context.Context, flags Flags, eng *engine.Engine) (*messaging.WhatsAppService, error) {
	var waOpts []whatsapp.Option
	if *flags.whatsappDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
	}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}

	waClient, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, err
	}
	waService := messaging.NewWhatsAppService(waClient)
	if err := waService.Start(ctx); err != nil {
		return nil, err
	}

	go func() {
		for event := range waService.Inbound() {
			result, err := eng.HandleInbound(ctx, event)
			if err != nil {
				slog.Error("WhatsApp inbound turn failed", "error", err, "from", event.CustomerPhone)
				continue
			}
			if err := waService.SendText(ctx, models.ChannelWhatsApp, event.CustomerPhone, result.ReplyText); err != nil {
				slog.Error("WhatsApp reply delivery failed", "error", err, "conversation_id", result.ConversationID)
			}
		}
	}()

	slog.Info("Direct WhatsApp channel started")
	return waService, nil
}

package bootstrap

import (
	"context"
	"fmt"

	"outreach-server/internal/calls/dispatch"
	callsHandler "outreach-server/internal/calls/handler"
	callsProcessor "outreach-server/internal/calls/processor"
	"outreach-server/internal/clients/billing"
	"outreach-server/internal/clients/googleai"
	"outreach-server/internal/clients/mail"
	openaiClient "outreach-server/internal/clients/openai"
	twilioClient "outreach-server/internal/clients/twilio"
	"outreach-server/internal/config"
	"outreach-server/internal/dialogue"
	"outreach-server/internal/observability"
	"outreach-server/internal/session"
	"outreach-server/internal/store"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store    store.Store
	Logger   *observability.Logger
	Registry *session.Registry

	// Handlers
	CallsHandler callsHandler.Handler

	// Background workers
	Dispatcher *dispatch.Dispatcher
	Sweeper    *session.Sweeper
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	var err error
	deps.Store, err = store.New(cfg.Database.ConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Initialize the session registry and its sweeper
	deps.Registry = session.NewRegistry(session.RegistryConfig{
		MaxConcurrentSessions: cfg.Calls.MaxConcurrentSessions,
		Retention:             cfg.Calls.Retention,
	}, logger)
	deps.Sweeper = session.NewSweeper(deps.Registry, logger, cfg.Calls.SweepInterval)

	// Initialize vendor clients
	telephony, err := twilioClient.New(
		cfg.Services.TwilioAccountSID,
		cfg.Services.TwilioAuthToken,
		cfg.Services.TwilioFromNumber,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create twilio client: %w", err)
	}

	promoClient, err := billing.New(cfg.Services.StripeSecretKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe client: %w", err)
	}

	mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, cfg.Services.DefaultEmailSender, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create resend client: %w", err)
	}

	// Select the LLM turn provider
	var provider dialogue.TurnProvider
	switch cfg.Services.LLMProvider {
	case "gemini":
		provider, err = googleai.New(cfg.Services.GoogleAIAPIKey, cfg.Services.LLMModel, logger)
	default:
		provider, err = openaiClient.New(cfg.Services.OpenAIAPIKey, cfg.Services.LLMModel, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create llm turn provider: %w", err)
	}

	// Initialize the dialogue engine with the real tool executor
	executor := callsProcessor.NewToolExecutor(promoClient, telephony, mailClient, logger)
	engine := dialogue.NewEngine(deps.Registry, provider, executor, logger)

	// Initialize the call dispatcher
	deps.Dispatcher = dispatch.New(dispatch.Config{
		NumWorkers:        cfg.Calls.DispatchWorkers,
		AnswerURL:         cfg.Services.PublicBaseURL + "/api/calls/webhook/voice",
		StatusCallbackURL: cfg.Services.PublicBaseURL + "/api/calls/webhook/status",
	}, deps.Registry, telephony, logger)

	// Initialize the call processor and handler
	callProc := callsProcessor.New(deps.Registry, engine, &deps.Store, deps.Dispatcher, logger)
	deps.CallsHandler = callsHandler.New(callProc, logger)

	return deps, nil
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	if d.Dispatcher != nil {
		d.Dispatcher.Stop()
	}
	if d.Sweeper != nil {
		d.Sweeper.Stop()
	}
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"dealdesk_backend/internal/adapters"
	"dealdesk_backend/internal/adapters/storage"
	"dealdesk_backend/internal/briefs"
	"dealdesk_backend/internal/calendar"
	"dealdesk_backend/internal/documents"
	"dealdesk_backend/internal/email"
	"dealdesk_backend/internal/enrichment"
	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/identity"
	"dealdesk_backend/internal/imports"
	"dealdesk_backend/internal/notification"
	notificationoutbox "dealdesk_backend/internal/notification/outbox"
	"dealdesk_backend/internal/opportunities"
	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/internal/transcription"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/db"
	"dealdesk_backend/platform/logger"
	"dealdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer queueClient.Close()

	var sender email.Sender = email.NoopSender{}
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(
			cfg.GetSMTPHost(),
			cfg.GetSMTPPort(),
			cfg.GetSMTPUsername(),
			cfg.GetSMTPPassword(),
			cfg.GetEmailFromAddress(),
			cfg.GetEmailFromName(),
		)
	}

	// Worker-side notification wiring: pipeline events raised here create the
	// in-app rows and outbox emails. No SSE; nobody is connected to a worker.
	notificationModule := notification.New(pool, sender, cfg, log)
	notificationModule.RegisterHandlers(eventBus)
	notificationModule.SetNotificationOutbox(notificationoutbox.New(pool))

	val := validator.New()

	var storageSvc storage.StorageService
	if cfg.IsMinIOEnabled() {
		svc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		storageSvc = svc
	}

	var companyLookup ports.CompanyLookup
	if cfg.IsEnrichmentEnabled() {
		companyLookup = enrichment.New(cfg, log)
	}

	// Worker-side pipeline wiring (no HTTP handlers required).
	identityModule := identity.NewModule(pool, val)
	opportunitiesModule, err := opportunities.NewModule(pool, queueClient, eventBus, companyLookup, val, cfg, log)
	if err != nil {
		log.Error("failed to initialize opportunities module", "error", err)
		panic("failed to initialize opportunities module: " + err.Error())
	}
	calendarModule := calendar.NewModule(pool, queueClient, log)

	opportunitiesModule.SetCalendarSource(adapters.NewCalendarScheduleSource(calendarModule.Service()))
	opportunitiesModule.SetOrganizationReader(adapters.NewOrganizationNameReader(identityModule.Service()))
	opportunitiesModule.SetAISettingsReader(adapters.NewAISettingsReader(identityModule.Service()))

	briefsModule := briefs.NewModule(pool, val, log)
	documentsModule, err := documents.NewModule(pool, queueClient, eventBus, val, cfg, log)
	if err != nil {
		log.Error("failed to initialize documents module", "error", err)
		panic("failed to initialize documents module: " + err.Error())
	}
	documentsModule.SetContextSource(adapters.NewDocumentContextSource(opportunitiesModule.Repository()))
	documentsModule.SetTemplateSource(adapters.NewDocumentTemplateSource(briefsModule.Service()))
	documentsModule.SetTimelineWriter(adapters.NewDocumentTimelineWriter(opportunitiesModule.Repository()))

	importsModule := imports.NewModule(pool, opportunitiesModule.ManagementService(), opportunitiesModule.MeetingsService(), queueClient, eventBus, log)

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}
	defer func() { _ = dispatcher.Close() }()
	go dispatcher.Run(ctx)

	cleanupInterval := getDurationEnv("NOTIFICATION_CLEANUP_INTERVAL", time.Hour)
	readRetention := time.Duration(getPositiveIntEnv("NOTIFICATION_READ_RETENTION_DAYS", 30)) * 24 * time.Hour
	outboxRetention := time.Duration(getPositiveIntEnv("NOTIFICATION_OUTBOX_RETENTION_DAYS", 14)) * 24 * time.Hour
	retentionCleanup := scheduler.NewNotificationRetentionCleanup(pool, log, cleanupInterval, readRetention, outboxRetention)
	go retentionCleanup.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}
	worker.SetTranscriptParseProcessor(opportunitiesModule.MeetingsService())
	worker.SetRiskAnalysisProcessor(opportunitiesModule.MeetingsService())
	worker.SetConsolidationProcessor(opportunitiesModule.ConsolidationService())
	worker.SetScheduleRecalcProcessor(opportunitiesModule.SchedulingService())
	worker.SetDocumentJobProcessor(documentsModule.Service())
	worker.SetResearchProcessor(opportunitiesModule.ResearchService())
	worker.SetImportJobProcessor(importsModule.Service())

	// Recording transcription needs both the audio bucket and a whisper model.
	if cfg.IsTranscriptionEnabled() && storageSvc != nil {
		engine, err := transcription.NewWhisperEngine(cfg.GetWhisperModelPath(), log)
		if err != nil {
			log.Error("failed to load whisper model", "error", err, "path", cfg.GetWhisperModelPath())
			panic("failed to load whisper model: " + err.Error())
		}
		defer engine.Close()

		transcriptionSvc := transcription.NewService(
			transcription.NewRepository(pool),
			storageSvc,
			cfg.GetMinioBucketMeetingRecordings(),
			queueClient,
			log,
		)
		transcriptionSvc.SetEngine(engine)
		transcriptionSvc.SetTranscriptIngestor(opportunitiesModule.MeetingsService())
		worker.SetRecordingProcessor(transcriptionSvc)
		log.Info("recording transcription enabled", "model", cfg.GetWhisperModelPath())
	} else {
		log.Warn("recording transcription disabled", "whisperModel", cfg.GetWhisperModelPath() != "", "storage", storageSvc != nil)
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

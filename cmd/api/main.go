package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
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
	"dealdesk_backend/internal/exports"
	apphttp "dealdesk_backend/internal/http"
	"dealdesk_backend/internal/http/router"
	"dealdesk_backend/internal/identity"
	"dealdesk_backend/internal/imports"
	"dealdesk_backend/internal/mailin"
	"dealdesk_backend/internal/notification"
	notificationoutbox "dealdesk_backend/internal/notification/outbox"
	"dealdesk_backend/internal/notification/sse"
	"dealdesk_backend/internal/opportunities"
	"dealdesk_backend/internal/opportunities/ports"
	"dealdesk_backend/internal/scheduler"
	"dealdesk_backend/internal/transcription"
	"dealdesk_backend/internal/webhook"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/db"
	"dealdesk_backend/platform/logger"
	"dealdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const storageBucketEnsureErrPrefix = "failed to ensure storage bucket exists: "
const storageBucketEnsureErrMsg = "failed to ensure storage bucket exists"

// ensureBucket wraps the retry logic for verifying a MinIO bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, storageSvc storage.StorageService, name, bucket string) {
	if err := withRetry(ctx, log, "ensure "+name+" bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error(storageBucketEnsureErrMsg, "error", err, "bucket", bucket)
		panic(storageBucketEnsureErrPrefix + err.Error())
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Task queue client; the pipeline runs on the scheduler worker
	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer queueClient.Close()

	// Email sender; notification emails settle as no-ops when disabled
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
		log.Info("smtp email sender initialized", "host", cfg.GetSMTPHost())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// Object storage (MinIO) for recordings and meeting photos. Optional:
	// without it recording intake and photo uploads are disabled.
	var storageSvc storage.StorageService
	if cfg.IsMinIOEnabled() {
		svc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		storageSvc = svc
		ensureBucket(ctx, log, storageSvc, "meeting-recordings", cfg.GetMinioBucketMeetingRecordings())
		ensureBucket(ctx, log, storageSvc, "meeting-attachments", cfg.GetMinioBucketMeetingAttachments())
		log.Info(
			"storage service initialized",
			"recordingsBucket", cfg.GetMinioBucketMeetingRecordings(),
			"attachmentsBucket", cfg.GetMinioBucketMeetingAttachments(),
		)
	} else {
		log.Warn("MINIO_ENDPOINT not configured; recording intake and photo uploads disabled")
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events and serves the
	// notification read surface + SSE stream
	notificationModule := notification.New(pool, sender, cfg, log)
	notificationModule.RegisterHandlers(eventBus)
	notificationModule.SetSSE(sse.New(log))
	notificationModule.SetNotificationOutbox(notificationoutbox.New(pool))

	identityModule := identity.NewModule(pool, val)

	// Company enrichment feeds the research agent when configured
	var companyLookup ports.CompanyLookup
	if cfg.IsEnrichmentEnabled() {
		companyLookup = enrichment.New(cfg, log)
		log.Info("company enrichment enabled", "url", cfg.GetCompanyAPIURL())
	}

	opportunitiesModule, err := opportunities.NewModule(pool, queueClient, eventBus, companyLookup, val, cfg, log)
	if err != nil {
		log.Error("failed to initialize opportunities module", "error", err)
		panic("failed to initialize opportunities module: " + err.Error())
	}

	calendarModule := calendar.NewModule(pool, queueClient, log)

	// Wire calendar signals into schedule recalculation
	opportunitiesModule.SetCalendarSource(adapters.NewCalendarScheduleSource(calendarModule.Service()))

	// Wire identity readers: organization name biases transcript parsing,
	// AI settings gate parsing/risk/research per organization
	opportunitiesModule.SetOrganizationReader(adapters.NewOrganizationNameReader(identityModule.Service()))
	opportunitiesModule.SetAISettingsReader(adapters.NewAISettingsReader(identityModule.Service()))

	briefsModule := briefs.NewModule(pool, val, log)

	documentsModule, err := documents.NewModule(pool, queueClient, eventBus, val, cfg, log)
	if err != nil {
		log.Error("failed to initialize documents module", "error", err)
		panic("failed to initialize documents module: " + err.Error())
	}

	// Wire document generation sources: opportunity context, brief templates,
	// timeline entries on completion
	documentsModule.SetContextSource(adapters.NewDocumentContextSource(opportunitiesModule.Repository()))
	documentsModule.SetTemplateSource(adapters.NewDocumentTemplateSource(briefsModule.Service()))
	documentsModule.SetTimelineWriter(adapters.NewDocumentTimelineWriter(opportunitiesModule.Repository()))

	// Recording intake stores audio and queues transcription; requires storage
	var recordingIntake webhook.RecordingIntake
	if storageSvc != nil {
		transcriptionSvc := transcription.NewService(
			transcription.NewRepository(pool),
			storageSvc,
			cfg.GetMinioBucketMeetingRecordings(),
			queueClient,
			log,
		)
		recordingIntake = transcriptionSvc
		opportunitiesModule.SetRecordingSource(adapters.NewRecordingSource(transcriptionSvc))
		opportunitiesModule.SetPhotoStorage(storageSvc, cfg.GetMinioBucketMeetingAttachments())
	}

	webhookModule := webhook.NewModule(pool, calendarModule.Service(), opportunitiesModule.MeetingsService(), recordingIntake, cfg, eventBus, val, log)

	importsModule := imports.NewModule(pool, opportunitiesModule.ManagementService(), opportunitiesModule.MeetingsService(), queueClient, eventBus, log)

	exportsModule := exports.NewModule(pool, val)

	// Mail-in dropbox: tagged emails become note meetings
	if cfg.IsMailinEnabled() {
		poller := mailin.NewPoller(cfg, mailin.IMAPDial(cfg), mailin.NewRepository(pool), opportunitiesModule.MeetingsService(), log)
		go poller.Run(ctx)
		log.Info("mailin poller enabled", "host", cfg.GetIMAPHost())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			identityModule,
			opportunitiesModule,
			calendarModule,
			briefsModule,
			documentsModule,
			webhookModule,
			importsModule,
			exportsModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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

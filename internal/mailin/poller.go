package mailin

import (
	"context"
	"errors"
	"fmt"
	"time"

	imap "github.com/BrianLeishman/go-imap"
	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/domain"
	"dealdesk_backend/internal/opportunities/meetings"
	opprepo "dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/logger"
)

// MailClient is the slice of the IMAP dialer the poller uses.
type MailClient interface {
	SelectFolder(folder string) error
	GetUIDs(search string) ([]int, error)
	GetEmails(uids ...int) (map[int]*imap.Email, error)
	MarkSeen(uid int) error
	Close() error
}

// DialFunc opens a fresh IMAP connection. Each poll dials and closes its own
// connection; dropbox traffic is too thin to keep one alive.
type DialFunc func() (MailClient, error)

// IMAPDial returns a DialFunc connecting with the configured credentials.
func IMAPDial(cfg config.MailinConfig) DialFunc {
	return func() (MailClient, error) {
		d, err := imap.New(cfg.GetIMAPUsername(), cfg.GetIMAPPassword(), cfg.GetIMAPHost(), cfg.GetIMAPPort())
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// OrganizationResolver maps an opportunity to its organization. Satisfied by
// Repository.
type OrganizationResolver interface {
	ResolveOrganization(ctx context.Context, opportunityID uuid.UUID) (uuid.UUID, error)
}

// TranscriptIngestor creates meeting records from note text. Satisfied by the
// meetings service.
type TranscriptIngestor interface {
	IngestTranscript(ctx context.Context, params meetings.IngestParams) (opprepo.MeetingRecord, error)
}

// Poller reads the dropbox mailbox and ingests tagged messages as note
// meetings.
type Poller struct {
	cfg      config.MailinConfig
	dial     DialFunc
	resolver OrganizationResolver
	ingestor TranscriptIngestor
	log      *logger.Logger
}

func NewPoller(cfg config.MailinConfig, dial DialFunc, resolver OrganizationResolver, ingestor TranscriptIngestor, log *logger.Logger) *Poller {
	return &Poller{
		cfg:      cfg,
		dial:     dial,
		resolver: resolver,
		ingestor: ingestor,
		log:      log,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	interval := p.cfg.GetMailinPollInterval()
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info("mailin poller started", "interval", interval, "folder", p.folder())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := p.PollOnce(ctx); err != nil {
			p.log.Warn("mailin poll failed", "error", err)
		}
	}
}

func (p *Poller) folder() string {
	if f := p.cfg.GetIMAPFolder(); f != "" {
		return f
	}
	return "INBOX"
}

// PollOnce fetches unseen messages and processes each one. Messages that can
// never be ingested (no tag, unknown opportunity, rejected note) are marked
// seen so they stop reappearing; transient failures stay unseen for the next
// poll.
func (p *Poller) PollOnce(ctx context.Context) error {
	client, err := p.dial()
	if err != nil {
		return fmt.Errorf("imap dial: %w", err)
	}
	defer client.Close()

	folder := p.folder()
	if err := client.SelectFolder(folder); err != nil {
		return fmt.Errorf("select folder %s: %w", folder, err)
	}

	uids, err := client.GetUIDs("UNSEEN")
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}

	messages, err := client.GetEmails(uids...)
	if err != nil {
		return fmt.Errorf("fetch messages: %w", err)
	}

	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		settled, err := p.handleMessage(ctx, msg)
		if err != nil {
			p.log.Warn("mailin message deferred", "uid", msg.UID, "error", err)
			continue
		}
		if settled {
			if err := client.MarkSeen(msg.UID); err != nil {
				p.log.Warn("mailin mark seen failed", "uid", msg.UID, "error", err)
			}
		}
	}
	return nil
}

// handleMessage returns settled=true when the message should not be retried,
// whether it was ingested or permanently skipped.
func (p *Poller) handleMessage(ctx context.Context, msg *imap.Email) (bool, error) {
	recipients := collectAddresses(msg.To, msg.CC)
	oppID, ok := ResolveOpportunityID(recipients, msg.Subject)
	if !ok {
		p.log.Debug("mailin message without opportunity tag skipped", "uid", msg.UID, "subject", msg.Subject)
		return true, nil
	}

	orgID, err := p.resolver.ResolveOrganization(ctx, oppID)
	if err != nil {
		if errors.Is(err, ErrUnknownOpportunity) {
			p.log.Warn("mailin message for unknown opportunity skipped", "uid", msg.UID, "opportunityId", oppID)
			return true, nil
		}
		return false, err
	}

	text := ExtractNoteText(msg.Text, msg.HTML)
	if text == "" {
		p.log.Warn("mailin message with empty body skipped", "uid", msg.UID, "opportunityId", oppID)
		return true, nil
	}

	var title *string
	if subject := StripSubjectTag(msg.Subject); subject != "" {
		title = &subject
	}
	var occurredAt *time.Time
	if sent := messageTime(msg); !sent.IsZero() {
		occurredAt = &sent
	}

	rec, err := p.ingestor.IngestTranscript(ctx, meetings.IngestParams{
		OpportunityID:  oppID,
		OrganizationID: orgID,
		Kind:           string(domain.MeetingKindNote),
		Source:         domain.MeetingSourceMailin,
		Title:          title,
		OccurredAt:     occurredAt,
		TranscriptText: text,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) || apperr.Is(err, apperr.KindNotFound) {
			p.log.Warn("mailin message rejected", "uid", msg.UID, "opportunityId", oppID, "error", err)
			return true, nil
		}
		return false, err
	}

	p.log.Info("mailin note ingested", "uid", msg.UID, "opportunityId", oppID, "meetingId", rec.ID)
	return true, nil
}

func messageTime(msg *imap.Email) time.Time {
	if !msg.Sent.IsZero() {
		return msg.Sent
	}
	return msg.Received
}

func collectAddresses(sets ...imap.EmailAddresses) []string {
	var out []string
	for _, set := range sets {
		for addr := range set {
			out = append(out, addr)
		}
	}
	return out
}

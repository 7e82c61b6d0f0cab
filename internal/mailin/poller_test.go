package mailin

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	imap "github.com/BrianLeishman/go-imap"
	"github.com/google/uuid"

	"dealdesk_backend/internal/opportunities/meetings"
	opprepo "dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/platform/apperr"
	"dealdesk_backend/platform/logger"
)

type testMailinConfig struct{}

func (testMailinConfig) GetIMAPHost() string                  { return "imap.example.com" }
func (testMailinConfig) GetIMAPPort() int                     { return 993 }
func (testMailinConfig) GetIMAPUsername() string              { return "notes@dealdesk.io" }
func (testMailinConfig) GetIMAPPassword() string              { return "secret" }
func (testMailinConfig) GetIMAPFolder() string                { return "" }
func (testMailinConfig) GetMailinPollInterval() time.Duration { return time.Minute }
func (testMailinConfig) IsMailinEnabled() bool                { return true }

type fakeMailClient struct {
	folder string
	emails map[int]*imap.Email
	seen   []int
	closed bool
}

func (f *fakeMailClient) SelectFolder(folder string) error {
	f.folder = folder
	return nil
}

func (f *fakeMailClient) GetUIDs(string) ([]int, error) {
	uids := make([]int, 0, len(f.emails))
	for uid := range f.emails {
		uids = append(uids, uid)
	}
	sort.Ints(uids)
	return uids, nil
}

func (f *fakeMailClient) GetEmails(...int) (map[int]*imap.Email, error) {
	return f.emails, nil
}

func (f *fakeMailClient) MarkSeen(uid int) error {
	f.seen = append(f.seen, uid)
	return nil
}

func (f *fakeMailClient) Close() error {
	f.closed = true
	return nil
}

func (f *fakeMailClient) sawSeen(uid int) bool {
	for _, s := range f.seen {
		if s == uid {
			return true
		}
	}
	return false
}

type fakeResolver struct {
	orgs map[uuid.UUID]uuid.UUID
	err  error
}

func (f *fakeResolver) ResolveOrganization(_ context.Context, opportunityID uuid.UUID) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	orgID, ok := f.orgs[opportunityID]
	if !ok {
		return uuid.Nil, ErrUnknownOpportunity
	}
	return orgID, nil
}

type fakeNoteIngestor struct {
	params []meetings.IngestParams
	err    error
}

func (f *fakeNoteIngestor) IngestTranscript(_ context.Context, params meetings.IngestParams) (opprepo.MeetingRecord, error) {
	if f.err != nil {
		return opprepo.MeetingRecord{}, f.err
	}
	f.params = append(f.params, params)
	return opprepo.MeetingRecord{ID: uuid.New(), OpportunityID: params.OpportunityID}, nil
}

func noteEmail(uid int, to string, subject string, body string) *imap.Email {
	return &imap.Email{
		UID:     uid,
		Subject: subject,
		To:      imap.EmailAddresses{to: "Deal Notes"},
		Text:    body,
		Sent:    time.Now().Add(-30 * time.Minute),
	}
}

func newTestPoller(client *fakeMailClient, resolver *fakeResolver, ingestor *fakeNoteIngestor) *Poller {
	dial := func() (MailClient, error) { return client, nil }
	return NewPoller(testMailinConfig{}, dial, resolver, ingestor, logger.New("development"))
}

func TestPollOnceIngestsTaggedMessage(t *testing.T) {
	oppID := uuid.New()
	orgID := uuid.New()
	client := &fakeMailClient{emails: map[int]*imap.Email{
		7: noteEmail(7, "notes+"+oppID.String()+"@dealdesk.io", "Lunch recap", strings.Repeat("they want SSO before rollout ", 5)),
	}}
	resolver := &fakeResolver{orgs: map[uuid.UUID]uuid.UUID{oppID: orgID}}
	ingestor := &fakeNoteIngestor{}
	p := newTestPoller(client, resolver, ingestor)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	if client.folder != "INBOX" {
		t.Errorf("expected default INBOX folder, got %q", client.folder)
	}
	if len(ingestor.params) != 1 {
		t.Fatalf("expected one ingested note, got %d", len(ingestor.params))
	}
	got := ingestor.params[0]
	if got.Kind != "note" || got.Source != "mailin" {
		t.Errorf("unexpected kind/source %s/%s", got.Kind, got.Source)
	}
	if got.OpportunityID != oppID || got.OrganizationID != orgID {
		t.Errorf("ids not resolved: %+v", got)
	}
	if got.Title == nil || *got.Title != "Lunch recap" {
		t.Errorf("subject not carried as title: %v", got.Title)
	}
	if got.OccurredAt == nil {
		t.Errorf("sent time not carried")
	}
	if !client.sawSeen(7) {
		t.Errorf("ingested message must be marked seen")
	}
	if !client.closed {
		t.Errorf("connection must be closed after the poll")
	}
}

func TestPollOnceSkipsUntaggedMessage(t *testing.T) {
	client := &fakeMailClient{emails: map[int]*imap.Email{
		3: noteEmail(3, "notes@dealdesk.io", "FYI", "no tag here"),
	}}
	ingestor := &fakeNoteIngestor{}
	p := newTestPoller(client, &fakeResolver{}, ingestor)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(ingestor.params) != 0 {
		t.Errorf("untagged message must not be ingested")
	}
	if !client.sawSeen(3) {
		t.Errorf("untagged message must be settled so it stops reappearing")
	}
}

func TestPollOnceUnknownOpportunitySettles(t *testing.T) {
	oppID := uuid.New()
	client := &fakeMailClient{emails: map[int]*imap.Email{
		4: noteEmail(4, "notes+"+oppID.String()+"@dealdesk.io", "Recap", "body text"),
	}}
	ingestor := &fakeNoteIngestor{}
	p := newTestPoller(client, &fakeResolver{orgs: map[uuid.UUID]uuid.UUID{}}, ingestor)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(ingestor.params) != 0 {
		t.Errorf("unknown opportunity must not be ingested")
	}
	if !client.sawSeen(4) {
		t.Errorf("unknown opportunity must be settled")
	}
}

func TestPollOnceTransientErrorLeavesUnseen(t *testing.T) {
	oppID := uuid.New()
	client := &fakeMailClient{emails: map[int]*imap.Email{
		5: noteEmail(5, "notes+"+oppID.String()+"@dealdesk.io", "Recap", "body text"),
	}}
	resolver := &fakeResolver{orgs: map[uuid.UUID]uuid.UUID{oppID: uuid.New()}}
	ingestor := &fakeNoteIngestor{err: errors.New("db unavailable")}
	p := newTestPoller(client, resolver, ingestor)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("a deferred message must not fail the poll: %v", err)
	}
	if client.sawSeen(5) {
		t.Errorf("deferred message must stay unseen for the next poll")
	}
}

func TestPollOnceRejectedNoteSettles(t *testing.T) {
	oppID := uuid.New()
	client := &fakeMailClient{emails: map[int]*imap.Email{
		6: noteEmail(6, "notes+"+oppID.String()+"@dealdesk.io", "Recap", "too short"),
	}}
	resolver := &fakeResolver{orgs: map[uuid.UUID]uuid.UUID{oppID: uuid.New()}}
	ingestor := &fakeNoteIngestor{err: apperr.Validation("transcript must be at least 40 characters")}
	p := newTestPoller(client, resolver, ingestor)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if !client.sawSeen(6) {
		t.Errorf("a rejected note can never succeed and must be settled")
	}
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/apporte/notify/internal/channel"
	"github.com/apporte/notify/internal/notification"
)

// fakeResolver returns a fixed recipient list or an error.
type fakeResolver struct {
	recipients []notification.Recipient
	err        error
}

func (f *fakeResolver) Resolve(_ context.Context, _ *notification.Request) ([]notification.Recipient, error) {
	return f.recipients, f.err
}

// memStore is an in-memory RecordStore.
type memStore struct {
	nextID  int64
	records map[int64]*notification.Record
	updates int
}

func newMemStore() *memStore {
	return &memStore{records: make(map[int64]*notification.Record)}
}

func (m *memStore) CreateRecord(_ context.Context, rec *notification.Record) error {
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memStore) UpdateRecord(_ context.Context, rec *notification.Record) error {
	if _, ok := m.records[rec.ID]; !ok {
		return fmt.Errorf("record %d not found", rec.ID)
	}
	m.updates++
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memStore) FindRecord(_ context.Context, id int64) (*notification.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// fakeSender records invocations and can fail on demand.
type fakeSender struct {
	name  string
	err   error
	calls int
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) Send(_ context.Context, _ notification.Recipient, _ *notification.Request) error {
	f.calls++
	return f.err
}

func validRecipient(id string) notification.Recipient {
	return notification.Recipient{
		UserID:        id,
		Email:         id + "@example.com",
		Phone:         "+4915112345678",
		Name:          "User " + id,
		RecipientType: notification.RecipientManual,
	}
}

func newTestEngine(res Resolver, store RecordStore, senders ...channel.Sender) *Engine {
	return NewEngine(res, channel.NewRegistry(senders...), store)
}

func TestProcessCreatesRecordPerRecipientChannelPair(t *testing.T) {
	store := newMemStore()
	email := &fakeSender{name: notification.ChannelEmail}
	inapp := &fakeSender{name: notification.ChannelInApp}
	res := &fakeResolver{recipients: []notification.Recipient{
		validRecipient("user-1"), validRecipient("user-2"), validRecipient("user-3"),
	}}
	eng := newTestEngine(res, store, email, inapp)

	req := &notification.Request{
		EventType:      "STATUS_UPDATE",
		EntityID:       "proj-1",
		Channels:       []string{notification.ChannelEmail, notification.ChannelInApp},
		RecipientTypes: []string{notification.RecipientManual},
	}
	if err := eng.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(store.records) != 6 {
		t.Errorf("records = %d, want 6 (3 recipients x 2 channels)", len(store.records))
	}
	if email.calls != 3 || inapp.calls != 3 {
		t.Errorf("sender calls = %d/%d, want 3/3", email.calls, inapp.calls)
	}
	for id, rec := range store.records {
		if rec.Status != notification.StatusSent {
			t.Errorf("record %d status = %q, want sent", id, rec.Status)
		}
		if rec.SentAt == nil {
			t.Errorf("record %d missing sent_at", id)
		}
	}
}

func TestProcessInvalidRequest(t *testing.T) {
	eng := newTestEngine(&fakeResolver{}, newMemStore())
	err := eng.Process(context.Background(), &notification.Request{EventType: "X"})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestProcessResolveFailure(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(&fakeResolver{err: errors.New("db down")}, store,
		&fakeSender{name: notification.ChannelEmail})

	req := &notification.Request{
		EventType:      "STATUS_UPDATE",
		Channels:       []string{notification.ChannelEmail},
		RecipientTypes: []string{notification.RecipientManual},
	}
	if err := eng.Process(context.Background(), req); err == nil {
		t.Fatal("expected resolution error")
	}
	if len(store.records) != 0 {
		t.Errorf("no records should exist after resolution failure, got %d", len(store.records))
	}
}

func TestProcessSkipsInvalidRecipients(t *testing.T) {
	store := newMemStore()
	email := &fakeSender{name: notification.ChannelEmail}
	res := &fakeResolver{recipients: []notification.Recipient{
		validRecipient("user-1"),
		{UserID: "user-2", RecipientType: notification.RecipientManual}, // no email
		{Email: "orphan@example.com", RecipientType: notification.RecipientManual}, // no user id
	}}
	eng := newTestEngine(res, store, email)

	req := &notification.Request{
		EventType:      "STATUS_UPDATE",
		Channels:       []string{notification.ChannelEmail},
		RecipientTypes: []string{notification.RecipientManual},
	}
	if err := eng.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(store.records) != 1 {
		t.Errorf("records = %d, want 1 (invalid recipients skipped)", len(store.records))
	}
	if email.calls != 1 {
		t.Errorf("sender calls = %d, want 1", email.calls)
	}
}

func TestProcessWhatsAppWithoutPhoneNeverInvokesSender(t *testing.T) {
	store := newMemStore()
	wa := &fakeSender{name: notification.ChannelWhatsApp}
	rcpt := validRecipient("user-1")
	rcpt.Phone = ""
	eng := newTestEngine(&fakeResolver{recipients: []notification.Recipient{rcpt}}, store, wa)

	req := &notification.Request{
		EventType:      "STATUS_UPDATE",
		Channels:       []string{notification.ChannelWhatsApp},
		RecipientTypes: []string{notification.RecipientManual},
	}
	if err := eng.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if wa.calls != 0 {
		t.Errorf("sender invoked %d times for phoneless recipient, want 0", wa.calls)
	}
	rec := store.records[1]
	if rec == nil {
		t.Fatal("record missing")
	}
	if rec.Status != notification.StatusError {
		t.Errorf("status = %q, want error", rec.Status)
	}
	if !strings.Contains(rec.ErrorMessage, "no phone number") {
		t.Errorf("error message = %q", rec.ErrorMessage)
	}
}

func TestProcessUnsupportedChannel(t *testing.T) {
	store := newMemStore()
	eng := newTestEngine(&fakeResolver{recipients: []notification.Recipient{validRecipient("user-1")}},
		store, &fakeSender{name: notification.ChannelEmail})

	req := &notification.Request{
		EventType:      "STATUS_UPDATE",
		Channels:       []string{"pager"},
		RecipientTypes: []string{notification.RecipientManual},
	}
	if err := eng.Process(context.Background(), req); err != nil {
		t.Fatalf("Process: %v", err)
	}
	rec := store.records[1]
	if rec == nil || rec.Status != notification.StatusError {
		t.Fatalf("record = %+v, want error status", rec)
	}
	if !strings.Contains(rec.ErrorMessage, "unsupported channel") {
		t.Errorf("error message = %q", rec.ErrorMessage)
	}
}

func TestProcessSendFailureIsolation(t *testing.T) {
	store := newMemStore()
	email := &fakeSender{name: notification.ChannelEmail, err: errors.New("smtp down")}
	inapp := &fakeSender{name: notification.ChannelInApp}
	eng := newTestEngine(&fakeResolver{recipients: []notification.Recipient{validRecipient("user-1")}},
		store, email, inapp)

	req := &notification.Request{
		EventType:      "STATUS_UPDATE",
		Channels:       []string{notification.ChannelEmail, notification.ChannelInApp},
		RecipientTypes: []string{notification.RecipientManual},
	}
	if err := eng.Process(context.Background(), req); err != nil {
		t.Fatalf("Process should not fail on individual send errors: %v", err)
	}

	var sent, failed int
	for _, rec := range store.records {
		switch rec.Status {
		case notification.StatusSent:
			sent++
		case notification.StatusError:
			failed++
			if !strings.Contains(rec.ErrorMessage, "smtp down") {
				t.Errorf("error message = %q", rec.ErrorMessage)
			}
		}
	}
	if sent != 1 || failed != 1 {
		t.Errorf("sent/failed = %d/%d, want 1/1", sent, failed)
	}
}

func TestRetryNotFound(t *testing.T) {
	eng := newTestEngine(&fakeResolver{}, newMemStore())
	err := eng.Retry(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRetryInvalidState(t *testing.T) {
	store := newMemStore()
	rec, err := notification.NewRecord(validRecipient("user-1"),
		&notification.Request{EventType: "X", Channels: []string{notification.ChannelEmail}, RecipientTypes: []string{"manual"}},
		notification.ChannelEmail)
	if err != nil {
		t.Fatal(err)
	}
	rec.MarkSent()
	_ = store.CreateRecord(context.Background(), rec)

	eng := newTestEngine(&fakeResolver{}, store)
	if err := eng.Retry(context.Background(), rec.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestRetryMalformedSnapshot(t *testing.T) {
	store := newMemStore()
	rec := &notification.Record{
		UserID:    "user-1",
		EventType: "STATUS_UPDATE",
		Channel:   notification.ChannelEmail,
		Status:    notification.StatusError,
		Payload:   []byte("{broken"),
	}
	_ = store.CreateRecord(context.Background(), rec)

	eng := newTestEngine(&fakeResolver{}, store)
	err := eng.Retry(context.Background(), rec.ID)
	if !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("err = %v, want ErrMalformedSnapshot", err)
	}

	stored, _ := store.FindRecord(context.Background(), rec.ID)
	if stored.Status != notification.StatusError {
		t.Errorf("status = %q, want error", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "retry failed") {
		t.Errorf("error message = %q", stored.ErrorMessage)
	}
}

func TestRetryMissingRecipientInSnapshot(t *testing.T) {
	store := newMemStore()
	rec := &notification.Record{
		UserID:    "user-1",
		EventType: "STATUS_UPDATE",
		Channel:   notification.ChannelEmail,
		Status:    notification.StatusError,
		Payload:   []byte(`{"version":1,"event":{"type":"STATUS_UPDATE"}}`),
	}
	_ = store.CreateRecord(context.Background(), rec)

	eng := newTestEngine(&fakeResolver{}, store)
	err := eng.Retry(context.Background(), rec.ID)
	if !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("err = %v, want ErrMalformedSnapshot", err)
	}
	if !strings.Contains(err.Error(), "missing recipient data") {
		t.Errorf("err = %v, want missing recipient reason", err)
	}
}

func TestRetryMutatesSameRecord(t *testing.T) {
	store := newMemStore()
	email := &fakeSender{name: notification.ChannelEmail}
	rec, err := notification.NewRecord(validRecipient("user-1"),
		&notification.Request{EventType: "STATUS_UPDATE", EntityID: "proj-1",
			Channels: []string{notification.ChannelEmail}, RecipientTypes: []string{"manual"}},
		notification.ChannelEmail)
	if err != nil {
		t.Fatal(err)
	}
	rec.MarkError("smtp send: connection refused")
	_ = store.CreateRecord(context.Background(), rec)

	eng := newTestEngine(&fakeResolver{}, store, email)
	if err := eng.Retry(context.Background(), rec.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	if email.calls != 1 {
		t.Errorf("sender calls = %d, want 1", email.calls)
	}
	if len(store.records) != 1 {
		t.Errorf("records = %d, retry must not create new records", len(store.records))
	}
	stored, _ := store.FindRecord(context.Background(), rec.ID)
	if stored.Status != notification.StatusSent {
		t.Errorf("status = %q, want sent", stored.Status)
	}
	if stored.ErrorMessage != "" {
		t.Errorf("error message = %q, want cleared", stored.ErrorMessage)
	}
	if stored.SentAt == nil {
		t.Error("sent_at missing after successful retry")
	}
}

func TestRetrySendFailure(t *testing.T) {
	store := newMemStore()
	email := &fakeSender{name: notification.ChannelEmail, err: errors.New("still down")}
	rec, err := notification.NewRecord(validRecipient("user-1"),
		&notification.Request{EventType: "STATUS_UPDATE",
			Channels: []string{notification.ChannelEmail}, RecipientTypes: []string{"manual"}},
		notification.ChannelEmail)
	if err != nil {
		t.Fatal(err)
	}
	rec.MarkError("first failure")
	_ = store.CreateRecord(context.Background(), rec)

	eng := newTestEngine(&fakeResolver{}, store, email)
	err = eng.Retry(context.Background(), rec.ID)
	if err == nil {
		t.Fatal("expected retry failure")
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrMalformedSnapshot) {
		t.Errorf("retry send failure must not match a sentinel, got %v", err)
	}

	stored, _ := store.FindRecord(context.Background(), rec.ID)
	if stored.Status != notification.StatusError {
		t.Errorf("status = %q, want error", stored.Status)
	}
	if !strings.Contains(stored.ErrorMessage, "still down") {
		t.Errorf("error message = %q, want latest failure", stored.ErrorMessage)
	}
}

package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/claim-bot/internal/allocator"
	"github.com/iliyamo/claim-bot/internal/eligibility"
	"github.com/iliyamo/claim-bot/internal/inbox"
	"github.com/iliyamo/claim-bot/internal/lifecycle"
	"github.com/iliyamo/claim-bot/internal/model"
	"github.com/iliyamo/claim-bot/internal/repository"
)

type fakeReplier struct {
	mu      sync.Mutex
	replies []string
	acked   []string
	fail    error
}

func (r *fakeReplier) Reply(ctx context.Context, orig inbox.Message, body string) (inbox.SentMessage, error) {
	if r.fail != nil {
		return inbox.SentMessage{}, r.fail
	}
	r.mu.Lock()
	r.replies = append(r.replies, body)
	r.mu.Unlock()
	return inbox.SentMessage{ID: "re-" + orig.ID, Author: orig.Author, Body: body, Created: time.Now().UTC()}, nil
}

func (r *fakeReplier) MarkRead(ctx context.Context, orig inbox.Message) error {
	r.mu.Lock()
	r.acked = append(r.acked, orig.ID)
	r.mu.Unlock()
	return nil
}

func (r *fakeReplier) replyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

type fakeLedger struct {
	inbound   map[string]bool
	outbound  map[string]bool
	checkErr  error
	recordErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{inbound: make(map[string]bool), outbound: make(map[string]bool)}
}

func (l *fakeLedger) HasProcessed(ctx context.Context, id string) (bool, error) {
	if l.checkErr != nil {
		return false, l.checkErr
	}
	return l.inbound[id], nil
}

func (l *fakeLedger) RecordInbound(ctx context.Context, msg model.InboundMessage) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	if l.inbound[msg.ID] {
		return repository.ErrConflict
	}
	l.inbound[msg.ID] = true
	return nil
}

func (l *fakeLedger) RecordOutbound(ctx context.Context, msg model.OutboundMessage) error {
	if l.outbound[msg.ID] {
		return repository.ErrConflict
	}
	l.outbound[msg.ID] = true
	return nil
}

type fakeAdmins struct{ names map[string]bool }

func (a *fakeAdmins) Exists(ctx context.Context, username string) (bool, error) {
	return a.names[username], nil
}

type fakeReserver struct {
	grants map[string]*allocator.Grant
	err    error
	calls  int
}

func (r *fakeReserver) Reserve(ctx context.Context, code, username string) (*allocator.Grant, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if g, ok := r.grants[code]; ok {
		return g, nil
	}
	return nil, allocator.ErrInvalidCode
}

type fakeLifecycle struct {
	created   *model.Event
	updated   *model.EventUpdate
	createErr error
	bulkErr   error
	bulkCount int
	reserve   *lifecycle.ReserveResult
}

func (l *fakeLifecycle) CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error) {
	if l.createErr != nil {
		return nil, l.createErr
	}
	l.created = ev
	return ev, nil
}

func (l *fakeLifecycle) UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error) {
	l.updated = &upd
	return &model.Event{ID: id}, nil
}

func (l *fakeLifecycle) BulkLoadClaims(ctx context.Context, eventID string, seeds []model.ClaimSeed) ([]model.Claim, error) {
	if l.bulkErr != nil {
		return nil, l.bulkErr
	}
	l.bulkCount = len(seeds)
	claims := make([]model.Claim, len(seeds))
	return claims, nil
}

func (l *fakeLifecycle) ReserveClaims(ctx context.Context, eventID string, usernames []string) (*lifecycle.ReserveResult, error) {
	if l.reserve == nil {
		return &lifecycle.ReserveResult{Reserved: len(usernames)}, nil
	}
	return l.reserve, nil
}

type fixture struct {
	replier  *fakeReplier
	ledger   *fakeLedger
	admins   *fakeAdmins
	reserver *fakeReserver
	lc       *fakeLifecycle
	d        *Dispatcher
}

func newFixture() *fixture {
	f := &fixture{
		replier:  &fakeReplier{},
		ledger:   newFakeLedger(),
		admins:   &fakeAdmins{names: map[string]bool{"admin": true}},
		reserver: &fakeReserver{grants: make(map[string]*allocator.Grant)},
		lc:       &fakeLifecycle{},
	}
	f.d = NewDispatcher(f.replier, f.ledger, f.admins, f.reserver, f.lc, "reddit")
	return f
}

func msg(id, author, body string) inbox.Message {
	return inbox.Message{ID: id, Author: author, Subject: "claim", Body: body, Created: time.Now().UTC()}
}

func (f *fixture) lastReply(t *testing.T) string {
	t.Helper()
	if len(f.replier.replies) == 0 {
		t.Fatal("no reply sent")
	}
	return f.replier.replies[len(f.replier.replies)-1]
}

func TestHandlePing(t *testing.T) {
	f := newFixture()
	f.d.Handle(context.Background(), msg("m1", "anyone", "ping"))
	if got := f.lastReply(t); got != "pong" {
		t.Errorf("got reply %q, want pong", got)
	}
	if len(f.replier.acked) != 1 {
		t.Error("ping not acknowledged")
	}
	// ping bypasses the ledger entirely.
	if f.ledger.inbound["m1"] {
		t.Error("ping recorded in ledger")
	}
}

func TestHandleSystemAccountSkipped(t *testing.T) {
	f := newFixture()
	f.d.Handle(context.Background(), msg("m1", "Reddit", "you have mail"))
	if len(f.replier.replies) != 0 {
		t.Errorf("system message got reply %q", f.replier.replies[0])
	}
	if len(f.replier.acked) != 1 {
		t.Error("system message not acknowledged")
	}
}

func TestHandleGrant(t *testing.T) {
	f := newFixture()
	claimID := uint64(7)
	f.reserver.grants["secret"] = &allocator.Grant{
		Claim: &model.Claim{ID: claimID, Link: "https://claims.test/a", Reserved: true},
		Event: &model.Event{ID: "ev1", Name: "Launch Party"},
	}
	f.d.Handle(context.Background(), msg("m1", "alice", "SECRET"))
	want := "Your claim link for Launch Party is https://claims.test/a"
	if got := f.lastReply(t); got != want {
		t.Errorf("got reply %q, want %q", got, want)
	}
	if !f.ledger.outbound["re-m1"] {
		t.Error("reply not recorded in outbound ledger")
	}
	if len(f.replier.acked) != 1 {
		t.Error("message not acknowledged")
	}
}

// A redelivered message is acknowledged without dispatch or a second
// reply.
func TestHandleRedelivery(t *testing.T) {
	f := newFixture()
	f.reserver.grants["secret"] = &allocator.Grant{
		Claim: &model.Claim{ID: 7, Link: "link-a"},
		Event: &model.Event{ID: "ev1", Name: "Launch"},
	}
	m := msg("m1", "alice", "secret")
	f.d.Handle(context.Background(), m)
	f.d.Handle(context.Background(), m)

	if len(f.replier.replies) != 1 {
		t.Errorf("got %d replies, want 1", len(f.replier.replies))
	}
	if f.reserver.calls != 1 {
		t.Errorf("reserver called %d times, want 1", f.reserver.calls)
	}
	if len(f.replier.acked) != 2 {
		t.Errorf("got %d acks, want 2", len(f.replier.acked))
	}
}

func TestHandleRejections(t *testing.T) {
	ev := &model.Event{ID: "ev1", Name: "Launch"}
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"invalid code", allocator.ErrInvalidCode, "Invalid event code: badcode"},
		{"not started", &allocator.RejectError{Kind: eligibility.EventNotStarted, Event: ev}, "Sorry, event Launch has not started yet"},
		{"expired", &allocator.RejectError{Kind: eligibility.EventExpired, Event: ev}, "Sorry, event Launch has expired"},
		{"karma", &allocator.RejectError{Kind: eligibility.InsufficientKarma, Event: ev}, "Sorry, your account does not meet the karma requirement for Launch"},
		{"age", &allocator.RejectError{Kind: eligibility.InsufficientAge, Event: ev}, "Sorry, your account does not meet the age requirement for Launch"},
		{"exhausted", &allocator.NoClaimsError{Event: ev}, "Sorry, there are no more claims available for Launch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.reserver.err = tc.err
			f.d.Handle(context.Background(), msg("m1", "alice", "badcode"))
			if got := f.lastReply(t); got != tc.want {
				t.Errorf("got reply %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHandleInternalError(t *testing.T) {
	f := newFixture()
	f.reserver.err = errors.New("db down")
	f.d.Handle(context.Background(), msg("m1", "alice", "secret"))
	if got := f.lastReply(t); got != replyGenericError {
		t.Errorf("got reply %q, want generic error", got)
	}
	if len(f.replier.acked) != 1 {
		t.Error("failed message not acknowledged")
	}
}

func TestHandleUnauthorizedCommand(t *testing.T) {
	f := newFixture()
	f.d.Handle(context.Background(), msg("m1", "alice", "create_event ev1 launch secret 2021-05-01T00:00:00 2021-06-01T00:00:00 0 0"))
	if got := f.lastReply(t); got != replyUnauthorized {
		t.Errorf("got reply %q, want unauthorized", got)
	}
	if f.lc.created != nil {
		t.Error("event created despite unauthorized sender")
	}
}

func TestHandleCreateEvent(t *testing.T) {
	f := newFixture()
	f.d.Handle(context.Background(), msg("m1", "admin", "create_event ev1 launch secret 2021-05-01T00:00:00 2021-06-01T00:00:00 30 100"))
	if got := f.lastReply(t); got != "Created event ev1 with code secret" {
		t.Errorf("got reply %q", got)
	}
	if f.lc.created == nil {
		t.Fatal("event not created")
	}
	if f.lc.created.MinimumAge != 30 || f.lc.created.MinimumKarma != 100 {
		t.Errorf("thresholds not parsed: %+v", f.lc.created)
	}
	if !f.lc.created.StartDate.Equal(time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start date %v", f.lc.created.StartDate)
	}
}

func TestHandleMalformedCommand(t *testing.T) {
	f := newFixture()
	f.d.Handle(context.Background(), msg("m1", "admin", "create_event ev1 launch"))
	got := f.lastReply(t)
	if !strings.HasPrefix(got, "Invalid command, example usage:\n\n") {
		t.Errorf("got reply %q, want usage example", got)
	}
	if !strings.Contains(got, "create_event event_id event_name event_code") {
		t.Errorf("usage text missing from %q", got)
	}
}

func TestHandleBadDate(t *testing.T) {
	f := newFixture()
	f.d.Handle(context.Background(), msg("m1", "admin", "create_event ev1 launch secret 2021-13-99T00:00:00 2021-06-01T00:00:00 0 0"))
	if got := f.lastReply(t); !strings.HasPrefix(got, "Invalid command, example usage:") {
		t.Errorf("got reply %q, want usage example", got)
	}
	if f.lc.created != nil {
		t.Error("event created from unparseable date")
	}
}

func TestHandleCreateEventConflict(t *testing.T) {
	f := newFixture()
	f.lc.createErr = repository.ErrConflict
	f.d.Handle(context.Background(), msg("m1", "admin", "create_event ev1 launch secret 2021-05-01T00:00:00 2021-06-01T00:00:00 0 0"))
	if got := f.lastReply(t); got != "An event with id ev1 or code secret already exists" {
		t.Errorf("got reply %q", got)
	}
}

func TestHandleCreateClaims(t *testing.T) {
	f := newFixture()
	f.d.Handle(context.Background(), msg("m1", "admin", "create_claims ev1 l1,l2,l3"))
	if got := f.lastReply(t); got != "Created 3 claims for event ev1" {
		t.Errorf("got reply %q", got)
	}
	if f.lc.bulkCount != 3 {
		t.Errorf("bulk load got %d seeds", f.lc.bulkCount)
	}
}

func TestHandleCreateClaimsViolations(t *testing.T) {
	f := newFixture()
	f.lc.bulkErr = &lifecycle.BulkError{Violations: []lifecycle.Violation{
		{Index: 0, Reason: "empty link"},
		{Index: 2, Reason: "claim link l2 already exists"},
	}}
	f.d.Handle(context.Background(), msg("m1", "admin", "create_claims ev1 ,l1,l2"))
	got := f.lastReply(t)
	if !strings.HasPrefix(got, "Failed to create claims, 2 invalid entries:") {
		t.Errorf("got reply %q", got)
	}
	if !strings.Contains(got, "- entry 0: empty link") || !strings.Contains(got, "- entry 2: claim link l2 already exists") {
		t.Errorf("violations missing from %q", got)
	}
}

func TestHandleReserveClaimsPartial(t *testing.T) {
	f := newFixture()
	f.lc.reserve = &lifecycle.ReserveResult{
		Reserved: 1,
		Failures: []lifecycle.Violation{{Index: 1, Reason: "no claims available"}},
	}
	f.d.Handle(context.Background(), msg("m1", "admin", "reserve_claims ev1 alice,bob"))
	got := f.lastReply(t)
	if !strings.HasPrefix(got, "Reserved 1 of 2 claims for event ev1") {
		t.Errorf("got reply %q", got)
	}
	if !strings.Contains(got, "- entry 1: no claims available") {
		t.Errorf("failure missing from %q", got)
	}
}

func TestHandleLedgerFailure(t *testing.T) {
	f := newFixture()
	f.ledger.checkErr = errors.New("db down")
	f.d.Handle(context.Background(), msg("m1", "alice", "secret"))
	if got := f.lastReply(t); got != replyGenericError {
		t.Errorf("got reply %q, want generic error", got)
	}
	if len(f.replier.acked) != 1 {
		t.Error("message not acknowledged after ledger failure")
	}
	if f.reserver.calls != 0 {
		t.Error("dispatched despite ledger failure")
	}
}

func TestFormatViolationsCap(t *testing.T) {
	violations := make([]lifecycle.Violation, 3)
	for i := range violations {
		violations[i] = lifecycle.Violation{Index: i, Reason: "empty link"}
	}
	got := formatViolations("Failed to create claims", violations[:2], 3)
	if !strings.Contains(got, "... and 1 more") {
		t.Errorf("cap note missing from %q", got)
	}
}

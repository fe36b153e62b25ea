// Package bot contains the message-driven core: the dispatcher that
// classifies, authorizes and answers each inbound message, and the
// supervisor that keeps the stream flowing.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/claim-bot/internal/allocator"
	"github.com/iliyamo/claim-bot/internal/eligibility"
	"github.com/iliyamo/claim-bot/internal/inbox"
	"github.com/iliyamo/claim-bot/internal/lifecycle"
	"github.com/iliyamo/claim-bot/internal/model"
	"github.com/iliyamo/claim-bot/internal/repository"
)

// Fixed user-facing replies.  Internal errors are never leaked; every
// failure kind maps to exactly one of these shapes.
const (
	replyPong         = "pong"
	replyUnauthorized = "You are not authorized to use this command"
	replyGenericError = "Sorry, something went wrong processing your request"
)

// violationReportLimit caps the violations listed in a user-facing bulk
// reply; the full list still goes to the log.
const violationReportLimit = 100

// Ledger is the idempotency ledger as the dispatcher sees it.
type Ledger interface {
	HasProcessed(ctx context.Context, id string) (bool, error)
	RecordInbound(ctx context.Context, msg model.InboundMessage) error
	RecordOutbound(ctx context.Context, msg model.OutboundMessage) error
}

// AdminStore authorizes privileged commands.
type AdminStore interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// Reserver is the claim allocation engine as the dispatcher sees it.
type Reserver interface {
	Reserve(ctx context.Context, code, username string) (*allocator.Grant, error)
}

// Lifecycle is the event lifecycle manager as the dispatcher sees it.
type Lifecycle interface {
	CreateEvent(ctx context.Context, ev *model.Event) (*model.Event, error)
	UpdateEvent(ctx context.Context, id string, upd model.EventUpdate) (*model.Event, error)
	BulkLoadClaims(ctx context.Context, eventID string, seeds []model.ClaimSeed) ([]model.Claim, error)
	ReserveClaims(ctx context.Context, eventID string, usernames []string) (*lifecycle.ReserveResult, error)
}

// Dispatcher routes one inbound message through the per-message state
// machine: dedup, classify, authorize, dispatch, reply, acknowledge.
// Every path ends with an acknowledgement so no message is ever left
// stuck; internal errors become the generic failure reply.
type Dispatcher struct {
	replier       inbox.Replier
	ledger        Ledger
	admins        AdminStore
	reserver      Reserver
	lifecycle     Lifecycle
	systemAccount string
}

// NewDispatcher constructs a Dispatcher.  systemAccount is the transport's
// own system user; its messages are acknowledged and ignored.
func NewDispatcher(replier inbox.Replier, ledger Ledger, admins AdminStore, reserver Reserver, lc Lifecycle, systemAccount string) *Dispatcher {
	if replier == nil || ledger == nil || admins == nil || reserver == nil || lc == nil {
		panic("nil dependency passed to NewDispatcher")
	}
	return &Dispatcher{
		replier:       replier,
		ledger:        ledger,
		admins:        admins,
		reserver:      reserver,
		lifecycle:     lc,
		systemAccount: strings.ToLower(systemAccount),
	}
}

// Handle processes a single message to completion.  It never returns an
// error: failures are logged, answered with a fixed reply where a reply
// is due, and the message is acknowledged regardless.
func (d *Dispatcher) Handle(ctx context.Context, msg inbox.Message) {
	username := strings.ToLower(strings.TrimSpace(msg.Author))
	body := strings.TrimSpace(msg.Body)
	token := ""
	if fields := strings.Fields(body); len(fields) > 0 {
		token = strings.ToLower(fields[0])
	}

	// ping answers before any ledger or authorization work, for anyone.
	if token == "ping" {
		log.Printf("bot: received ping from %s, sending pong", username)
		d.send(ctx, msg, replyPong, nil)
		d.ack(ctx, msg)
		return
	}
	// The platform's own system account sends housekeeping notices; they
	// are acknowledged and ignored.
	if username == d.systemAccount {
		log.Printf("bot: received message from %s, skipping", username)
		d.ack(ctx, msg)
		return
	}

	processed, err := d.ledger.HasProcessed(ctx, msg.ID)
	if err != nil {
		log.Printf("bot: ledger check failed for %s: %v", msg.ID, err)
		d.send(ctx, msg, replyGenericError, nil)
		d.ack(ctx, msg)
		return
	}
	if processed {
		log.Printf("bot: message %s already processed, skipping", msg.ID)
		d.ack(ctx, msg)
		return
	}
	err = d.ledger.RecordInbound(ctx, model.InboundMessage{
		ID:       msg.ID,
		Username: username,
		Created:  msg.Created,
		Subject:  msg.Subject,
		Body:     msg.Body,
	})
	if errors.Is(err, repository.ErrConflict) {
		// A concurrent poller recorded it first; its reply stands.
		log.Printf("bot: message %s recorded concurrently, skipping", msg.ID)
		d.ack(ctx, msg)
		return
	}
	if err != nil {
		log.Printf("bot: recording message %s failed: %v", msg.ID, err)
		d.send(ctx, msg, replyGenericError, nil)
		d.ack(ctx, msg)
		return
	}

	reply, claimID := d.dispatch(ctx, username, token, body)
	d.send(ctx, msg, reply, claimID)
	d.ack(ctx, msg)
}

// dispatch classifies the message and runs the matching handler,
// returning the reply body and the granted claim id, if any.
func (d *Dispatcher) dispatch(ctx context.Context, username, token, body string) (string, *uint64) {
	cmd, isCommand := commandTable[token]
	if !isCommand {
		return d.handleClaimRequest(ctx, token, username)
	}
	if cmd.privileged {
		isAdmin, err := d.admins.Exists(ctx, username)
		if err != nil {
			log.Printf("bot: admin lookup failed for %s: %v", username, err)
			return replyGenericError, nil
		}
		if !isAdmin {
			log.Printf("bot: unauthorized %s attempt by %s", cmd.name, username)
			return replyUnauthorized, nil
		}
	}
	groups := matchGroups(cmd.pattern, body)
	if groups == nil {
		return "Invalid command, example usage:\n\n" + cmd.usage, nil
	}
	switch cmd.name {
	case createEventCommand.name:
		return d.handleCreateEvent(ctx, cmd, groups), nil
	case updateEventCommand.name:
		return d.handleUpdateEvent(ctx, cmd, groups), nil
	case createClaimsCommand.name:
		return d.handleCreateClaims(ctx, groups), nil
	case reserveClaimsCommand.name:
		return d.handleReserveClaims(ctx, groups), nil
	}
	return replyGenericError, nil
}

// handleClaimRequest treats token as an event code and tries to reserve a
// claim for the sender.
func (d *Dispatcher) handleClaimRequest(ctx context.Context, code, username string) (string, *uint64) {
	grant, err := d.reserver.Reserve(ctx, code, username)
	if err == nil {
		log.Printf("bot: reserved claim %d for %s on event %s", grant.Claim.ID, username, grant.Event.ID)
		return fmt.Sprintf("Your claim link for %s is %s", grant.Event.Name, grant.Claim.Link), &grant.Claim.ID
	}
	var rej *allocator.RejectError
	var noClaims *allocator.NoClaimsError
	switch {
	case errors.Is(err, allocator.ErrInvalidCode):
		return fmt.Sprintf("Invalid event code: %s", code), nil
	case errors.As(err, &rej):
		return rejectionReply(rej), nil
	case errors.As(err, &noClaims):
		return fmt.Sprintf("Sorry, there are no more claims available for %s", noClaims.Event.Name), nil
	}
	log.Printf("bot: reserve failed for %s on code %s: %v", username, code, err)
	return replyGenericError, nil
}

func rejectionReply(rej *allocator.RejectError) string {
	name := rej.Event.Name
	switch rej.Kind {
	case eligibility.EventNotStarted:
		return fmt.Sprintf("Sorry, event %s has not started yet", name)
	case eligibility.EventExpired:
		return fmt.Sprintf("Sorry, event %s has expired", name)
	case eligibility.InsufficientKarma:
		return fmt.Sprintf("Sorry, your account does not meet the karma requirement for %s", name)
	case eligibility.InsufficientAge:
		return fmt.Sprintf("Sorry, your account does not meet the age requirement for %s", name)
	}
	return replyGenericError
}

func (d *Dispatcher) handleCreateEvent(ctx context.Context, cmd command, groups map[string]string) string {
	ev, errReply := eventFromGroups(cmd, groups)
	if errReply != "" {
		return errReply
	}
	created, err := d.lifecycle.CreateEvent(ctx, ev)
	switch {
	case err == nil:
		return fmt.Sprintf("Created event %s with code %s", created.ID, created.Code)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Sprintf("An event with id %s or code %s already exists", ev.ID, ev.Code)
	case errors.Is(err, lifecycle.ErrInvalidWindow):
		return "Start date must be before expiry date"
	}
	log.Printf("bot: create_event %s failed: %v", ev.ID, err)
	return replyGenericError
}

func (d *Dispatcher) handleUpdateEvent(ctx context.Context, cmd command, groups map[string]string) string {
	ev, errReply := eventFromGroups(cmd, groups)
	if errReply != "" {
		return errReply
	}
	upd := model.EventUpdate{
		Name:         &ev.Name,
		Code:         &ev.Code,
		StartDate:    &ev.StartDate,
		ExpiryDate:   &ev.ExpiryDate,
		MinimumAge:   &ev.MinimumAge,
		MinimumKarma: &ev.MinimumKarma,
	}
	updated, err := d.lifecycle.UpdateEvent(ctx, ev.ID, upd)
	switch {
	case err == nil:
		return fmt.Sprintf("Updated event %s", updated.ID)
	case errors.Is(err, repository.ErrEventNotFound):
		return fmt.Sprintf("No event exists with id %s", ev.ID)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Sprintf("An event with code %s already exists", ev.Code)
	case errors.Is(err, lifecycle.ErrInvalidWindow):
		return "Start date must be before expiry date"
	}
	log.Printf("bot: update_event %s failed: %v", ev.ID, err)
	return replyGenericError
}

// eventFromGroups builds an event from command fields.  Field values have
// already passed the command pattern, but dates still need parsing; a bad
// date is a malformed command and earns the usage example.
func eventFromGroups(cmd command, groups map[string]string) (*model.Event, string) {
	start, err := time.Parse(dateLayout, groups["start_date"])
	if err != nil {
		return nil, "Invalid command, example usage:\n\n" + cmd.usage
	}
	expiry, err := time.Parse(dateLayout, groups["expiry_date"])
	if err != nil {
		return nil, "Invalid command, example usage:\n\n" + cmd.usage
	}
	minAge, _ := strconv.Atoi(groups["minimum_age"])
	minKarma, _ := strconv.Atoi(groups["minimum_karma"])
	return &model.Event{
		ID:           groups["id"],
		Name:         groups["name"],
		Code:         groups["code"],
		StartDate:    start.UTC(),
		ExpiryDate:   expiry.UTC(),
		MinimumAge:   minAge,
		MinimumKarma: minKarma,
	}, ""
}

func (d *Dispatcher) handleCreateClaims(ctx context.Context, groups map[string]string) string {
	eventID := groups["event_id"]
	seeds := make([]model.ClaimSeed, 0)
	for _, link := range strings.Split(groups["links"], ",") {
		seeds = append(seeds, model.ClaimSeed{Link: link})
	}
	claims, err := d.lifecycle.BulkLoadClaims(ctx, eventID, seeds)
	var bulk *lifecycle.BulkError
	switch {
	case err == nil:
		return fmt.Sprintf("Created %d claims for event %s", len(claims), eventID)
	case errors.Is(err, repository.ErrEventNotFound):
		return fmt.Sprintf("No event exists with id %s", eventID)
	case errors.As(err, &bulk):
		log.Printf("bot: create_claims %s rejected: %d violations", eventID, len(bulk.Violations))
		return formatViolations("Failed to create claims", bulk.Report(violationReportLimit), len(bulk.Violations))
	}
	log.Printf("bot: create_claims %s failed: %v", eventID, err)
	return replyGenericError
}

func (d *Dispatcher) handleReserveClaims(ctx context.Context, groups map[string]string) string {
	eventID := groups["event_id"]
	usernames := strings.Split(groups["usernames"], ",")
	result, err := d.lifecycle.ReserveClaims(ctx, eventID, usernames)
	switch {
	case err == nil && len(result.Failures) == 0:
		return fmt.Sprintf("Reserved %d claims for event %s", result.Reserved, eventID)
	case err == nil:
		header := fmt.Sprintf("Reserved %d of %d claims for event %s", result.Reserved, len(usernames), eventID)
		return formatViolations(header, result.Failures, len(result.Failures))
	case errors.Is(err, repository.ErrEventNotFound):
		return fmt.Sprintf("No event exists with id %s", eventID)
	}
	log.Printf("bot: reserve_claims %s failed: %v", eventID, err)
	return replyGenericError
}

// formatViolations renders a violation list under a header line.  total
// may exceed len(violations) when the report was capped.
func formatViolations(header string, violations []lifecycle.Violation, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %d invalid entries:", header, total)
	for _, v := range violations {
		fmt.Fprintf(&b, "\n- entry %d: %s", v.Index, v.Reason)
	}
	if total > len(violations) {
		fmt.Fprintf(&b, "\n... and %d more", total-len(violations))
	}
	return b.String()
}

// send replies to the message and records the reply in the outbound
// ledger.  A ledger conflict means this exact reply was already recorded
// for a previous delivery and is skipped silently.
func (d *Dispatcher) send(ctx context.Context, msg inbox.Message, body string, claimID *uint64) {
	sent, err := d.replier.Reply(ctx, msg, body)
	if err != nil {
		log.Printf("bot: reply to %s failed: %v", msg.ID, err)
		return
	}
	err = d.ledger.RecordOutbound(ctx, model.OutboundMessage{
		ID:       sent.ID,
		Username: strings.ToLower(strings.TrimSpace(msg.Author)),
		Created:  sent.Created,
		Body:     sent.Body,
		ClaimID:  claimID,
	})
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		log.Printf("bot: recording reply %s failed: %v", sent.ID, err)
	}
}

func (d *Dispatcher) ack(ctx context.Context, msg inbox.Message) {
	if err := d.replier.MarkRead(ctx, msg); err != nil {
		log.Printf("bot: mark read %s failed: %v", msg.ID, err)
	}
}

package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chgenberg/bolaxo-sub002/internal/adapter/email"
	"github.com/chgenberg/bolaxo-sub002/internal/domain/entity"
	"github.com/chgenberg/bolaxo-sub002/internal/platform/logger"
	"github.com/nats-io/nats.go"
)

const sendTimeout = 15 * time.Second

// Dispatcher consumes domain events off NATS and turns them into
// plain-text emails. Delivery is at-least-once and strictly decoupled
// from the state transitions that produced the events: a failed send is
// logged, never propagated.
type Dispatcher struct {
	conn   *nats.Conn
	sender email.Sender
	log    logger.Logger
	subs   []*nats.Subscription
}

func NewDispatcher(conn *nats.Conn, sender email.Sender, log logger.Logger) *Dispatcher {
	return &Dispatcher{conn: conn, sender: sender, log: log}
}

func (d *Dispatcher) Start() error {
	subjects := map[string]nats.MsgHandler{
		entity.SubjectNDASubmitted:      d.handleNDASubmitted,
		entity.SubjectNDAApproved:       d.handleNDAApproved,
		entity.SubjectNDARejected:       d.handleNDARejected,
		entity.SubjectNDAExpired:        d.handleNDAExpired,
		entity.SubjectDealStageAdvanced: d.handleStageAdvanced,
	}
	for subject, handler := range subjects {
		sub, err := d.conn.Subscribe(subject, handler)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		d.subs = append(d.subs, sub)
	}
	d.log.Infof("Notification dispatcher subscribed to %d subjects", len(d.subs))
	return nil
}

func (d *Dispatcher) Stop() {
	for _, sub := range d.subs {
		_ = sub.Unsubscribe()
	}
}

func (d *Dispatcher) decodeNDA(msg *nats.Msg) (*entity.NDAEvent, bool) {
	var event entity.NDAEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		d.log.Errorf("Failed to decode event on %s: %v", msg.Subject, err)
		return nil, false
	}
	return &event, true
}

func (d *Dispatcher) send(to, subject, body string) {
	if to == "" {
		d.log.Warnf("No recipient for notification %q, skipping", subject)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := d.sender.Send(ctx, []string{to}, subject, body); err != nil {
		d.log.Errorf("Failed to deliver notification %q to %s: %v", subject, to, err)
	}
}

func (d *Dispatcher) handleNDASubmitted(msg *nats.Msg) {
	event, ok := d.decodeNDA(msg)
	if !ok {
		return
	}
	body := fmt.Sprintf(
		"A buyer has requested NDA access to your listing %q.\n\nTheir message:\n%s\n\nThe request expires on %s.",
		event.ListingTitle, event.Message, event.ExpiresAt.Format("2006-01-02"),
	)
	d.send(event.SellerEmail, "New NDA request for "+event.ListingTitle, body)
}

func (d *Dispatcher) handleNDAApproved(msg *nats.Msg) {
	event, ok := d.decodeNDA(msg)
	if !ok {
		return
	}
	body := fmt.Sprintf(
		"Your NDA request for %q has been approved. You now have access to the full listing details until %s.",
		event.ListingTitle, event.ExpiresAt.Format("2006-01-02"),
	)
	d.send(event.BuyerEmail, "NDA request approved: "+event.ListingTitle, body)
}

func (d *Dispatcher) handleNDARejected(msg *nats.Msg) {
	event, ok := d.decodeNDA(msg)
	if !ok {
		return
	}
	body := fmt.Sprintf("Your NDA request for %q has been declined.", event.ListingTitle)
	if event.RejectionReason != "" {
		body += "\n\nReason: " + event.RejectionReason
	}
	d.send(event.BuyerEmail, "NDA request declined: "+event.ListingTitle, body)
}

func (d *Dispatcher) handleNDAExpired(msg *nats.Msg) {
	event, ok := d.decodeNDA(msg)
	if !ok {
		return
	}
	body := fmt.Sprintf("Your NDA request for %q expired on %s. You can submit a new request at any time.",
		event.ListingTitle, event.ExpiresAt.Format("2006-01-02"))
	d.send(event.BuyerEmail, "NDA request expired: "+event.ListingTitle, body)
}

func (d *Dispatcher) handleStageAdvanced(msg *nats.Msg) {
	var event entity.DealStageAdvancedEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		d.log.Errorf("Failed to decode event on %s: %v", msg.Subject, err)
		return
	}
	d.log.Infof("Deal %s (%s) advanced %s -> %s", event.DealID, event.ListingTitle, event.FromStage, event.ToStage)
}

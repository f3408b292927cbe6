package notification

import (
	"context"
	"fmt"

	"loadline_backend/internal/events"
	"loadline_backend/platform/config"
	"loadline_backend/platform/logger"
)

// Module wires lead alerts to the event bus.
type Module struct {
	sender    Sender
	recipient string
	log       *logger.Logger
}

// NewModule subscribes a lead-alert sender to the bus when email is
// configured. With email disabled it subscribes nothing and lead events
// simply have no listener.
func NewModule(bus events.Bus, cfg config.EmailConfig, log *logger.Logger) *Module {
	m := &Module{
		recipient: cfg.GetLeadAlertRecipient(),
		log:       log,
	}

	if cfg.GetEmailEnabled() && m.recipient != "" {
		m.sender = NewSMTPSender(cfg)
		bus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(m.handleLeadCreated))
		log.Info("lead alert emails enabled", "recipient", m.recipient)
	}

	return m
}

func (m *Module) handleLeadCreated(ctx context.Context, event events.Event) error {
	created, ok := event.(events.LeadCreated)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	err := m.sender.SendLeadAlert(ctx, m.recipient, LeadAlert{
		Phone:            created.Phone,
		ConversationID:   created.ConversationID,
		Source:           created.Source,
		RequiresCallback: created.RequiresCallback,
	})
	if err != nil {
		m.log.Warn("lead alert email failed",
			"conversation_id", created.ConversationID, "error", err)
		return err
	}
	return nil
}

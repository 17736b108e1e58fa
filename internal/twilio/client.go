package twilio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/pathakanu/remindbot/internal/notify"
)

// ErrNotConfigured is returned when credentials or numbers are missing.
var ErrNotConfigured = errors.New("twilio client not configured")

// MessageCreator is the Twilio messages endpoint; the SDK's *openapi.ApiService implements it.
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Client sends WhatsApp messages through Twilio.
type Client struct {
	api          MessageCreator
	fromWhatsApp string
	logger       *log.Logger
}

// New creates a Twilio client bound to the configured WhatsApp sender number.
func New(accountSID, authToken, fromWhatsApp string, logger *log.Logger) *Client {
	var api MessageCreator
	if accountSID != "" && authToken != "" {
		api = twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken}).Api
	}
	return NewWithCreator(api, fromWhatsApp, logger)
}

// NewWithCreator builds a client around an existing messages endpoint.
func NewWithCreator(api MessageCreator, fromWhatsApp string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{api: api, fromWhatsApp: fromWhatsApp, logger: logger}
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio's API.
func (c *Client) SendWhatsAppMessage(to, body string) error {
	if c.api == nil {
		return ErrNotConfigured
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("%w: sender WhatsApp number is empty", ErrNotConfigured)
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send message error: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		c.logger.Printf("twilio: message %s sent to %s", *resp.Sid, recipient)
	}
	return nil
}

// WhatsAppSink delivers reminder events to one fixed WhatsApp recipient.
type WhatsAppSink struct {
	client *Client
	to     string
	loc    *time.Location
}

// NewWhatsAppSink returns a notify sink that messages to.
func NewWhatsAppSink(client *Client, to string, loc *time.Location) *WhatsAppSink {
	if loc == nil {
		loc = time.UTC
	}
	return &WhatsAppSink{client: client, to: to, loc: loc}
}

func (s *WhatsAppSink) Name() string { return "whatsapp" }

func (s *WhatsAppSink) Deliver(ctx context.Context, e notify.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.client.SendWhatsAppMessage(s.to, notify.FormatEvent(e, s.loc, false))
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/valter-silva-au/sectriage/internal/core"
	"github.com/valter-silva-au/sectriage/pkg/models"
)

// Transport names accepted by mail.provider.
const (
	ProviderSES   = "ses"
	ProviderGmail = "gmail"
	ProviderNone  = "none"
)

// SESAPI is the subset of the SES v2 client used by SESMailer.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer sends messages through the SES v2 SendEmail API.
type SESMailer struct {
	from   string
	client SESAPI
}

// NewSESMailer creates an SESMailer over an existing client.
func NewSESMailer(from string, client SESAPI) *SESMailer {
	return &SESMailer{from: from, client: client}
}

func (m *SESMailer) Name() string { return ProviderSES }

// Send dispatches msg as a simple text email.
func (m *SESMailer) Send(ctx context.Context, msg core.Reply) error {
	in, err := BuildSESParams(m.from, msg)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	if _, err := m.client.SendEmail(ctx, in); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// GmailMailer sends messages through the Gmail users.messages.send API with
// a raw MIME payload. The HTTP client is expected to carry authorization.
type GmailMailer struct {
	from    string
	baseURL string
	client  *http.Client
}

// NewGmailMailer creates a GmailMailer authenticating with a static OAuth2
// access token.
func NewGmailMailer(ctx context.Context, from, baseURL, accessToken string) *GmailMailer {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return &GmailMailer{
		from:    from,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  oauth2.NewClient(ctx, ts),
	}
}

func (m *GmailMailer) Name() string { return ProviderGmail }

type gmailSendRequest struct {
	Raw string `json:"raw"`
}

// Send posts msg to the authenticated user's mailbox.
func (m *GmailMailer) Send(ctx context.Context, msg core.Reply) error {
	raw, err := BuildRawMIME(m.from, msg)
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	body, err := json.Marshal(gmailSendRequest{Raw: raw})
	if err != nil {
		return fmt.Errorf("marshaling gmail message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/gmail/v1/users/me/messages/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building gmail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to gmail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gmail returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}

// NullMailer discards every message. It is used when no provider is
// configured or the selected provider has no credentials.
type NullMailer struct{}

func (NullMailer) Name() string { return ProviderNone }

func (NullMailer) Send(context.Context, core.Reply) error { return nil }

// NewMailer selects the transport named by cfg.Provider. A provider without
// usable credentials degrades to NullMailer with a warning, so follow-up
// steps are still recorded but nothing is sent.
func NewMailer(ctx context.Context, cfg models.MailConfig, logger *zap.Logger) core.Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderSES:
		if cfg.SESRegion == "" {
			logger.Warn("ses selected but no region configured, sending disabled")
			return NullMailer{}
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SESRegion))
		if err != nil {
			logger.Warn("loading aws credentials, sending disabled", zap.Error(err))
			return NullMailer{}
		}
		return NewSESMailer(cfg.From, sesv2.NewFromConfig(awsCfg))

	case ProviderGmail:
		if cfg.GmailToken == "" {
			logger.Warn("gmail selected but GMAIL_ACCESS_TOKEN is not set, sending disabled")
			return NullMailer{}
		}
		return NewGmailMailer(ctx, cfg.From, cfg.GmailAPIURL, cfg.GmailToken)

	default:
		return NullMailer{}
	}
}

// Package smtp delivers rendered notifications through an SMTP relay.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"

	"github.com/Nikjeremic/uptiomio/internal/config"
	"github.com/Nikjeremic/uptiomio/internal/notification/domain"
	"github.com/dajohi/goemail"
)

type Transport struct {
	client      *goemail.SMTP
	mailName    string
	mailAddress string
}

// New dials nothing; goemail connects per Send.
func New(cfg config.MailConfig) (*Transport, error) {
	scheme := "smtp"
	if cfg.SMTPSecure {
		scheme = "smtps"
	}
	u := &url.URL{
		Scheme: scheme,
		Host:   cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort),
	}
	if cfg.SMTPUser != "" {
		u.User = url.UserPassword(cfg.SMTPUser, cfg.SMTPPass)
	}

	from, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse MAIL_FROM: %w", err)
	}
	name := cfg.FromName
	if name == "" {
		name = from.Name
	}

	tlsConfig := &tls.Config{
		ServerName:         cfg.SMTPHost,
		InsecureSkipVerify: cfg.SMTPSkipVerify,
	}
	client, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}

	return &Transport{
		client:      client,
		mailName:    name,
		mailAddress: from.Address,
	}, nil
}

// Deliver sends msg. goemail has no context support, so the send runs in a
// goroutine and ctx bounds how long the caller waits for it.
func (t *Transport) Deliver(ctx context.Context, msg domain.Message) error {
	email := goemail.NewHTMLMessage(t.mailAddress, msg.Subject, msg.HTML)
	email.SetName(t.mailName)
	email.AddTo(msg.To)

	done := make(chan error, 1)
	go func() {
		done <- t.client.Send(email)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

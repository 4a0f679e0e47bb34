package app

import (
	"strings"
	"time"

	"github.com/charlesng35/engageflow/internal/auth"
	"github.com/charlesng35/engageflow/pkg/mail"
)

const (
	defaultJWTIssuer   = "engageflow"
	defaultSMTPTimeout = 10 * time.Second
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	issuer := strings.TrimSpace(c.JWT.Issuer)
	if issuer == "" {
		issuer = defaultJWTIssuer
	}

	return auth.JWTConfig{
		Secret:         strings.TrimSpace(c.JWT.Secret),
		Issuer:         issuer,
		AccessTokenTTL: ttl,
	}
}

// SMTPSettings converts EmailConfig to the mailer settings used by the email
// outbox. The sender falls back to the SMTP username, which most providers
// require anyway.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	from := strings.TrimSpace(smtp.From)
	if from == "" {
		from = strings.TrimSpace(smtp.Username)
	}
	timeout := smtp.Timeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}

	return mail.SMTPSettings{
		Enabled:  smtp.Enabled && strings.TrimSpace(smtp.Host) != "",
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     from,
		UseTLS:   smtp.UseTLS,
		Timeout:  timeout,
	}
}

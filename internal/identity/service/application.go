package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/cryptox"
	"github.com/mango3/identity/pkg/idx"
	"github.com/mango3/identity/pkg/slogx"
)

type ApplicationService struct {
	Store store.Store

	// SecretLength is the character length of generated client and webhook
	// secrets.
	SecretLength int
}

func (s *ApplicationService) secretLength() int {
	if s.SecretLength <= 0 {
		return 64
	}
	return s.SecretLength
}

// CreateApplicationResult carries the plaintext secrets exactly once; they
// are not recoverable afterwards (the client secret is stored hashed).
type CreateApplicationResult struct {
	Application   domain.Application
	Secret        string
	WebhookSecret string
}

// Create registers a consuming application and mints its secrets.
func (s *ApplicationService) Create(ctx context.Context, name, redirectURL, webhookURL string) (CreateApplicationResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CreateApplicationResult{}, ValidationErrors{"name": "cannot be blank"}
	}
	if err := validateHTTPURL(redirectURL); err != nil {
		return CreateApplicationResult{}, ValidationErrors{"redirect_url": "must be a valid http(s) URL"}
	}
	if webhookURL != "" {
		if err := validateHTTPURL(webhookURL); err != nil {
			return CreateApplicationResult{}, ValidationErrors{"webhook_url": "must be a valid http(s) URL"}
		}
	}

	now := time.Now().UTC()

	secret, err := cryptox.GenerateSecret(s.secretLength())
	if err != nil {
		return CreateApplicationResult{}, err
	}
	secretHash, err := cryptox.HashPassword(secret)
	if err != nil {
		return CreateApplicationResult{}, err
	}

	var webhookSecret, webhookSecretEncrypted string
	if webhookURL != "" {
		webhookSecret, err = cryptox.GenerateSecret(s.secretLength())
		if err != nil {
			return CreateApplicationResult{}, err
		}
		webhookSecretEncrypted, err = cryptox.EncryptSecret(webhookSecret)
		if err != nil {
			return CreateApplicationResult{}, err
		}
	}

	app := domain.Application{
		ID:                     idx.New().String(),
		Name:                   name,
		RedirectURL:            redirectURL,
		SecretHash:             secretHash,
		WebhookURL:             webhookURL,
		WebhookSecretEncrypted: webhookSecretEncrypted,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.Store.Applications().CreateApplication(ctx, app); err != nil {
		return CreateApplicationResult{}, err
	}

	slogx.FromContext(ctx).Info("application created",
		slog.String("application_id", app.ID),
		slog.String("name", app.Name),
	)

	return CreateApplicationResult{
		Application:   app,
		Secret:        secret,
		WebhookSecret: webhookSecret,
	}, nil
}

// Get fetches an application by id.
func (s *ApplicationService) Get(ctx context.Context, id string) (domain.Application, error) {
	return s.Store.Applications().GetApplicationByID(ctx, id)
}

// List returns all applications, newest first.
func (s *ApplicationService) List(ctx context.Context) ([]domain.Application, error) {
	return s.Store.Applications().ListApplications(ctx)
}

// Update changes the redirect and webhook URLs. Enabling a webhook on an
// application that never had one mints a webhook secret, returned in
// plaintext once.
func (s *ApplicationService) Update(ctx context.Context, id, redirectURL, webhookURL string) (string, error) {
	if err := validateHTTPURL(redirectURL); err != nil {
		return "", ValidationErrors{"redirect_url": "must be a valid http(s) URL"}
	}
	if webhookURL != "" {
		if err := validateHTTPURL(webhookURL); err != nil {
			return "", ValidationErrors{"webhook_url": "must be a valid http(s) URL"}
		}
	}

	app, err := s.Store.Applications().GetApplicationByID(ctx, id)
	if err != nil {
		return "", err
	}

	var webhookSecret string
	if webhookURL != "" && app.WebhookSecretEncrypted == "" {
		webhookSecret, err = cryptox.GenerateSecret(s.secretLength())
		if err != nil {
			return "", err
		}
		encrypted, err := cryptox.EncryptSecret(webhookSecret)
		if err != nil {
			return "", err
		}
		if err := s.Store.Applications().UpdateApplicationWebhookSecret(ctx, id, encrypted); err != nil {
			return "", err
		}
	}

	if err := s.Store.Applications().UpdateApplicationURLs(ctx, id, redirectURL, webhookURL); err != nil {
		return "", err
	}
	return webhookSecret, nil
}

// Delete removes an application and, via the schema, its authorizations.
func (s *ApplicationService) Delete(ctx context.Context, id string) error {
	return s.Store.Applications().DeleteApplication(ctx, id)
}

// RotateSecret mints a fresh client secret and returns it in plaintext once.
func (s *ApplicationService) RotateSecret(ctx context.Context, id string) (string, error) {
	secret, err := cryptox.GenerateSecret(s.secretLength())
	if err != nil {
		return "", err
	}
	hash, err := cryptox.HashPassword(secret)
	if err != nil {
		return "", err
	}
	if err := s.Store.Applications().UpdateApplicationSecretHash(ctx, id, hash); err != nil {
		return "", err
	}
	slogx.FromContext(ctx).Info("application secret rotated", slog.String("application_id", id))
	return secret, nil
}

// RotateWebhookSecret mints a fresh webhook signing secret and returns it in
// plaintext once.
func (s *ApplicationService) RotateWebhookSecret(ctx context.Context, id string) (string, error) {
	secret, err := cryptox.GenerateSecret(s.secretLength())
	if err != nil {
		return "", err
	}
	encrypted, err := cryptox.EncryptSecret(secret)
	if err != nil {
		return "", err
	}
	if err := s.Store.Applications().UpdateApplicationWebhookSecret(ctx, id, encrypted); err != nil {
		return "", err
	}
	slogx.FromContext(ctx).Info("application webhook secret rotated", slog.String("application_id", id))
	return secret, nil
}

// Authenticate verifies an application's client secret for the API boundary.
func (s *ApplicationService) Authenticate(ctx context.Context, id, secret string) (domain.Application, error) {
	if id == "" || secret == "" {
		return domain.Application{}, ErrInvalidApplication
	}

	app, err := s.Store.Applications().GetApplicationByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Application{}, ErrInvalidApplication
		}
		return domain.Application{}, err
	}

	if err := cryptox.VerifyPassword(secret, app.SecretHash); err != nil {
		return domain.Application{}, ErrInvalidApplication
	}
	return app, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("not an http(s) url")
	}
	return nil
}

// identityctl is the operator tool: it manages applications and creates
// users directly against the store, bypassing the HTTP boundary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mango3/identity/internal/identity/app"
	"github.com/mango3/identity/internal/identity/domain"
	"github.com/mango3/identity/internal/identity/service"
	"github.com/mango3/identity/internal/identity/store"
	"github.com/mango3/identity/pkg/cryptox"
	"github.com/mango3/identity/pkg/idx"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := app.LoadConfig()
	cryptox.SetPepperPath(cfg.PepperFile)
	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
	}

	db, err := app.OpenStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx := context.Background()

	var runErr error
	switch os.Args[1] {
	case "application":
		runErr = runApplication(ctx, cfg, db, os.Args[2:])
	case "user":
		runErr = runUser(ctx, cfg, db, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		fatal(runErr)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  identityctl application create -name NAME -redirect-url URL [-webhook-url URL]
  identityctl application list
  identityctl application update -id ID -redirect-url URL [-webhook-url URL]
  identityctl application delete -id ID
  identityctl application rotate-secret -id ID
  identityctl application rotate-webhook-secret -id ID
  identityctl user create -username U -email E -password P -full-name N -birthdate YYYY-MM-DD -country CC`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func runApplication(ctx context.Context, cfg app.Config, db store.Store, args []string) error {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	apps := &service.ApplicationService{Store: db, SecretLength: cfg.SecretLength}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("application create", flag.ExitOnError)
		name := fs.String("name", "", "application name")
		redirectURL := fs.String("redirect-url", "", "authorization redirect URL")
		webhookURL := fs.String("webhook-url", "", "webhook URL (optional)")
		_ = fs.Parse(args[1:])

		result, err := apps.Create(ctx, *name, *redirectURL, *webhookURL)
		if err != nil {
			return err
		}
		fmt.Println("Application created.")
		fmt.Println("ID:           ", result.Application.ID)
		fmt.Println("Secret:       ", result.Secret)
		if result.WebhookSecret != "" {
			fmt.Println("Webhook secret:", result.WebhookSecret)
		}
		fmt.Println("Store the secrets now; they are not recoverable.")
		return nil

	case "list":
		all, err := apps.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tREDIRECT URL\tWEBHOOK\tCREATED")
		for _, a := range all {
			webhook := "-"
			if a.HasWebhook() {
				webhook = a.WebhookURL
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.Name, a.RedirectURL, webhook, a.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()

	case "update":
		fs := flag.NewFlagSet("application update", flag.ExitOnError)
		id := fs.String("id", "", "application id")
		redirectURL := fs.String("redirect-url", "", "authorization redirect URL")
		webhookURL := fs.String("webhook-url", "", "webhook URL (optional)")
		_ = fs.Parse(args[1:])

		webhookSecret, err := apps.Update(ctx, *id, *redirectURL, *webhookURL)
		if err != nil {
			return err
		}
		fmt.Println("Application updated.")
		if webhookSecret != "" {
			fmt.Println("Webhook secret:", webhookSecret)
			fmt.Println("Store the secret now; it is not recoverable.")
		}
		return nil

	case "delete":
		fs := flag.NewFlagSet("application delete", flag.ExitOnError)
		id := fs.String("id", "", "application id")
		_ = fs.Parse(args[1:])

		if err := apps.Delete(ctx, *id); err != nil {
			return err
		}
		fmt.Println("Application deleted.")
		return nil

	case "rotate-secret":
		fs := flag.NewFlagSet("application rotate-secret", flag.ExitOnError)
		id := fs.String("id", "", "application id")
		_ = fs.Parse(args[1:])

		secret, err := apps.RotateSecret(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Println("Secret:", secret)
		fmt.Println("Store the secret now; it is not recoverable.")
		return nil

	case "rotate-webhook-secret":
		fs := flag.NewFlagSet("application rotate-webhook-secret", flag.ExitOnError)
		id := fs.String("id", "", "application id")
		_ = fs.Parse(args[1:])

		secret, err := apps.RotateWebhookSecret(ctx, *id)
		if err != nil {
			return err
		}
		fmt.Println("Webhook secret:", secret)
		fmt.Println("Store the secret now; it is not recoverable.")
		return nil

	default:
		usage()
		os.Exit(2)
		return nil
	}
}

func runUser(ctx context.Context, cfg app.Config, db store.Store, args []string) error {
	if len(args) < 1 || args[0] != "create" {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet("user create", flag.ExitOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	fullName := fs.String("full-name", "", "full name")
	birthdateStr := fs.String("birthdate", "", "birthdate (YYYY-MM-DD)")
	country := fs.String("country", "", "ISO 3166-1 alpha-2 country code")
	language := fs.String("language", "en", "language code")
	_ = fs.Parse(args[1:])

	birthdate, err := time.Parse("2006-01-02", *birthdateStr)
	if err != nil {
		return fmt.Errorf("invalid birthdate: %w", err)
	}

	hash, err := cryptox.HashPassword(*password)
	if err != nil {
		return err
	}

	// Operator-created accounts skip the registration cap and email flow;
	// the address counts as confirmed.
	now := time.Now().UTC()
	user := domain.User{
		ID:               idx.New().String(),
		Username:         *username,
		Email:            *email,
		PasswordHash:     hash,
		DisplayName:      *username,
		FullName:         *fullName,
		Birthdate:        birthdate,
		LanguageCode:     *language,
		CountryAlpha2:    *country,
		EmailConfirmedAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if *fullName != "" {
		user.DisplayName = firstWord(*fullName)
	}

	if err := db.Users().CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Println("User created successfully.")
	fmt.Println("ID:", user.ID)
	return nil
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' {
			return s[:i]
		}
	}
	return s
}

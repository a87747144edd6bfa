package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/openledger/oidcd/internal/oidc/app"
)

func main() {
	cfg := app.LoadConfig()

	if len(os.Args) > 1 {
		runCommand(cfg, os.Args[1], os.Args[2:])
		return
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

// runCommand executes a one-shot administrative command against the same
// database the server uses, then exits.
func runCommand(cfg app.Config, name string, args []string) {
	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer func() { _ = application.Close() }()

	ctx := context.Background()

	switch name {
	case "register-client":
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		clientName := fs.String("name", "", "client display name (required)")
		scopes := fs.String("scopes", "openid", "space-delimited scope grants")
		redirect := fs.String("redirect-uri", "", "callback URI to whitelist (required)")
		certSalt := fs.String("cert-salt", "", "optional certificate salt")
		_ = fs.Parse(args)

		if *clientName == "" || *redirect == "" {
			fs.Usage()
			os.Exit(2)
		}

		client, secret, err := application.Clients().Register(ctx, *clientName, strings.Fields(*scopes), *certSalt)
		if err != nil {
			log.Fatalf("register client: %v", err)
		}
		if _, err := application.Clients().RegisterRedirect(ctx, client.ClientID, *redirect); err != nil {
			log.Fatalf("register redirect uri: %v", err)
		}

		fmt.Printf("client_id:     %s\n", client.ClientID)
		fmt.Printf("client_secret: %s\n", secret)
		fmt.Printf("redirect_uri:  %s\n", *redirect)
		fmt.Println("store the secret now; it is not retrievable again")

	case "rotate-secret":
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		clientID := fs.String("client-id", "", "public client identifier (required)")
		_ = fs.Parse(args)

		if *clientID == "" {
			fs.Usage()
			os.Exit(2)
		}

		secret, err := application.Clients().RotateSecret(ctx, *clientID)
		if err != nil {
			log.Fatalf("rotate secret: %v", err)
		}
		fmt.Printf("client_secret: %s\n", secret)
		fmt.Println("store the secret now; it is not retrievable again")

	case "add-redirect":
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		clientID := fs.String("client-id", "", "public client identifier (required)")
		redirect := fs.String("redirect-uri", "", "callback URI to whitelist (required)")
		_ = fs.Parse(args)

		if *clientID == "" || *redirect == "" {
			fs.Usage()
			os.Exit(2)
		}

		if _, err := application.Clients().RegisterRedirect(ctx, *clientID, *redirect); err != nil {
			log.Fatalf("register redirect uri: %v", err)
		}
		fmt.Printf("redirect_uri registered for %s\n", *clientID)

	case "revoke-client":
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		clientID := fs.String("client-id", "", "public client identifier (required)")
		undo := fs.Bool("undo", false, "re-enable a previously revoked client")
		_ = fs.Parse(args)

		if *clientID == "" {
			fs.Usage()
			os.Exit(2)
		}

		if *undo {
			err = application.Clients().Unrevoke(ctx, *clientID)
		} else {
			err = application.Clients().Revoke(ctx, *clientID)
		}
		if err != nil {
			log.Fatalf("revoke client: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
		fmt.Fprintln(os.Stderr, "commands: register-client, rotate-secret, add-redirect, revoke-client")
		os.Exit(2)
	}
}

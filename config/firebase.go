package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// InitFirebase initializes the Firebase Admin SDK used for native mobile
// push. It returns nil, nil when no credentials are configured.
func InitFirebase(cfg Config) (*firebase.App, error) {
	if !cfg.FirebaseEnabled() {
		log.Println("Firebase credentials not configured, native mobile push disabled")
		return nil, nil
	}

	ctx := context.Background()
	fbConfig := &firebase.Config{
		ProjectID: cfg.FirebaseProjectID,
	}

	var opt option.ClientOption
	if cfg.FirebaseCredentialsBase64 != "" {
		// Check for base64 encoded credentials first
		log.Printf("Using Firebase credentials from base64 environment variable")
		decoded, err := base64.StdEncoding.DecodeString(cfg.FirebaseCredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("decode base64 firebase credentials: %w", err)
		}
		opt = option.WithCredentialsJSON(decoded)
	} else {
		log.Printf("Using Firebase credentials file: %s", cfg.FirebaseCredentialsFile)
		opt = option.WithCredentialsFile(cfg.FirebaseCredentialsFile)
	}

	app, err := firebase.NewApp(ctx, fbConfig, opt)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}

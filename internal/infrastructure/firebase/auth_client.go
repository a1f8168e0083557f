package firebase

import (
	"context"
	"fmt"
	"os"

	fbapp "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"bookmarket/pkg/config"
	"bookmarket/pkg/logger"
)

// ClientOption picks the service account credentials: inline JSON first, then a file path, then
// application default credentials.
func ClientOption(cfg *config.Config) (option.ClientOption, error) {
	if cfg.FirebaseCredentialsJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)), nil
	}
	if cfg.FirebaseCredentialsPath != "" {
		if _, err := os.Stat(cfg.FirebaseCredentialsPath); err != nil {
			return nil, fmt.Errorf("service account file %s: %w", cfg.FirebaseCredentialsPath, err)
		}
		logger.Info("Using Firebase service account from file: %s", cfg.FirebaseCredentialsPath)
		return option.WithCredentialsFile(cfg.FirebaseCredentialsPath), nil
	}
	logger.Info("Using application default credentials")
	return nil, nil
}

// NewApp initializes the Firebase app for cfg.FirebaseProject.
func NewApp(ctx context.Context, cfg *config.Config, opt option.ClientOption) (*fbapp.App, error) {
	var opts []option.ClientOption
	if opt != nil {
		opts = append(opts, opt)
	}
	app, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase: %w", err)
	}
	return app, nil
}

// FirebaseAuthClient verifies Firebase ID tokens.
type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}
	return result.UID, nil
}

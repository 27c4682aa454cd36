package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	rdsauth "github.com/aws/aws-sdk-go-v2/feature/rds/auth"
)

// BuildIAMAuthToken generates a short-lived RDS IAM authentication token
// used in place of the password. Tokens expire after 15 minutes, which only
// matters for new physical connections; open connections stay valid.
func BuildIAMAuthToken(ctx context.Context, cfg Config) (string, error) {
	if cfg.AWSRegion == "" {
		return "", ErrMissingAWSRegion
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.AWSRegion))
	if err != nil {
		return "", fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	token, err := rdsauth.BuildAuthToken(ctx, endpoint, cfg.AWSRegion, cfg.Username, awsCfg.Credentials)
	if err != nil {
		return "", fmt.Errorf("failed to build RDS IAM auth token: %w", err)
	}
	return token, nil
}

// Package secrets resolves gateway auth tokens kept in AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretValueGetter is the subset of the Secrets Manager API in use.
type secretValueGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// gatewaySecret is the JSON layout of a stored gateway secret.
type gatewaySecret struct {
	AuthToken string `json:"auth_token"`
}

// SecretsManager wraps AWS Secrets Manager operations.
type SecretsManager struct {
	client secretValueGetter
}

// NewSecretsManager creates a client using the default AWS credential chain.
func NewSecretsManager(ctx context.Context) (*SecretsManager, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
	}, nil
}

// ResolveAuthToken fetches the auth token stored under secretName. The secret
// is either a JSON object with an "auth_token" field or the bare token.
func (s *SecretsManager) ResolveAuthToken(ctx context.Context, secretName string) (string, error) {
	if secretName == "" {
		return "", fmt.Errorf("secret name is empty")
	}

	output, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", fmt.Errorf("fetch secret %q from secrets manager: %w", secretName, err)
	}

	if output.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value (binary secrets not supported)", secretName)
	}

	raw := strings.TrimSpace(*output.SecretString)
	if !strings.HasPrefix(raw, "{") {
		if raw == "" {
			return "", fmt.Errorf("secret %q is empty", secretName)
		}
		return raw, nil
	}

	var secret gatewaySecret
	if err := json.Unmarshal([]byte(raw), &secret); err != nil {
		return "", fmt.Errorf("parse secret %q as JSON: %w", secretName, err)
	}
	if secret.AuthToken == "" {
		return "", fmt.Errorf("secret %q missing required field: auth_token", secretName)
	}

	return secret.AuthToken, nil
}

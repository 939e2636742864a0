package config

import (
	"context"
	"fmt"

	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

// DefaultSecretID names the shared secret holding ReporterConfigs JSON.
const DefaultSecretID = "GlobalRSFMetricConfigs"

// SecretSource reads ReporterConfigs from AWS Secrets Manager.
type SecretSource struct {
	client   secretsmanageriface.SecretsManagerAPI
	secretID string
	logger   lager.Logger
}

func NewSecretSource(client secretsmanageriface.SecretsManagerAPI, secretID string, logger lager.Logger) *SecretSource {
	if secretID == "" {
		secretID = DefaultSecretID
	}
	return &SecretSource{
		client:   client,
		secretID: secretID,
		logger:   logger.Session("secret-source", lager.Data{"secret_id": secretID}),
	}
}

// Fetch ...
func (s *SecretSource) Fetch(ctx context.Context) (*ReporterConfigs, error) {
	s.logger.Debug("get-secret-value")
	out, err := s.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("getting secret %q: %w", s.secretID, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %q has no string value", s.secretID)
	}

	configs, err := ParseReporterConfigs([]byte(aws.StringValue(out.SecretString)))
	if err != nil {
		return nil, fmt.Errorf("parsing secret %q: %w", s.secretID, err)
	}
	return configs, nil
}

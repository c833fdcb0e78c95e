package token

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsKeyProvider reads the signing secret from AWS Secrets Manager.
type AWSSecretsKeyProvider struct {
	client    SecretsManagerAPI
	secretARN string
	algorithm string
}

func NewAWSSecretsKeyProvider(client SecretsManagerAPI, secretARN, algorithm string) *AWSSecretsKeyProvider {
	return &AWSSecretsKeyProvider{client: client, secretARN: secretARN, algorithm: algorithm}
}

// NewAWSSecretsKeyProviderFromEnv builds the client from the default AWS
// credential chain. An empty region defers to the environment.
func NewAWSSecretsKeyProviderFromEnv(ctx context.Context, region, secretARN, algorithm string) (*AWSSecretsKeyProvider, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsKeyProvider(secretsmanager.NewFromConfig(cfg), secretARN, algorithm), nil
}

func (p *AWSSecretsKeyProvider) Load(ctx context.Context) (*KeyMaterial, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read signing secret: %w", err)
	}

	var secret string
	switch {
	case out.SecretString != nil:
		secret = aws.ToString(out.SecretString)
	case len(out.SecretBinary) > 0:
		secret = string(out.SecretBinary)
	default:
		return nil, fmt.Errorf("signing secret %s is empty", p.secretARN)
	}
	return ParseKeyMaterial(p.algorithm, secret)
}

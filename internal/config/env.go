package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	secretIDEnvVar     = "AWS_SECRETS_MANAGER_SECRET_ID"
	secretRegionEnvVar = "AWS_SECRETS_MANAGER_REGION"
	secretStageEnvVar  = "AWS_SECRETS_MANAGER_VERSION_STAGE"
	secretOverwriteVar = "AWS_SECRETS_MANAGER_OVERWRITE"
)

// SecretsAPI is the slice of the Secrets Manager client used to pull secrets.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadEnv populates the process environment before the configuration is
// read: first from an optional .env file, then from a JSON object stored in
// AWS Secrets Manager when AWS_SECRETS_MANAGER_SECRET_ID is set.
func LoadEnv(ctx context.Context, envFile string) error {
	loadDotEnv(envFile)

	secretID := os.Getenv(secretIDEnvVar)
	if secretID == "" {
		return nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region := os.Getenv(secretRegionEnvVar); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("[LoadEnv] loading AWS config: %w", err)
	}

	return LoadSecretIntoEnv(ctx, secretsmanager.NewFromConfig(awsCfg), secretID)
}

func loadDotEnv(envFile string) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Debug().Str("file", envFile).Msg("no .env file loaded, using process environment")
	}
}

// LoadSecretIntoEnv fetches secretID and exports each key of its JSON payload
// as an environment variable. Existing variables are kept unless
// AWS_SECRETS_MANAGER_OVERWRITE=true.
func LoadSecretIntoEnv(ctx context.Context, client SecretsAPI, secretID string) error {
	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)}
	if stage := os.Getenv(secretStageEnvVar); stage != "" {
		input.VersionStage = aws.String(stage)
	}

	out, err := client.GetSecretValue(ctx, input)
	if err != nil {
		return fmt.Errorf("[LoadSecretIntoEnv] fetching secret %s: %w", secretID, err)
	}
	if out.SecretString == nil {
		return fmt.Errorf("[LoadSecretIntoEnv] secret %s has no string value", secretID)
	}

	values := map[string]any{}
	if err := json.Unmarshal([]byte(*out.SecretString), &values); err != nil {
		return fmt.Errorf("[LoadSecretIntoEnv] secret %s is not a JSON object: %w", secretID, err)
	}

	overwrite := strings.EqualFold(os.Getenv(secretOverwriteVar), "true")
	loaded := 0
	for k, v := range values {
		if _, exists := os.LookupEnv(k); exists && !overwrite {
			continue
		}
		if err := os.Setenv(k, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("[LoadSecretIntoEnv] setting %s: %w", k, err)
		}
		loaded++
	}
	log.Info().Str("secret", secretID).Int("keys", loaded).Msg("loaded secrets into environment")
	return nil
}

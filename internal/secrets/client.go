package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/rs/zerolog"

	"github.com/edvin/dbmanager/internal/awsclient"
	"github.com/edvin/dbmanager/internal/model"
	"github.com/edvin/dbmanager/internal/platform"
)

var (
	// ErrNotFound is returned when the vault holds no secret string for an id.
	ErrNotFound = errors.New("secret not found")
	// ErrMalformed is returned when a secret string is not a credential object.
	ErrMalformed = errors.New("secret malformed")
)

// API is the subset of the Secrets Manager client used by Client.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	TagResource(ctx context.Context, params *secretsmanager.TagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
	DeleteSecret(ctx context.Context, params *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// Options tunes secret deletion.
type Options struct {
	// RecoveryWindowDays is passed to DeleteSecret. Zero deletes immediately
	// without a recovery window.
	RecoveryWindowDays int
}

// Client reads and writes database credential secrets in AWS Secrets Manager.
type Client struct {
	api    API
	opts   Options
	logger zerolog.Logger
}

// NewClient creates a Client around an existing API implementation.
func NewClient(api API, opts Options, logger zerolog.Logger) *Client {
	return &Client{
		api:    api,
		opts:   opts,
		logger: logger.With().Str("component", "secret-store").Logger(),
	}
}

// NewSecretsManagerClient builds a Client backed by the AWS SDK for the given
// region. endpoint overrides the service endpoint when non-empty.
func NewSecretsManagerClient(ctx context.Context, region, endpoint string, opts Options, logger zerolog.Logger) (*Client, error) {
	cfg, err := awsclient.LoadConfig(ctx, region, endpoint)
	if err != nil {
		return nil, err
	}
	api := secretsmanager.NewFromConfig(cfg, func(o *secretsmanager.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewClient(api, opts, logger), nil
}

// GetSecret fetches and parses the secret with the given id. It returns
// ErrNotFound if the vault has no secret string for it.
func (c *Client) GetSecret(ctx context.Context, id string) (*model.SecretRecord, error) {
	c.logger.Debug().Str("secret_id", id).Msg("fetching secret")

	out, err := c.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get secret value %s: %w", id, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return nil, ErrNotFound
	}

	var record model.SecretRecord
	if err := json.Unmarshal([]byte(*out.SecretString), &record); err != nil {
		return nil, fmt.Errorf("parse secret %s: %w: %w", id, ErrMalformed, err)
	}
	return &record, nil
}

// CreateSecret stores a new tenant credential secret named
// database/{hostPrefix}/{username}-{random5} and tags it with the database
// name. Both creation and tagging failures are returned; when tagging fails
// the untagged secret is removed so it cannot be orphaned.
func (c *Client) CreateSecret(ctx context.Context, databaseName, username, host string, port int, password string) (string, error) {
	record := model.SecretRecord{
		Username: username,
		Password: password,
		Host:     host,
		Port:     port,
		Engine:   model.EnginePostgres,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode secret: %w", err)
	}

	suffix, err := platform.RandomString(platform.SuffixLength)
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("database/%s/%s-%s", record.HostPrefix(), username, suffix)

	c.logger.Info().Str("database", databaseName).Str("secret_name", name).Msg("creating tenant secret")

	out, err := c.api.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(name),
		SecretString: aws.String(string(payload)),
	})
	if err != nil {
		return "", fmt.Errorf("create secret %s: %w", name, err)
	}
	if out.ARN == nil || *out.ARN == "" {
		return "", fmt.Errorf("create secret %s: no ARN returned", name)
	}
	arn := *out.ARN

	_, err = c.api.TagResource(ctx, &secretsmanager.TagResourceInput{
		SecretId: aws.String(arn),
		Tags: []smtypes.Tag{
			{Key: aws.String(model.TenantTagKey), Value: aws.String(databaseName)},
		},
	})
	if err != nil {
		if _, delErr := c.api.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
			SecretId:                   aws.String(arn),
			ForceDeleteWithoutRecovery: aws.Bool(true),
		}); delErr != nil {
			c.logger.Error().Err(delErr).Str("secret_id", arn).Msg("failed to remove untagged secret")
		}
		return "", fmt.Errorf("tag secret %s: %w", arn, err)
	}

	c.logger.Info().Str("database", databaseName).Str("secret_id", arn).Msg("tenant secret created")
	return arn, nil
}

// RotateSecret replaces the current value of an existing secret.
func (c *Client) RotateSecret(ctx context.Context, id string, record model.SecretRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode secret: %w", err)
	}

	c.logger.Info().Str("secret_id", id).Msg("rotating secret value")

	if _, err := c.api.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(id),
		SecretString: aws.String(string(payload)),
	}); err != nil {
		return fmt.Errorf("put secret value %s: %w", id, err)
	}
	return nil
}

// FindSecretsByTag returns the ids of all secrets tagged exactly key=value.
// The server-side tag filters match key and value independently and by
// prefix, so results are filtered again on the returned tags.
func (c *Client) FindSecretsByTag(ctx context.Context, key, value string) ([]string, error) {
	paginator := secretsmanager.NewListSecretsPaginator(c.api, &secretsmanager.ListSecretsInput{
		Filters: []smtypes.Filter{
			{Key: smtypes.FilterNameStringTypeTagKey, Values: []string{key}},
			{Key: smtypes.FilterNameStringTypeTagValue, Values: []string{value}},
		},
	})

	ids := []string{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list secrets by tag %s=%s: %w", key, value, err)
		}
		for _, entry := range page.SecretList {
			if !hasTag(entry.Tags, key, value) {
				continue
			}
			id := aws.ToString(entry.ARN)
			if id == "" {
				id = aws.ToString(entry.Name)
			}
			c.logger.Debug().Str("secret_id", id).Msg("found tagged secret")
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// DeleteSecret deletes the secret with the given id.
func (c *Client) DeleteSecret(ctx context.Context, id string) error {
	input := &secretsmanager.DeleteSecretInput{SecretId: aws.String(id)}
	if c.opts.RecoveryWindowDays > 0 {
		input.RecoveryWindowInDays = aws.Int64(int64(c.opts.RecoveryWindowDays))
	} else {
		input.ForceDeleteWithoutRecovery = aws.Bool(true)
	}

	c.logger.Info().Str("secret_id", id).Msg("deleting secret")

	if _, err := c.api.DeleteSecret(ctx, input); err != nil {
		return fmt.Errorf("delete secret %s: %w", id, err)
	}
	return nil
}

func hasTag(tags []smtypes.Tag, key, value string) bool {
	for _, t := range tags {
		if aws.ToString(t.Key) == key && aws.ToString(t.Value) == value {
			return true
		}
	}
	return false
}

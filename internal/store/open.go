package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"
	"github.com/vesaa/speedtest2dynamodb/internal/config"
)

// Open builds the Store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverDynamoDB, "":
		client, err := newDynamoDBClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewDynamoDB(client, DynamoDBOptions{
			Table:         cfg.TableName,
			ReadCapacity:  cfg.ReadCapacity,
			WriteCapacity: cfg.WriteCapacity,
			WaitTimeout:   cfg.TableWaitTimeout,
		}, logger), nil
	case config.DriverSQLite:
		return OpenSQLite(cfg.DBPath, cfg.TableName, logger)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.StoreDriver)
	}
}

func newDynamoDBClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	}), nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/vesaa/speedtest2dynamodb/internal/models"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
// *dynamodb.Client satisfies it.
type DynamoDBAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoDBOptions configures a DynamoDB store.
type DynamoDBOptions struct {
	Table         string
	ReadCapacity  int64 // used only when the table is created
	WriteCapacity int64
	WaitTimeout   time.Duration // upper bound for a new table to become ACTIVE
	// WaitMinDelay is the first poll interval while waiting for the table;
	// zero keeps the SDK default.
	WaitMinDelay time.Duration
}

// DefaultDynamoDBOptions provisions 5 read and 5 write capacity units.
var DefaultDynamoDBOptions = DynamoDBOptions{
	Table:         DefaultTableName,
	ReadCapacity:  5,
	WriteCapacity: 5,
	WaitTimeout:   5 * time.Minute,
}

// Error codes that no amount of retrying will fix.
var permanentDynamoCodes = map[string]bool{
	"ValidationException":         true,
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"MissingAuthenticationToken":  true,
}

// DynamoDB stores measurements in an Amazon DynamoDB table keyed by
// id (partition, S) and timestamp (sort, N).
type DynamoDB struct {
	client DynamoDBAPI
	opts   DynamoDBOptions
	logger zerolog.Logger
	ready  bool
}

// NewDynamoDB returns a store writing through client.
func NewDynamoDB(client DynamoDBAPI, opts DynamoDBOptions, logger zerolog.Logger) *DynamoDB {
	if opts.Table == "" {
		opts.Table = DefaultTableName
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultDynamoDBOptions.WaitTimeout
	}
	return &DynamoDB{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "dynamodb").Str("table", opts.Table).Logger(),
	}
}

// EnsureTable implements Store.
func (d *DynamoDB) EnsureTable(ctx context.Context) error {
	if d.ready {
		return nil
	}

	out, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.opts.Table)})
	switch {
	case err == nil:
		if out.Table != nil && out.Table.TableStatus == types.TableStatusActive {
			d.ready = true
			return nil
		}
	case isNotFound(err):
		if err := d.createTable(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("describing table %s: %w", d.opts.Table, err)
	}

	if err := d.waitActive(ctx); err != nil {
		return err
	}
	d.ready = true
	return nil
}

func (d *DynamoDB) createTable(ctx context.Context) error {
	d.logger.Info().
		Int64("read_capacity", d.opts.ReadCapacity).
		Int64("write_capacity", d.opts.WriteCapacity).
		Msg("Creating table")

	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.opts.Table),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(models.AttrID), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(models.AttrTimestamp), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(models.AttrID), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(models.AttrTimestamp), AttributeType: types.ScalarAttributeTypeN},
		},
		ProvisionedThroughput: &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(d.opts.ReadCapacity),
			WriteCapacityUnits: aws.Int64(d.opts.WriteCapacity),
		},
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			// Another run created it first.
			d.logger.Info().Msg("Table is already being created")
			return nil
		}
		return fmt.Errorf("creating table %s: %w", d.opts.Table, err)
	}
	return nil
}

func (d *DynamoDB) waitActive(ctx context.Context) error {
	waiter := dynamodb.NewTableExistsWaiter(d.client, func(o *dynamodb.TableExistsWaiterOptions) {
		if d.opts.WaitMinDelay > 0 {
			o.MinDelay = d.opts.WaitMinDelay
			if o.MaxDelay < o.MinDelay {
				o.MaxDelay = o.MinDelay
			}
		}
	})
	d.logger.Debug().Dur("timeout", d.opts.WaitTimeout).Msg("Waiting for table to become active")
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.opts.Table)}, d.opts.WaitTimeout); err != nil {
		return fmt.Errorf("waiting for table %s: %w", d.opts.Table, err)
	}
	return nil
}

// Put implements Store. The item is written only if no item with the same id
// exists, so a retry after a lost response cannot duplicate or overwrite it.
func (d *DynamoDB) Put(ctx context.Context, m models.Measurement) error {
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return Permanent(fmt.Errorf("encoding record %s: %w", m.ID, err))
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.opts.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": models.AttrID,
		},
	})
	if err == nil {
		return nil
	}

	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		d.logger.Info().Str("id", m.ID).Msg("Record already stored")
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && permanentDynamoCodes[apiErr.ErrorCode()] {
		return Permanent(fmt.Errorf("putting record %s: %w", m.ID, err))
	}
	return fmt.Errorf("putting record %s: %w", m.ID, err)
}

// Scan implements Store, following pagination to the end of the table.
func (d *DynamoDB) Scan(ctx context.Context) ([]models.Measurement, error) {
	var records []models.Measurement
	p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{TableName: aws.String(d.opts.Table)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scanning table %s: %w", d.opts.Table, err)
		}
		var batch []models.Measurement
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("decoding items of %s: %w", d.opts.Table, err)
		}
		records = append(records, batch...)
	}
	return records, nil
}

// Close implements Store. The SDK client holds no resources to release.
func (d *DynamoDB) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}

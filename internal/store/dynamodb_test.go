package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/speedtest2dynamodb/internal/models"
)

type describeResult struct {
	out *dynamodb.DescribeTableOutput
	err error
}

type fakeDynamoDB struct {
	describe      []describeResult // last entry repeats
	describeCalls int

	createInputs []*dynamodb.CreateTableInput
	createErr    error

	putInputs []*dynamodb.PutItemInput
	putErr    error

	scanPages  []*dynamodb.ScanOutput
	scanInputs []*dynamodb.ScanInput
}

func (f *fakeDynamoDB) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	i := f.describeCalls
	if i >= len(f.describe) {
		i = len(f.describe) - 1
	}
	f.describeCalls++
	return f.describe[i].out, f.describe[i].err
}

func (f *fakeDynamoDB) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.createInputs = append(f.createInputs, params)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamoDB) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, params)
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanInputs = append(f.scanInputs, params)
	page := f.scanPages[len(f.scanInputs)-1]
	return page, nil
}

func activeTable() describeResult {
	return describeResult{out: &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{TableStatus: types.TableStatusActive},
	}}
}

func missingTable() describeResult {
	return describeResult{err: &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}}
}

func newTestDynamoDB(client DynamoDBAPI) *DynamoDB {
	return NewDynamoDB(client, DynamoDBOptions{
		Table:         DefaultTableName,
		ReadCapacity:  5,
		WriteCapacity: 5,
		WaitTimeout:   5 * time.Second,
		WaitMinDelay:  time.Millisecond,
	}, zerolog.Nop())
}

func TestDynamoDBEnsureTableExisting(t *testing.T) {
	client := &fakeDynamoDB{describe: []describeResult{activeTable()}}
	d := newTestDynamoDB(client)

	require.NoError(t, d.EnsureTable(context.Background()))
	require.NoError(t, d.EnsureTable(context.Background()))
	assert.Empty(t, client.createInputs)
	assert.Equal(t, 1, client.describeCalls, "ready table is not described again")
}

func TestDynamoDBEnsureTableCreatesMissingTable(t *testing.T) {
	client := &fakeDynamoDB{describe: []describeResult{missingTable(), activeTable()}}
	d := newTestDynamoDB(client)

	require.NoError(t, d.EnsureTable(context.Background()))
	require.Len(t, client.createInputs, 1)

	in := client.createInputs[0]
	assert.Equal(t, "speedtestresults", aws.ToString(in.TableName))
	assert.Equal(t, []types.KeySchemaElement{
		{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		{AttributeName: aws.String("timestamp"), KeyType: types.KeyTypeRange},
	}, in.KeySchema)
	assert.Equal(t, []types.AttributeDefinition{
		{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		{AttributeName: aws.String("timestamp"), AttributeType: types.ScalarAttributeTypeN},
	}, in.AttributeDefinitions)
	require.NotNil(t, in.ProvisionedThroughput)
	assert.Equal(t, int64(5), aws.ToInt64(in.ProvisionedThroughput.ReadCapacityUnits))
	assert.Equal(t, int64(5), aws.ToInt64(in.ProvisionedThroughput.WriteCapacityUnits))
	assert.GreaterOrEqual(t, client.describeCalls, 2, "waits for the new table")
}

func TestDynamoDBEnsureTableConcurrentCreator(t *testing.T) {
	client := &fakeDynamoDB{
		describe:  []describeResult{missingTable(), activeTable()},
		createErr: &types.ResourceInUseException{Message: aws.String("Table already exists: speedtestresults")},
	}
	d := newTestDynamoDB(client)

	require.NoError(t, d.EnsureTable(context.Background()))
	assert.Len(t, client.createInputs, 1)
}

func TestDynamoDBEnsureTableDescribeError(t *testing.T) {
	client := &fakeDynamoDB{describe: []describeResult{{err: errors.New("no credentials")}}}
	d := newTestDynamoDB(client)

	err := d.EnsureTable(context.Background())
	assert.ErrorContains(t, err, "describing table speedtestresults")
	assert.Empty(t, client.createInputs)
}

func TestDynamoDBEnsureTableCreateError(t *testing.T) {
	client := &fakeDynamoDB{
		describe:  []describeResult{missingTable()},
		createErr: errors.New("LimitExceededException"),
	}
	d := newTestDynamoDB(client)

	assert.ErrorContains(t, d.EnsureTable(context.Background()), "creating table")
}

func TestDynamoDBPutEncodesNumbersAsDecimals(t *testing.T) {
	client := &fakeDynamoDB{}
	d := newTestDynamoDB(client)

	m := models.Measurement{
		ID:                   "3b241101-e2bb-4255-8caf-4136c566a962",
		Timestamp:            1700000000,
		PingMS:               10.331,
		DownloadBitPerSecond: 43518756126.72,
		UploadBitPerSecond:   -1,
	}
	require.NoError(t, d.Put(context.Background(), m))
	require.Len(t, client.putInputs, 1)

	in := client.putInputs[0]
	assert.Equal(t, "speedtestresults", aws.ToString(in.TableName))
	assert.Equal(t, "attribute_not_exists(#id)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, map[string]types.AttributeValue{
		"id":                      &types.AttributeValueMemberS{Value: "3b241101-e2bb-4255-8caf-4136c566a962"},
		"timestamp":               &types.AttributeValueMemberN{Value: "1700000000"},
		"ping_ms":                 &types.AttributeValueMemberN{Value: "10.331"},
		"download_bit_per_second": &types.AttributeValueMemberN{Value: "43518756126.72"},
		"upload_bit_per_second":   &types.AttributeValueMemberN{Value: "-1"},
	}, in.Item)
}

func TestDynamoDBPutErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantErr       bool
		wantPermanent bool
	}{
		{
			name: "already stored",
			err:  &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")},
		},
		{
			name:    "throttled",
			err:     &types.ProvisionedThroughputExceededException{Message: aws.String("rate exceeded")},
			wantErr: true,
		},
		{
			name:          "validation",
			err:           &smithy.GenericAPIError{Code: "ValidationException", Message: "One or more parameter values were invalid"},
			wantErr:       true,
			wantPermanent: true,
		},
		{
			name:          "access denied",
			err:           &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized to perform: dynamodb:PutItem"},
			wantErr:       true,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDynamoDB(&fakeDynamoDB{putErr: tt.err})
			err := d.Put(context.Background(), testRecord)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.wantPermanent, IsPermanent(err))
		})
	}
}

func TestDynamoDBScanFollowsPages(t *testing.T) {
	item := func(id, ts, ping string) map[string]types.AttributeValue {
		return map[string]types.AttributeValue{
			"id":                      &types.AttributeValueMemberS{Value: id},
			"timestamp":               &types.AttributeValueMemberN{Value: ts},
			"ping_ms":                 &types.AttributeValueMemberN{Value: ping},
			"download_bit_per_second": &types.AttributeValueMemberN{Value: "42498785.28"},
			"upload_bit_per_second":   &types.AttributeValueMemberN{Value: "6165626.88"},
		}
	}
	client := &fakeDynamoDB{scanPages: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{item("a", "1700000000", "10.331")},
			LastEvaluatedKey: map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "a"}},
		},
		{
			Items: []map[string]types.AttributeValue{item("b", "1700003600", "-1")},
		},
	}}
	d := newTestDynamoDB(client)

	records, err := d.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, client.scanInputs, 2)
	assert.NotEmpty(t, client.scanInputs[1].ExclusiveStartKey)

	assert.Equal(t, []models.Measurement{
		{ID: "a", Timestamp: 1700000000, PingMS: 10.331, DownloadBitPerSecond: 42498785.28, UploadBitPerSecond: 6165626.88},
		{ID: "b", Timestamp: 1700003600, PingMS: -1, DownloadBitPerSecond: 42498785.28, UploadBitPerSecond: 6165626.88},
	}, records)
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/obahamonde/cloudantic/internal/observability"
	appErrors "github.com/obahamonde/cloudantic/pkg/errors"
)

const (
	attrPK = "pk"
	attrSK = "sk"

	defaultTableWaitTimeout = 2 * time.Minute
)

// DynamoStore implements KeyedStore on a single DynamoDB table with string
// "pk"/"sk" key attributes.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
	retry     RetryConfig
	logger    *zap.Logger
	metrics   *observability.StoreMetrics
}

// NewDynamoClient builds a DynamoDB client, pointing at a local emulator when
// endpoint is non-empty.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(region),
	}
	if endpoint != "" {
		// Emulators accept any static credentials.
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to load AWS configuration")
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewDynamoStore creates a KeyedStore backed by the given table.
func NewDynamoStore(client *dynamodb.Client, tableName string, retry RetryConfig, logger *zap.Logger, metrics *observability.StoreMetrics) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		retry:     retry,
		logger:    logger,
		metrics:   metrics,
	}
}

// EnsureTable creates the pk/sk table when it does not exist yet. Used on
// startup against the local emulator; production tables are provisioned out
// of band.
func (s *DynamoStore) EnsureTable(ctx context.Context) error {
	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(attrSK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(attrSK), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var exists *types.ResourceInUseException
		if errors.As(err, &exists) {
			return nil
		}
		return appErrors.Wrap(err, "failed to create table")
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)}, defaultTableWaitTimeout); err != nil {
		return appErrors.Wrap(err, "table did not become active")
	}
	s.logger.Info("created table", zap.String("table", s.tableName))
	return nil
}

// Put overwrites any existing item at the exact key.
func (s *DynamoStore) Put(ctx context.Context, partition, sortKey string, item Item) error {
	record := make(map[string]interface{}, len(item)+2)
	for k, v := range item {
		record[k] = v
	}
	record[attrPK] = partition
	record[attrSK] = sortKey

	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal item")
	}

	return s.observe(ctx, "put", func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      av,
		})
		return err
	})
}

// Get returns the item at the exact key, or a NotFound error.
func (s *DynamoStore) Get(ctx context.Context, partition, sortKey string) (Item, error) {
	var out *dynamodb.GetItemOutput
	err := s.observe(ctx, "get", func() error {
		var err error
		out, err = s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.tableName),
			Key:       keyAttrs(partition, sortKey),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, appErrors.NewNotFound("item not found: " + partition + "/" + sortKey)
	}

	var item Item
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal item")
	}
	return item, nil
}

// Delete removes the item if present. Deleting a missing key succeeds.
func (s *DynamoStore) Delete(ctx context.Context, partition, sortKey string) error {
	return s.observe(ctx, "delete", func() error {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       keyAttrs(partition, sortKey),
		})
		return err
	})
}

// List queries one partition ascending by sort key.
func (s *DynamoStore) List(ctx context.Context, partition string, opts ListOptions) (*Page, error) {
	keyCond := expression.Key(attrPK).Equal(expression.Value(partition))
	if opts.Prefix != "" {
		keyCond = keyCond.And(expression.Key(attrSK).BeginsWith(opts.Prefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to build query expression")
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	}
	if opts.Limit > 0 {
		input.Limit = aws.Int32(opts.Limit)
	}
	if opts.Cursor != "" {
		start, err := decodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = keyAttrs(start.PK, start.SK)
	}

	var out *dynamodb.QueryOutput
	err = s.observe(ctx, "list", func() error {
		var err error
		out, err = s.client.Query(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &Page{Items: make([]Item, 0, len(out.Items))}
	for _, raw := range out.Items {
		var item Item
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, appErrors.Wrap(err, "failed to unmarshal item")
		}
		page.Items = append(page.Items, item)
	}

	if len(out.LastEvaluatedKey) > 0 {
		lastPK, okPK := out.LastEvaluatedKey[attrPK].(*types.AttributeValueMemberS)
		lastSK, okSK := out.LastEvaluatedKey[attrSK].(*types.AttributeValueMemberS)
		if !okPK || !okSK {
			return nil, appErrors.NewInternal("unexpected continuation key shape", nil)
		}
		page.Cursor = encodeCursor(lastPK.Value, lastSK.Value)
	}
	return page, nil
}

// observe wraps a store call with retries and metrics.
func (s *DynamoStore) observe(ctx context.Context, op string, call func() error) error {
	err := retryWithBackoff(ctx, s.retry, call)
	if s.metrics != nil {
		s.metrics.Observe(op, err)
	}
	if err != nil && appErrors.IsStorageUnavailable(err) {
		s.logger.Warn("store operation exhausted retries",
			zap.String("operation", op),
			zap.Error(err),
		)
	}
	return err
}

func keyAttrs(partition, sortKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: partition},
		attrSK: &types.AttributeValueMemberS{Value: sortKey},
	}
}

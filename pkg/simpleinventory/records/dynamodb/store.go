package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/simple-inventory/pkg/simpleinventory"
)

const backendName = "dynamodb"

// API is the subset of the DynamoDB client the store uses
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Config options for the DynamoDB record store
type Config struct {
	Table           string // Table name, partition key "id" (S)
	Region          string
	Endpoint        string // Optional custom endpoint, e.g. DynamoDB Local
	AccessKeyID     string
	SecretAccessKey string

	CreateTableIfNotExist bool
}

// record is the stored shape of an item
type record struct {
	ID          string    `dynamodbav:"id"`
	Name        string    `dynamodbav:"name"`
	Description string    `dynamodbav:"description"`
	PhotoRef    *string   `dynamodbav:"photo_ref,omitempty"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
}

// Store implements simpleinventory.RecordStore on a DynamoDB table
type Store struct {
	client API
	table  string
}

// Open builds a client from config and returns a store on its table
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.Table == "" {
		return nil, errors.New("table name is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
	})

	if config.CreateTableIfNotExist {
		if err := createTableIfNotExists(ctx, client, config.Table); err != nil {
			return nil, err
		}
	}
	return New(client, config.Table), nil
}

// New creates a store on an existing client
func New(client API, table string) *Store {
	return &Store{client: client, table: table}
}

func createTableIfNotExists(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table: %w", err)
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("failed to create table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, 2*time.Minute); err != nil {
		return fmt.Errorf("waiting for table: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, item *simpleinventory.Item) error {
	av, err := attributevalue.MarshalMap(toRecord(item))
	if err != nil {
		return s.storageError("insert", item.ID, fmt.Errorf("marshal item: %w", err))
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("%w: %s", simpleinventory.ErrDuplicateID, item.ID)
		}
		return s.storageError("insert", item.ID, err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*simpleinventory.Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.storageError("get", id, err)
	}
	if result.Item == nil {
		return nil, simpleinventory.ErrNotFound
	}
	return s.decode("get", id, result.Item)
}

// ListAll scans the table and returns items newest first by id
func (s *Store) ListAll(ctx context.Context) ([]*simpleinventory.Item, error) {
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
	})

	items := make([]*simpleinventory.Item, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.storageError("list", "", err)
		}
		for _, av := range page.Items {
			item, err := s.decode("list", "", av)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return items, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, patch simpleinventory.FieldPatch) (*simpleinventory.Item, error) {
	patch, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	names := map[string]string{"#updated_at": "updated_at"}
	values := map[string]types.AttributeValue{}
	sets := []string{"#updated_at = :updated_at"}

	if patch.Name != nil {
		names["#name"] = "name"
		values[":name"] = &types.AttributeValueMemberS{Value: *patch.Name}
		sets = append(sets, "#name = :name")
	}
	if patch.Description != nil {
		names["#description"] = "description"
		values[":description"] = &types.AttributeValueMemberS{Value: *patch.Description}
		sets = append(sets, "#description = :description")
	}
	updatedAt, err := attributevalue.Marshal(now())
	if err != nil {
		return nil, s.storageError("update_fields", id, err)
	}
	values[":updated_at"] = updatedAt

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key(id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, s.updateError("update_fields", id, err)
	}
	return s.decode("update_fields", id, result.Attributes)
}

// UpdatePhotoRef swaps the ref in one conditional update. ALL_OLD returns
// the replaced ref; the new item is derived from it.
func (s *Store) UpdatePhotoRef(ctx context.Context, id string, ref *string) (*simpleinventory.Item, *string, error) {
	updatedAt := now()
	updatedAtAV, err := attributevalue.Marshal(updatedAt)
	if err != nil {
		return nil, nil, s.storageError("update_photo_ref", id, err)
	}

	names := map[string]string{"#updated_at": "updated_at", "#photo_ref": "photo_ref"}
	values := map[string]types.AttributeValue{":updated_at": updatedAtAV}
	expr := "SET #updated_at = :updated_at REMOVE #photo_ref"
	if ref != nil {
		values[":photo_ref"] = &types.AttributeValueMemberS{Value: *ref}
		expr = "SET #updated_at = :updated_at, #photo_ref = :photo_ref"
	}

	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key(id),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, nil, s.updateError("update_photo_ref", id, err)
	}

	old, err := s.decode("update_photo_ref", id, result.Attributes)
	if err != nil {
		return nil, nil, err
	}
	previous := old.PhotoRef

	updated := old.Clone()
	updated.UpdatedAt = updatedAt
	updated.PhotoRef = nil
	if ref != nil {
		r := *ref
		updated.PhotoRef = &r
	}
	return updated, previous, nil
}

func (s *Store) Delete(ctx context.Context, id string) (*simpleinventory.Item, error) {
	result, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.table),
		Key:                 key(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ReturnValues:        types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, s.updateError("delete", id, err)
	}
	return s.decode("delete", id, result.Attributes)
}

func (s *Store) decode(op, id string, av map[string]types.AttributeValue) (*simpleinventory.Item, error) {
	var rec record
	if err := attributevalue.UnmarshalMap(av, &rec); err != nil {
		return nil, s.storageError(op, id, fmt.Errorf("unmarshal item: %w", err))
	}
	return rec.toItem(), nil
}

func (s *Store) updateError(op, id string, err error) error {
	if isConditionFailed(err) {
		return simpleinventory.ErrNotFound
	}
	return s.storageError(op, id, err)
}

func (s *Store) storageError(op, id string, err error) error {
	return &simpleinventory.StorageError{Backend: backendName, Key: id, Op: op, Err: err}
}

func isConditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func toRecord(item *simpleinventory.Item) record {
	return record{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
		PhotoRef:    item.PhotoRef,
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
}

func (r record) toItem() *simpleinventory.Item {
	return &simpleinventory.Item{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		PhotoRef:    r.PhotoRef,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

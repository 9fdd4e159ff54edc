package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memo-web/internal/domain"
	appErrors "memo-web/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const sessionSortKey = "SESSION"

// DynamoAPI is the subset of the DynamoDB client used for sessions.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ddbSession represents a session item in DynamoDB.
type ddbSession struct {
	PK      string         `dynamodbav:"PK"` // CLIENT#{clientId}
	SK      string         `dynamodbav:"SK"` // SESSION
	Session domain.Session `dynamodbav:"Session"`
	TTL     int64          `dynamodbav:"TTL"` // epoch seconds, table TTL attribute
}

// DynamoStorage keeps sessions in a DynamoDB table so that stateless
// deployments share them across invocations.
type DynamoStorage struct {
	dbClient  DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// NewDynamoStorage creates a DynamoDB backed session storage.
func NewDynamoStorage(client DynamoAPI, tableName string, ttl time.Duration) *DynamoStorage {
	return &DynamoStorage{
		dbClient:  client,
		tableName: tableName,
		ttl:       ttl,
		now:       time.Now,
	}
}

// NewDynamoClient loads the default AWS configuration for region. endpoint
// overrides the service URL, for DynamoDB Local.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func (s *DynamoStorage) key(clientID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "CLIENT#" + clientID},
		"SK": &types.AttributeValueMemberS{Value: sessionSortKey},
	}
}

// Load retrieves the session stored for clientID. Items past their TTL are
// treated as absent because table TTL deletion is not immediate.
func (s *DynamoStorage) Load(ctx context.Context, clientID string) (*domain.Session, error) {
	proj := expression.NamesList(expression.Name("Session"), expression.Name("TTL"))
	expr, err := expression.NewBuilder().WithProjection(proj).Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to build projection")
	}

	out, err := s.dbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.key(clientID),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     expr.Projection(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		return nil, mapDynamoError("GetItem", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item ddbSession
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, appErrors.Wrap(err, "failed to unmarshal session item")
	}
	if item.TTL > 0 && s.now().Unix() > item.TTL {
		return nil, nil
	}
	return &item.Session, nil
}

// Save writes session for clientID, replacing any previous one.
func (s *DynamoStorage) Save(ctx context.Context, clientID string, session *domain.Session) error {
	if clientID == "" || session == nil {
		return fmt.Errorf("invalid session entry")
	}

	item := ddbSession{
		PK:      "CLIENT#" + clientID,
		SK:      sessionSortKey,
		Session: *session,
	}
	if s.ttl > 0 {
		item.TTL = s.now().Add(s.ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return appErrors.Wrap(err, "failed to marshal session item")
	}

	_, err = s.dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return mapDynamoError("PutItem", err)
	}
	return nil
}

// Delete removes the session stored for clientID.
func (s *DynamoStorage) Delete(ctx context.Context, clientID string) error {
	_, err := s.dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(clientID),
	})
	if err != nil {
		return mapDynamoError("DeleteItem", err)
	}
	return nil
}

func mapDynamoError(operation string, err error) error {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return appErrors.NewUnexpected(fmt.Errorf("session %s: %w", operation, err))
	}

	switch ae.ErrorCode() {
	case "ResourceNotFoundException":
		return appErrors.NewRemote("Session table not found", err)
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return appErrors.NewRemote("Session store is busy, try again", err)
	default:
		return appErrors.NewUnexpected(fmt.Errorf("session %s: %s: %w", operation, ae.ErrorCode(), err))
	}
}

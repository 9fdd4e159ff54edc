package persistence

import (
	"context"
	"testing"
	"time"

	"memo-web/internal/domain"
	appErrors "memo-web/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() *domain.Session {
	return &domain.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		User:         domain.User{ID: "user-1", Email: "a@example.com"},
	}
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round trip a session", func(t *testing.T) {
		s := NewMemoryStorage(0)
		require.NoError(t, s.Save(ctx, "c1", testSession()))

		got, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "user-1", got.User.ID)

		missing, err := s.Load(ctx, "c2")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("Should drop entries past ttl", func(t *testing.T) {
		now := time.Now()
		s := NewMemoryStorage(time.Hour)
		s.now = func() time.Time { return now }
		require.NoError(t, s.Save(ctx, "c1", testSession()))
		require.NoError(t, s.Save(ctx, "c2", testSession()))

		now = now.Add(2 * time.Hour)
		got, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, 1, s.Sweep())
	})

	t.Run("Should delete", func(t *testing.T) {
		s := NewMemoryStorage(0)
		require.NoError(t, s.Save(ctx, "c1", testSession()))
		require.NoError(t, s.Delete(ctx, "c1"))

		got, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should reject empty client id", func(t *testing.T) {
		s := NewMemoryStorage(0)
		assert.Error(t, s.Save(ctx, "", testSession()))
	})
}

// fakeDynamo keeps items keyed by PK.
type fakeDynamo struct {
	items   map[string]map[string]types.AttributeValue
	err     error
	lastGet *dynamodb.GetItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func pk(key map[string]types.AttributeValue) string {
	return key["PK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastGet = in
	return &dynamodb.GetItemOutput{Item: f.items[pk(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items[pk(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, pk(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round trip a session", func(t *testing.T) {
		db := newFakeDynamo()
		s := NewDynamoStorage(db, "sessions", 24*time.Hour)

		require.NoError(t, s.Save(ctx, "c1", testSession()))
		assert.Contains(t, db.items, "CLIENT#c1")

		got, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "refresh", got.RefreshToken)
		assert.Equal(t, "a@example.com", got.User.Email)
		assert.True(t, testSession().ExpiresAt.Equal(got.ExpiresAt))
		require.NotNil(t, db.lastGet.ProjectionExpression)
		assert.Len(t, db.lastGet.ExpressionAttributeNames, 2)

		require.NoError(t, s.Delete(ctx, "c1"))
		got, err = s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should ignore items past their TTL", func(t *testing.T) {
		db := newFakeDynamo()
		now := time.Now()
		s := NewDynamoStorage(db, "sessions", time.Minute)
		s.now = func() time.Time { return now }
		require.NoError(t, s.Save(ctx, "c1", testSession()))

		now = now.Add(time.Hour)
		got, err := s.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should map missing table to a remote error", func(t *testing.T) {
		db := newFakeDynamo()
		db.err = &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no table"}
		s := NewDynamoStorage(db, "sessions", 0)

		_, err := s.Load(ctx, "c1")
		require.Error(t, err)
		assert.Equal(t, appErrors.KindRemote, appErrors.KindOf(err))
	})
}

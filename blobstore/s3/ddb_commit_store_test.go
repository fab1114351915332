package s3

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/crosscat/blobstore"
)

// MockDDBClient mocks the DDBClient interface.
type MockDDBClient struct {
	mock.Mock
}

func (m *MockDDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.PutItemOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*dynamodb.QueryOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func newCommitStore(ddb *MockDDBClient) *DDBCommitStore {
	return NewDDBCommitStore(blobstore.NewMemoryStore(), ddb, "crosscat-commits", "s3://bucket/views")
}

func TestDDBCommitStore_LatestEmpty(t *testing.T) {
	ddb := new(MockDDBClient)
	ddb.On("Query", mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{}, nil).Once()

	store := newCommitStore(ddb)
	_, err := store.Latest(context.Background())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestDDBCommitStore_CommitAndLatest(t *testing.T) {
	ddb := new(MockDDBClient)
	store := newCommitStore(ddb)

	// No prior commits; version 1 is written conditionally.
	ddb.On("Query", mock.Anything, mock.Anything).
		Return(&dynamodb.QueryOutput{}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.MatchedBy(func(input *dynamodb.PutItemInput) bool {
		version := input.Item["version"].(*types.AttributeValueMemberN)
		name := input.Item["snapshot_path"].(*types.AttributeValueMemberS)
		return version.Value == "1" && name.Value == "snap-001" &&
			*input.ConditionExpression == "attribute_not_exists(version)"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()

	version, err := store.Commit(context.Background(), "snap-001")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{{
			"version":       &types.AttributeValueMemberN{Value: "1"},
			"snapshot_path": &types.AttributeValueMemberS{Value: "snap-001"},
		}},
	}, nil).Once()

	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "snap-001", latest)
	ddb.AssertExpectations(t)
}

func TestDDBCommitStore_ConcurrentCommit(t *testing.T) {
	ddb := new(MockDDBClient)
	store := newCommitStore(ddb)

	ddb.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{{
			"version":       &types.AttributeValueMemberN{Value: "7"},
			"snapshot_path": &types.AttributeValueMemberS{Value: "snap-007"},
		}},
	}, nil).Once()
	ddb.On("PutItem", mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()

	_, err := store.Commit(context.Background(), "snap-008")
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestDDBCommitStore_BlobPassthrough(t *testing.T) {
	store := newCommitStore(new(MockDDBClient))
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "snap-001", []byte("payload")))
	data, err := store.Get(ctx, "snap-001")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

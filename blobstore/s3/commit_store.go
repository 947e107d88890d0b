package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nestward/nestward/blobstore"
)

// CurrentKey is the virtual key holding the latest committed manifest
// path. Reads and writes of this key go through DynamoDB instead of S3.
const CurrentKey = "CURRENT"

// ErrConcurrentModification is returned when two writers race to commit
// the same version.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// CommitStore wraps a blob store with atomic manifest commits backed by
// DynamoDB. This enables safe concurrent archivers: run objects are
// uploaded through the inner store, and the pointer naming the latest
// run manifest is advanced with a conditional write, which S3 alone
// cannot provide.
//
// Table schema:
//   - Partition key: base_uri (string) - the store's S3 prefix/path
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name nestward-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	inner     blobstore.Store
	ddbClient DDBClient
	tableName string
	baseURI   string // partition key, e.g. "s3://bucket/prefix"
}

// NewCommitStore creates a commit store over inner.
// The baseURI should be "s3://bucket/prefix" format used as partition key.
func NewCommitStore(inner blobstore.Store, ddbClient DDBClient, tableName, baseURI string) *CommitStore {
	return &CommitStore{
		inner:     inner,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

// Open opens a blob for reading. Opening CurrentKey reads the latest
// committed manifest path from DynamoDB.
func (s *CommitStore) Open(ctx context.Context, key string) (blobstore.Blob, error) {
	if key == CurrentKey {
		version, manifestPath, err := s.latestVersion(ctx)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			return nil, blobstore.ErrNotFound
		}
		return &pointerBlob{content: []byte(manifestPath)}, nil
	}
	return s.inner.Open(ctx, key)
}

// Put writes a blob. Writing CurrentKey commits the payload as the new
// manifest pointer using a DynamoDB conditional write; a losing racer
// gets ErrConcurrentModification.
func (s *CommitStore) Put(ctx context.Context, key string, r io.Reader) error {
	if key == CurrentKey {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		return s.commitVersion(ctx, string(data))
	}
	return s.inner.Put(ctx, key, r)
}

// Create delegates to the inner store. CurrentKey cannot be streamed.
func (s *CommitStore) Create(ctx context.Context, key string) (blobstore.WritableBlob, error) {
	if key == CurrentKey {
		return nil, fmt.Errorf("commit store: %s must be written with Put", CurrentKey)
	}
	return s.inner.Create(ctx, key)
}

// Delete removes a blob. Deleting CurrentKey rolls back the latest
// commit, exposing the previous manifest pointer again.
func (s *CommitStore) Delete(ctx context.Context, key string) error {
	if key == CurrentKey {
		return s.rollbackLatest(ctx)
	}
	return s.inner.Delete(ctx, key)
}

// List delegates to the inner store.
func (s *CommitStore) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return s.inner.List(ctx, prefix)
}

// Exists reports whether a blob exists. For CurrentKey this is whether
// any version has been committed.
func (s *CommitStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == CurrentKey {
		version, _, err := s.latestVersion(ctx)
		if err != nil {
			return false, err
		}
		return version > 0, nil
	}
	return s.inner.Exists(ctx, key)
}

// ManifestAt returns the manifest path committed at an exact version.
// Returns blobstore.ErrNotFound for versions never committed or rolled back.
func (s *CommitStore) ManifestAt(ctx context.Context, version uint64) (string, error) {
	resp, err := s.ddbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"version":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("get version %d: %w", version, err)
	}
	if resp.Item == nil {
		return "", blobstore.ErrNotFound
	}
	pathAttr, ok := resp.Item["manifest_path"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("invalid manifest_path attribute")
	}
	return pathAttr.Value, nil
}

// latestVersion queries DynamoDB for the highest committed version.
// Returns version 0 when nothing has been committed yet.
func (s *CommitStore) latestVersion(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false), // descending, newest first
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("query commit log: %w", err)
	}

	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("invalid version attribute")
	}
	pathAttr, ok := item["manifest_path"].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("invalid manifest_path attribute")
	}

	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return 0, "", fmt.Errorf("parse version: %w", err)
	}

	return version, pathAttr.Value, nil
}

// commitVersion atomically appends a new version. The conditional put
// fails if another writer claimed the version first.
func (s *CommitStore) commitVersion(ctx context.Context, manifestPath string) error {
	currentVersion, _, err := s.latestVersion(ctx)
	if err != nil {
		return err
	}

	newVersion := currentVersion + 1

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":      &types.AttributeValueMemberS{Value: s.baseURI},
			"version":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newVersion)},
			"manifest_path": &types.AttributeValueMemberS{Value: manifestPath},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("commit version %d: %w", newVersion, err)
	}

	return nil
}

// rollbackLatest removes the newest version record.
func (s *CommitStore) rollbackLatest(ctx context.Context) error {
	version, _, err := s.latestVersion(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		return nil
	}

	_, err = s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"version":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)},
		},
	})
	if err != nil {
		return fmt.Errorf("rollback version %d: %w", version, err)
	}
	return nil
}

// pointerBlob serves the CurrentKey content from memory.
type pointerBlob struct {
	content []byte
}

func (b *pointerBlob) Close() error {
	return nil
}

func (b *pointerBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *pointerBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *pointerBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= int64(len(b.content)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := off + length
	if end > int64(len(b.content)) {
		end = int64(len(b.content))
	}
	return io.NopCloser(bytes.NewReader(b.content[off:end])), nil
}

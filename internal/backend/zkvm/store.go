package zkvm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"

	"github.com/raster-lang/raster/internal/rasterrors"
)

// ImageStore persists guest images content-addressed by method id, so
// a CI fleet or a second machine can fetch an already-built image
// instead of re-driving the external toolchain.
type ImageStore struct {
	client *s3.Client
	bucket string
}

// NewImageStore constructs an ImageStore against the given bucket
// using cfg (typically loaded once via config.LoadDefaultConfig).
func NewImageStore(cfg aws.Config, bucket string) *ImageStore {
	return &ImageStore{client: s3.NewFromConfig(cfg), bucket: bucket}
}

// Put uploads an image under its method-id hex key. When Put returns
// nil, the object is fully persisted.
func (s *ImageStore) Put(ctx context.Context, methodIDHex string, image []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(methodIDHex)),
		Body:   bytes.NewReader(image),
	})
	if err != nil {
		slog.Warn("zkvm: image upload failed", "method_id", methodIDHex, "classification", classifyAWSError(err))
		return rasterrors.Wrap(rasterrors.BackendCompile, fmt.Sprintf("uploading image for method id %s", methodIDHex), err)
	}
	return nil
}

// Get fetches a previously stored image by method-id hex key. A
// missing key is reported as (nil, false, nil), not an error.
func (s *ImageStore) Get(ctx context.Context, methodIDHex string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(methodIDHex)),
	})
	if err != nil {
		var notFound *s3types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, rasterrors.Wrap(rasterrors.BackendCompile, fmt.Sprintf("fetching image for method id %s", methodIDHex), err)
	}
	defer out.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, false, rasterrors.Wrap(rasterrors.Io, "reading fetched image body", err)
	}
	return buf.Bytes(), true, nil
}

func objectKey(methodIDHex string) string {
	return "images/" + methodIDHex
}

// classifyAWSError distinguishes a transient service-side failure from
// a permanent one, for diagnostics only. This backend does not retry
// on its own: a build-time tool favors failing loudly over a silent
// retry loop against a possibly-misconfigured bucket or table.
func classifyAWSError(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ProvisionedThroughputExceededException", "RequestTimeout", "InternalError":
			return "transient: " + apiErr.ErrorCode()
		default:
			return "permanent: " + apiErr.ErrorCode()
		}
	}
	return "unknown"
}

// MethodIndex records a (tile id, backend) -> method id mapping in
// DynamoDB, letting verifier tooling look up which image a prior
// build produced without re-deriving it from a CFS run.
type MethodIndex struct {
	client *dynamodb.Client
	table  string
}

// NewMethodIndex constructs a MethodIndex against the given table.
func NewMethodIndex(cfg aws.Config, table string) *MethodIndex {
	return &MethodIndex{client: dynamodb.NewFromConfig(cfg), table: table}
}

// Record upserts one tile's method id for a given backend.
func (m *MethodIndex) Record(ctx context.Context, tileID, backendName, methodIDHex string) error {
	_, err := m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.table),
		Item: map[string]types.AttributeValue{
			"tile_id":   &types.AttributeValueMemberS{Value: tileID},
			"backend":   &types.AttributeValueMemberS{Value: backendName},
			"method_id": &types.AttributeValueMemberS{Value: methodIDHex},
		},
	})
	if err != nil {
		return rasterrors.Wrap(rasterrors.BackendCompile, fmt.Sprintf("recording method id for tile %s", tileID), err)
	}
	return nil
}

// Lookup returns the recorded method id for (tileID, backendName), if
// any.
func (m *MethodIndex) Lookup(ctx context.Context, tileID, backendName string) (string, bool, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(m.table),
		Key: map[string]types.AttributeValue{
			"tile_id": &types.AttributeValueMemberS{Value: tileID},
			"backend": &types.AttributeValueMemberS{Value: backendName},
		},
	})
	if err != nil {
		return "", false, rasterrors.Wrap(rasterrors.BackendCompile, fmt.Sprintf("looking up method id for tile %s", tileID), err)
	}
	if out.Item == nil {
		return "", false, nil
	}
	attr, ok := out.Item["method_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", false, rasterrors.New(rasterrors.BackendCompile, fmt.Sprintf("method index row for tile %s missing method_id", tileID))
	}
	return attr.Value, true, nil
}

// persistArtifact fans out the image upload and the method-id index
// write concurrently.
func persistArtifact(ctx context.Context, images *ImageStore, index *MethodIndex, tileID, backendName, methodIDHex string, image []byte) error {
	if images == nil && index == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	if images != nil {
		g.Go(func() error { return images.Put(gctx, methodIDHex, image) })
	}
	if index != nil {
		g.Go(func() error { return index.Record(gctx, tileID, backendName, methodIDHex) })
	}
	return g.Wait()
}

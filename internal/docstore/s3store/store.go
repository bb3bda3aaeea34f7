package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"taskapi/internal/docstore"
)

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store keeps each document as a JSON object at <prefix>/<collection>/<id>.json.
// The object ETag is the document version and writes are conditional on it.
// Ids are UUIDv7, so listing order follows creation order within a process.
type Store struct {
	client API
	bucket string
	prefix string
	now    func() time.Time
}

var _ docstore.Gateway = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(client API, bucket, prefix string, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	body, err := json.Marshal(docstore.Resolve(fields, s.now().UTC()))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	// v7 ids sort by creation time, which breaks createdAt ties in Query.
	uid, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	id := uid.String()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(collection, id)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", collection, id, classify(err))
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	doc, err := s.read(ctx, s.key(collection, id), id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	dir := s.key(q.Collection, "")
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	}

	var docs []docstore.Document
	for {
		output, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", q.Collection, classify(err))
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)
			id, ok := strings.CutSuffix(strings.TrimPrefix(key, dir), ".json")
			if !ok || id == "" || strings.Contains(id, "/") {
				continue
			}
			doc, err := s.read(ctx, key, id)
			if errors.Is(err, docstore.ErrNotFound) {
				// deleted between list and read
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", q.Collection, err)
			}
			docs = append(docs, *doc)
		}

		if !aws.ToBool(output.IsTruncated) || output.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = output.NextContinuationToken
	}

	return docstore.Apply(docs, q), nil
}

func (s *Store) Update(ctx context.Context, collection, id, version string, fields docstore.Fields) error {
	current, err := s.Get(ctx, collection, id)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if version != "" && version != current.Version {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrConflict)
	}

	body, err := json.Marshal(docstore.Merge(current.Fields, docstore.Resolve(fields, s.now().UTC())))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(collection, id)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfMatch:     aws.String(current.Version),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, classify(err))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id, version string) error {
	// S3 deletes are idempotent, so existence is checked explicitly.
	current, err := s.Get(ctx, collection, id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if version == "" {
		version = current.Version
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:  aws.String(s.bucket),
		Key:     aws.String(s.key(collection, id)),
		IfMatch: aws.String(version),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, classify(err))
	}
	return nil
}

func (s *Store) read(ctx context.Context, key, id string) (*docstore.Document, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classify(err)
	}
	defer output.Body.Close()

	raw, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	doc := docstore.Document{ID: id, Version: aws.ToString(output.ETag)}
	if err := json.Unmarshal(raw, &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode object %s: %w", key, err)
	}
	return &doc, nil
}

func (s *Store) key(collection, id string) string {
	key := collection + "/"
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	if id == "" {
		return key
	}
	return key + id + ".json"
}

// classify maps S3 API errors onto docstore sentinels.
func classify(err error) error {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", docstore.ErrNotFound, err)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return fmt.Errorf("%w: %v", docstore.ErrConflict, err)
		}
	}
	return err
}

package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	s3sdk "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type mockObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// MockClient is an in-memory stand-in for the S3 API, shared by the store
// tests and any consumer needing an offline S3 backend.
type MockClient struct {
	mu      sync.Mutex
	objects map[string]mockObject
}

// NewMockClient returns an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{objects: make(map[string]mockObject)}
}

// PutObject stores the object body.
func (m *MockClient) PutObject(_ context.Context, in *s3sdk.PutObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	obj := mockObject{data: data, metadata: in.Metadata, modified: time.Now().UTC()}
	if in.ContentType != nil {
		obj.contentType = *in.ContentType
	}
	m.mu.Lock()
	m.objects[*in.Key] = obj
	m.mu.Unlock()
	return &s3sdk.PutObjectOutput{}, nil
}

// GetObject returns the object body and metadata.
func (m *MockClient) GetObject(_ context.Context, in *s3sdk.GetObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.GetObjectOutput, error) {
	m.mu.Lock()
	obj, ok := m.objects[*in.Key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("NoSuchKey: %s", *in.Key)
	}
	return &s3sdk.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   optionalString(obj.contentType),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.modified),
	}, nil
}

// HeadObject returns object metadata.
func (m *MockClient) HeadObject(_ context.Context, in *s3sdk.HeadObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.HeadObjectOutput, error) {
	m.mu.Lock()
	obj, ok := m.objects[*in.Key]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("NotFound: %s", *in.Key)
	}
	return &s3sdk.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   optionalString(obj.contentType),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.modified),
	}, nil
}

// DeleteObject removes the object if present.
func (m *MockClient) DeleteObject(_ context.Context, in *s3sdk.DeleteObjectInput, _ ...func(*s3sdk.Options)) (*s3sdk.DeleteObjectOutput, error) {
	m.mu.Lock()
	delete(m.objects, *in.Key)
	m.mu.Unlock()
	return &s3sdk.DeleteObjectOutput{}, nil
}

// ListObjectsV2 lists keys under the prefix in one page.
func (m *MockClient) ListObjectsV2(_ context.Context, in *s3sdk.ListObjectsV2Input, _ ...func(*s3sdk.Options)) (*s3sdk.ListObjectsV2Output, error) {
	prefix := ""
	if in.Prefix != nil {
		prefix = *in.Prefix
	}
	m.mu.Lock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	contents := make([]types.Object, 0, len(keys))
	for _, k := range keys {
		obj := m.objects[k]
		contents = append(contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	m.mu.Unlock()
	return &s3sdk.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

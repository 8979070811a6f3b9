package cache

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config configures an S3 compatible object store.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	UseSSL          bool   `yaml:"useSSL"`
	Bucket          string `yaml:"bucket"`
	// Prefix is prepended to every object name.
	Prefix string `yaml:"prefix"`
}

// S3Store keeps one object per entry.
//
// Layout:
//
//	<prefix>/<namespace>/.namespace      namespace marker
//	<prefix>/<namespace>/<escaped key>   gob encoded entry
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
}

const namespaceMarker = ".namespace"

// NewS3Store connects to the object store. The bucket must exist.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient creates a store using an existing client.
func NewS3StoreWithClient(client *minio.Client, bucket, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) namespacePrefix(namespace string) string {
	return s.prefix + url.PathEscape(namespace) + "/"
}

func (s *S3Store) objectName(namespace, key string) string {
	return s.namespacePrefix(namespace) + url.QueryEscape(key)
}

func (s *S3Store) Open(ctx context.Context, namespace string) error {
	_, err := s.client.PutObject(ctx, s.bucket,
		s.namespacePrefix(namespace)+namespaceMarker,
		bytes.NewReader(nil), 0,
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	return err
}

func (s *S3Store) Get(ctx context.Context, namespace, key string) (Entry, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(namespace, key), minio.GetObjectOptions{})
	if err != nil {
		return Entry{}, translateS3Error(err)
	}
	defer obj.Close()
	b, err := io.ReadAll(obj)
	if err != nil {
		return Entry{}, translateS3Error(err)
	}
	return decodeEntry(b)
}

func (s *S3Store) Put(ctx context.Context, namespace string, entry Entry) error {
	b, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := s.Open(ctx, namespace); err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket,
		s.objectName(namespace, entry.URL),
		bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"},
	)
	return err
}

func (s *S3Store) Delete(ctx context.Context, namespace, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectName(namespace, key), minio.RemoveObjectOptions{})
	if err := translateS3Error(err); err != nil && err != ErrNotFound {
		return err
	}
	return nil
}

func (s *S3Store) Namespaces(ctx context.Context) ([]string, error) {
	out := make([]string, 0)
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: false,
	}) {
		if object.Err != nil {
			return nil, translateS3Error(object.Err)
		}
		// only common prefixes are namespaces
		if !strings.HasSuffix(object.Key, "/") {
			continue
		}
		name, err := url.PathUnescape(path.Base(object.Key))
		if err != nil {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *S3Store) Keys(ctx context.Context, namespace string) ([]string, error) {
	prefix := s.namespacePrefix(namespace)
	out := make([]string, 0)
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, translateS3Error(object.Err)
		}
		name := strings.TrimPrefix(object.Key, prefix)
		if name == namespaceMarker {
			continue
		}
		key, err := url.QueryUnescape(name)
		if err != nil {
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

func (s *S3Store) DeleteNamespace(ctx context.Context, namespace string) error {
	objectsCh := make(chan minio.ObjectInfo, 100)
	listed := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.namespacePrefix(namespace),
		Recursive: true,
	})

	listDone := make(chan error, 1)
	go func() {
		defer close(objectsCh)
		listDone <- forwardObjects(ctx, listed, objectsCh)
	}()

	errorCh := s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{})
	var firstErr error
	for rErr := range errorCh {
		if rErr.Err != nil && firstErr == nil {
			firstErr = rErr.Err
		}
	}
	if listErr := <-listDone; listErr != nil {
		return translateS3Error(listErr)
	}
	return translateS3Error(firstErr)
}

// forwardObjects copies listed objects to out until the listing ends, fails or ctx is done.
func forwardObjects(ctx context.Context, in <-chan minio.ObjectInfo, out chan<- minio.ObjectInfo) error {
	for object := range in {
		if object.Err != nil {
			return object.Err
		}
		select {
		case out <- object:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *S3Store) Close() error {
	return nil
}

func translateS3Error(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey":
		return ErrNotFound
	}
	return err
}

package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vibration-monitor/internal/cache"
)

// maxReferenceBytes ограничение размера файла эталона
const maxReferenceBytes = 64 << 20

// ErrNotFound эталон отсутствует в источнике
var ErrNotFound = os.ErrNotExist

// Source откуда читаются байты эталона
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// S3Options параметры доступа к S3-совместимому хранилищу
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// OpenSource выбирает источник по адресу:
// путь или file://, s3://bucket/key, redis://host:port/db?key=name
func OpenSource(ctx context.Context, location string, s3 S3Options) (Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, fmt.Errorf("reference location is empty")
	}

	scheme, _, found := strings.Cut(location, "://")
	if !found {
		return &FileSource{Path: location}, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid reference location %q: %w", location, err)
	}

	switch strings.ToLower(scheme) {
	case "file":
		return &FileSource{Path: u.Host + u.Path}, nil
	case "s3":
		return newS3Source(u, s3)
	case "redis", "rediss":
		return newRedisSource(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported reference location scheme %q", scheme)
	}
}

// FileSource эталон в локальном файле
type FileSource struct {
	Path string
}

// Fetch читает файл целиком
func (s *FileSource) Fetch(context.Context) ([]byte, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f)
}

func (s *FileSource) String() string {
	return s.Path
}

// S3Source эталон в объекте S3/MinIO
type S3Source struct {
	client *minio.Client
	bucket string
	key    string
}

// NewS3Source создает источник поверх готового клиента
func NewS3Source(client *minio.Client, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

func newS3Source(u *url.URL, opts S3Options) (*S3Source, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 location must be s3://bucket/key, got %q", u.String())
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "s3.amazonaws.com"
	}
	creds := credentials.NewEnvAWS()
	if opts.AccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client for %s: %w", endpoint, err)
	}

	return NewS3Source(client, bucket, key), nil
}

// Fetch скачивает объект
func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapErr(err)
	}
	defer obj.Close()

	data, err := readLimited(obj)
	if err != nil {
		return nil, s.mapErr(err)
	}
	return data, nil
}

func (s *S3Source) mapErr(err error) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" || errResp.Code == "NoSuchBucket" {
		return fmt.Errorf("%w: %s", ErrNotFound, s)
	}
	return err
}

func (s *S3Source) String() string {
	return "s3://" + s.bucket + "/" + s.key
}

// RedisSource эталон под ключом Redis
type RedisSource struct {
	cache *cache.RedisCache
	key   string
	addr  string
}

// NewRedisSource создает источник поверх готового клиента
func NewRedisSource(c *cache.RedisCache, key string) *RedisSource {
	return &RedisSource{cache: c, key: key}
}

func newRedisSource(ctx context.Context, u *url.URL) (*RedisSource, error) {
	key, rest, err := splitRedisKey(u)
	if err != nil {
		return nil, err
	}

	c, err := cache.NewRedisCacheFromURL(ctx, rest)
	if err != nil {
		return nil, err
	}

	src := NewRedisSource(c, key)
	src.addr = u.Host
	return src, nil
}

// splitRedisKey вынимает параметр key, остальной адрес понимает go-redis
func splitRedisKey(u *url.URL) (string, string, error) {
	q := u.Query()
	key := q.Get("key")
	if key == "" {
		return "", "", fmt.Errorf("redis location needs a ?key= parameter")
	}
	q.Del("key")

	rest := *u
	rest.RawQuery = q.Encode()
	return key, rest.String(), nil
}

// Fetch читает значение ключа
func (s *RedisSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.cache.GetBlob(ctx, s.key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s)
	}
	return data, err
}

// Cache клиент Redis, через который читается эталон
func (s *RedisSource) Cache() *cache.RedisCache {
	return s.cache
}

// Close закрывает соединение с Redis
func (s *RedisSource) Close() error {
	return s.cache.Close()
}

func (s *RedisSource) String() string {
	return "redis://" + s.addr + "?key=" + s.key
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxReferenceBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxReferenceBytes {
		return nil, fmt.Errorf("reference exceeds %d bytes", maxReferenceBytes)
	}
	return data, nil
}

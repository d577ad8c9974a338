package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var ErrObjectNotFound = errors.New("object not found")

const metadataDir = ".metadata"

// StorageService is a bucket/key object store on the local filesystem.
// User metadata is kept in a JSON sidecar per object.
type StorageService interface {
	EnsureBucket(bucket string) error
	SaveFile(file *multipart.FileHeader, bucket string, metadata map[string]string) (string, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, metadata map[string]string) (int64, error)
	GetFilePath(bucket, key string) (string, error)
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
	ObjectMetadata(ctx context.Context, bucket, key string) (map[string]string, error)
	ListObjects(ctx context.Context, bucket string) ([]string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ObjectURL(bucket, key string) string
	ObjectFromURL(uri string) (bucket, key string, ok bool)
}

type storageService struct {
	root    string
	baseURL string
}

// NewStorageService stores objects under root. baseURL is the externally
// reachable address of the server that serves /api/v1/objects.
func NewStorageService(root, baseURL string) StorageService {
	return &storageService{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *storageService) EnsureBucket(bucket string) error {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return nil
}

// SaveFile stores an uploaded multipart file under a generated key that
// keeps the original extension.
func (s *storageService) SaveFile(file *multipart.FileHeader, bucket string, metadata map[string]string) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	key := fmt.Sprintf("%s%s", uuid.New().String(), ext)

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	if _, err := s.PutObject(context.Background(), bucket, key, src, metadata); err != nil {
		return "", err
	}
	return key, nil
}

func (s *storageService) PutObject(_ context.Context, bucket, key string, r io.Reader, metadata map[string]string) (int64, error) {
	path, err := s.GetFilePath(bucket, key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create object directory: %w", err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create object file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write object: %w", err)
	}

	if len(metadata) > 0 {
		if err := s.writeMetadata(bucket, key, metadata); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// GetFilePath resolves bucket/key to a path, rejecting keys that escape
// the bucket directory.
func (s *storageService) GetFilePath(bucket, key string) (string, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", err
	}

	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	if strings.HasPrefix(strings.TrimPrefix(clean, string(filepath.Separator)), metadataDir) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(dir, clean), nil
}

func (s *storageService) ReadObject(_ context.Context, bucket, key string) ([]byte, error) {
	path, err := s.GetFilePath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// ObjectMetadata returns the object's user metadata with lowercased keys.
// An object without metadata yields an empty map.
func (s *storageService) ObjectMetadata(_ context.Context, bucket, key string) (map[string]string, error) {
	path, err := s.GetFilePath(bucket, key)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	metaPath, err := s.metadataPath(bucket, key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(metaPath)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object metadata: %w", err)
	}

	var md map[string]string
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("failed to decode object metadata: %w", err)
	}
	return md, nil
}

func (s *storageService) ListObjects(_ context.Context, bucket string) ([]string, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == metadataDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list bucket %s: %w", bucket, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *storageService) DeleteObject(_ context.Context, bucket, key string) error {
	path, err := s.GetFilePath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	if metaPath, err := s.metadataPath(bucket, key); err == nil {
		_ = os.Remove(metaPath)
	}
	return nil
}

func (s *storageService) ObjectURL(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/api/v1/objects/%s/%s", s.baseURL, url.PathEscape(bucket), strings.Join(segments, "/"))
}

// ObjectFromURL is the inverse of ObjectURL. It reports false for any
// address this store did not produce.
func (s *storageService) ObjectFromURL(uri string) (string, string, bool) {
	rest, ok := strings.CutPrefix(uri, s.baseURL+"/api/v1/objects/")
	if !ok {
		return "", "", false
	}
	rawBucket, rawKey, ok := strings.Cut(rest, "/")
	if !ok || rawKey == "" {
		return "", "", false
	}
	bucket, err := url.PathUnescape(rawBucket)
	if err != nil {
		return "", "", false
	}
	key, err := url.PathUnescape(rawKey)
	if err != nil {
		return "", "", false
	}
	return bucket, key, true
}

func (s *storageService) bucketDir(bucket string) (string, error) {
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	return filepath.Join(s.root, bucket), nil
}

func (s *storageService) metadataPath(bucket, key string) (string, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	return filepath.Join(dir, metadataDir, clean+".json"), nil
}

func (s *storageService) writeMetadata(bucket, key string, metadata map[string]string) error {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[strings.ToLower(k)] = v
	}

	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to encode object metadata: %w", err)
	}

	path, err := s.metadataPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write object metadata: %w", err)
	}
	return nil
}

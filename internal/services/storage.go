package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/documentpipeline/internal/models"
)

// ErrObjectNotFound is returned by Read when the requested object does not
// exist in the given container.
var ErrObjectNotFound = errors.New("storage object not found")

// ObjectStore adapts Cloud Storage as the pipeline's read and persistence
// services. Writes target a single configured output bucket; reads address
// any container named by a document reference.
type ObjectStore struct {
	client       *storage.Client
	outputBucket string
}

// NewObjectStore creates the storage adapter.
func NewObjectStore(ctx context.Context, outputBucket string) (*ObjectStore, error) {
	if outputBucket == "" {
		return nil, fmt.Errorf("outputBucket must be provided to create an object store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &ObjectStore{client: client, outputBucket: outputBucket}, nil
}

// Close releases the underlying storage client.
func (s *ObjectStore) Close() error {
	return s.client.Close()
}

// Read downloads the full content of one object.
func (s *ObjectStore) Read(ctx context.Context, container, objectPath string) ([]byte, error) {
	r, err := s.client.Bucket(container).Object(objectPath).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", container, objectPath, ErrObjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s/%s: %w", container, objectPath, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", container, objectPath, err)
	}
	return data, nil
}

// Write stores the structured result at objectPath in the output bucket.
// The write carries a DoesNotExist precondition so that a retried
// persistence stage cannot clobber an output that already landed: an
// already-exists response counts as success, keeping the stage's meaningful
// side effect at-most-once.
func (s *ObjectStore) Write(ctx context.Context, objectPath string, data []byte) (models.PersistenceReceipt, error) {
	receipt := models.PersistenceReceipt{Bucket: s.outputBucket, OutputObject: objectPath}

	writer := s.client.Bucket(s.outputBucket).Object(objectPath).
		If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if alreadyExists(err) {
			slog.Info("Output object already exists; skipping write.", "object", objectPath)
			return receipt, nil
		}
		return models.PersistenceReceipt{}, fmt.Errorf("failed to write %s: %w", objectPath, err)
	}
	if err := writer.Close(); err != nil {
		if alreadyExists(err) {
			slog.Info("Output object already exists; skipping write.", "object", objectPath)
			return receipt, nil
		}
		return models.PersistenceReceipt{}, fmt.Errorf("failed to finalize write of %s: %w", objectPath, err)
	}
	return receipt, nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}

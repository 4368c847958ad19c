// Package archive keeps the raw spreadsheet uploads in object storage so an
// import or snapshot can be traced back to the file that produced it.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive stores upload payloads in a MinIO bucket, keyed by the batch or
// snapshot id the engine assigned. A nil *Archive is valid and drops writes.
type Archive struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and ensures the bucket exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to minio: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Archive{client: client, bucket: bucket}, nil
}

// StoreImport archives an import upload under imports/<batchID>.
func (a *Archive) StoreImport(ctx context.Context, batchID, fileName string, payload []byte) {
	a.store(ctx, "imports/"+batchID, fileName, payload)
}

// StoreSnapshot archives a snapshot upload under snapshots/<snapshotID>.
func (a *Archive) StoreSnapshot(ctx context.Context, snapshotID, fileName string, payload []byte) {
	a.store(ctx, "snapshots/"+snapshotID, fileName, payload)
}

// store is best effort: the rows are already committed, the raw file is for
// audit only.
func (a *Archive) store(ctx context.Context, objectName, fileName string, payload []byte) {
	if a == nil || len(payload) == 0 {
		return
	}
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "text/csv",
		UserMetadata: map[string]string{
			"original-filename": fileName,
		},
	})
	if err != nil {
		log.Printf("archive: store %s: %v", objectName, err)
	}
}

// Fetch retrieves an archived upload.
func (a *Archive) Fetch(ctx context.Context, objectName string) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("archive not configured")
	}
	obj, err := a.client.GetObject(ctx, a.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", objectName, err)
	}
	defer obj.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("read %s: %w", objectName, err)
	}
	return buf.Bytes(), nil
}

package storage

import (
	"bytes"
	"fmt"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"taletoprint-backend/internal/printfile"
)

// AssetStore persists print-ready buffers durably and hands back signed,
// time-limited URLs the print partner can pull from.
type AssetStore struct {
	client    *storage.Client
	bucket    string
	baseURL   string
	signedTTL int // seconds
}

func NewAssetStore(supabaseURL, serviceKey, bucket string, signedTTLSeconds int) (*AssetStore, error) {
	baseURL := strings.TrimSuffix(supabaseURL, "/")
	client := storage.NewClient(baseURL+"/storage/v1", serviceKey, nil)

	return &AssetStore{
		client:    client,
		bucket:    bucket,
		baseURL:   baseURL,
		signedTTL: signedTTLSeconds,
	}, nil
}

// UploadPrintFile stores the buffer under orders/{order_id}/{filename} and
// returns the storage key plus a signed URL. Upsert keeps regenerate and
// retry from tripping over the previous attempt's object.
func (s *AssetStore) UploadPrintFile(orderID string, file *printfile.PrintFile) (string, string, error) {
	storagePath := fmt.Sprintf("orders/%s/%s", orderID, file.Filename)

	contentType := "image/jpeg"
	upsert := true
	_, err := s.client.UploadFile(s.bucket, storagePath, bytes.NewReader(file.Data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload print file: %w", err)
	}

	signed, err := s.client.CreateSignedUrl(s.bucket, storagePath, s.signedTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign asset url: %w", err)
	}

	return storagePath, signed.SignedURL, nil
}

// SignURL re-signs an existing storage key, used when a stored signed URL
// has expired before the partner submission happened.
func (s *AssetStore) SignURL(storagePath string) (string, error) {
	signed, err := s.client.CreateSignedUrl(s.bucket, storagePath, s.signedTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign asset url: %w", err)
	}
	return signed.SignedURL, nil
}

func (s *AssetStore) DeleteFile(storagePath string) error {
	_, err := s.client.RemoveFile(s.bucket, []string{storagePath})
	return err
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// CloudinaryStore uploads blobs to a Cloudinary folder.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryStore creates a CloudinaryStore.
func NewCloudinaryStore(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: folder}, nil
}

// Backend returns "cloudinary".
func (s *CloudinaryStore) Backend() string { return BackendCloudinary }

// Save uploads r and returns its secure URL.
func (s *CloudinaryStore) Save(ctx context.Context, originalName string, r io.Reader) (Object, error) {
	publicID := uuid.NewString()
	res, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "auto",
	})
	if err != nil {
		return Object{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return Object{}, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return Object{
		Backend:    BackendCloudinary,
		StoredName: publicID + strings.ToLower(filepath.Ext(originalName)),
		Location:   res.ResourceType + "/" + res.PublicID,
		URL:        res.SecureURL,
	}, nil
}

// Delete destroys the asset at location ("<resource type>/<public id>").
func (s *CloudinaryStore) Delete(ctx context.Context, location string) error {
	resourceType, publicID, ok := strings.Cut(location, "/")
	if !ok {
		return errors.New("malformed cloudinary location")
	}
	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: resourceType,
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	return nil
}

package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/models"
	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/storage/blob"
)

// maxImageBytes bounds a single downloaded image.
const maxImageBytes = 32 << 20

// ObjectKey is the storage key for the n-th image of a generation.
func ObjectKey(orgType string, id uuid.UUID, n int, ext string) string {
	return fmt.Sprintf("generations/%s/%s/%d.%s", orgType, id, n, ext)
}

// persist copies each image into the blob store and returns the keys it
// wrote. With a disclaimer configured the stamped copy replaces what the
// provider returned. Failures are logged; the images stay as they were.
func (s *Service) persist(ctx context.Context, orgType string, id uuid.UUID, images []models.ImageData) []string {
	if s.store == nil && s.disclaimer == nil {
		return nil
	}
	keys := make([]string, 0, len(images))
	for i := range images {
		img := &images[i]
		data, contentType, err := s.imageBytes(ctx, *img)
		if err != nil {
			s.logger.Warn("image persistence skipped", zap.String("id", id.String()), zap.Int("index", i), zap.Error(err))
			continue
		}
		stamped := false
		if s.disclaimer != nil {
			if out, ct, err := s.disclaimer.Stamp(data); err != nil {
				s.logger.Warn("disclaimer not applied", zap.String("id", id.String()), zap.Int("index", i), zap.Error(err))
			} else {
				data, contentType, stamped = out, ct, true
			}
		}
		if s.store == nil {
			if stamped {
				replaceInline(img, data, contentType)
			}
			continue
		}

		key := ObjectKey(orgType, id, i, extension(contentType))
		info, err := s.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"org_type": orgType, "generation_id": id.String()},
		})
		if err != nil {
			s.logger.Warn("image persistence failed", zap.String("key", key), zap.Error(err))
			if stamped {
				replaceInline(img, data, contentType)
			}
			continue
		}
		img.StorageKey = key
		switch {
		case stamped && info.URL != "":
			img.URL, img.B64JSON, img.ContentType = info.URL, "", contentType
		case stamped:
			replaceInline(img, data, contentType)
		case info.URL != "" && img.URL == "":
			img.URL = info.URL
		}
		keys = append(keys, key)
	}
	return keys
}

func replaceInline(img *models.ImageData, data []byte, contentType string) {
	img.URL = ""
	img.B64JSON = base64.StdEncoding.EncodeToString(data)
	img.ContentType = contentType
}

func (s *Service) imageBytes(ctx context.Context, img models.ImageData) ([]byte, string, error) {
	if img.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, "", fmt.Errorf("decode b64_json: %w", err)
		}
		return data, contentTypeOf(img.ContentType, data), nil
	}
	if img.URL == "" {
		return nil, "", fmt.Errorf("image has neither url nor data")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := s.fetcher.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: status %d", img.URL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	ct := img.ContentType
	if ct == "" {
		ct = resp.Header.Get("Content-Type")
	}
	return data, contentTypeOf(ct, data), nil
}

func contentTypeOf(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	return http.DetectContentType(data)
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/png":
		return "png"
	default:
		return "bin"
	}
}

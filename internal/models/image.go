package models

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"
)

// ErrImageOperationUnsupported indicates that the provider cannot serve the
// requested image workflow.
var ErrImageOperationUnsupported = errors.New("image operation unsupported")

// ImageInput stores an uploaded image in memory so it can be re-read for
// moderation, the provider call and persistence.
type ImageInput struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Reader returns a fresh ReadCloser for the stored image bytes.
func (in ImageInput) Reader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(in.Data))
}

// Size exposes the number of bytes in the image payload.
func (in ImageInput) Size() int64 {
	return int64(len(in.Data))
}

// DataURL encodes the image as a data: URI.
func (in ImageInput) DataURL() string {
	ct := in.ContentType
	if ct == "" {
		ct = http.DetectContentType(in.Data)
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(in.Data)
}

// ImageRequest is a text-to-image call.
type ImageRequest struct {
	OrgType        string
	Model          string
	Prompt         string
	NegativePrompt string
	Size           string
	OutputFormat   string
	N              int
	Steps          int
	GuidanceScale  float64
	Seed           *int64
	// DisableSafetyChecker turns off the provider-side NSFW filter where
	// the provider has one.
	DisableSafetyChecker bool
	User                 string
}

// ImageEditRequest is an image-to-image call. Providers use ImageURLs when
// present and fall back to Images.
type ImageEditRequest struct {
	OrgType              string
	Model                string
	Prompt               string
	NegativePrompt       string
	ImageURLs            []string
	Images               []ImageInput
	Size                 string
	OutputFormat         string
	N                    int
	Steps                int
	GuidanceScale        float64
	Seed                 *int64
	DisableSafetyChecker bool
	User                 string
}

// SourceURLs returns ImageURLs, or Images encoded as data URLs.
func (r ImageEditRequest) SourceURLs() []string {
	if len(r.ImageURLs) > 0 {
		return r.ImageURLs
	}
	out := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		out = append(out, img.DataURL())
	}
	return out
}

// ImageData represents a single generated image.
type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	// StorageKey is set once the image has been persisted.
	StorageKey string `json:"storage_key,omitempty"`
}

// ImageResponse wraps generated images along with provider metadata.
type ImageResponse struct {
	Created  time.Time
	Provider string
	Model    string
	Seed     *int64
	Data     []ImageData
	// NSFWFlags mirrors the provider safety checker, one entry per image.
	NSFWFlags []bool
}

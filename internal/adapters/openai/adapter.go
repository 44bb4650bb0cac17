package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/models"
)

// DefaultModel is used when a request does not name an OpenAI image model.
const DefaultModel = "gpt-image-1"

// Options configure the OpenAI image adapter.
type Options struct {
	APIKey       string
	BaseURL      string
	Organization string
	Timeout      time.Duration
	Extra        []option.RequestOption
}

// Adapter serves image generation and edits through the official SDK.
type Adapter struct {
	client *openai.Client
}

func New(opts Options) (*Adapter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai: api key required")
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if strings.TrimSpace(opts.BaseURL) != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}
	if strings.TrimSpace(opts.Organization) != "" {
		requestOpts = append(requestOpts, option.WithOrganization(strings.TrimSpace(opts.Organization)))
	}
	if opts.Timeout > 0 {
		requestOpts = append(requestOpts, option.WithRequestTimeout(opts.Timeout))
	}
	requestOpts = append(requestOpts, opts.Extra...)

	client := openai.NewClient(requestOpts...)
	return &Adapter{client: &client}, nil
}

// Generate produces images with the Images API.
func (a *Adapter) Generate(ctx context.Context, req models.ImageRequest) (models.ImageResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return models.ImageResponse{}, errors.New("openai: prompt required")
	}
	model := modelOrDefault(req.Model)
	params := openai.ImageGenerateParams{
		Model:  openai.ImageModel(model),
		Prompt: withNegative(prompt, req.NegativePrompt),
	}
	if req.N > 0 {
		params.N = param.NewOpt(int64(req.N))
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	if req.OutputFormat != "" {
		params.OutputFormat = openai.ImageGenerateParamsOutputFormat(req.OutputFormat)
	}
	if req.User != "" {
		params.User = param.NewOpt(req.User)
	}
	resp, err := a.client.Images.Generate(ctx, params)
	if err != nil {
		return models.ImageResponse{}, err
	}
	return convertImageResponse(model, req.OutputFormat, *resp), nil
}

// Edit performs an image edit via the Images API. Only uploaded images are
// supported; URL sources return models.ErrImageOperationUnsupported.
func (a *Adapter) Edit(ctx context.Context, req models.ImageEditRequest) (models.ImageResponse, error) {
	if len(req.Images) == 0 {
		if len(req.ImageURLs) > 0 {
			return models.ImageResponse{}, fmt.Errorf("openai: edits from image urls: %w", models.ErrImageOperationUnsupported)
		}
		return models.ImageResponse{}, errors.New("openai: at least one image is required for edits")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return models.ImageResponse{}, errors.New("openai: prompt required for image edits")
	}
	model := modelOrDefault(req.Model)
	params := openai.ImageEditParams{
		Model:  openai.ImageModel(model),
		Prompt: withNegative(prompt, req.NegativePrompt),
	}
	if req.N > 0 {
		params.N = param.NewOpt(int64(req.N))
	}
	if req.Size != "" {
		params.Size = openai.ImageEditParamsSize(req.Size)
	}
	if req.OutputFormat != "" {
		params.OutputFormat = openai.ImageEditParamsOutputFormat(req.OutputFormat)
	}
	if req.User != "" {
		params.User = param.NewOpt(req.User)
	}
	readers := make([]io.ReadCloser, 0, len(req.Images))
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()
	if len(req.Images) == 1 {
		reader := req.Images[0].Reader()
		readers = append(readers, reader)
		params.Image.OfFile = reader
	} else {
		params.Image.OfFileArray = make([]io.Reader, 0, len(req.Images))
		for _, img := range req.Images {
			reader := img.Reader()
			readers = append(readers, reader)
			params.Image.OfFileArray = append(params.Image.OfFileArray, reader)
		}
	}
	resp, err := a.client.Images.Edit(ctx, params)
	if err != nil {
		return models.ImageResponse{}, err
	}
	return convertImageResponse(model, req.OutputFormat, *resp), nil
}

// HealthCheck uses the Models API as a lightweight readiness probe.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	_, err := a.client.Models.List(ctx)
	return err
}

func modelOrDefault(model string) string {
	model = strings.TrimPrefix(strings.TrimSpace(model), "openai/")
	if model == "" {
		return DefaultModel
	}
	return model
}

// The Images API has no negative prompt field, so avoidances ride in the prompt.
func withNegative(prompt, negative string) string {
	negative = strings.TrimSpace(negative)
	if negative == "" {
		return prompt
	}
	return prompt + "\n\nAvoid: " + negative
}

func convertImageResponse(model, format string, resp openai.ImagesResponse) models.ImageResponse {
	contentType := ""
	if resp.OutputFormat != "" {
		format = string(resp.OutputFormat)
	}
	if format != "" {
		contentType = "image/" + strings.ToLower(format)
	}
	data := make([]models.ImageData, 0, len(resp.Data))
	for _, item := range resp.Data {
		data = append(data, models.ImageData{
			B64JSON:       item.B64JSON,
			URL:           item.URL,
			RevisedPrompt: item.RevisedPrompt,
			ContentType:   contentType,
		})
	}
	return models.ImageResponse{
		Created:  time.Unix(resp.Created, 0).UTC(),
		Provider: "openai",
		Model:    model,
		Data:     data,
	}
}

package providers

import (
	"context"

	"github.com/Tectonica-Campaigns-Solutions/nextjs-ai-image-studio-sub003/internal/models"
)

// ImageGenerator is implemented by every image backend.
type ImageGenerator interface {
	Generate(ctx context.Context, req models.ImageRequest) (models.ImageResponse, error)
	Edit(ctx context.Context, req models.ImageEditRequest) (models.ImageResponse, error)
}

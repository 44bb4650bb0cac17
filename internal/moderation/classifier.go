package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// ClientOptions configure the OpenAI-backed classifiers.
type ClientOptions struct {
	APIKey       string
	BaseURL      string
	Organization string
	Model        string
	Timeout      time.Duration
	Extra        []option.RequestOption
}

func newOpenAIClient(opts ClientOptions) (*openai.Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("moderation: openai api key required")
	}
	requestOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(1)}
	if strings.TrimSpace(opts.BaseURL) != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")))
	}
	if strings.TrimSpace(opts.Organization) != "" {
		requestOpts = append(requestOpts, option.WithOrganization(strings.TrimSpace(opts.Organization)))
	}
	if opts.Timeout > 0 {
		requestOpts = append(requestOpts, option.WithRequestTimeout(opts.Timeout))
	}
	requestOpts = append(requestOpts, opts.Extra...)
	client := openai.NewClient(requestOpts...)
	return &client, nil
}

// OpenAIClassifier runs prompts through the OpenAI moderation endpoint.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

func NewOpenAIClassifier(opts ClientOptions) (*OpenAIClassifier, error) {
	client, err := newOpenAIClient(opts)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "omni-moderation-latest"
	}
	return &OpenAIClassifier{client: client, model: model}, nil
}

func (c *OpenAIClassifier) ClassifyText(ctx context.Context, text string) (Classification, error) {
	resp, err := c.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: param.NewOpt(text)},
		Model: openai.ModerationModel(c.model),
	})
	if err != nil {
		return Classification{}, err
	}
	var out Classification
	for _, result := range resp.Results {
		if !result.Flagged {
			continue
		}
		out.Flagged = true
		out.Labels = append(out.Labels, moderationLabels(result.Categories)...)
	}
	if out.Flagged {
		out.Category = worstCategory(out.Labels)
	}
	return out, nil
}

func moderationLabels(c openai.ModerationCategories) []string {
	var labels []string
	add := func(flag bool, label string) {
		if flag {
			labels = append(labels, label)
		}
	}
	add(c.SexualMinors, "sexual/minors")
	add(c.Sexual, "sexual")
	add(c.Violence, "violence")
	add(c.ViolenceGraphic, "violence/graphic")
	add(c.SelfHarm, "self-harm")
	add(c.Hate, "hate")
	add(c.HateThreatening, "hate/threatening")
	add(c.Harassment, "harassment")
	add(c.HarassmentThreatening, "harassment/threatening")
	add(c.Illicit, "illicit")
	add(c.IllicitViolent, "illicit/violent")
	return labels
}

// worstCategory maps classifier labels onto the highest-priority Category.
func worstCategory(labels []string) Category {
	best := CategoryOther
	for _, label := range labels {
		if c := ParseCategory(label); c != CategoryNone && c.priority() < best.priority() {
			best = c
		}
	}
	return best
}

const imageInstructions = `You review images submitted to a brand-safe image studio used by civic organizations.
Reply with a single JSON object: {"flagged": bool, "category": "none|sexual|violence|minors|other", "labels": [string]}.
Flag nudity, sexualized content, any sexualization of minors, graphic violence, and hateful or extremist symbols.`

// OpenAIImageClassifier asks a vision-capable chat model about an image.
type OpenAIImageClassifier struct {
	client *openai.Client
	model  string
}

func NewOpenAIImageClassifier(opts ClientOptions) (*OpenAIImageClassifier, error) {
	client, err := newOpenAIClient(opts)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIImageClassifier{client: client, model: model}, nil
}

func (c *OpenAIImageClassifier) ClassifyImage(ctx context.Context, imageURL, prompt string) (Classification, error) {
	text := "Review this image."
	if prompt != "" {
		text = "Review this image. The user intends to edit it with: " + prompt
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(imageInstructions),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(text),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
			}),
		},
		Temperature: param.NewOpt(0.0),
	})
	if err != nil {
		return Classification{}, err
	}
	if len(resp.Choices) == 0 {
		return Classification{}, errors.New("image classifier returned no choices")
	}
	return parseImageVerdict(resp.Choices[0].Message.Content)
}

type imageVerdict struct {
	Flagged  bool     `json:"flagged"`
	Category string   `json:"category"`
	Labels   []string `json:"labels"`
}

// parseImageVerdict tolerates prose or code fences around the JSON object.
func parseImageVerdict(content string) (Classification, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Classification{}, fmt.Errorf("image classifier reply is not json: %q", truncateRunes(content, 80))
	}
	var v imageVerdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return Classification{}, fmt.Errorf("decode image classifier reply: %w", err)
	}
	out := Classification{Flagged: v.Flagged, Labels: v.Labels}
	if v.Flagged {
		out.Category = ParseCategory(v.Category)
		if out.Category == CategoryNone {
			out.Category = CategoryOther
		}
	}
	return out, nil
}

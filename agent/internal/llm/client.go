package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Reply is a model answer with its token usage.
type Reply struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Client invokes one model.
type Client struct {
	api       ConverseAPI
	model     string
	maxTokens int32
}

// New wraps an existing Converse client.
func New(api ConverseAPI, model string, maxTokens int) *Client {
	return &Client{api: api, model: model, maxTokens: int32(maxTokens)}
}

// NewBedrock builds a Client from the default AWS credential chain.
func NewBedrock(ctx context.Context, region, model string, maxTokens int) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("llm: load aws config: %w", err)
	}
	return New(bedrockruntime.NewFromConfig(cfg), model, maxTokens), nil
}

// Model returns the model identifier.
func (c *Client) Model() string { return c.model }

// Invoke sends one user prompt with an optional system prompt and returns the
// first text block of the answer.
func (c *Client) Invoke(ctx context.Context, system, prompt string) (Reply, error) {
	in := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []brtypes.Message{{
			Role:    brtypes.ConversationRoleUser,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: prompt}},
		}},
		InferenceConfig: &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(c.maxTokens)},
	}
	if system != "" {
		in.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: system}}
	}

	out, err := c.api.Converse(ctx, in)
	if err != nil {
		return Reply{}, fmt.Errorf("llm: converse %s: %w", c.model, err)
	}

	var r Reply
	if out.Usage != nil {
		r.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		r.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return r, fmt.Errorf("llm: converse %s: no message in response", c.model)
	}
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok {
			r.Text = text.Value
			return r, nil
		}
	}
	return r, fmt.Errorf("llm: converse %s: no text content in response", c.model)
}

// ErrorCode returns the service error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsThrottled reports whether err is a Bedrock throttling rejection.
func IsThrottled(err error) bool {
	return ErrorCode(err) == "ThrottlingException"
}

// IsNotFound reports whether err says the model does not exist or is not
// enabled for the account.
func IsNotFound(err error) bool {
	code := ErrorCode(err)
	return code == "ResourceNotFoundException" || strings.HasSuffix(code, "NotFoundException")
}

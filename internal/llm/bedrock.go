package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockBackend runs completions through the Bedrock Converse API. The
// request model is a Bedrock model id.
type BedrockBackend struct {
	api bedrockConverseAPI
}

func NewBedrockBackend(api bedrockConverseAPI) *BedrockBackend {
	if api == nil {
		panic("llm: bedrock converse client cannot be nil")
	}
	return &BedrockBackend{api: api}
}

func (b *BedrockBackend) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, errors.New("llm: bedrock model id is required")
	}

	system, dialogue := splitSystem(req.Messages)
	systemBlocks := make([]brtypes.SystemContentBlock, 0, len(system))
	for _, block := range system {
		if strings.TrimSpace(block) == "" {
			continue
		}
		systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: block})
	}

	messages := make([]brtypes.Message, 0, len(dialogue))
	for _, msg := range dialogue {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		var role brtypes.ConversationRole
		switch msg.Role {
		case RoleUser:
			role = brtypes.ConversationRoleUser
		case RoleAssistant:
			role = brtypes.ConversationRoleAssistant
		default:
			return Response{}, fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: content}},
		})
	}

	inference := &brtypes.InferenceConfiguration{Temperature: aws.Float32(req.Temperature)}
	if req.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}

	out, err := b.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.Model),
		System:          systemBlocks,
		Messages:        messages,
		InferenceConfig: inference,
	})
	if err != nil {
		return Response{}, bedrockStatusError(err)
	}

	text, err := bedrockOutputText(out)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Text: strings.TrimSpace(text), Model: req.Model, FinishReason: string(out.StopReason)}
	if out.Usage != nil {
		resp.Usage = Usage{
			InputTokens:  int(int32OrZero(out.Usage.InputTokens)),
			OutputTokens: int(int32OrZero(out.Usage.OutputTokens)),
			TotalTokens:  int(int32OrZero(out.Usage.TotalTokens)),
		}
	}
	return resp, nil
}

// bedrockStatusError maps AWS exceptions onto the HTTP statuses the gateway
// understands; anything else passes through unchanged.
func bedrockStatusError(err error) error {
	var notFound *brtypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return &StatusError{StatusCode: http.StatusNotFound, Message: "model not found: " + notFound.ErrorMessage()}
	}
	var denied *brtypes.AccessDeniedException
	if errors.As(err, &denied) {
		return &StatusError{StatusCode: http.StatusUnauthorized, Message: denied.ErrorMessage()}
	}
	var throttled *brtypes.ThrottlingException
	if errors.As(err, &throttled) {
		return &StatusError{StatusCode: http.StatusTooManyRequests, Message: throttled.ErrorMessage()}
	}
	var invalid *brtypes.ValidationException
	if errors.As(err, &invalid) {
		return &StatusError{StatusCode: http.StatusBadRequest, Message: invalid.ErrorMessage()}
	}
	return fmt.Errorf("llm: bedrock converse: %w", err)
}

func bedrockOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("llm: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("llm: bedrock response did not include a message output")
	}
	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	return builder.String(), nil
}

func int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tavernkeep/gamemaster/pkg/chat"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIService implements LLMService against the OpenAI chat
// completions API. A custom base URL makes it work with any
// OpenAI-compatible endpoint (local inference servers included).
type OpenAIService struct {
	apiKey     string
	modelName  string
	baseURL    string
	httpClient *http.Client
}

var _ LLMService = (*OpenAIService)(nil)

type openAIChatRequest struct {
	Model       string             `json:"model"`
	Messages    []chat.ChatMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int              `json:"index"`
		Message      chat.ChatMessage `json:"message"`
		FinishReason string           `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

type openAIModelsResponse struct {
	Object string `json:"object"`
	Data   []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func NewOpenAIService(apiKey, modelName, baseURL string) *OpenAIService {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIService{
		apiKey:    apiKey,
		modelName: modelName,
		baseURL:   baseURL,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// InitModel verifies the configured model is served by the endpoint.
func (c *OpenAIService) InitModel(ctx context.Context, modelName string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyHTTPError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Kind: TransportNetwork, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, body)
	}

	var modelsResp openAIModelsResponse
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		return &TransportError{Kind: TransportBadResponse, Err: fmt.Errorf("failed to parse models list: %w", err)}
	}
	for _, m := range modelsResp.Data {
		if m.ID == modelName {
			return nil
		}
	}
	return fmt.Errorf("model %q not available at %s", modelName, c.baseURL)
}

func (c *OpenAIService) Chat(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	openAIReq := openAIChatRequest{
		Model:       c.modelName,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   2048,
	}

	reqBody, err := json.Marshal(openAIReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyHTTPError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Kind: TransportNetwork, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, body)
	}

	var openAIResp openAIChatResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return "", &TransportError{Kind: TransportBadResponse, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if openAIResp.Error != nil {
		return "", &TransportError{Kind: TransportBadResponse, Err: fmt.Errorf("API error: %s", openAIResp.Error.Message)}
	}
	if len(openAIResp.Choices) == 0 || openAIResp.Choices[0].Message.Content == "" {
		return "", &TransportError{Kind: TransportBadResponse, Err: fmt.Errorf("response contained no choices")}
	}
	return openAIResp.Choices[0].Message.Content, nil
}

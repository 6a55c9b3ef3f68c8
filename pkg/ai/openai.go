package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7
)

// OpenAIClient calls any OpenAI-compatible API: chat completions for replies
// and the files endpoint for uploads. Works with vLLM, LiteLLM, OpenRouter,
// self-hosted models, etc.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient builds a client for an OpenAI-compatible provider.
// baseURL should include the /v1 prefix, e.g. "https://api.openai.com/v1".
// apiKey can be empty for local models that do not require authentication.
func NewOpenAIClient(baseURL, apiKey, model string) *OpenAIClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &OpenAIClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenerateChat implements TextGenerator using the chat completions API.
func (c *OpenAIClient) GenerateChat(ctx context.Context, systemPrompt string, history []ChatMessage) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("openai generation model required")
	}
	messages := make([]oaiMessage, 0, len(history)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, oaiMessage{Role: m.Role, Content: m.Content})
	}

	reqBody := oaiChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", apiError(resp)
	}

	var chatResp oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("openai decode: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai api")
	}
	text := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty response from openai api")
	}
	return text, nil
}

// UploadFile implements FileAPI. The file content is streamed straight to the
// provider as multipart form data.
func (c *OpenAIClient) UploadFile(ctx context.Context, filename, purpose string, r io.Reader) (ProviderFile, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", purpose); err != nil {
		return ProviderFile{}, err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return ProviderFile{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return ProviderFile{}, fmt.Errorf("openai upload copy: %w", err)
	}
	if err := mw.Close(); err != nil {
		return ProviderFile{}, err
	}

	url := c.baseURL + "/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return ProviderFile{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProviderFile{}, fmt.Errorf("openai upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ProviderFile{}, apiError(resp)
	}

	var fileResp oaiFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fileResp); err != nil {
		return ProviderFile{}, fmt.Errorf("openai decode: %w", err)
	}
	if fileResp.ID == "" {
		return ProviderFile{}, fmt.Errorf("empty file id from openai api")
	}
	return ProviderFile{
		ID:       fileResp.ID,
		Filename: fileResp.Filename,
		Bytes:    fileResp.Bytes,
		Purpose:  fileResp.Purpose,
	}, nil
}

// DeleteFile implements FileAPI.
func (c *OpenAIClient) DeleteFile(ctx context.Context, fileID string) error {
	url := c.baseURL + "/files/" + fileID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	return nil
}

func (c *OpenAIClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func apiError(resp *http.Response) error {
	var errResp oaiErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Error.Message != "" {
		return fmt.Errorf("openai api error: %s", errResp.Error.Message)
	}
	return fmt.Errorf("openai api error: %s", resp.Status)
}

// OpenAI-compatible request/response types.

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiChatRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
}

type oaiChatResponse struct {
	Choices []struct {
		Message oaiMessage `json:"message"`
	} `json:"choices"`
}

type oaiFileResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int64  `json:"bytes"`
	Purpose  string `json:"purpose"`
}

type oaiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

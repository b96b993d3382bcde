package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/prodexhq/prodex/internal/llm"
	"github.com/prodexhq/prodex/pkg/types"
)

// OpenAIConfig holds configuration for the OpenAI assistants client.
type OpenAIConfig struct {
	APIKey  string
	Model   string        // default: gpt-4o-mini
	BaseURL string        // default: https://api.openai.com
	Timeout time.Duration // default: 60s
}

// OpenAIClient implements ProviderClient against the OpenAI Assistants v2
// API. Every v2 endpoint requires the OpenAI-Beta header. All HTTP calls
// are circuit-breaker protected.
type OpenAIClient struct {
	cfg            OpenAIConfig
	client         *http.Client
	circuitBreaker *llm.CircuitBreaker
}

// NewOpenAIClient creates a new assistants client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: llm.NewCircuitBreaker(),
	}
}

type openAIIDResponse struct {
	ID string `json:"id"`
}

type openAIVectorStoreFile struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type openAIAssistantRequest struct {
	Name          string              `json:"name"`
	Instructions  string              `json:"instructions"`
	Model         string              `json:"model"`
	Tools         []openAITool        `json:"tools"`
	ToolResources openAIToolResources `json:"tool_resources"`
}

type openAITool struct {
	Type string `json:"type"`
}

type openAIToolResources struct {
	FileSearch openAIFileSearchResource `json:"file_search"`
}

type openAIFileSearchResource struct {
	VectorStoreIDs []string `json:"vector_store_ids"`
}

type openAIRun struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type openAIMessageList struct {
	Data []struct {
		ID      string `json:"id"`
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// CreateFile uploads the corpus document via multipart form upload with
// purpose "assistants".
func (c *OpenAIClient) CreateFile(ctx context.Context, filename string, contents []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("purpose", "assistants"); err != nil {
		return "", fmt.Errorf("failed to write purpose field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(contents); err != nil {
		return "", fmt.Errorf("failed to write file contents: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/v1/files", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	var respData openAIIDResponse
	if err := c.do(req, &respData); err != nil {
		return "", err
	}
	return respData.ID, nil
}

// DeleteFile removes an uploaded file.
func (c *OpenAIClient) DeleteFile(ctx context.Context, fileID string) error {
	return c.jsonRequest(ctx, "DELETE", "/v1/files/"+url.PathEscape(fileID), nil, nil)
}

// CreateVectorStore creates an empty vector store.
func (c *OpenAIClient) CreateVectorStore(ctx context.Context, name string) (string, error) {
	var respData openAIIDResponse
	body := map[string]string{"name": name}
	if err := c.jsonRequest(ctx, "POST", "/v1/vector_stores", body, &respData); err != nil {
		return "", err
	}
	return respData.ID, nil
}

// DeleteVectorStore removes a vector store.
func (c *OpenAIClient) DeleteVectorStore(ctx context.Context, storeID string) error {
	return c.jsonRequest(ctx, "DELETE", "/v1/vector_stores/"+url.PathEscape(storeID), nil, nil)
}

// AttachFile adds a file to a vector store. Indexing continues remotely;
// poll GetFileStatus for completion.
func (c *OpenAIClient) AttachFile(ctx context.Context, storeID, fileID string) error {
	body := map[string]string{"file_id": fileID}
	path := "/v1/vector_stores/" + url.PathEscape(storeID) + "/files"
	return c.jsonRequest(ctx, "POST", path, body, nil)
}

// GetFileStatus reports the attach state of a file in a store.
func (c *OpenAIClient) GetFileStatus(ctx context.Context, storeID, fileID string) (FileStatus, error) {
	var respData openAIVectorStoreFile
	path := "/v1/vector_stores/" + url.PathEscape(storeID) + "/files/" + url.PathEscape(fileID)
	if err := c.jsonRequest(ctx, "GET", path, nil, &respData); err != nil {
		return "", err
	}
	return FileStatus(respData.Status), nil
}

// CreateAssistant creates an assistant with the file_search tool wired to
// the spec's vector store.
func (c *OpenAIClient) CreateAssistant(ctx context.Context, spec AssistantSpec) (string, error) {
	var respData openAIIDResponse
	if err := c.jsonRequest(ctx, "POST", "/v1/assistants", c.assistantBody(spec), &respData); err != nil {
		return "", err
	}
	return respData.ID, nil
}

// UpdateAssistant repoints an existing assistant at a new vector store.
func (c *OpenAIClient) UpdateAssistant(ctx context.Context, assistantID string, spec AssistantSpec) error {
	path := "/v1/assistants/" + url.PathEscape(assistantID)
	return c.jsonRequest(ctx, "POST", path, c.assistantBody(spec), nil)
}

// DeleteAssistant removes an assistant.
func (c *OpenAIClient) DeleteAssistant(ctx context.Context, assistantID string) error {
	return c.jsonRequest(ctx, "DELETE", "/v1/assistants/"+url.PathEscape(assistantID), nil, nil)
}

// CreateThread creates an empty conversation thread.
func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	var respData openAIIDResponse
	if err := c.jsonRequest(ctx, "POST", "/v1/threads", map[string]any{}, &respData); err != nil {
		return "", err
	}
	return respData.ID, nil
}

// PostMessage appends a message to a thread.
func (c *OpenAIClient) PostMessage(ctx context.Context, threadID, role, text string) (string, error) {
	var respData openAIIDResponse
	body := map[string]string{"role": role, "content": text}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.jsonRequest(ctx, "POST", path, body, &respData); err != nil {
		return "", err
	}
	return respData.ID, nil
}

// CreateRun starts an assistant run on a thread.
func (c *OpenAIClient) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	var respData openAIRun
	body := map[string]string{"assistant_id": assistantID}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/runs"
	if err := c.jsonRequest(ctx, "POST", path, body, &respData); err != nil {
		return nil, err
	}
	return toRun(&respData), nil
}

// GetRun fetches the current state of a run.
func (c *OpenAIClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	var respData openAIRun
	path := "/v1/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.jsonRequest(ctx, "GET", path, nil, &respData); err != nil {
		return nil, err
	}
	return toRun(&respData), nil
}

// LatestAssistantMessage returns the newest assistant message text in the
// thread. The messages endpoint returns newest-first by default.
func (c *OpenAIClient) LatestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var respData openAIMessageList
	path := "/v1/threads/" + url.PathEscape(threadID) + "/messages?limit=10"
	if err := c.jsonRequest(ctx, "GET", path, nil, &respData); err != nil {
		return "", err
	}

	for _, msg := range respData.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, part := range msg.Content {
			if part.Type == "text" && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}
	return "", nil
}

func (c *OpenAIClient) assistantBody(spec AssistantSpec) openAIAssistantRequest {
	model := spec.Model
	if model == "" {
		model = c.cfg.Model
	}
	return openAIAssistantRequest{
		Name:         spec.Name,
		Instructions: spec.Instructions,
		Model:        model,
		Tools:        []openAITool{{Type: "file_search"}},
		ToolResources: openAIToolResources{
			FileSearch: openAIFileSearchResource{
				VectorStoreIDs: []string{spec.VectorStoreID},
			},
		},
	}
}

// jsonRequest sends a JSON request to the assistants API and decodes the
// response into out when out is non-nil.
func (c *OpenAIClient) jsonRequest(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	return c.do(req, out)
}

func (c *OpenAIClient) do(req *http.Request, out any) error {
	_, err := c.circuitBreaker.Execute(req.Context(), func() (interface{}, error) {
		return nil, c.send(req, out)
	})
	if errors.Is(err, llm.ErrCircuitOpen) {
		return fmt.Errorf("assistants circuit breaker open: %w", err)
	}
	return err
}

func (c *OpenAIClient) send(req *http.Request, out any) error {
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func toRun(r *openAIRun) *Run {
	run := &Run{
		ID:       r.ID,
		ThreadID: r.ThreadID,
		Status:   types.RunStatus(r.Status),
	}
	if r.LastError != nil {
		run.LastError = r.LastError.Message
	}
	return run
}

// Compile-time assertion.
var _ ProviderClient = (*OpenAIClient)(nil)

package crm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jfaulkner/crm-bridge/internal/uow"
)

const defaultAPIVersion = "v58.0"

// Config captures the parameters required to reach a CRM org.
type Config struct {
	InstanceURL string
	APIVersion  string
	AccessToken string
	Timeout     time.Duration
}

// Client implements Store against the CRM REST API.
type Client struct {
	baseURL    string
	apiVersion string
	token      string
	httpClient *http.Client
}

// NewClient validates the config and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.InstanceURL == "" {
		return nil, fmt.Errorf("crm instance url is required")
	}
	if _, err := url.ParseRequestURI(cfg.InstanceURL); err != nil {
		return nil, fmt.Errorf("parse instance url: %w", err)
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.InstanceURL, "/"),
		apiVersion: apiVersion,
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

type queryResponse struct {
	TotalSize int      `json:"totalSize"`
	Done      bool     `json:"done"`
	Records   []Record `json:"records"`
}

// Query runs a SOQL query and returns the matched records.
func (c *Client) Query(ctx context.Context, query string) ([]Record, error) {
	endpoint := fmt.Sprintf("%s/services/data/%s/query?q=%s",
		c.baseURL, c.apiVersion, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query rejected: %s", readAPIError(resp.Body, resp.StatusCode))
	}
	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return decoded.Records, nil
}

type compositeSubrequest struct {
	Method      string         `json:"method"`
	URL         string         `json:"url"`
	ReferenceID string         `json:"referenceId"`
	Body        map[string]any `json:"body"`
}

type graphRequest struct {
	Graphs []graphEntry `json:"graphs"`
}

type graphEntry struct {
	GraphID          string                `json:"graphId"`
	CompositeRequest []compositeSubrequest `json:"compositeRequest"`
}

type graphResponse struct {
	Graphs []struct {
		GraphID       string `json:"graphId"`
		IsSuccessful  bool   `json:"isSuccessful"`
		GraphResponse struct {
			CompositeResponse []compositeItem `json:"compositeResponse"`
		} `json:"graphResponse"`
	} `json:"graphs"`
}

type compositeItem struct {
	ReferenceID    string          `json:"referenceId"`
	HTTPStatusCode int             `json:"httpStatusCode"`
	Body           json.RawMessage `json:"body"`
}

type createdRecord struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// Commit submits the whole graph in a single composite call. The CRM applies
// it all-or-nothing: a failed graph persists nothing and surfaces here as one
// aggregate CommitError with no partial ids.
func (c *Client) Commit(ctx context.Context, graph *uow.Graph) (uow.CommitResult, error) {
	if graph == nil || graph.Len() == 0 {
		return nil, &uow.CommitError{Err: fmt.Errorf("graph is empty")}
	}

	payload := graphRequest{
		Graphs: []graphEntry{{
			GraphID:          "uow",
			CompositeRequest: c.toSubrequests(graph),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &uow.CommitError{Err: fmt.Errorf("marshal graph: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/services/data/%s/composite/graph", c.baseURL, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &uow.CommitError{Err: fmt.Errorf("build graph request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &uow.CommitError{Err: fmt.Errorf("execute graph request: %w", err)}
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &uow.CommitError{
			Err: fmt.Errorf("graph rejected: %s", readAPIError(resp.Body, resp.StatusCode)),
		}
	}

	var decoded graphResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &uow.CommitError{Err: fmt.Errorf("decode graph response: %w", err)}
	}
	if len(decoded.Graphs) == 0 {
		return nil, &uow.CommitError{Err: fmt.Errorf("graph response contained no graphs")}
	}

	result := decoded.Graphs[0]
	if !result.IsSuccessful {
		return nil, &uow.CommitError{Err: firstGraphError(result.GraphResponse.CompositeResponse)}
	}
	return mapCommitResult(graph, result.GraphResponse.CompositeResponse)
}

func (c *Client) toSubrequests(graph *uow.Graph) []compositeSubrequest {
	subrequests := make([]compositeSubrequest, 0, graph.Len())
	for _, intent := range graph.Intents() {
		body := make(map[string]any, len(intent.Fields))
		for name, value := range intent.Fields {
			if ref, ok := value.(uow.Ref); ok {
				body[name] = fmt.Sprintf("@{%s.id}", string(ref))
				continue
			}
			body[name] = value
		}
		subrequests = append(subrequests, compositeSubrequest{
			Method:      http.MethodPost,
			URL:         fmt.Sprintf("/services/data/%s/sobjects/%s", c.apiVersion, intent.Type),
			ReferenceID: string(intent.Ref),
			Body:        body,
		})
	}
	return subrequests
}

func mapCommitResult(graph *uow.Graph, items []compositeItem) (uow.CommitResult, error) {
	result := make(uow.CommitResult, len(items))
	for _, item := range items {
		ref := uow.Ref(item.ReferenceID)
		if !graph.Contains(ref) {
			continue
		}
		var created createdRecord
		if err := json.Unmarshal(item.Body, &created); err != nil {
			return nil, &uow.CommitError{
				Err: fmt.Errorf("decode record result for %s: %w", item.ReferenceID, err),
			}
		}
		result[ref] = uow.RecordResult{ID: created.ID, Success: created.Success}
	}
	for _, intent := range graph.Intents() {
		if _, ok := result[intent.Ref]; !ok {
			return nil, &uow.CommitError{
				Err: fmt.Errorf("commit response missing reference %q", string(intent.Ref)),
			}
		}
	}
	return result, nil
}

func firstGraphError(items []compositeItem) error {
	for _, item := range items {
		if item.HTTPStatusCode >= 200 && item.HTTPStatusCode < 300 {
			continue
		}
		var errs []apiError
		if err := json.Unmarshal(item.Body, &errs); err == nil && len(errs) > 0 {
			return fmt.Errorf("%s: %s (%s)", item.ReferenceID, errs[0].Message, errs[0].ErrorCode)
		}
		return fmt.Errorf("%s: status %d", item.ReferenceID, item.HTTPStatusCode)
	}
	return fmt.Errorf("graph was not successful")
}

type contentVersionRequest struct {
	Title                  string `json:"Title"`
	PathOnClient           string `json:"PathOnClient"`
	VersionData            string `json:"VersionData"`
	FirstPublishLocationID string `json:"FirstPublishLocationId,omitempty"`
}

type createResponse struct {
	ID      string     `json:"id"`
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
}

// UploadFile stores a document as a CRM content version and returns its id.
// When RecordID is set the file is published against that record.
func (c *Client) UploadFile(ctx context.Context, file File) (string, error) {
	if file.Name == "" {
		return "", fmt.Errorf("file name is required")
	}
	if len(file.Data) == 0 {
		return "", fmt.Errorf("file data is required")
	}

	payload := contentVersionRequest{
		Title:                  file.Name,
		PathOnClient:           file.Name,
		VersionData:            base64.StdEncoding.EncodeToString(file.Data),
		FirstPublishLocationID: file.RecordID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal content version: %w", err)
	}

	endpoint := fmt.Sprintf("%s/services/data/%s/sobjects/ContentVersion", c.baseURL, c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute upload: %w", err)
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("upload rejected: %s", readAPIError(resp.Body, resp.StatusCode))
	}
	var decoded createResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !decoded.Success {
		if len(decoded.Errors) > 0 {
			return "", fmt.Errorf("upload failed: %s", decoded.Errors[0].Message)
		}
		return "", fmt.Errorf("upload failed")
	}
	return decoded.ID, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func readAPIError(r io.Reader, status int) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return fmt.Sprintf("status %d", status)
	}
	var errs []apiError
	if err := json.Unmarshal(data, &errs); err == nil && len(errs) > 0 {
		return fmt.Sprintf("status %d: %s (%s)", status, errs[0].Message, errs[0].ErrorCode)
	}
	return fmt.Sprintf("status %d: %s", status, strings.TrimSpace(string(data)))
}

func closeBody(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1024))
	_ = body.Close()
}

package symptom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// Backend ranks likely conditions for a set of symptoms.
type Backend interface {
	Assess(ctx context.Context, symptoms []Symptom) (*Result, error)
}

// HTTPBackend posts symptoms as JSON to a consultation endpoint.
type HTTPBackend struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

func NewHTTPBackend(url string, timeout time.Duration, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{url: url, client: client, timeout: timeout}
}

type assessResponse struct {
	Message    string      `json:"message"`
	Conditions []Condition `json:"conditions"`
}

func (b *HTTPBackend) Assess(ctx context.Context, symptoms []Symptom) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	payload, err := json.Marshal(CheckRequest{Symptoms: symptoms})
	if err != nil {
		return nil, fmt.Errorf("encode symptoms: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &RemoteServiceError{Service: "symptom", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &RemoteServiceError{Service: "symptom", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &RemoteServiceError{Service: "symptom", StatusCode: resp.StatusCode}
	}

	var out assessResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, &RemoteServiceError{Service: "symptom", Err: fmt.Errorf("decode response: %w", err)}
	}
	sort.SliceStable(out.Conditions, func(i, j int) bool {
		return out.Conditions[i].Probability > out.Conditions[j].Probability
	})
	if out.Message == "" {
		out.Message = DefaultMessage
	}
	if out.Conditions == nil {
		out.Conditions = []Condition{}
	}
	return &Result{Message: out.Message, Conditions: out.Conditions}, nil
}

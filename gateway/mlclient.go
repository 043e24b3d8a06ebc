// Copyright 2025 API-Sec Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MLVerdict is the remote classifier's decision for one prompt.
type MLVerdict struct {
	Blocked    bool    `json:"blocked"`
	Confidence float64 `json:"confidence"`
	Type       string  `json:"type,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Classifier delegates inconclusive content to an external classification
// service. Callers own the fail-open policy: any error from Classify is
// an infrastructure failure, never a verdict.
type Classifier interface {
	Classify(ctx context.Context, prompt, userID string) (*MLVerdict, error)
}

// MLClient calls the ML backend's /inspect endpoint with a bounded
// timeout.
type MLClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMLClient creates a classifier client for the given backend URL.
func NewMLClient(baseURL string, timeout time.Duration) *MLClient {
	return &MLClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// classifyRequest is the backend's expected payload.
type classifyRequest struct {
	Prompt      string `json:"prompt"`
	UserID      string `json:"user_id"`
	Sensitivity string `json:"sensitivity"`
}

// Classify implements Classifier.
func (c *MLClient) Classify(ctx context.Context, prompt, userID string) (*MLVerdict, error) {
	payload, err := json.Marshal(classifyRequest{
		Prompt:      prompt,
		UserID:      userID,
		Sensitivity: "medium",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/inspect", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var verdict MLVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}

	return &verdict, nil
}

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// DefaultCallTimeout is the per-call deadline for remote agent evaluation
const DefaultCallTimeout = 30 * time.Second

// RemoteAgent invokes an agent microservice over HTTP. The serialized context
// includes the agent results accumulated so far, so a remote risk-manager
// sees its predecessors' outputs.
type RemoteAgent struct {
	name    string
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewRemoteAgent creates an HTTP client for one agent endpoint
func NewRemoteAgent(name, baseURL string, timeout time.Duration) *RemoteAgent {
	return &RemoteAgent{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Name returns the agent name
func (a *RemoteAgent) Name() string {
	return a.name
}

// Evaluate POSTs the pipeline context to the agent's /run endpoint. A timeout
// or non-2xx response surfaces as an error, which the orchestrator records as
// a failed step.
func (a *RemoteAgent) Evaluate(ctx context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	body, err := json.Marshal(pctx)
	if err != nil {
		return pipeline.AgentResult{}, fmt.Errorf("failed to encode pipeline context: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return pipeline.AgentResult{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return pipeline.AgentResult{}, fmt.Errorf("agent %s call failed: %w", a.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pipeline.AgentResult{}, fmt.Errorf("agent %s returned status %d: %s", a.name, resp.StatusCode, string(raw))
	}

	var result pipeline.AgentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pipeline.AgentResult{}, fmt.Errorf("failed to decode agent %s response: %w", a.name, err)
	}

	return result, nil
}

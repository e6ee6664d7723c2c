package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tailorcast/monitoring-agents-it/agent/internal/config"
	"github.com/tailorcast/monitoring-agents-it/agent/internal/llm"
	"github.com/tailorcast/monitoring-agents-it/pkg/types"
)

const (
	probeMaxTokens   = 10
	azureAPIVersion  = "2023-05-15"
	azureHTTPTimeout = 10 * time.Second
)

// Invoker sends one prompt to a model.
type Invoker interface {
	Invoke(ctx context.Context, system, prompt string) (llm.Reply, error)
}

// BedrockFactory builds an Invoker for a model in a region.
type BedrockFactory func(ctx context.Context, region, model string) (Invoker, error)

// DefaultBedrockFactory caches one client per region and model.
func DefaultBedrockFactory() BedrockFactory {
	var (
		mu    sync.Mutex
		cache = map[string]Invoker{}
	)
	return func(ctx context.Context, region, model string) (Invoker, error) {
		mu.Lock()
		defer mu.Unlock()
		key := region + "|" + model
		if inv, ok := cache[key]; ok {
			return inv, nil
		}
		c, err := llm.NewBedrock(ctx, region, model, probeMaxTokens)
		if err != nil {
			return nil, err
		}
		cache[key] = c
		return c, nil
	}
}

// LLM checks that model endpoints answer.
type LLM struct {
	models  []config.LLMModel
	bedrock BedrockFactory
	client  *http.Client
	logger  *slog.Logger
}

// NewLLM returns the llm collector.
func NewLLM(models []config.LLMModel, bedrock BedrockFactory, logger *slog.Logger) *LLM {
	return &LLM{
		models:  models,
		bedrock: bedrock,
		client:  &http.Client{Timeout: azureHTTPTimeout},
		logger:  logger,
	}
}

// Name implements Collector.
func (l *LLM) Name() string { return NameLLM }

// Collect implements Collector.
func (l *LLM) Collect(ctx context.Context) ([]types.Observation, error) {
	l.logger.Info("collector: checking llm models", "count", len(l.models))
	return fanOut(ctx, l.models, l.check), nil
}

func (l *LLM) check(ctx context.Context, m config.LLMModel) types.Observation {
	switch strings.ToLower(m.Provider) {
	case "bedrock":
		return l.checkBedrock(ctx, m)
	case "azure":
		return l.checkAzure(ctx, m)
	}
	return types.Failed(NameLLM, m.Provider+"/unknown", types.SeverityUnknown, nil,
		"Unknown provider: "+m.Provider, fmt.Errorf("unsupported provider %q", m.Provider))
}

func (l *LLM) checkBedrock(ctx context.Context, m config.LLMModel) types.Observation {
	target := "Bedrock/" + m.ModelID
	modelMetric := types.Metrics{{Key: "model_id", Value: m.ModelID}}

	inv, err := l.bedrock(ctx, m.Region, m.ModelID)
	if err != nil {
		return types.Failed(NameLLM, target, types.SeverityUnknown, modelMetric,
			"Client setup failed: "+err.Error(), err)
	}
	reply, err := inv.Invoke(ctx, "", "test")
	switch {
	case err == nil:
		total := reply.InputTokens + reply.OutputTokens
		return types.NewObservation(NameLLM, target, types.SeverityGreen, types.Metrics{
			{Key: "model_id", Value: m.ModelID},
			{Key: "tokens_used", Value: total},
			{Key: "provider", Value: "bedrock"},
		}, fmt.Sprintf("Model accessible (%d tokens)", total))
	case llm.IsThrottled(err):
		return types.Failed(NameLLM, target, types.SeverityYellow, modelMetric, "API throttled", err)
	case llm.IsNotFound(err):
		return types.Failed(NameLLM, target, types.SeverityRed, modelMetric, "Model not found", err)
	}
	return types.Failed(NameLLM, target, types.SeverityRed, modelMetric, "Unavailable: "+err.Error(), err)
}

func (l *LLM) checkAzure(ctx context.Context, m config.LLMModel) types.Observation {
	target := "Azure/" + azureResource(m.Endpoint)
	epMetric := types.Metrics{{Key: "endpoint", Value: m.Endpoint}}

	key := m.Key()
	if key == "" {
		return types.Failed(NameLLM, target, types.SeverityUnknown, nil,
			"Azure API key environment variable not set", fmt.Errorf("missing api key"))
	}

	u := strings.TrimRight(m.Endpoint, "/") + "/openai/models?api-version=" + azureAPIVersion
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return types.Failed(NameLLM, target, types.SeverityRed, epMetric, "Unavailable: "+err.Error(), err)
	}
	req.Header.Set("api-key", key)

	resp, err := l.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return types.Failed(NameLLM, target, types.SeverityRed, epMetric, "Request timeout", err)
		}
		return types.Failed(NameLLM, target, types.SeverityRed, epMetric, "Unavailable: "+err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Failed(NameLLM, target, types.SeverityRed, epMetric,
			fmt.Sprintf("HTTP %d", resp.StatusCode),
			fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}
	var body struct {
		Data []json.RawMessage `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return types.NewObservation(NameLLM, target, types.SeverityGreen, types.Metrics{
		{Key: "endpoint", Value: m.Endpoint},
		{Key: "model_count", Value: len(body.Data)},
		{Key: "provider", Value: "azure"},
	}, fmt.Sprintf("Endpoint accessible (%d models)", len(body.Data)))
}

// azureResource extracts the resource name from an Azure OpenAI endpoint,
// e.g. https://contoso.openai.azure.com -> contoso.
func azureResource(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	host := u.Hostname()
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}

package executor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/signifo/designgen/internal/failure"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Pricing is the per-token price in USD, kept as the decimal strings the API returns.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// Model is one entry of the caller's model catalog.
type Model struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ContextLength int64   `json:"context_length"`
	Pricing       Pricing `json:"pricing"`
}

// Free reports whether both prompt and completion are priced at zero.
func (m Model) Free() bool {
	return isZeroPrice(m.Pricing.Prompt) && isZeroPrice(m.Pricing.Completion)
}

func isZeroPrice(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	return strings.Trim(strings.TrimPrefix(value, "-"), "0.") == ""
}

var zeroPricing = Pricing{Prompt: "0", Completion: "0"}

// ListModels verifies credential against the user model endpoint and merges
// public pricing into the result. Calls are not retried.
func (e *OpenRouterExecutor) ListModels(ctx context.Context, credential string) ([]Model, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, failure.NewClientError(http.StatusUnauthorized, "no API key configured")
	}

	data, status, _, err := e.client.doRequest(ctx, http.MethodGet, userModelsPath, credential, nil)
	if err != nil {
		return nil, classifyCatalogError(ctx, status, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, failure.NewTransientError(status, "model list is not valid JSON", nil)
	}
	models := parseModels(data)

	pricing, errPricing := e.fetchPricing(ctx)
	if errPricing != nil {
		log.Warnf("openrouter executor: pricing unavailable, using zero pricing: %v", errPricing)
	}
	for i := range models {
		if p, ok := pricing[models[i].ID]; ok {
			models[i].Pricing = p
		} else {
			models[i].Pricing = zeroPricing
		}
	}
	sort.SliceStable(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func (e *OpenRouterExecutor) fetchPricing(ctx context.Context) (map[string]Pricing, error) {
	data, _, _, err := e.client.doRequest(ctx, http.MethodGet, allModelsPath, "", nil)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("pricing list is not valid JSON")
	}
	out := make(map[string]Pricing)
	gjson.GetBytes(data, "data").ForEach(func(_, value gjson.Result) bool {
		id := value.Get("id").String()
		pricing := value.Get("pricing")
		if id == "" || !pricing.Exists() {
			return true
		}
		out[id] = Pricing{
			Prompt:     priceString(pricing.Get("prompt")),
			Completion: priceString(pricing.Get("completion")),
		}
		return true
	})
	return out, nil
}

func parseModels(data []byte) []Model {
	var models []Model
	gjson.GetBytes(data, "data").ForEach(func(_, value gjson.Result) bool {
		id := strings.TrimSpace(value.Get("id").String())
		if id == "" {
			return true
		}
		name := value.Get("name").String()
		if name == "" {
			name = id
		}
		models = append(models, Model{
			ID:            id,
			Name:          name,
			ContextLength: value.Get("context_length").Int(),
		})
		return true
	})
	return models
}

func priceString(value gjson.Result) string {
	if !value.Exists() || value.String() == "" {
		return "0"
	}
	return value.String()
}

func classifyCatalogError(ctx context.Context, status int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	switch failure.Classify(status, err, "") {
	case failure.ClientError:
		f := failure.NewClientError(status, fmt.Sprintf("API key verification failed with status: %d", status))
		f.Err = err
		return f
	default:
		return failure.NewTransientError(status, "API key verification failed", err)
	}
}

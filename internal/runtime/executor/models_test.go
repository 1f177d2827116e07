package executor

import (
	"context"
	"net/http"
	"testing"

	"github.com/signifo/designgen/internal/failure"
	"github.com/signifo/designgen/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userModelsBody = `{"data":[
  {"id":"openai/gpt-4o","name":"GPT-4o","context_length":128000},
  {"id":"anthropic/claude-3-haiku","name":"Claude 3 Haiku","context_length":200000},
  {"id":"private/unlisted"}
]}`

const allModelsBody = `{"data":[
  {"id":"openai/gpt-4o","pricing":{"prompt":"0.0000025","completion":"0.00001"}},
  {"id":"anthropic/claude-3-haiku","pricing":{"prompt":"0.00000025","completion":"0.00000125"}},
  {"id":"meta/llama-free","pricing":{"prompt":"0","completion":"0"}}
]}`

func TestListModelsMergesPricing(t *testing.T) {
	seq := testutil.NewSequence(
		testutil.Status(http.StatusOK, userModelsBody),
		testutil.Status(http.StatusOK, allModelsBody),
	)
	exec := newTestExecutor(t, nil, seq, &testutil.TimerRecorder{})

	models, err := exec.ListModels(context.Background(), "sk-test")
	require.NoError(t, err)
	require.Len(t, models, 3)

	assert.Equal(t, "anthropic/claude-3-haiku", models[0].ID)
	assert.Equal(t, Pricing{Prompt: "0.00000025", Completion: "0.00000125"}, models[0].Pricing)
	assert.Equal(t, int64(200000), models[0].ContextLength)
	assert.Equal(t, "GPT-4o", models[1].Name)
	assert.Equal(t, "private/unlisted", models[2].Name)
	assert.Equal(t, zeroPricing, models[2].Pricing)
	assert.True(t, models[2].Free())
	assert.False(t, models[1].Free())

	userReq, _ := seq.Request(0)
	assert.Equal(t, "/api/v1/models/user", userReq.URL.Path)
	assert.Equal(t, "Bearer sk-test", userReq.Header.Get("Authorization"))
	pricingReq, _ := seq.Request(1)
	assert.Equal(t, "/api/v1/models", pricingReq.URL.Path)
	assert.Empty(t, pricingReq.Header.Get("Authorization"))
}

func TestListModelsFallsBackToZeroPricing(t *testing.T) {
	seq := testutil.NewSequence(
		testutil.Status(http.StatusOK, userModelsBody),
		testutil.Status(http.StatusServiceUnavailable, `{}`),
	)
	exec := newTestExecutor(t, nil, seq, &testutil.TimerRecorder{})

	models, err := exec.ListModels(context.Background(), "sk-test")
	require.NoError(t, err)
	for _, m := range models {
		assert.Equal(t, zeroPricing, m.Pricing, m.ID)
	}
}

func TestListModelsRejectsInvalidKey(t *testing.T) {
	seq := testutil.NewSequence(testutil.Status(http.StatusUnauthorized, `{"error":{"message":"No auth credentials found"}}`))
	sleeper := &testutil.TimerRecorder{}
	exec := newTestExecutor(t, nil, seq, sleeper)

	_, err := exec.ListModels(context.Background(), "sk-bad")
	f, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, failure.ClientError, f.Kind)
	assert.Equal(t, http.StatusUnauthorized, f.Status)
	assert.Equal(t, 1, seq.Calls())
	assert.Empty(t, sleeper.Waits())

	_, err = exec.ListModels(context.Background(), "  ")
	assert.Equal(t, failure.ClientError, failure.KindOf(err))
}

func TestModelFree(t *testing.T) {
	cases := []struct {
		pricing Pricing
		free    bool
	}{
		{Pricing{"0", "0"}, true},
		{Pricing{"0.0", "0.000"}, true},
		{Pricing{"", ""}, true},
		{Pricing{"0.000001", "0"}, false},
		{Pricing{"0", "0.5"}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.free, Model{Pricing: tc.pricing}.Free(), "%+v", tc.pricing)
	}
}

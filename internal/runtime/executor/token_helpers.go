package executor

import (
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecMu    sync.Mutex
	codecCache = map[tokenizer.Encoding]tokenizer.Codec{}
)

func tokenizerForModel(model string) (tokenizer.Codec, error) {
	encoding := tokenizer.Cl100kBase
	lower := strings.ToLower(model)
	if idx := strings.LastIndex(lower, "/"); idx >= 0 {
		lower = lower[idx+1:]
	}
	if strings.HasPrefix(lower, "gpt-4o") || strings.HasPrefix(lower, "gpt-4.1") || strings.HasPrefix(lower, "o1") ||
		strings.HasPrefix(lower, "o3") || strings.HasPrefix(lower, "o4") || strings.HasPrefix(lower, "gpt-5") {
		encoding = tokenizer.O200kBase
	}

	codecMu.Lock()
	defer codecMu.Unlock()
	if codec, ok := codecCache[encoding]; ok {
		return codec, nil
	}
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}
	codecCache[encoding] = codec
	return codec, nil
}

func countTextTokens(model, text string) (int64, error) {
	codec, err := tokenizerForModel(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// EstimateTokens approximates the token count of text for model. It falls
// back to one token per four runes when no tokenizer is available.
func EstimateTokens(model, text string) int64 {
	if text == "" {
		return 0
	}
	if count, err := countTextTokens(model, text); err == nil {
		return count
	}
	return int64(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
}

// EstimatePromptTokens sums the estimates of both prompt halves.
func EstimatePromptTokens(model string, prompt Prompt) int64 {
	return EstimateTokens(model, prompt.System) + EstimateTokens(model, prompt.User)
}

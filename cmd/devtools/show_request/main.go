package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/signifo/designgen/internal/runtime/executor"
)

func main() {
	model := flag.String("model", "anthropic/claude-3-haiku", "model id to place in the request")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: show_request [-model id] <prompt.json>")
		os.Exit(2)
	}
	b, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		panic(err)
	}
	var prompt executor.Prompt
	if err = json.Unmarshal(b, &prompt); err != nil {
		panic(err)
	}
	out, err := executor.BuildChatCompletionBody(*model, prompt)
	if err != nil {
		panic(err)
	}
	fmt.Fprintf(os.Stderr, "estimated prompt tokens: %d\n", executor.EstimatePromptTokens(*model, prompt))
	var pretty map[string]any
	if err = json.Unmarshal(out, &pretty); err != nil {
		panic(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(pretty)
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-open-lab/zenny-books-sub002/internal/cli"
	"github.com/mcp-open-lab/zenny-books-sub002/internal/llm"
)

func llmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "Inspect the configured language model providers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a short prompt to every provider in fallback order",
		RunE:  runLLMTest,
	})
	return cmd
}

func runLLMTest(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.LLM.Providers) == 0 {
		return fmt.Errorf("no providers configured under llm.providers")
	}

	failed := 0
	for i, pc := range cfg.LLM.Providers {
		label := fmt.Sprintf("%d. %s", i+1, pc.Provider)
		if pc.Model != "" {
			label += " (" + pc.Model + ")"
		}

		client, err := llm.NewClient(cmd.Context(), pc)
		if err != nil {
			failed++
			fmt.Println(cli.FormatError(fmt.Sprintf("%s: %v", label, err)))
			continue
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LLM.Timeout)
		start := time.Now()
		resp, err := client.Complete(ctx, llm.Request{
			System:    "You are a health check. Answer with a single word.",
			Prompt:    "Reply with OK.",
			MaxTokens: 10,
		})
		cancel()
		if closer, ok := client.(interface{ Close() }); ok {
			closer.Close()
		}
		if err != nil {
			failed++
			fmt.Println(cli.FormatError(fmt.Sprintf("%s: %v", label, err)))
			continue
		}
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s answered %q in %s", label, strings.TrimSpace(resp.Text), time.Since(start).Round(time.Millisecond))))
	}

	if failed == len(cfg.LLM.Providers) {
		return fmt.Errorf("every provider failed")
	}
	return nil
}

// Package llm provides language model clients for categorization and
// document extraction. It supports Anthropic, OpenAI and Gemini, with
// retry, rate limiting, response caching and an ordered provider fallback chain.
package llm

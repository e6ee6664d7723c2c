// Package llm is a thin client for Anthropic models served through Amazon
// Bedrock's Converse API. It is shared by the analysis stage and the LLM
// availability collector.
package llm

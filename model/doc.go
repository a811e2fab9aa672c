// Package model defines the language model boundary used by agents: a
// normalized Request (system prompt, conversation, tool definitions) in and
// a stream of Responses ending in one assistant message out.
//
// Provider adapters live in subpackages (openai, anthropic). Invoke adds the
// bounded fixed-delay retry every REFLECT step goes through, and
// ScriptedModel provides deterministic replies for tests.
package model

// Package builtin provides the concrete tools shipped with agentree. Every
// tool is exposed through the uniform tool.Tool contract and reports failures
// as errors, which the dispatcher turns into {"error": ...} results.
package builtin

// Package executor drives one agent conversation turn: it assembles the
// prompt from instructions, trimmed history and input, invokes the model
// provider, dispatches tool-use requests through the sandbox, and loops
// until the model produces a final response or a ceiling is hit.
//
// Providers are injected and keyed by model name; the executor has no
// network code of its own.
package executor

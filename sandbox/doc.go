// Package sandbox executes tool calls under security controls.
//
// Every call passes through the same pipeline regardless of tool origin:
// permission check, JSON Schema argument validation, sliding-window rate
// limiting per (principal, tool), network allow-listing for URL-bearing
// arguments, a wall-clock execution cap, and an output size cap.
//
// Built-in tools (calculator, http_request, email_send, slack_post) and
// user-defined tools share the single Tool contract, so the sandbox treats
// them uniformly.
package sandbox

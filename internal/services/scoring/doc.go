// Package scoring asks an OpenAI-compatible chat completions endpoint which
// vocabulary words a clip transcript plausibly teaches, and how confidently.
//
// The client retries throttling, timeouts, and server errors with
// exponential backoff and honors Retry-After. Replies are decoded
// tolerantly: code fences and surrounding prose are stripped before the
// JSON payload is parsed.
package scoring

// Package enricher learns a label, tags, a caption and any visible text for
// a file by asking an AI model, or offline heuristics when no model is
// configured.
//
// Remote providers receive a fixed JSON schema prompt. Replies are parsed from
// the first '{' to the last '}' so that prose or markdown fences around the
// object are tolerated. Calls can be throttled with WithRateLimit.
package enricher

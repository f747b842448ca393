// Package embeddings turns code and query text into vectors.
//
// Providers:
//
//   - fastembed: local ONNX models (requires cgo), default BAAI/bge-small-en-v1.5
//   - openai:    OpenAI-compatible embedding endpoints through langchaingo
//   - googleai:  Gemini embedding models through langchaingo
//   - hash:      deterministic feature hashing, no network or model files
//
// Every provider call runs under the configured timeout. Failures, timeouts
// and missing credentials are reported as codesearch.ErrCollaboratorUnavailable.
// Index builds and searches must use the same provider and model.
package embeddings

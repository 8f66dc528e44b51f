// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the embedding services used in Docvec.
//
// This package defines the Embedder interface used by the ingestion pipeline
// to turn chunk text into vectors, along with the shared provider Config. It
// follows the dependency inversion principle: the ingestion and storage layers
// depend on these abstractions rather than concrete implementations.
//
// # Implementation Packages
//
// The ai package includes two implementation sub-packages:
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewEmbedder) return INTERFACE types to enforce
// abstraction and prevent accidental coupling to concrete implementations.
//
//	embedder, err := openai.NewEmbedder(config)  // returns ai.Embedder
//
// Test utility constructors (mock.NewMockEmbedder) return CONCRETE types to
// enable test assertions and behavior injection via the mock's public fields
// and methods (CallCount, EmbedTextsFunc, Reset).
//
// # Usage Example
//
//	config := ai.NewConfig(
//	    ai.WithHost("https://api.openai.com/v1"),
//	    ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
//	embedder, err := openai.NewEmbedder(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	vectors, usage, err := embedder.EmbedTexts(ctx, chunkTexts)
//
// Usage accounting is part of the contract: every embedding call reports the
// tokens consumed and the metered cost so the rate governor can track actual
// spend against its ceilings.
package ai

// Package fathom is an agentic retrieval-augmented question answering
// engine for Go.
//
// Given a question and one or more vector collections of embedded document
// chunks, it decomposes the question, routes it to relevant collections,
// retrieves and judges candidate chunks with an LLM, reflects on what is
// still missing, and synthesizes an answer with citations and a token cost.
//
// # Quick Start
//
// Wire an engine from a chat provider, an embedding provider, and a vector
// store:
//
//	llm := openaicompat.NewProvider(apiKey, "gpt-4o-mini", "https://api.openai.com/v1")
//	embedder := openaicompat.NewEmbedding(apiKey, "text-embedding-3-small", "https://api.openai.com/v1", 1536)
//	db, _ := chromem.New("fathom.db")
//
//	engine, err := fathom.NewEngine(llm, embedder, db,
//		fathom.MaxIter(3),
//		fathom.EarlyStopping(true),
//	)
//
//	answer, err := engine.Query(ctx, "How does chunk deduplication interact with reflection?")
//	fmt.Println(answer.Text, answer.Tokens)
//
// # Core Interfaces
//
// The root package defines the contracts all components implement:
//
//   - [Provider] — chat LLM backend
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [VectorDB] — collection-organized vector storage and search
//   - [Searcher] — one retrieval strategy ([DeepSearch], [ChainOfRAG], [NaiveSearch], [AgentRouter])
//
// # Included Implementations
//
// Providers: provider/openaicompat (OpenAI-compatible chat and embedding APIs),
// composed through provider/resolve.
// Stores: store/chromem (embedded), store/sqlite (local file), store/postgres
// (pgvector), store/qdrant.
// Ingestion: the ingest package loads files and websites, splits them with a
// sentence-window splitter, and writes embedded chunks to a store.
//
// See cmd/fathom for the CLI and HTTP server entrypoints.
package fathom

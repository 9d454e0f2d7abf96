package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for fathom observability spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")

	AttrTokensTotal = attribute.Key("llm.tokens.total")

	AttrEmbedTextCount  = attribute.Key("llm.embed.text_count")
	AttrEmbedDimensions = attribute.Key("llm.embed.dimensions")

	AttrDBCollection = attribute.Key("db.collection")
	AttrDBTopK       = attribute.Key("db.top_k")
	AttrDBResults    = attribute.Key("db.results")
	AttrDBChunks     = attribute.Key("db.chunks")
)

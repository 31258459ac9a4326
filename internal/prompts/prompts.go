package prompts

// ============================================================================
// Description Prompts (Vision Language Model)
// ============================================================================

// DescribeForIndexing asks a vision model for a short description whose
// wording will be embedded for semantic search.
const DescribeForIndexing = `Describe this image in detail for search indexing purposes. Include: objects, people, actions, setting, colors, text visible, and overall theme. Keep it concise but comprehensive (2-3 sentences).`

// DescribeSystemPrompt is sent as the system message to chat-style cloud models.
const DescribeSystemPrompt = `You write factual image descriptions for a search index. Describe only what is visible. Do not speculate about identities. Do not add preambles such as "This image shows".`

// ============================================================================
// Sentinels
// ============================================================================

// Sentinel texts returned in place of a description. They are never embedded.
const (
	// UnavailableFormat takes the provider name.
	UnavailableFormat = "Image description unavailable - %s provider not available"

	// GenerationFailed is returned when the provider answered without usable text.
	GenerationFailed = "Failed to generate image description"

	// ErrorFormat takes the error text.
	ErrorFormat = "Error generating description: %s"
)

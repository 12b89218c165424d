package memory

// truncationMarker separates the retained head and tail of compressed text.
const truncationMarker = "\n... [content truncated] ...\n"

// CompressForEmbedding shortens long content before it is sent to the
// embedding provider, keeping the head and tail where intent and outcome
// usually live. The stored message keeps the full content; only the text fed
// to the embedder is compressed.
func CompressForEmbedding(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	half := maxChars / 2
	return content[:half] + truncationMarker + content[len(content)-half:]
}

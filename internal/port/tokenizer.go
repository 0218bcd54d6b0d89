package port

// Tokenizer splits text into the terms the lexical index scores.
type Tokenizer interface {
	// Tokenize returns lowercase terms in order, including the extra
	// section and digit terms used for legal references.
	Tokenize(text string) []string

	// CountTokens estimates the model token count of text for chunk sizing.
	CountTokens(text string) int
}

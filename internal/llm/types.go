package llm

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest contains the parameters for an LLM completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
	// Confidence is a coarse self-assessment derived from the finish
	// reason at the provider boundary. Callers blend it with retrieval
	// similarity to score answers.
	Confidence float64
}

// confidenceForFinish maps a provider finish reason onto a confidence
// value: clean stops rate highest, truncated outputs lowest.
func confidenceForFinish(reason string) float64 {
	switch reason {
	case "stop", "end_turn", "stop_sequence":
		return 0.5
	case "length", "max_tokens":
		return 0.25
	default:
		return 0.3
	}
}

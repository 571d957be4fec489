package models

// ChatMessage is one role-tagged part of a completion prompt. The upstream
// model treats the order of parts as significant.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the body sent to the OpenRouter chat completions API.
type CompletionRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Messages  []ChatMessage `json:"messages"`
}

// CompletionResponse parses the reply out of choices[0].message.content.
type CompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

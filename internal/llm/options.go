package llm

// CompletionOption adjusts a CompletionRequest built by NewCompletionRequest.
type CompletionOption func(*CompletionRequest)

func WithTemperature(temperature float64) CompletionOption {
	return func(req *CompletionRequest) { req.Temperature = temperature }
}

func WithMaxTokens(maxTokens int) CompletionOption {
	return func(req *CompletionRequest) { req.MaxTokens = maxTokens }
}

// WithJSONMode is set by scorers, the JSON attacker mode and the model
// backed transformers.
func WithJSONMode() CompletionOption {
	return func(req *CompletionRequest) { req.JSONMode = true }
}

// NewCompletionRequest builds a request for model. An empty model lets the
// provider fall back to its configured default.
//
//	req := NewCompletionRequest("gpt-4o",
//	    []Message{NewSystemMessage(rubric), NewUserMessage(reply)},
//	    WithTemperature(0),
//	    WithJSONMode(),
//	)
func NewCompletionRequest(model string, messages []Message, opts ...CompletionOption) CompletionRequest {
	req := CompletionRequest{Model: model, Messages: messages}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}

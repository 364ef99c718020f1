package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// NewAllCallbacks aggregates the pipeline observers into one callbacks.Handler.
// Attach it via compose.WithCallbacks(...) when invoking the pipeline graph.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Lambda(newStageHandler()).
		Graph(newGraphHandler()).
		Handler()
}

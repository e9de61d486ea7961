package conversations

import "context"

type (
	Storage interface {
		GetConversation(ctx context.Context, phone string) (*State, error)
		SaveConversation(ctx context.Context, state State) error
	}
)

package interfaces

import "context"

type CommandArgs interface{}

// Command is a generic RPC command that can be requested for execution by the view with JSON arguments
type Command interface {
	// CreateArgs instantiates a JSON object that can be json.Unmarshal-ed into by the view to provide
	// named arguments for the command; nil means the command takes raw binary data instead
	CreateArgs() CommandArgs
	// Execute executes the command given the arguments provided by the view and returns
	// a json.Marshal-able result for the view
	Execute(ctx context.Context, args CommandArgs) (interface{}, error)
}

// ViewCommandHandler handles commands requested by the view
type ViewCommandHandler interface {
	CommandFor(view, command string) (Command, error)
}

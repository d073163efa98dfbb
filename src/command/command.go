package command

import (
	"time"

	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
)

// Command is one request over the transport's text path. Read and Error
// are called on the executor, and at most one of them fires per Send.
type Command interface {
	Name() string
	Body() types.Payload
	RequiresResponse() bool
	// Read handles the server's response.
	Read(response types.Payload)
	// Error handles a response timeout.
	Error()
}

// Send writes cmd and, when it requires a response, arms a timeout on exec.
// The returned close func discards whichever outcome has not fired yet. Send
// and close must be called on exec.
func Send(exec dispatch.Executor, t transport.Transport, cmd Command, timeout time.Duration) (close func()) {
	if !cmd.RequiresResponse() {
		t.Send(cmd.Name(), cmd.Body(), nil)
		return func() {}
	}

	var (
		done          bool
		cancelTimeout func()
	)
	finish := func() bool {
		if done {
			return false
		}
		done = true
		if cancelTimeout != nil {
			cancelTimeout()
		}
		return true
	}

	cancelTimeout = exec.PostDelayed(timeout, func() {
		if finish() {
			cmd.Error()
		}
	})
	t.Send(cmd.Name(), cmd.Body(), func(response types.Payload) {
		if finish() {
			cmd.Read(response)
		}
	})
	return func() { finish() }
}

// SimpleResponse is the success flag and error text most responses carry.
type SimpleResponse struct {
	Succeeded bool
	Error     string
}

// ParseSimpleResponse reads "success" and "error".
func ParseSimpleResponse(p types.Payload) SimpleResponse {
	return SimpleResponse{
		Succeeded: p.Bool(KeySuccess, false),
		Error:     p.String(KeyError, ""),
	}
}

func withRecipient(body types.Payload, recipient string) types.Payload {
	if recipient != "" {
		body[KeyRecipient] = recipient
	}
	return body
}

package command

import "github.com/orchestra-mcp/channel/src/types"

// LogonCommand authenticates the connection and joins the channel. Without
// a username and password the session connects listen-only.
type LogonCommand struct {
	AuthToken    string
	RefreshToken string
	Username     string
	Password     string
	Channel      string

	OnSuccess func(refreshToken string)
	OnFailure func(err *types.ConnectError)
}

func (c *LogonCommand) Name() string           { return Logon }
func (c *LogonCommand) RequiresResponse() bool { return true }

func (c *LogonCommand) Body() types.Payload {
	body := types.Payload{KeyChannel: c.Channel}
	if c.AuthToken != "" {
		body[KeyAuthToken] = c.AuthToken
	}
	if c.RefreshToken != "" {
		body[KeyRefreshToken] = c.RefreshToken
	}
	if c.Username != "" {
		body[KeyUsername] = c.Username
	}
	if c.Password != "" {
		body[KeyPassword] = c.Password
	}
	return body
}

func (c *LogonCommand) Read(response types.Payload) {
	r := ParseSimpleResponse(response)
	if r.Succeeded {
		c.OnSuccess(response.String(KeyRefreshToken, ""))
		return
	}
	switch r.Error {
	case ErrorNotAuthorized, ErrorInvalidPassword, ErrorInvalidUsername:
		c.OnFailure(&types.ConnectError{Kind: types.BadCredentials, Payload: response})
	default:
		c.OnFailure(&types.ConnectError{Kind: types.BadResponse, Payload: response})
	}
}

func (c *LogonCommand) Error() {
	c.OnFailure(&types.ConnectError{Kind: types.NoResponse})
}

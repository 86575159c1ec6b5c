package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	mferrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
)

// MinPasswordLength is enforced locally before registering.
const MinPasswordLength = 6

const connectFailed = "Unable to connect to the server. Please try again."

// Registration holds the fields of the register form.
type Registration struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Validate runs the local checks the server does not.
func (r Registration) Validate() error {
	if r.Password != r.ConfirmPassword {
		return mferrors.New(mferrors.KindRegistrationFailed, "Passwords do not match. Please try again.")
	}
	if len(r.Password) < MinPasswordLength {
		return mferrors.New(mferrors.KindRegistrationFailed, "Password must be at least 6 characters long.")
	}
	return nil
}

// LoginResult is a successful login.
type LoginResult struct {
	User      *User
	SessionID string
	// ExpiresAt is derived from the cookie's Max-Age or Expires; zero if unset.
	ExpiresAt time.Time
}

// withConnectDetail replaces the detail of a network error with the message
// shown on the login and register forms.
func withConnectDetail(err error) error {
	if mferrors.IsNetworkError(err) {
		return mferrors.Wrap(mferrors.KindNetworkError, connectFailed, err)
	}
	return err
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]string{
		"username": reg.Username,
		"email":    reg.Email,
		"password": reg.Password,
	})
	if err != nil {
		return err
	}

	resp, err := c.sendJSON(ctx, EndpointRegister, body, false)
	if err != nil {
		return withConnectDetail(err)
	}
	if !resp.ok() {
		detail := errorDetail(resp.body)
		if detail == "" {
			detail = "Unable to create account. Please try again."
		}
		return mferrors.WithStatus(mferrors.KindRegistrationFailed, resp.status, detail)
	}
	return nil
}

// Login authenticates and stores the session cookie in the client's jar.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.sendJSON(ctx, EndpointLogin, body, false)
	if err != nil {
		return nil, withConnectDetail(err)
	}
	if !resp.ok() {
		detail := errorDetail(resp.body)
		if detail == "" {
			detail = "Invalid username or password"
		}
		return nil, mferrors.WithStatus(mferrors.KindLoginFailed, resp.status, detail)
	}

	user, err := parseUser(resp.body)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{User: user}
	for _, ck := range (&http.Response{Header: resp.header}).Cookies() {
		if ck.Name != c.options.CookieName {
			continue
		}
		result.SessionID = ck.Value
		switch {
		case ck.MaxAge > 0:
			result.ExpiresAt = time.Now().Add(time.Duration(ck.MaxAge) * time.Second)
		case !ck.Expires.IsZero():
			result.ExpiresAt = ck.Expires
		}
	}
	if result.SessionID == "" {
		if v, ok := c.SessionCookie(); ok {
			result.SessionID = v
		}
	}
	if result.SessionID == "" {
		return nil, malformed("login response did not set %q", c.options.CookieName)
	}
	return result, nil
}

// Logout ends the server session and clears the local cookie. The cookie is
// cleared even when the server cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	defer c.ClearSession()

	resp, err := c.send(ctx, request{method: http.MethodPost, endpoint: EndpointLogout})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return statusError(mferrors.KindNetworkError, resp, "Logout failed: "+resp.statusText)
	}
	return nil
}

// Me returns the user for the current session. A missing or expired session
// yields AuthRequired; the session guard is not invoked.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user *User
	err := c.WithRetry(ctx, func() error {
		resp, err := c.send(ctx, request{method: http.MethodGet, endpoint: EndpointMe})
		if err != nil {
			return err
		}
		if !resp.ok() {
			return statusError(mferrors.KindNetworkError, resp, "Session check failed: "+resp.statusText)
		}
		user, err = parseUser(resp.body)
		return err
	})
	return user, err
}

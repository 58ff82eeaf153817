package client

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/edusphere/courseline/internal/domain"
)

// ensureCurrentUser resolves the logged-in account, from the server when
// reachable and from the local cache otherwise.
func (c *Client) ensureCurrentUser() error {
	usr, code, err := c.getCurrentUser()
	if err != nil {
		cached, cerr := c.repo.GetCurrentUser()
		if cerr != nil {
			if errors.Is(cerr, domain.ErrRecordNotFound) {
				return err // never synced, nothing to fall back on
			}
			return cerr
		}
		c.CurrentUsr = cached
		return nil
	}
	if code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	c.CurrentUsr = usr
	if err = c.repo.SaveCurrentUser(usr); err != nil {
		slog.Error(err.Error())
	}
	return nil
}

func (c *Client) getCurrentUser() (*domain.User, int, error) {
	r, err := http.NewRequest(http.MethodGet, getCurrentActiveUser, nil)
	if err != nil {
		slog.Error(err.Error())
		return nil, 0, ErrApplication
	}
	r.Header.Set("Authorization", "Bearer "+c.AuthToken)
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		slog.Error(err.Error())
		return nil, http.StatusServiceUnavailable, getMostNestedError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, resp.StatusCode, nil
	}
	readBody, _ := io.ReadAll(resp.Body)
	var res struct {
		User *domain.User `json:"user"`
	}
	if err = json.Unmarshal(readBody, &res); err != nil {
		slog.Error(err.Error())
		return nil, resp.StatusCode, ErrApplication
	}
	return res.User, resp.StatusCode, nil
}

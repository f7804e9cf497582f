package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/leonardcser/memo/internal/store"
)

// Client implements store.Store over a daemon's unix socket. Each call uses
// its own connection, so a Client is safe for concurrent use.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient returns a Client for the daemon listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 30 * time.Second}
}

// Ping checks that a daemon is accepting connections.
func (c *Client) Ping() error {
	conn, err := net.DialTimeout("unix", c.socketPath, 200*time.Millisecond)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (c *Client) do(req Request) (Response, error) {
	var resp Response
	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return resp, err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return resp, err
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return resp, err
	}
	if !resp.OK {
		switch resp.Code {
		case CodeNotFound:
			return resp, store.ErrNotFound
		case CodeClosed:
			return resp, store.ErrClosed
		}
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) Get(key []byte) ([]byte, error) {
	resp, err := c.do(Request{Op: OpGet, Key: key})
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return []byte{}, nil
	}
	return resp.Value, nil
}

func (c *Client) Put(key, value []byte) error {
	_, err := c.do(Request{Op: OpPut, Key: key, Value: value})
	return err
}

func (c *Client) Delete(key []byte) error {
	_, err := c.do(Request{Op: OpDelete, Key: key})
	return err
}

// ForEach fetches a snapshot of the whole store and walks it locally.
func (c *Client) ForEach(fn func(key, value []byte) error) error {
	resp, err := c.do(Request{Op: OpScan})
	if err != nil {
		return err
	}
	for _, p := range resp.Entries {
		if err := fn(p.Key, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the daemon owns the store.
func (c *Client) Close() error { return nil }

var _ store.Store = (*Client)(nil)

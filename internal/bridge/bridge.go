// Package bridge runs the external helper that pushes device renames and
// area changes into the home-automation device registry.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"planstore/internal/apperr"
)

// DefaultTimeout bounds a single helper invocation.
const DefaultTimeout = 20 * time.Second

// Updater is what the service needs from the bridge.
type Updater interface {
	UpdateName(ctx context.Context, id, name string) (json.RawMessage, error)
	UpdateArea(ctx context.Context, id, areaID string) (json.RawMessage, error)
}

// Client invokes `<NodeBin> <Script> --id <id> ...` and decodes its stdout.
type Client struct {
	NodeBin string
	Script  string
	Timeout time.Duration
}

// NewClient returns a Client; a non-positive timeout means DefaultTimeout.
func NewClient(nodeBin, script string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{NodeBin: nodeBin, Script: script, Timeout: timeout}
}

// UpdateName renames a device in the registry.
func (c *Client) UpdateName(ctx context.Context, id, name string) (json.RawMessage, error) {
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if id == "" {
		return nil, fmt.Errorf("%w: missing device id", apperr.ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: missing device name", apperr.ErrInvalidInput)
	}
	return c.run(ctx, "device name", "--id", id, "--name", name)
}

// UpdateArea moves a device to another area. An empty area id clears it.
func (c *Client) UpdateArea(ctx context.Context, id, areaID string) (json.RawMessage, error) {
	id, areaID = strings.TrimSpace(id), strings.TrimSpace(areaID)
	if id == "" {
		return nil, fmt.Errorf("%w: missing device id", apperr.ErrInvalidInput)
	}
	return c.run(ctx, "device area", "--id", id, "--area-id", areaID)
}

func (c *Client) run(ctx context.Context, what string, args ...string) (json.RawMessage, error) {
	if info, err := os.Stat(c.Script); err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: device update script is missing", apperr.ErrUpstreamUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, c.NodeBin, append([]string{c.Script}, args...)...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = time.Second

	if err := command.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out while updating %s", apperr.ErrUpstreamUnavailable, what)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", apperr.ErrUpstreamUnavailable, detail)
	}

	return decodeOutput(stdout.Bytes()), nil
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// decodeOutput passes JSON output through untouched. Anything else is
// wrapped as {"raw": "..."}; no output at all becomes {}.
func decodeOutput(out []byte) json.RawMessage {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(out) {
		return json.RawMessage(out)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(out)})
	return wrapped
}

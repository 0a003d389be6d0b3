// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qmp is a minimal client for the QEMU Machine Protocol.
//
// It supports exactly what is needed to control running VMs: the capabilities
// handshake and synchronous command execution. Asynchronous events are
// skipped.
package qmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoGreeting is returned if the server does not start with a QMP greeting.
var ErrNoGreeting = errors.New("no QMP greeting")

// Error is an error response of the server.
type Error struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	return e.Class + ": " + e.Desc
}

// Is implements the [errors.Is] interface.
func (*Error) Is(other error) bool {
	_, ok := other.(*Error)
	return ok
}

// Version is the QEMU version announced in the greeting.
type Version struct {
	QEMU struct {
		Major int `json:"major"`
		Minor int `json:"minor"`
		Micro int `json:"micro"`
	} `json:"qemu"`
	Package string `json:"package"`
}

// String implements [fmt.Stringer].
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.QEMU.Major, v.QEMU.Minor, v.QEMU.Micro)
}

type greeting struct {
	QMP *struct {
		Version      Version  `json:"version"`
		Capabilities []string `json:"capabilities"`
	} `json:"QMP"`
}

type request struct {
	Execute   string `json:"execute"`
	Arguments any    `json:"arguments,omitempty"`
	ID        string `json:"id"`
}

type response struct {
	Return jsoniter.RawMessage `json:"return"`
	Error  *Error              `json:"error"`
	Event  string              `json:"event"`
	ID     string              `json:"id"`
}

// Client is a connection to a QMP server. It is not safe for concurrent use.
type Client struct {
	conn    net.Conn
	decoder *jsoniter.Decoder
	encoder *jsoniter.Encoder
	version Version
}

// Dial connects to the QMP unix socket with the given path and negotiates
// capabilities.
func Dial(ctx context.Context, path string) (*Client, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	client := &Client{
		conn:    conn,
		decoder: json.NewDecoder(conn),
		encoder: json.NewEncoder(conn),
	}

	err = client.handshake(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return client, nil
}

func (c *Client) handshake(ctx context.Context) error {
	defer c.watch(ctx)()

	var greet greeting

	err := c.decoder.Decode(&greet)
	if err != nil {
		return c.wrapErr(ctx, fmt.Errorf("read greeting: %w", err))
	}

	if greet.QMP == nil {
		return ErrNoGreeting
	}

	c.version = greet.QMP.Version

	_, err = c.execute(ctx, "qmp_capabilities", nil)
	if err != nil {
		return fmt.Errorf("negotiate capabilities: %w", err)
	}

	return nil
}

// Version returns the QEMU version announced by the server.
func (c *Client) Version() Version {
	return c.version
}

// Execute runs the given command with optional arguments and returns the raw
// return value. An error response is returned as [*Error].
func (c *Client) Execute(
	ctx context.Context,
	command string,
	args any,
) (jsoniter.RawMessage, error) {
	defer c.watch(ctx)()

	return c.execute(ctx, command, args)
}

func (c *Client) execute(
	ctx context.Context,
	command string,
	args any,
) (jsoniter.RawMessage, error) {
	req := request{
		Execute:   command,
		Arguments: args,
		ID:        uuid.NewString(),
	}

	err := c.encoder.Encode(req)
	if err != nil {
		return nil, c.wrapErr(ctx, fmt.Errorf("send %s: %w", command, err))
	}

	for {
		var resp response

		err := c.decoder.Decode(&resp)
		if err != nil {
			return nil, c.wrapErr(ctx, fmt.Errorf("read %s response: %w", command, err))
		}

		if resp.Event != "" || resp.ID != req.ID {
			continue
		}

		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", command, resp.Error)
		}

		return resp.Return, nil
	}
}

// Quit terminates QEMU immediately. The server closing the connection before
// it responded is considered success.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.Execute(ctx, "quit", nil)
	if err != nil && (ctx.Err() != nil || !errors.Is(err, io.EOF)) {
		return err
	}

	return nil
}

// SystemPowerdown sends an ACPI power button event to the guest. The guest
// decides how to handle it, like shutting down or hibernating.
func (c *Client) SystemPowerdown(ctx context.Context) error {
	_, err := c.Execute(ctx, "system_powerdown", nil)
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// watch interrupts pending connection IO once the context is done. The
// returned function must be called once the operation is done.
func (c *Client) watch(ctx context.Context) func() {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})

	return func() {
		stop()
		_ = c.conn.SetDeadline(time.Time{})
	}
}

func (c *Client) wrapErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}

	return err
}

package transport

import (
	"encoding/json"
	"fmt"
	"os"
)

// Channel names one of the five kernel sockets.
type Channel string

const (
	Shell     Channel = "shell"
	Control   Channel = "control"
	IOPub     Channel = "iopub"
	Stdin     Channel = "stdin"
	Heartbeat Channel = "hb"
)

// Channels lists every kernel channel in bind order.
var Channels = []Channel{Shell, Control, IOPub, Stdin, Heartbeat}

// ConnectionInfo is the content of a kernel connection file.
type ConnectionInfo struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	ShellPort       int    `json:"shell_port"`
	ControlPort     int    `json:"control_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	HBPort          int    `json:"hb_port"`
	SignatureScheme string `json:"signature_scheme"`
	Key             string `json:"key"`
	KernelName      string `json:"kernel_name,omitempty"`
}

// Port returns the configured port for ch.
func (c ConnectionInfo) Port(ch Channel) (int, error) {
	switch ch {
	case Shell:
		return c.ShellPort, nil
	case Control:
		return c.ControlPort, nil
	case IOPub:
		return c.IOPubPort, nil
	case Stdin:
		return c.StdinPort, nil
	case Heartbeat:
		return c.HBPort, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
}

// Endpoint returns the address ch binds to: tcp://ip:port for TCP and
// ipc://ip-port for IPC, matching the naming other kernels use.
func (c ConnectionInfo) Endpoint(ch Channel) (string, error) {
	port, err := c.Port(ch)
	if err != nil {
		return "", err
	}

	switch c.Transport {
	case "ipc":
		return fmt.Sprintf("ipc://%s-%d", c.IP, port), nil
	default:
		return fmt.Sprintf("%s://%s:%d", c.Transport, c.IP, port), nil
	}
}

// LoadConnectionFile reads a connection file written by the front-end.
// An empty transport defaults to tcp.
func LoadConnectionFile(path string) (ConnectionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConnectionInfo{}, fmt.Errorf("failed to read connection file: %w", err)
	}

	var info ConnectionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return ConnectionInfo{}, fmt.Errorf("failed to parse connection file: %w", err)
	}

	if info.Transport == "" {
		info.Transport = "tcp"
	}
	return info, nil
}

package transport

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
)

// ZMQProvider serves channels over ZeroMQ sockets for the tcp and ipc transports.
type ZMQProvider struct{}

func (ZMQProvider) Name() string {
	return "zmq"
}

func (ZMQProvider) Supports(transport string) bool {
	return transport == "tcp" || transport == "ipc"
}

func (ZMQProvider) Listen(ctx context.Context, kind SocketKind, endpoint string) (Socket, error) {
	var sock zmq4.Socket
	switch kind {
	case Router:
		sock = zmq4.NewRouter(ctx)
	case Pub:
		sock = zmq4.NewPub(ctx)
	case Rep:
		sock = zmq4.NewRep(ctx)
	default:
		return nil, fmt.Errorf("%w: unsupported socket kind %s", ErrConfiguration, kind)
	}

	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("listen %s %s: %w", kind, endpoint, err)
	}

	return &zmqSocket{sock: sock}, nil
}

type zmqSocket struct {
	sock zmq4.Socket
}

func (s *zmqSocket) Recv(ctx context.Context) ([][]byte, error) {
	msg, err := s.sock.Recv()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return msg.Frames, nil
}

func (s *zmqSocket) Send(_ context.Context, frames [][]byte) error {
	if len(frames) == 1 {
		return s.sock.Send(zmq4.NewMsg(frames[0]))
	}
	return s.sock.SendMulti(zmq4.NewMsgFrom(frames...))
}

func (s *zmqSocket) Close() error {
	return s.sock.Close()
}

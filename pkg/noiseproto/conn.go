// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package noiseproto

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
)

// MaxMessageSize bounds a reassembled message.
const MaxMessageSize = 1 << 20

// prologue binds both sides to this protocol version.
var prologue = []byte("certpin-noise/1")

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Conn is an established Noise session over a net.Conn. Messages larger
// than one frame are split into MaxPlaintextSize chunks; a chunk shorter
// than that ends the message.
type Conn struct {
	conn   net.Conn
	sendMu sync.Mutex
	send   *noise.CipherState
	recvMu sync.Mutex
	recv   *noise.CipherState

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to addr and performs the NK handshake against serverKey.
func Dial(ctx context.Context, addr string, serverKey []byte, timeout time.Duration) (*Conn, error) {
	if len(serverKey) != KeySize {
		return nil, fmt.Errorf("%w: server key must be %d bytes, got %d", ErrInvalidKeySize, KeySize, len(serverKey))
	}

	dialer := &net.Dialer{Timeout: timeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, addr, err)
	}

	c, err := Initiate(raw, serverKey, deadlineFrom(ctx, timeout))
	if err != nil {
		raw.Close()
		return nil, err
	}
	return c, nil
}

// Initiate runs the client side of the handshake over conn.
//
//	-> e, es
//	<- e, ee
func Initiate(conn net.Conn, serverKey []byte, deadline time.Time) (*Conn, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite: cipherSuite,
		Pattern:     noise.HandshakeNK,
		Initiator:   true,
		Prologue:    prologue,
		PeerStatic:  serverKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init: %w", ErrHandshakeFailed, err)
	}

	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: write msg1: %w", ErrHandshakeFailed, err)
	}
	if err := WriteFrame(conn, msg1, deadline); err != nil {
		return nil, fmt.Errorf("%w: send msg1: %w", ErrHandshakeFailed, err)
	}

	msg2, err := ReadFrame(conn, deadline)
	if err != nil {
		return nil, fmt.Errorf("%w: read msg2: %w", ErrHandshakeFailed, err)
	}
	_, send, recv, err := hs.ReadMessage(nil, msg2)
	if err != nil {
		return nil, fmt.Errorf("%w: process msg2: %w", ErrHandshakeFailed, err)
	}
	if send == nil || recv == nil {
		return nil, fmt.Errorf("%w: handshake did not complete", ErrHandshakeFailed)
	}
	return &Conn{conn: conn, send: send, recv: recv}, nil
}

// Respond runs the server side of the handshake over conn.
func Respond(conn net.Conn, staticKey *noise.DHKey, deadline time.Time) (*Conn, error) {
	if staticKey == nil {
		return nil, fmt.Errorf("%w: static key is required", ErrInvalidConfig)
	}
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeNK,
		Initiator:     false,
		Prologue:      prologue,
		StaticKeypair: *staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: init: %w", ErrHandshakeFailed, err)
	}

	msg1, err := ReadFrame(conn, deadline)
	if err != nil {
		return nil, fmt.Errorf("%w: read msg1: %w", ErrHandshakeFailed, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, fmt.Errorf("%w: process msg1: %w", ErrHandshakeFailed, err)
	}

	msg2, recv, send, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: write msg2: %w", ErrHandshakeFailed, err)
	}
	if err := WriteFrame(conn, msg2, deadline); err != nil {
		return nil, fmt.Errorf("%w: send msg2: %w", ErrHandshakeFailed, err)
	}
	return &Conn{conn: conn, send: send, recv: recv}, nil
}

// Send encrypts and writes msg. A message that is an exact multiple of
// MaxPlaintextSize is followed by an empty chunk so the receiver can tell
// where it ends. Concurrent calls are serialized.
func (c *Conn) Send(msg []byte, deadline time.Time) error {
	if len(msg) > MaxMessageSize {
		return fmt.Errorf("%w: message size %d exceeds maximum %d", ErrEncryptionFailed, len(msg), MaxMessageSize)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	for {
		n := min(len(msg), MaxPlaintextSize)
		ciphertext, err := c.send.Encrypt(nil, nil, msg[:n])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
		}
		if err := WriteFrame(c.conn, ciphertext, deadline); err != nil {
			return err
		}
		msg = msg[n:]
		if n < MaxPlaintextSize {
			return nil
		}
	}
}

// Receive reads and decrypts one message, reassembling chunks until one is
// shorter than MaxPlaintextSize. Messages over MaxMessageSize fail with
// ErrFrameTooLarge.
func (c *Conn) Receive(deadline time.Time) ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	var msg []byte
	for {
		frame, err := ReadFrame(c.conn, deadline)
		if err != nil {
			return nil, err
		}
		chunk, err := c.recv.Decrypt(nil, nil, frame)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
		}
		if len(msg)+len(chunk) > MaxMessageSize {
			return nil, fmt.Errorf("%w: message exceeds %d bytes", ErrFrameTooLarge, MaxMessageSize)
		}
		msg = append(msg, chunk...)
		if len(chunk) < MaxPlaintextSize {
			return msg, nil
		}
	}
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection, unblocking pending reads and
// writes. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// deadlineFrom prefers the context deadline over now+timeout.
func deadlineFrom(ctx context.Context, timeout time.Duration) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(timeout)
}

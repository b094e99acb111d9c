// Package wire implements the length-prefixed framing used on every
// shelf socket, client-to-server and node-to-node alike.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ReadTimeout bounds how long Unframe waits for a header or body before
// giving up on a peer, so a handler never blocks forever on a dead
// connection.
const ReadTimeout = 2 * time.Second

// MaxFrameSize caps a single decoded frame. The wire format allows any
// uint32 length; this just keeps a misbehaving or malicious peer from
// making a handler allocate gigabytes for one frame.
const MaxFrameSize = 64 << 20

// ErrFrame is returned for any framing failure: a short header, a
// timeout, a peer closing mid-frame, or an oversized length.
var ErrFrame = errors.New("wire: frame error")

// Frame writes s to conn prefixed with its byte length as an unsigned
// 32-bit big-endian integer.
func Frame(conn net.Conn, s string) error {
	payload := []byte(s)
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))

	if _, err := conn.Write(append(header, payload...)); err != nil {
		return fmt.Errorf("wire: write: %w", err)
	}
	return nil
}

// Unframe reads exactly one frame off conn: a 4-byte big-endian length
// header followed by that many bytes of UTF-8 payload. Each read is
// bounded by ReadTimeout. A short read, a peer closing mid-frame, or a
// length exceeding MaxFrameSize all produce ErrFrame.
func Unframe(conn net.Conn) (string, error) {
	header, err := readFull(conn, 4)
	if err != nil {
		return "", err
	}

	length := binary.BigEndian.Uint32(header)
	if length > MaxFrameSize {
		return "", fmt.Errorf("%w: frame too large (%d bytes)", ErrFrame, length)
	}

	body, err := readFull(conn, int(length))
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// readFull reads exactly n bytes from conn, looping over partial reads,
// applying ReadTimeout to the whole operation.
func readFull(conn net.Conn, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}

	if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %v", ErrFrame, err)
	}
	defer conn.SetReadDeadline(time.Time{})

	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := conn.Read(buf[read:])
		read += m
		if err != nil {
			if errors.Is(err, io.EOF) && read == n {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrFrame, err)
		}
	}
	return buf, nil
}

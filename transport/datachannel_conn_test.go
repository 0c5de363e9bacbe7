// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

func TestDataChannelConn_ReadWrite(t *testing.T) {
	// io.Pipe stands in for a detached data channel.
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	clientStream := &pipeReadWriteCloser{Reader: clientReader, Writer: clientWriter}
	serverStream := &pipeReadWriteCloser{Reader: serverReader, Writer: serverWriter}

	clientConn := NewDataChannelConn(clientStream, "client/dc-1", "server/dc-1")
	serverConn := NewDataChannelConn(serverStream, "server/dc-1", "client/dc-1")
	defer clientConn.Close()
	defer serverConn.Close()

	// Write from client, read from server.
	message := []byte("hello from client")
	go func() {
		if _, err := clientConn.Write(message); err != nil {
			t.Errorf("Write error: %v", err)
		}
	}()

	buffer := make([]byte, 256)
	bytesRead, err := serverConn.Read(buffer)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(buffer[:bytesRead]) != "hello from client" {
		t.Errorf("read = %q, want %q", string(buffer[:bytesRead]), "hello from client")
	}
}

// messageStream mimics a detached data channel: every Write is one
// message, and Read fails with io.ErrShortBuffer if the buffer cannot
// hold the next whole message.
type messageStream struct {
	mu       sync.Mutex
	messages [][]byte
	writes   [][]byte
}

func (s *messageStream) Read(buffer []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return 0, io.EOF
	}
	message := s.messages[0]
	if len(buffer) < len(message) {
		return 0, io.ErrShortBuffer
	}
	s.messages = s.messages[1:]
	return copy(buffer, message), nil
}

func (s *messageStream) Write(buffer []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, bytes.Clone(buffer))
	return len(buffer), nil
}

func (s *messageStream) Close() error { return nil }

func TestDataChannelConn_SmallReadsSpanMessages(t *testing.T) {
	stream := &messageStream{messages: [][]byte{[]byte("hello "), []byte("world")}}
	conn := NewDataChannelConn(stream, "local", "remote")

	header := make([]byte, 3)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(header) != "hel" {
		t.Errorf("first read = %q, want %q", header, "hel")
	}
	rest, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(rest) != "lo world" {
		t.Errorf("rest = %q, want %q", rest, "lo world")
	}
}

func TestDataChannelConn_LargeWriteIsSplit(t *testing.T) {
	stream := &messageStream{}
	conn := NewDataChannelConn(stream, "local", "remote")

	payload := bytes.Repeat([]byte{0x5a}, 2*maxWriteMessage+10)
	written, err := conn.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written != len(payload) {
		t.Errorf("written = %d, want %d", written, len(payload))
	}
	if len(stream.writes) != 3 {
		t.Fatalf("messages = %d, want 3", len(stream.writes))
	}
	for index, message := range stream.writes {
		if len(message) > maxWriteMessage {
			t.Errorf("message %d has %d bytes, exceeds %d", index, len(message), maxWriteMessage)
		}
	}
	if !bytes.Equal(bytes.Join(stream.writes, nil), payload) {
		t.Error("reassembled messages differ from payload")
	}
}

func TestDataChannelConn_Addresses(t *testing.T) {
	stream := &pipeReadWriteCloser{Reader: io.NopCloser(nil).(io.Reader), Writer: io.Discard}
	conn := NewDataChannelConn(stream, "local/dc-1", "remote/dc-1")

	if conn.LocalAddr().Network() != "webrtc" {
		t.Errorf("LocalAddr().Network() = %q, want %q", conn.LocalAddr().Network(), "webrtc")
	}
	if conn.LocalAddr().String() != "local/dc-1" {
		t.Errorf("LocalAddr().String() = %q, want %q", conn.LocalAddr().String(), "local/dc-1")
	}
	if conn.RemoteAddr().Network() != "webrtc" {
		t.Errorf("RemoteAddr().Network() = %q, want %q", conn.RemoteAddr().Network(), "webrtc")
	}
	if conn.RemoteAddr().String() != "remote/dc-1" {
		t.Errorf("RemoteAddr().String() = %q, want %q", conn.RemoteAddr().String(), "remote/dc-1")
	}
}

func TestDataChannelConn_ImplementsNetConn(t *testing.T) {
	stream := &pipeReadWriteCloser{Reader: io.NopCloser(nil).(io.Reader), Writer: io.Discard}
	conn := NewDataChannelConn(stream, "a", "b")
	var _ net.Conn = conn
	conn.Close()
}

func TestDataChannelConn_DeadlineClosesStream(t *testing.T) {
	reader, writer := io.Pipe()
	stream := &pipeReadWriteCloser{Reader: reader, Writer: writer}
	conn := NewDataChannelConn(stream, "local", "remote")

	// Set a deadline that fires immediately.
	conn.SetReadDeadline(time.Now().Add(-1 * time.Second))

	// The underlying pipe should be closed, causing reads to fail.
	buffer := make([]byte, 10)
	_, err := conn.Read(buffer)
	if err == nil {
		t.Fatal("expected error from Read after expired deadline, got nil")
	}
}

func TestDataChannelConn_ClearDeadline(t *testing.T) {
	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	clientStream := &pipeReadWriteCloser{Reader: clientReader, Writer: clientWriter}
	serverStream := &pipeReadWriteCloser{Reader: serverReader, Writer: serverWriter}

	clientConn := NewDataChannelConn(clientStream, "client", "server")
	serverConn := NewDataChannelConn(serverStream, "server", "client")
	defer clientConn.Close()
	defer serverConn.Close()

	// Set and then clear a deadline. The clear (zero time) should prevent
	// the deadline from firing.
	clientConn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	clientConn.SetReadDeadline(time.Time{})

	// Wait past the original deadline.
	time.Sleep(100 * time.Millisecond)

	// The connection should still be alive.
	message := []byte("still alive")
	go func() {
		serverConn.Write(message)
	}()

	buffer := make([]byte, 256)
	bytesRead, err := clientConn.Read(buffer)
	if err != nil {
		t.Fatalf("Read error after clearing deadline: %v", err)
	}
	if string(buffer[:bytesRead]) != "still alive" {
		t.Errorf("read = %q, want %q", string(buffer[:bytesRead]), "still alive")
	}
}

func TestDataChannelConn_CloseStopsTimers(t *testing.T) {
	reader, writer := io.Pipe()
	stream := &pipeReadWriteCloser{Reader: reader, Writer: writer}
	conn := NewDataChannelConn(stream, "local", "remote")

	// Set a future deadline, then close. The timer should be cleaned up.
	conn.SetDeadline(time.Now().Add(1 * time.Hour))
	conn.Close()

	// After close, the underlying pipe should be closed.
	_, err := reader.Read(make([]byte, 1))
	if err == nil {
		t.Fatal("expected error after Close, got nil")
	}
}

// pipeReadWriteCloser combines separate io.Reader and io.Writer into an
// io.ReadWriteCloser. Closing closes the reader (if closable) and writer
// (if closable).
type pipeReadWriteCloser struct {
	io.Reader
	io.Writer
	closed bool
}

func (p *pipeReadWriteCloser) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	var firstError error
	if closer, ok := p.Reader.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			firstError = err
		}
	}
	if closer, ok := p.Writer.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}
	return firstError
}

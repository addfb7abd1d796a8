package backendsandbox

import (
	"bufio"
	"context"
	"io"
	"testing"
)

// pipeConn joins a read half and write half into the single
// io.ReadWriteCloser shape ContainerExecAttach hands back in production.
type pipeConn struct {
	io.Reader
	io.Writer
	closed bool
}

func (p *pipeConn) Close() error {
	p.closed = true
	return nil
}

func TestSessionWriteAppendsNewline(t *testing.T) {
	r, w := io.Pipe()
	conn := &pipeConn{Reader: r, Writer: w}
	s := &session{conn: conn, reader: bufio.NewReader(r)}

	go func() {
		if err := s.Write(context.Background(), []byte(`{"type":"ping"}`)); err != nil {
			t.Errorf("write: %v", err)
		}
	}()

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if line != "{\"type\":\"ping\"}\n" {
		t.Fatalf("expected newline-terminated frame, got %q", line)
	}
}

func TestSessionReadTrimsLineEnding(t *testing.T) {
	r, w := io.Pipe()
	s := &session{conn: &pipeConn{Reader: r, Writer: w}, reader: bufio.NewReader(r)}

	go func() {
		_, _ = w.Write([]byte("{\"type\":\"pong\"}\n"))
	}()

	frame, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(frame) != `{"type":"pong"}` {
		t.Fatalf("expected trimmed frame, got %q", frame)
	}
}

func TestSessionCloseClosesUnderlyingConn(t *testing.T) {
	r, w := io.Pipe()
	conn := &pipeConn{Reader: r, Writer: w}
	s := &session{conn: conn, reader: bufio.NewReader(r)}

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !conn.closed {
		t.Fatal("expected underlying conn to be closed")
	}
}

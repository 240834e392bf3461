package hpctransport

import (
	"fmt"
	"io"
)

// Handle is a single remote exec in flight: a readable stdout stream and
// a kill operation the streaming engine can call on client cancellation.
type Handle struct {
	Stdout io.Reader
	sess   sessionCloser
}

type sessionCloser interface {
	Wait() error
	Close() error
}

// Exec starts command on sess (typically obtained from Pool.Session),
// writing stdin to the remote process when non-empty and, when closeIn is
// true, closing it afterward so the remote side sees EOF.
func Exec(sess SessionRunner, command string, stdin []byte, closeIn bool) (*Handle, error) {
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("hpctransport: attaching stdout pipe: %w", err)
	}

	if len(stdin) > 0 {
		stdinPipe, err := sess.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("hpctransport: attaching stdin pipe: %w", err)
		}
		if _, err := stdinPipe.Write(stdin); err != nil {
			return nil, fmt.Errorf("hpctransport: writing stdin: %w", err)
		}
		if closeIn {
			_ = stdinPipe.Close()
		}
	}

	if err := sess.Start(command); err != nil {
		return nil, fmt.Errorf("hpctransport: starting remote command: %w", err)
	}

	return &Handle{Stdout: stdout, sess: sess}, nil
}

// SessionRunner is the subset of *ssh.Session the exec path needs,
// narrowed so tests can substitute a fake without a real SSH connection.
type SessionRunner interface {
	StdoutPipe() (io.Reader, error)
	StdinPipe() (io.WriteCloser, error)
	Start(cmd string) error
	Wait() error
	Close() error
}

// Read satisfies streaming.RemoteProcess by delegating to the attached
// stdout pipe.
func (h *Handle) Read(p []byte) (int, error) {
	return h.Stdout.Read(p)
}

// Kill terminates the underlying remote process and waits for it to
// exit, used on client disconnect (spec.md §4.7).
func (h *Handle) Kill() error {
	err := h.sess.Close()
	_ = h.sess.Wait()
	return err
}

// Wait blocks until the remote command exits.
func (h *Handle) Wait() error {
	return h.sess.Wait()
}

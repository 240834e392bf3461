package hpctransport

import (
	"net"
	"testing"

	"golang.org/x/crypto/ssh"
)

// startTestSSHServer spins up a minimal in-process SSH server that accepts
// any password and replies to every "exec" request with a zero exit status
// and no output. It exists so Pool and Liveness can be exercised without a
// real HPC head node.
func startTestSSHServer(t *testing.T) (addr string, cleanup func()) {
	t.Helper()

	signer, err := ssh.NewSignerFromKey(testHostKey(t))
	if err != nil {
		t.Fatalf("generating host key signer: %v", err)
	}

	config := &ssh.ServerConfig{NoClientAuth: true}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleTestConn(conn, config)
		}
	}()

	return listener.Addr().String(), func() { _ = listener.Close() }
}

func handleTestConn(conn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		channel, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer channel.Close()
			for req := range requests {
				if req.WantReply {
					_ = req.Reply(true, nil)
				}
				if req.Type == "exec" {
					_, _ = channel.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
					return
				}
			}
		}()
	}
}

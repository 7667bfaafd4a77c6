package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// testServer is a minimal in-process sshd that accepts one password and
// answers exec requests through handler.
type testServer struct {
	port     int
	mu       sync.Mutex
	commands []string
}

func startTestServer(t *testing.T, password string, handler func(cmd string) (string, uint32)) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() == "root" && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %s", meta.User())
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ts := &testServer{port: ln.Addr().(*net.TCPAddr).Port}
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go ts.serve(nc, cfg, handler)
		}
	}()
	return ts
}

func (ts *testServer) serve(nc net.Conn, cfg *ssh.ServerConfig, handler func(string) (string, uint32)) {
	conn, chans, reqs, err := ssh.NewServerConn(nc, cfg)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer func() { _ = ch.Close() }()
			for req := range chReqs {
				if req.Type != "exec" {
					if req.WantReply {
						_ = req.Reply(false, nil)
					}
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				ts.mu.Lock()
				ts.commands = append(ts.commands, payload.Command)
				ts.mu.Unlock()

				out, status := handler(payload.Command)
				_, _ = ch.Write([]byte(out))
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func (ts *testServer) seen() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]string(nil), ts.commands...)
}

func newTestClient(port int) *Client {
	return NewClient(Config{
		Port:       port,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	}, nil)
}

func TestNewClient_AppliesDefaults(t *testing.T) {
	c := NewClient(Config{}, nil)

	assert.Equal(t, defaultPort, c.config.Port)
	assert.Equal(t, defaultDialTimeout, c.config.DialTimeout)
	assert.Equal(t, defaultMaxRetries, c.config.MaxRetries)
	assert.Equal(t, defaultRetryDelay, c.config.RetryDelay)
	assert.NotNil(t, c.config.HostKeyCallback)
}

func TestExecute(t *testing.T) {
	ts := startTestServer(t, "template-pw", func(cmd string) (string, uint32) {
		return "ran: " + cmd, 0
	})
	c := newTestClient(ts.port)

	out, err := c.Execute(context.Background(), "127.0.0.1", Credentials{User: "root", Password: "template-pw"}, "hostname")
	require.NoError(t, err)
	assert.Equal(t, "ran: hostname", out)
}

func TestRun_OrderAndStopOnFailure(t *testing.T) {
	ts := startTestServer(t, "pw", func(cmd string) (string, uint32) {
		if cmd == "false" {
			return "boom", 1
		}
		return "", 0
	})
	c := newTestClient(ts.port)

	outputs, err := c.Run(context.Background(), "127.0.0.1", Credentials{User: "root", Password: "pw"},
		"true", "false", "never")

	require.Error(t, err)
	assert.Len(t, outputs, 2)
	assert.Equal(t, []string{"true", "false"}, ts.seen())
	assert.Contains(t, err.Error(), "boom")
}

func TestRun_AuthFailureNotRetried(t *testing.T) {
	ts := startTestServer(t, "right", func(string) (string, uint32) { return "", 0 })
	c := NewClient(Config{Port: ts.port, MaxRetries: 5, RetryDelay: time.Second}, nil)

	start := time.Now()
	_, err := c.Execute(context.Background(), "127.0.0.1", Credentials{User: "root", Password: "wrong"}, "true")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to authenticate")
	assert.Less(t, time.Since(start), time.Second, "authentication failures must not be retried")
}

func TestRun_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	c := newTestClient(port)
	_, err = c.Execute(context.Background(), "127.0.0.1", Credentials{User: "root", Password: "pw"}, "true")

	require.Error(t, err)
	assert.Contains(t, err.Error(), net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
}

func TestRun_Validation(t *testing.T) {
	c := newTestClient(22)

	_, err := c.Run(context.Background(), "", Credentials{User: "root"}, "true")
	assert.Error(t, err)
	_, err = c.Run(context.Background(), "10.0.0.1", Credentials{}, "true")
	assert.Error(t, err)
}

func TestFirstWord(t *testing.T) {
	assert.Equal(t, "chpasswd", firstWord("chpasswd <<< 'root:secret'"))
	assert.Equal(t, "true", firstWord("true"))
}

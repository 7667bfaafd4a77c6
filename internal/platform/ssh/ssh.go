package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/leasehold/internal/resilience"
	"github.com/imamik/leasehold/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultMaxRetries  = 10
	defaultRetryDelay  = 3 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Credentials authenticate a remote session.
type Credentials struct {
	User     string
	Password string
}

// Config holds SSH client configuration.
type Config struct {
	Port int

	// DialTimeout is the timeout for establishing the TCP connection.
	// If zero, defaultDialTimeout is used.
	DialTimeout time.Duration

	// MaxRetries is the maximum number of connection retry attempts.
	// If zero, defaultMaxRetries is used.
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts.
	// If zero, defaultRetryDelay is used.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification.
	// If nil, ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on remote containers via SSH.
type Client struct {
	config  Config
	breaker *resilience.Breaker
}

// NewClient creates a new SSH client. If breaker is nil a breaker with
// resilience.ShellPolicy is created.
func NewClient(cfg Config, breaker *resilience.Breaker) *Client {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.HostKeyCallback == nil {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // containers are new, their host keys unknown
	}
	if breaker == nil {
		breaker = resilience.New(resilience.ShellPolicy())
	}
	return &Client{config: cfg, breaker: breaker}
}

// Execute runs a single command on host and returns its combined output.
func (c *Client) Execute(ctx context.Context, host string, creds Credentials, command string) (string, error) {
	outputs, err := c.Run(ctx, host, creds, command)
	if len(outputs) == 0 {
		return "", err
	}
	return outputs[len(outputs)-1], err
}

// Run executes commands in order over one connection, each in its own
// session, stopping at the first failure. It returns the outputs of the
// commands that ran.
func (c *Client) Run(ctx context.Context, host string, creds Credentials, commands ...string) ([]string, error) {
	if host == "" {
		return nil, fmt.Errorf("host cannot be empty")
	}
	if creds.User == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	var outputs []string
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		client, err := c.connect(ctx, host, creds)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		for _, cmd := range commands {
			out, err := c.runCommand(ctx, client, host, cmd)
			outputs = append(outputs, out)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return outputs, err
}

// connect establishes SSH connection with retry logic.
func (c *Client) connect(ctx context.Context, host string, creds Credentials) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User: creds.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = creds.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(c.config.Port))
	var client *ssh.Client

	err := retry.WithExponentialBackoff(ctx, func() error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		if dialErr != nil && isAuthFailure(dialErr) {
			return retry.Fatal(dialErr)
		}
		return dialErr
	},
		retry.WithMaxRetries(c.config.MaxRetries),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}
	return client, nil
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

// runCommand executes a command on an established SSH session.
func (c *Client) runCommand(ctx context.Context, client *ssh.Client, host, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", host, err)
	}
	defer func() { _ = session.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-done:
		}
	}()

	output, err := session.CombinedOutput(command)
	if err != nil {
		// Commands carry passwords; only the first word is safe to report.
		return string(output), fmt.Errorf("command %q failed on %s: %w\nOutput: %s",
			firstWord(command), host, err, string(output))
	}
	return string(output), nil
}

func firstWord(command string) string {
	if i := strings.IndexAny(command, " \t"); i > 0 {
		return command[:i]
	}
	return command
}

package lock

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyPrefix namespaces lock keys on a shared server.
const KeyPrefix = "riskmodel:lock:"

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// ErrLockLost is returned by Release when the lock expired or changed owner.
var ErrLockLost = errors.New("lock no longer held")

// ValkeyConfig holds connection parameters for the Valkey server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
	// TTL bounds how long a crashed holder blocks others.
	TTL time.Duration
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration
}

// ValkeyLocker implements Locker with SET NX PX on a Valkey/Redis-compatible server.
type ValkeyLocker struct {
	cfg ValkeyConfig
}

// NewValkeyLocker creates a Locker using the supplied configuration. It pings
// the server to fail fast when credentials or connectivity are incorrect.
func NewValkeyLocker(cfg ValkeyConfig) (*ValkeyLocker, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}

	normaliseConfig(&cfg)
	l := &ValkeyLocker{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := l.ping(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Acquire polls until the key is set with a fresh token or ctx is done.
func (l *ValkeyLocker) Acquire(ctx context.Context, key string) (Release, error) {
	fullKey := KeyPrefix + key
	token := uuid.NewString()
	for {
		ok, err := l.setNX(ctx, fullKey, token, l.cfg.TTL)
		if err != nil {
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error { return l.release(ctx, fullKey, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

// Close is a no-op; connections are per command.
func (l *ValkeyLocker) Close() error { return nil }

func (l *ValkeyLocker) setNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var ok bool
	err := l.withConn(ctx, func(vc *valkeyConn) error {
		args := []string{"SET", key, value}
		if ttl > 0 {
			args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
		}
		args = append(args, "NX")
		if err := vc.writeStrings(args...); err != nil {
			return err
		}
		reply, err := vc.readReply()
		if err != nil {
			return err
		}
		switch reply.typ {
		case replySimpleString:
			ok = true
			return nil
		case replyNil:
			ok = false
			return nil
		default:
			return fmt.Errorf("unexpected SET NX response type: %s", reply.typ)
		}
	})
	return ok, err
}

func (l *ValkeyLocker) release(ctx context.Context, key, token string) error {
	return l.withConn(ctx, func(vc *valkeyConn) error {
		if err := vc.writeStrings("EVAL", releaseScript, "1", key, token); err != nil {
			return err
		}
		reply, err := vc.readReply()
		if err != nil {
			return err
		}
		if reply.typ != replyInteger {
			return fmt.Errorf("unexpected EVAL response type: %s", reply.typ)
		}
		if string(reply.data) == "0" {
			return ErrLockLost
		}
		return nil
	})
}

func (l *ValkeyLocker) ping(ctx context.Context) error {
	return l.withConn(ctx, func(vc *valkeyConn) error {
		if err := vc.writeStrings("PING"); err != nil {
			return err
		}
		reply, err := vc.readReply()
		if err != nil {
			return err
		}
		if reply.typ != replySimpleString || string(reply.data) != "PONG" {
			return fmt.Errorf("unexpected PING response: %s", reply.data)
		}
		return nil
	})
}

func (l *ValkeyLocker) withConn(ctx context.Context, fn func(*valkeyConn) error) error {
	var lastErr error
	for attempt := 0; attempt < l.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		vc, err := l.dial(ctx)
		if err == nil {
			err = l.bootstrap(vc)
			if err == nil {
				err = fn(vc)
			}
			vc.close()
		}
		if err == nil {
			return nil
		}
		lastErr = err
		if !shouldRetry(err) || attempt == l.cfg.MaxRetries-1 {
			break
		}
		time.Sleep(backoff(attempt))
	}
	return lastErr
}

func (l *ValkeyLocker) dial(ctx context.Context) (*valkeyConn, error) {
	dialer := net.Dialer{Timeout: deadlineOr(ctx, l.cfg.DialTimeout)}
	var (
		conn net.Conn
		err  error
	)
	if l.cfg.TLS {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: hostForTLS(l.cfg.Addr)}
		conn, err = tls.DialWithDialer(&dialer, "tcp", l.cfg.Addr, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", l.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return &valkeyConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		cfg:    l.cfg,
	}, nil
}

func (l *ValkeyLocker) bootstrap(vc *valkeyConn) error {
	if l.cfg.Password != "" {
		cmd := []string{"AUTH"}
		if l.cfg.Username != "" {
			cmd = append(cmd, l.cfg.Username)
		}
		cmd = append(cmd, l.cfg.Password)
		if err := vc.expectOK(cmd...); err != nil {
			return fmt.Errorf("auth failed: %w", err)
		}
	}
	if l.cfg.DB > 0 {
		if err := vc.expectOK("SELECT", strconv.Itoa(l.cfg.DB)); err != nil {
			return fmt.Errorf("select failed: %w", err)
		}
	}
	return nil
}

// replyType enumerates the subset of RESP types needed by the locker.
type replyType string

const (
	replySimpleString replyType = "+"
	replyBulkString   replyType = "$"
	replyInteger      replyType = ":"
	replyNil          replyType = "_"
)

type respReply struct {
	typ  replyType
	data []byte
}

// valkeyConn wraps a network connection with RESP helpers.
type valkeyConn struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	cfg    ValkeyConfig
}

func (vc *valkeyConn) close() {
	_ = vc.conn.Close()
}

func (vc *valkeyConn) expectOK(parts ...string) error {
	if err := vc.writeStrings(parts...); err != nil {
		return err
	}
	reply, err := vc.readReply()
	if err != nil {
		return err
	}
	if reply.typ != replySimpleString || !strings.EqualFold(string(reply.data), "OK") {
		return fmt.Errorf("unexpected reply: %s", reply.data)
	}
	return nil
}

func (vc *valkeyConn) writeStrings(parts ...string) error {
	if err := vc.conn.SetWriteDeadline(time.Now().Add(vc.cfg.WriteTimeout)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(vc.writer, "*%d\r\n", len(parts)); err != nil {
		return err
	}
	for _, part := range parts {
		if _, err := fmt.Fprintf(vc.writer, "$%d\r\n%s\r\n", len(part), part); err != nil {
			return err
		}
	}
	return vc.writer.Flush()
}

func (vc *valkeyConn) readReply() (respReply, error) {
	if err := vc.conn.SetReadDeadline(time.Now().Add(vc.cfg.ReadTimeout)); err != nil {
		return respReply{}, err
	}
	prefix, err := vc.reader.ReadByte()
	if err != nil {
		return respReply{}, err
	}
	switch prefix {
	case '+':
		line, err := vc.readLine()
		return respReply{typ: replySimpleString, data: line}, err
	case '-':
		line, err := vc.readLine()
		if err != nil {
			return respReply{}, err
		}
		return respReply{}, errors.New(string(line))
	case ':':
		line, err := vc.readLine()
		return respReply{typ: replyInteger, data: line}, err
	case '_':
		_, err := vc.readLine()
		return respReply{typ: replyNil}, err
	case '$':
		line, err := vc.readLine()
		if err != nil {
			return respReply{}, err
		}
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return respReply{}, err
		}
		if size == -1 {
			return respReply{typ: replyNil}, nil
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(vc.reader, buf); err != nil {
			return respReply{}, err
		}
		if buf[size] != '\r' || buf[size+1] != '\n' {
			return respReply{}, errors.New("invalid line termination")
		}
		return respReply{typ: replyBulkString, data: buf[:size]}, nil
	default:
		return respReply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (vc *valkeyConn) readLine() ([]byte, error) {
	line, err := vc.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func normaliseConfig(cfg *ValkeyConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
}

func deadlineOr(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if remaining < d {
			return remaining
		}
	}
	return d
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 25 * time.Millisecond
}

func shouldRetry(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func hostForTLS(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

package lock

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLockerExcludes(t *testing.T) {
	l := NewLocalLocker()
	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "out/severity.json")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = release(context.Background())
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected at most one holder, saw %d", maxSeen)
	}
}

func TestLocalLockerContextCancel(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if r, err := l.Acquire(context.Background(), "other"); err != nil {
		t.Fatalf("independent key blocked: %v", err)
	} else {
		_ = r(context.Background())
	}
}

func TestLocalLockerReleaseIdempotent(t *testing.T) {
	l := NewLocalLocker()
	release, _ := l.Acquire(context.Background(), "k")
	_ = release(context.Background())
	_ = release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = r(ctx)
}

// fakeValkey answers the handful of commands the locker sends.
type fakeValkey struct {
	mu   sync.Mutex
	data map[string]string
	ln   net.Listener
}

func startFakeValkey(t *testing.T) *fakeValkey {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	f := &fakeValkey{data: map[string]string{}, ln: ln}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeValkey) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeValkey) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte(f.exec(args)))
	}
}

func (f *fakeValkey) exec(args []string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "SET":
		if _, held := f.data[args[1]]; held {
			return "$-1\r\n"
		}
		f.data[args[1]] = args[2]
		return "+OK\r\n"
	case "EVAL":
		key, token := args[3], args[4]
		if f.data[key] == token {
			delete(f.data, key)
			return ":1\r\n"
		}
		return ":0\r\n"
	default:
		return "-ERR unknown command\r\n"
	}
}

func (f *fakeValkey) holder(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeValkey) steal(key, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = token
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "*")))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if _, err := r.ReadString('\n'); err != nil {
			return nil, err
		}
		body, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		args = append(args, strings.TrimSuffix(body, "\r\n"))
	}
	return args, nil
}

func TestValkeyLockerAcquireRelease(t *testing.T) {
	srv := startFakeValkey(t)
	l, err := NewValkeyLocker(ValkeyConfig{Addr: srv.ln.Addr().String(), RetryInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	release, err := l.Acquire(ctx, "out/premium.json")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, ok := srv.holder(KeyPrefix + "out/premium.json"); !ok {
		t.Fatalf("expected lock key on server")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(waitCtx, "out/premium.json"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected contention timeout, got %v", err)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := srv.holder(KeyPrefix + "out/premium.json"); ok {
		t.Fatalf("expected lock key removed")
	}
}

func TestValkeyLockerReleaseAfterSteal(t *testing.T) {
	srv := startFakeValkey(t)
	l, err := NewValkeyLocker(ValkeyConfig{Addr: srv.ln.Addr().String()})
	if err != nil {
		t.Fatalf("new locker: %v", err)
	}
	release, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	srv.steal(KeyPrefix+"k", "someone-else")
	if err := release(context.Background()); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if v, _ := srv.holder(KeyPrefix + "k"); v != "someone-else" {
		t.Fatalf("foreign lock must survive, got %q", v)
	}
}

func TestNewValkeyLockerRequiresAddr(t *testing.T) {
	if _, err := NewValkeyLocker(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestNewValkeyLockerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	_, err = NewValkeyLocker(ValkeyConfig{Addr: addr, DialTimeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected dial error for %s", addr)
	}
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	readTimeout     = 60 * time.Second
	writeTimeout    = 60 * time.Second
	shutdownTimeout = 30 * time.Second

	gracefulEnvKey   = "IS_GRACEFUL"
	gracefulEnvValue = gracefulEnvKey + "=1"
	// inherited listener fd after stdin, stdout and stderr
	gracefulListenerFD = 3
)

// Server wraps http.Server with signal driven shutdown and zero-downtime restart.
// SIGINT/SIGTERM drain in-flight requests; SIGUSR2 starts a child process that
// inherits the listener and then drains this one.
type Server struct {
	*http.Server
	listener net.Listener
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{Server: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       2 * readTimeout,
	}}
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (srv *Server) Run(ctx context.Context) error {
	ln, err := srv.listen()
	if err != nil {
		return err
	}
	srv.listener = ln

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			return srv.shutdown()
		case sig := <-sigCh:
			if sig == syscall.SIGUSR2 {
				pid, err := srv.startNewProcess()
				if err != nil {
					Sugar.Errorf("start new process failed: %v, continue serving", err)
					continue
				}
				Sugar.Infof("new process started pid=%d, draining this one", pid)
			} else {
				Sugar.Infof("received %s, shutting down HTTP server", sig)
			}
			return srv.shutdown()
		}
	}
}

func (srv *Server) listen() (net.Listener, error) {
	if os.Getenv(gracefulEnvKey) != "" {
		ln, err := net.FileListener(os.NewFile(gracefulListenerFD, "listener"))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	Sugar.Info("HTTP server shutdown complete")
	return nil
}

func (srv *Server) startNewProcess() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is %T, not *net.TCPListener", srv.listener)
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer file.Close()

	envs := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != gracefulEnvValue {
			envs = append(envs, e)
		}
	}
	envs = append(envs, gracefulEnvValue)

	return syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   envs,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
}

// GraceServer starts an HTTP server and blocks until it has shut down.
func GraceServer(addr string, handler http.Handler) error {
	return NewServer(addr, handler).Run(context.Background())
}

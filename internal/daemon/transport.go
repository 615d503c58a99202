package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/config"
	"github.com/krishhrana/whatsapp-mcp/internal/mcpserver"
)

// Transport runs the MCP server over the configured transport.
type Transport struct {
	kind   string
	addr   string
	path   string
	mcp    *mcpserver.Server
	logger *zap.Logger
	// onExit is called when the stdio client goes away on its own.
	onExit func()

	cancel   context.CancelFunc
	httpSrv  *http.Server
	listener net.Listener
	wg       sync.WaitGroup
}

// NewTransport prepares, but does not start, the configured transport.
func NewTransport(cfg *config.Config, mcp *mcpserver.Server, logger *zap.Logger, onExit func()) *Transport {
	return &Transport{
		kind:   cfg.Transport,
		addr:   cfg.HTTPAddr,
		path:   cfg.HTTPPath,
		mcp:    mcp,
		logger: logger.Named("transport"),
		onExit: onExit,
	}
}

// Start begins serving in the background. For HTTP the listener is bound
// before Start returns.
func (t *Transport) Start() error {
	switch t.kind {
	case config.TransportHTTP:
		return t.startHTTP()
	case config.TransportStdio:
		t.startStdio()
		return nil
	default:
		return fmt.Errorf("unknown transport %q", t.kind)
	}
}

func (t *Transport) startStdio() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		err := t.mcp.RunStdio(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			t.logger.Error("stdio session ended", zap.Error(err))
		} else {
			t.logger.Info("stdio client disconnected")
		}
		if t.onExit != nil {
			t.onExit()
		}
	}()
}

func (t *Transport) startHTTP() error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", t.addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(t.path, t.mcp.Handler())
	t.listener = ln
	t.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	t.logger.Info("serving", zap.String("transport", "http"), zap.String("addr", ln.Addr().String()), zap.String("path", t.path))
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound HTTP address, or "" for stdio.
func (t *Transport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Stop ends the transport and waits for it to return.
func (t *Transport) Stop(ctx context.Context) error {
	var err error
	if t.httpSrv != nil {
		err = t.httpSrv.Shutdown(ctx)
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	return err
}

package p2p

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
)

// HTTPServer runs one gin engine on one port.
type HTTPServer struct {
	name     string
	addr     string
	engine   *gin.Engine
	server   *http.Server
	listener net.Listener
}

func NewHTTPServer(name string, addr string) *HTTPServer {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(name))
	return &HTTPServer{
		name:   name,
		addr:   addr,
		engine: engine,
		server: &http.Server{
			Addr:         addr,
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (h *HTTPServer) Engine() *gin.Engine {
	return h.engine
}

// Start binds synchronously, so a port conflict is reported to the caller, then serves in the background.
func (h *HTTPServer) Start() error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return oops.In("http").With("addr", h.addr).Wrapf(err, "%s failed to listen", h.name)
	}
	h.listener = lis
	go func() {
		if err := h.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError(h.name, "HTTPServer.Start", err, "HTTP server fails to serve")
		}
	}()
	logMsg(h.name, "HTTPServer.Start", fmt.Sprintf("listening on %s", lis.Addr().String()))
	return nil
}

// Addr is the bound address once Start succeeded.
func (h *HTTPServer) Addr() string {
	if h.listener == nil {
		return h.addr
	}
	return h.listener.Addr().String()
}

func (h *HTTPServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func requestLogger(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logDebug(name, "requestLogger", "request served", logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		})
	}
}

// HTTPTransport posts {"message": ...} to the /message route of the service owning addr.
type HTTPTransport struct {
	client  *http.Client
	resolve func(addr int) string
}

func NewHTTPTransport(host string, client *http.Client) *HTTPTransport {
	return NewHTTPTransportWithResolver(func(addr int) string {
		return fmt.Sprintf("http://%s:%d/message", host, addr)
	}, client)
}

// NewHTTPTransportWithResolver lets addresses map to arbitrary URLs, e.g. httptest servers.
func NewHTTPTransportWithResolver(resolve func(addr int) string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, resolve: resolve}
}

func (h *HTTPTransport) Send(ctx context.Context, addr int, msg string) error {
	body, err := json.Marshal(HTTPPostMessageReq{Message: &msg})
	if err != nil {
		return oops.In("transport").Wrapf(err, "encode message")
	}
	url := h.resolve(addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return oops.In("transport").With("url", url).Wrapf(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return oops.In("transport").With("url", url).Wrapf(err, "post message")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return oops.In("transport").
			With("url", url).
			With("status", resp.StatusCode).
			Errorf("message rejected: %s", string(text))
	}
	return nil
}

// RequestSendMessage asks the user service at userURL to send msg to destinationUserID.
func RequestSendMessage(ctx context.Context, client *http.Client, userURL string, msg string, destinationUserID int) error {
	if client == nil {
		client = http.DefaultClient
	}
	body, err := json.Marshal(HTTPSendMessageReq{Message: &msg, DestinationUserID: &destinationUserID})
	if err != nil {
		return oops.In("transport").Wrapf(err, "encode send request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, userURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return oops.In("transport").With("url", userURL).Wrapf(err, "build send request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return oops.In("transport").With("url", userURL).Wrapf(err, "post send request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		return oops.In("transport").
			With("url", userURL).
			With("status", resp.StatusCode).
			Errorf("send request rejected: %s", string(text))
	}
	return nil
}

package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/auralink/auralink/internal/creds"
	"github.com/auralink/auralink/internal/device"
	"github.com/auralink/auralink/internal/logging"
)

// DefaultPort is the HTTP port the provisioning portal listens on.
const DefaultPort = 80

// maxSetWifiBody bounds the set-wifi request body. A legitimate form is a
// few dozen bytes; anything larger is rejected before parsing.
const maxSetWifiBody = 512

// Server is the provisioning portal: the setup page, the device-info and
// set-wifi APIs, and a captive-portal catch-all that herds connectivity
// probes toward the setup page.
type Server struct {
	identity device.Identity
	store    *creds.Store
	addr     net.IP // the access point's address, used in redirects
	port     int

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer builds a portal bound to addr:port. It does not listen until
// Start.
func NewServer(identity device.Identity, store *creds.Store, addr net.IP, port int) *Server {
	return &Server{identity: identity, store: store, addr: addr, port: port}
}

// portalURL is where the captive responses send clients.
func (s *Server) portalURL() string {
	if s.port == DefaultPort {
		return fmt.Sprintf("http://%s/", s.addr)
	}
	return fmt.Sprintf("http://%s:%d/", s.addr, s.port)
}

// Handler returns the portal's routing table. Exposed so tests can exercise
// the handlers without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/device-info", s.handleDeviceInfo)
	mux.HandleFunc("/api/set-wifi", s.handleSetWifi)
	// "/" also receives every unmatched path; those are captive probes.
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start begins listening. A failure here is reported but treated by the
// caller as non-fatal: the access point is still up and a direct navigation
// to the portal address may still work via a later restart.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp4", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("binding portal on port %d: %w", s.port, err)
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.srv = srv
	s.mu.Unlock()

	// The goroutine holds its own reference; Stop may nil the field at any
	// moment after Start returns.
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("portal server exited", zap.Error(err))
		}
	}()

	logging.Info("Provisioning portal started",
		zap.Int("port", s.port),
		zap.String("url", s.portalURL()),
	)
	return nil
}

// Stop shuts the portal down, letting in-flight requests finish. Safe to
// call without a prior Start, and safe to call twice.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		srv.Close()
	}
	logging.Info("Provisioning portal stopped")
}

// setNoCache marks a response uncacheable. Captive-portal clients aggressively
// cache probe responses; a cached answer would strand the next provisioning
// attempt.
func setNoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, r.UserAgent())

	if r.URL.Path != "/" {
		s.handleCaptive(w, r)
		return
	}

	setNoCache(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, indexPage)
}

// clientClass partitions captive probes by the workaround they need.
type clientClass int

const (
	classDefault clientClass = iota
	classApple
	classXiaomi
)

// classifyClient picks the redirect strategy for a captive probe. Xiaomi
// browsers only follow a real 302; Apple's captive assistant renders HTML but
// not scripts; everyone else gets both a meta refresh and a script redirect.
func classifyClient(userAgent, host string) clientClass {
	if strings.Contains(userAgent, "MiuiBrowser") ||
		strings.Contains(userAgent, "XiaoMi") ||
		strings.Contains(userAgent, "MI ") {
		return classXiaomi
	}
	if strings.Contains(userAgent, "iPhone") ||
		strings.Contains(userAgent, "iPad") ||
		strings.Contains(userAgent, "Mac") ||
		strings.Contains(host, "captive.apple.com") {
		return classApple
	}
	return classDefault
}

func (s *Server) handleCaptive(w http.ResponseWriter, r *http.Request) {
	setNoCache(w)
	w.Header().Set("Connection", "close")

	url := s.portalURL()
	switch classifyClient(r.UserAgent(), r.Host) {
	case classXiaomi:
		w.Header().Set("Location", url)
		w.WriteHeader(http.StatusFound)
	case classApple:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, applePage, url)
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, redirectPage, url)
	}
}

type deviceInfoResponse struct {
	Status     string `json:"status"`
	DeviceName string `json:"device_name"`
	MAC        string `json:"mac"`
	IP         string `json:"ip"`
}

func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, r.UserAgent())
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, deviceInfoResponse{
		Status:     "ok",
		DeviceName: s.identity.Name,
		MAC:        s.identity.MACString(),
		IP:         s.addr.String(),
	})
}

type setWifiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleSetWifi(w http.ResponseWriter, r *http.Request) {
	logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, r.UserAgent())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSetWifiBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, setWifiResponse{
			Status:  "error",
			Message: "could not read request body",
		})
		return
	}

	c := parseWifiForm(string(body))
	logging.Info("Received network configuration",
		zap.String("ssid", c.SSID),
		zap.Int("password_len", len(c.Password)),
	)

	if err := s.store.Save(c); err != nil {
		writeJSON(w, http.StatusBadRequest, setWifiResponse{
			Status:  "error",
			Message: fmt.Sprintf("failed to save configuration: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, setWifiResponse{
		Status:  "ok",
		Message: "Configuration saved. The device will restart and connect.",
	})
}

// parseWifiForm extracts ssid and password from the urlencoded body. Only
// plus-to-space decoding is applied; passphrases are stored byte for byte
// otherwise, so a literal percent sign survives.
func parseWifiForm(body string) creds.Credentials {
	var c creds.Credentials
	for _, pair := range strings.Split(body, "&") {
		key, value, _ := strings.Cut(pair, "=")
		value = strings.ReplaceAll(value, "+", " ")
		switch key {
		case "ssid":
			c.SSID = value
		case "password":
			c.Password = value
		}
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/acme/autocert"

	"github.com/tariel-x/gomeet/internal/conference"
	"github.com/tariel-x/gomeet/internal/config"
	"github.com/tariel-x/gomeet/internal/database"
	"github.com/tariel-x/gomeet/internal/dialout"
	"github.com/tariel-x/gomeet/internal/directory"
	"github.com/tariel-x/gomeet/internal/handlers"
	"github.com/tariel-x/gomeet/internal/invite"
	"github.com/tariel-x/gomeet/internal/meetings"
	"github.com/tariel-x/gomeet/internal/notify"
	"github.com/tariel-x/gomeet/internal/static"
	"github.com/tariel-x/gomeet/internal/turn"
)

const AppVersion = "1.0.0"

func main() {
	httpOnly := flag.Bool("http-only", false, "Serve plain HTTP only (no TLS, e.g. behind a reverse proxy)")
	selfSigned := flag.Bool("self-signed", false, "Enable HTTPS using a generated self-signed certificate")
	flag.Parse()

	cfg := config.Load(*httpOnly)
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("gomeet server starting", "version", AppVersion, "public_url", cfg.PublicURL)

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		return
	}

	var turnServer *turn.TURNServer
	if cfg.TURNEnabled {
		turnServer, err = turn.Initialize(cfg.TURNPort, cfg.TURNRealm, logger)
		if err != nil {
			logger.Error("failed to initialize TURN server", "error", err)
			return
		}
		defer turnServer.Close()
	}

	meetingStore := meetings.NewStore()
	hub := handlers.NewWSHub()

	directoryStore := directory.NewStore(db)
	notifier := notify.New(db, cfg.VAPIDKeys, logger)
	delivery := notify.NewDelivery(notifier, logger)

	aggregator := invite.NewAggregator(invite.AggregatorConfig{
		Directory:        directorySearcher(cfg, directoryStore),
		Numbers:          dialout.NewClient(cfg.DialOutCheckURL),
		QueryTypes:       cfg.QueryTypes,
		DirectoryEnabled: cfg.DirectorySearchEnabled,
		DialOutEnabled:   cfg.DialOutEnabled,
		Logger:           logger,
	})
	dispatcher := invite.NewDispatcher(invite.DispatcherConfig{
		Invites:          inviteSender(cfg, delivery),
		DirectoryEnabled: cfg.DirectoryInviteEnabled,
		DialOutEnabled:   cfg.DialOutEnabled,
		Logger:           logger,
	})

	// Every invite session binds to a live meeting; the conference session
	// relays dial-out and video room requests to that meeting's host.
	registry := invite.NewRegistry(func(scope, meetingID string, events invite.Events) (*invite.Controller, error) {
		if _, err := meetingStore.GetByID(meetingID, time.Now()); err != nil {
			return nil, err
		}
		session := conference.NewSession(meetingID, meetingStore, hub, cfg.PublicURL)
		return invite.NewController(invite.ControllerConfig{
			Scope:      scope,
			MeetingID:  meetingID,
			Search:     aggregator,
			Dispatch:   dispatcher,
			Conference: session,
			VideoRooms: session,
			JoinURL:    session.JoinURL(),
			Events:     events,
		}), nil
	})

	h := handlers.New(cfg, db, meetingStore, registry, hub, turnServer, directoryStore, delivery)

	router := setupRouter(h, cfg, logger)

	startServer(router, cfg, *selfSigned, logger)
}

// directorySearcher picks where directory lookups go: the configured
// external service, or the local accounts and rooms tables.
func directorySearcher(cfg *config.Config, local *directory.Store) invite.DirectorySearcher {
	if cfg.DirectorySearchURL != "" {
		return directory.NewClient(cfg.DirectorySearchURL, cfg.DirectorySearchToken)
	}
	return local
}

// inviteSender picks where accepted invites go: the configured external
// invite service, or local push delivery.
func inviteSender(cfg *config.Config, local *notify.Delivery) invite.InviteSender {
	if cfg.InviteServiceURL != "" {
		return directory.NewInviteClient(cfg.InviteServiceURL, cfg.InviteServiceToken)
	}
	return local
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), slogGinLogger(logger))

	// CORS middleware (for web app)
	router.Use(func(c *gin.Context) {
		origin := "*"
		if cfg.HTTPOnly && cfg.PublicURL != "" {
			origin = cfg.PublicURL
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	{
		api.GET("/config", h.GetClientConfig)
		api.GET("/turn-config", h.GetTURNConfig)

		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.GET("/auth/me", h.AuthMiddleware(), h.GetMe)

		api.POST("/meetings", h.CreateMeeting)
		api.GET("/meetings", h.ListMeetings)
		api.GET("/meetings/:meeting_id", h.GetMeeting)
		api.POST("/meetings/:meeting_id/join", h.JoinMeeting)
		api.DELETE("/meetings/:meeting_id", h.EndMeeting)
		api.GET("/meetings/:meeting_id/invites", h.ListInviteRecords)
		api.POST("/meetings/:meeting_id/invite-sessions", h.LaunchInviteSession)

		api.POST("/invite-sessions/:scope/search", h.SearchInviteSession)
		api.POST("/invite-sessions/:scope/submit", h.SubmitInviteSession)
		api.DELETE("/invite-sessions/:scope", h.CloseInviteSession)

		api.GET("/push/vapid-public-key", h.GetVAPIDPublicKey)
		api.POST("/push/subscribe", h.AuthMiddleware(), h.SubscribePush)
		api.POST("/push/unsubscribe", h.AuthMiddleware(), h.UnsubscribePush)

		api.POST("/rooms", h.AuthMiddleware(), h.CreateRoom)
		api.GET("/rooms", h.ListRooms)

		api.GET("/ws", h.HandleWebSocket)

		// Endpoints other deployments point their directory, invite and
		// dial-out URLs at.
		provider := api.Group("/provider")
		{
			provider.GET("/search", handlers.RequireServiceToken(cfg.DirectorySearchToken), h.SearchDirectory)
			provider.GET("/dial-check", h.CheckDialOut)
			provider.POST("/invite", handlers.RequireServiceToken(cfg.InviteServiceToken), h.ReceiveInvite)
		}
	}

	static.RegisterUIRoutes(router)

	return router
}

func startServer(router *gin.Engine, cfg *config.Config, selfSigned bool, logger *slog.Logger) {
	if cfg.HTTPOnly {
		startHTTP(router, cfg, logger)
		return
	}

	if selfSigned {
		startSelfSignedHTTPS(router, cfg, logger)
		return
	}

	// Normal mode: HTTPS with Let's Encrypt.
	certsDir := getCertsDirectory()
	if err := os.MkdirAll(certsDir, 0700); err != nil {
		logger.Error("failed to create certs directory", "error", err)
		return
	}

	normalizedDomain := normalizeDomain(cfg.Domain)
	logger.Info("configured domain", "domain", cfg.Domain, "normalized", normalizedDomain)

	m := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		HostPolicy: func(ctx context.Context, host string) error {
			// Reject silently; logging here would only amplify scanner noise.
			if normalizeDomain(host) != normalizedDomain {
				return fmt.Errorf("host %q not configured (expected %q)", host, normalizedDomain)
			}
			return nil
		},
		Cache: autocert.DirCache(certsDir),
	}

	// Port 80 answers ACME challenges and redirects everything else to HTTPS.
	httpHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/.well-known/acme-challenge/") {
			m.HTTPHandler(nil).ServeHTTP(w, r)
			return
		}
		http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
	})

	errorLog := log.New(newTLSErrorWriter(logger), "", 0)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     errorLog,
	}

	httpsServer := &http.Server{
		Addr:         ":" + cfg.HTTPSPort,
		Handler:      router,
		TLSConfig:    m.TLSConfig(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     errorLog,
	}

	go func() {
		logger.Info("http server starting", "port", cfg.HTTPPort, "role", "acme challenges and redirects")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	go startCertificateRenewal(m, normalizedDomain, logger)

	logger.Info("https server starting", "port", cfg.HTTPSPort, "domain", normalizedDomain, "certs_dir", certsDir)
	if normalizedDomain == "localhost" || normalizedDomain == "127.0.0.1" {
		logger.Warn("Let's Encrypt cannot issue for localhost, use --self-signed for local development")
	}

	if err := httpsServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("https server failed", "error", err)
	}
}

func startHTTP(router *gin.Engine, cfg *config.Config, logger *slog.Logger) {
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("http server starting", "port", cfg.HTTPPort, "public_url", cfg.PublicURL)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
	}
}

func startSelfSignedHTTPS(router *gin.Engine, cfg *config.Config, logger *slog.Logger) {
	logger.Info("generating self-signed certificate")

	hosts := []string{"localhost"}
	if cfg.Domain != "" {
		hosts = []string{cfg.Domain}
	}
	certPEM, keyPEM, err := generateSelfSignedCert(hosts)
	if err != nil {
		logger.Error("failed to generate self-signed certificate", "error", err)
		return
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		logger.Error("failed to load self-signed certificate", "error", err)
		return
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	httpsServer := &http.Server{
		Addr:         ":" + cfg.HTTPSPort,
		Handler:      router,
		TLSConfig:    tlsConfig,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		redirectHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := r.Host
			if idx := strings.Index(host, ":"); idx != -1 {
				host = host[:idx]
			}
			target := "https://" + host + ":" + cfg.HTTPSPort + r.URL.Path
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})
		httpServer := &http.Server{
			Addr:    ":" + cfg.HTTPPort,
			Handler: redirectHandler,
		}
		logger.Info("http redirect server starting", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil {
			logger.Error("http redirect server failed", "error", err)
		}
	}()

	hostForLog := cfg.Domain
	if hostForLog == "" {
		hostForLog = "localhost"
	}
	logger.Info("https server starting with self-signed certificate", "port", cfg.HTTPSPort, "host", hostForLog)

	if err := httpsServer.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("https server failed", "error", err)
	}
}

// startCertificateRenewal checks certificate expiry monthly and nudges
// autocert when renewal is due.
func startCertificateRenewal(m *autocert.Manager, domain string, logger *slog.Logger) {
	// Give the initial certificate a chance to be obtained first.
	time.Sleep(30 * time.Second)

	ticker := time.NewTicker(30 * 24 * time.Hour)
	defer ticker.Stop()

	checkAndRenewCertificate(m, domain, logger)

	for range ticker.C {
		checkAndRenewCertificate(m, domain, logger)
	}
}

func checkAndRenewCertificate(m *autocert.Manager, domain string, logger *slog.Logger) {
	cert, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
	if err != nil {
		logger.Warn("certificate not available yet, will be obtained on next request", "domain", domain, "error", err)
		return
	}
	if cert == nil || len(cert.Certificate) == 0 {
		logger.Warn("no certificate in cache, will be obtained on next request", "domain", domain)
		return
	}

	x509Cert := cert.Leaf
	if x509Cert == nil {
		x509Cert, err = x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			logger.Warn("failed to parse cached certificate", "domain", domain, "error", err)
			return
		}
	}

	daysUntilExpiry := int(time.Until(x509Cert.NotAfter).Hours() / 24)
	logger.Info("certificate status", "domain", domain, "days_until_expiry", daysUntilExpiry, "expires", x509Cert.NotAfter.Format("2006-01-02"))

	if daysUntilExpiry < 30 {
		logger.Info("certificate expires soon, triggering renewal", "domain", domain, "days_until_expiry", daysUntilExpiry)
		if _, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err != nil {
			logger.Error("certificate renewal failed", "domain", domain, "error", err)
		}
	}
}

func getCertsDirectory() string {
	execPath, err := os.Executable()
	if err != nil {
		return "certs"
	}
	execDir := filepath.Dir(execPath)
	return filepath.Join(execDir, "certs")
}

// normalizeDomain lowercases, trims and strips a www. prefix so host
// comparisons are stable.
func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "www.")
	return domain
}

// generateSelfSignedCert creates a one-year self-signed certificate for the
// given hosts, for local development.
func generateSelfSignedCert(hosts []string) (certPEM, keyPEM []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(365 * 24 * time.Hour)

	dnsNames := make([]string, 0, len(hosts))
	ipAddrs := make([]net.IP, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		// Strip port if present.
		if idx := strings.Index(h, ":"); idx != -1 {
			h = h[:idx]
		}
		if ip := net.ParseIP(h); ip != nil {
			ipAddrs = append(ipAddrs, ip)
			continue
		}
		dnsNames = append(dnsNames, h)
	}
	if len(dnsNames) == 0 && len(ipAddrs) == 0 {
		dnsNames = []string{"localhost"}
	}

	commonName := "localhost"
	if len(dnsNames) > 0 {
		commonName = dnsNames[0]
	} else if len(ipAddrs) > 0 {
		commonName = ipAddrs[0].String()
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"gomeet development"},
			CommonName:   commonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddrs,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	certBuffer := new(bytes.Buffer)
	if err := pem.Encode(certBuffer, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode certificate: %w", err)
	}

	privBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	keyBuffer := new(bytes.Buffer)
	if err := pem.Encode(keyBuffer, &pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}); err != nil {
		return nil, nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	return certBuffer.Bytes(), keyBuffer.Bytes(), nil
}

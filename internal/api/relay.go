package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/acameron/go-chat-relay/internal/config"
	"github.com/acameron/go-chat-relay/internal/database"
	"github.com/acameron/go-chat-relay/internal/server"
	"github.com/acameron/go-chat-relay/internal/stats"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

type RelayApp struct {
	log             *log.Logger
	db              database.ChatRepository
	mux             *http.Server
	rs              *server.RelayServer
	stats           stats.StatsProvider
	signingKey      []byte
	allowedOrigins  []string
	validate        *validator.Validate
	generateShortId func() (string, error)
}

func NewRelayApp(mux *http.ServeMux, logger *log.Logger, rs *server.RelayServer, db database.ChatRepository, st stats.StatsProvider, cfg *config.Config) *RelayApp {
	s := &RelayApp{
		log:             logger,
		db:              db,
		rs:              rs,
		stats:           st,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		validate:        validator.New(),
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("POST /api/chats", s.authMiddleware(s.createChat))
	mux.Handle("GET /api/chats", s.authMiddleware(s.listChats))
	mux.Handle("POST /api/chats/read", s.authMiddleware(s.markRead))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

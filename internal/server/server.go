package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lumenbank/onboarding/internal/routes"
)

// Server wraps the Fiber application and the services behind it.
type Server struct {
	app      *fiber.App
	address  string
	services *routes.Services
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(d routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	services, err := routes.Setup(app, d)
	if err != nil {
		return nil, err
	}

	return &Server{app: app, address: d.Cfg.Address(), services: services}, nil
}

// Services returns the components wired behind the routes.
func (s *Server) Services() *routes.Services {
	return s.services
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.address)
}

// Shutdown stops accepting requests, then waits for in-flight welcome mails.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		s.services.Signup.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package demoserver serves the endpoints the demo binary fetches from.
package demoserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Item is an entry of the /randomIds collection.
type Item struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// Options configures the demo router.
type Options struct {
	Logger      *zap.Logger
	SlowDelay   time.Duration
	Metrics     http.Handler
	MetricsPath string
}

// Server holds the in-memory /randomIds store.
type Server struct {
	log       *zap.Logger
	slowDelay time.Duration

	mu    sync.Mutex
	items []Item
}

// New creates a Server seeded with one item.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	delay := opts.SlowDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	id := uuid.NewString()
	return &Server{
		log:       log,
		slowDelay: delay,
		items:     []Item{{ID: id, Data: "id: " + id}},
	}
}

// NewRouter builds the gin engine. Metrics are exposed when opts.Metrics is set.
func NewRouter(s *Server, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.log))

	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.Metrics))
	}

	r.GET("/userinfo", s.userInfo)
	r.GET("/userinfo/slow", s.slowUserInfo)
	r.GET("/randomId", s.randomID)

	r.GET("/echo/:id", s.echo)
	r.PUT("/echo/:id", s.echoChanged("put"))
	r.PATCH("/echo/:id", s.echoChanged("patch"))
	r.POST("/echo", s.echoCreate)
	r.DELETE("/echo/:id", func(c *gin.Context) { c.JSON(http.StatusOK, nil) })

	r.GET("/randomIds", s.listItems)
	r.POST("/randomIds", s.createItem)
	r.PUT("/randomIds/:id", s.changeItem("put"))
	r.PATCH("/randomIds/:id", s.changeItem("patch"))
	r.DELETE("/randomIds/:id", s.deleteItem)

	r.GET("/getWithData", s.message)
	r.POST("/message", s.message)
	r.PUT("/replace", s.message)
	r.PATCH("/update", s.message)
	r.DELETE("/remove", s.message)

	return r
}

// Run serves handler on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("demo server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("demo server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("demo server shutdown: %w", err)
	}
	log.Info("demo server stopped")
	return nil
}

// Items returns a copy of the /randomIds store.
func (s *Server) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Server) userInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": gin.H{"id": "my-id"}})
}

func (s *Server) slowUserInfo(c *gin.Context) {
	timer := time.NewTimer(s.slowDelay)
	defer timer.Stop()

	select {
	case <-c.Request.Context().Done():
		c.AbortWithStatus(http.StatusServiceUnavailable)
	case <-timer.C:
		c.JSON(http.StatusOK, gin.H{"id": uuid.NewString()})
	}
}

func (s *Server) randomID(c *gin.Context) {
	id := uuid.NewString()
	c.JSON(http.StatusOK, Item{ID: id, Data: id})
}

func (s *Server) echo(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, Item{ID: id, Data: id})
}

func (s *Server) echoChanged(verb string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		c.JSON(http.StatusOK, Item{ID: id, Data: fmt.Sprintf("id: %s - I changed via a %s!", id, verb)})
	}
}

func (s *Server) echoCreate(c *gin.Context) {
	var body struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	id := uuid.NewString()
	c.JSON(http.StatusOK, Item{
		ID:   id,
		Data: fmt.Sprintf("id: %s - I was created via a post! my data: %s", id, body.Message),
	})
}

func (s *Server) listItems(c *gin.Context) {
	c.JSON(http.StatusOK, s.Items())
}

func (s *Server) createItem(c *gin.Context) {
	id := uuid.NewString()
	it := Item{ID: id, Data: fmt.Sprintf("id: %s - I was created via a post!", id)}

	s.mu.Lock()
	s.items = append(s.items, it)
	s.mu.Unlock()

	c.JSON(http.StatusOK, it)
}

func (s *Server) changeItem(verb string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		it := Item{ID: id, Data: fmt.Sprintf("id: %s - I changed via a %s!", id, verb)}

		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.items {
			if s.items[i].ID == id {
				s.items[i] = it
				c.JSON(http.StatusOK, it)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
	}
}

func (s *Server) deleteItem(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			c.JSON(http.StatusOK, []Item{})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
}

// message echoes the request body back as {"message": body}.
func (s *Server) message(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var body any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			body = string(raw)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": body})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Writer.Header().Get("X-Request-ID")),
		)
	}
}

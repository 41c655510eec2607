// Package devserver is an in-memory stand-in for the dashboard feed API,
// used for local development and by the client's tests.
package devserver

import (
	"cmp"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nhle/memberdesk/internal/logger"
	"github.com/nhle/memberdesk/internal/model"
)

// Options configures a Server.
type Options struct {
	// Token is the expected Bearer token. Empty disables authentication.
	Token string

	// Envelope wraps list and item responses in {"data": ...}.
	Envelope bool

	// Sender is the display name given to messages sent through the API.
	Sender string

	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler

	Log *zap.SugaredLogger
}

// Server holds the fake feeds. All methods are safe for concurrent use.
type Server struct {
	opts Options
	log  *zap.SugaredLogger

	mu       gosync.Mutex
	feeds    map[model.FeedKind][]model.FeedItem
	nextID   map[model.FeedKind]int64
	failures []int
}

// New creates an empty server.
func New(opts Options) *Server {
	if opts.Sender == "" {
		opts.Sender = "me"
	}
	return &Server{
		opts:   opts,
		log:    logger.OrNop(opts.Log),
		feeds:  make(map[model.FeedKind][]model.FeedItem),
		nextID: make(map[model.FeedKind]int64),
	}
}

// Seed is the YAML fixture format.
type Seed struct {
	Notifications []SeedItem `yaml:"notifications"`
	Messages      []SeedItem `yaml:"messages"`
}

// SeedItem is one fixture entry. A zero ID is assigned automatically.
type SeedItem struct {
	ID       int64      `yaml:"id"`
	Category string     `yaml:"category"`
	Body     string     `yaml:"body"`
	Sender   string     `yaml:"sender"`
	Read     bool       `yaml:"read"`
	Ref      *model.Ref `yaml:"ref"`
}

// LoadSeed replaces the feeds with the fixtures read from r.
func (s *Server) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && err != io.EOF {
		return fmt.Errorf("decoding seed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = make(map[model.FeedKind][]model.FeedItem)
	s.nextID = make(map[model.FeedKind]int64)
	for kind, items := range map[model.FeedKind][]SeedItem{
		model.FeedNotifications: seed.Notifications,
		model.FeedMessages:      seed.Messages,
	} {
		for _, it := range items {
			s.addLocked(kind, model.FeedItem{
				ID:       it.ID,
				Category: model.Category(it.Category),
				Body:     it.Body,
				Sender:   it.Sender,
				Read:     it.Read,
				Ref:      it.Ref,
			})
		}
	}
	return nil
}

// Push adds an item as if it had just been created on the dashboard and
// returns it with its assigned ID.
func (s *Server) Push(kind model.FeedKind, item model.FeedItem) model.FeedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.ID = 0
	return s.addLocked(kind, item)
}

func (s *Server) addLocked(kind model.FeedKind, item model.FeedItem) model.FeedItem {
	if item.ID == 0 {
		item.ID = s.nextID[kind] + 1
	}
	if item.ID > s.nextID[kind] {
		s.nextID[kind] = item.ID
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	if item.Category == "" {
		item.Category = model.CategoryInfo
	}
	item.Kind = kind

	items := append(s.feeds[kind], item)
	slices.SortFunc(items, func(a, b model.FeedItem) int {
		return cmp.Compare(a.ID, b.ID)
	})
	s.feeds[kind] = items
	return item
}

// Items returns a copy of a feed, oldest first.
func (s *Server) Items(kind model.FeedKind) []model.FeedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.feeds[kind])
}

// FailNext makes the next len(statuses) API requests fail with the given
// HTTP statuses, in order.
func (s *Server) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Handler builds the gin engine serving the API.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(s.opts.MetricsHandler))
	}

	// One wildcard name per path position: gin rejects mixed names.
	api := router.Group("/api", s.authenticate(), s.injectFailures())
	api.GET("/:kind", s.handleList)
	api.POST("/:kind", s.handleSend)
	api.POST("/:kind/:target", s.handleMarkAllRead)
	api.POST("/:kind/:target/read", s.handleMarkRead)
	api.DELETE("/:kind", s.handleDeleteAll)
	api.DELETE("/:kind/:target", s.handleDelete)
	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugw("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"request_id", c.GetHeader("X-Request-ID"),
			"duration", time.Since(start))
	}
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.Token == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token != s.opts.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) injectFailures() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		var status int
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if status == 0 {
			c.Next()
			return
		}
		if status == http.StatusTooManyRequests {
			c.Header("Retry-After", "0")
		}
		c.AbortWithStatusJSON(status, gin.H{"error": http.StatusText(status)})
	}
}

func feedKind(c *gin.Context) (model.FeedKind, bool) {
	kind := model.FeedKind(c.Param("kind"))
	if !kind.Valid() {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown feed"})
		return "", false
	}
	return kind, true
}

func (s *Server) respond(c *gin.Context, status int, payload any) {
	if s.opts.Envelope {
		payload = gin.H{"data": payload}
	}
	c.JSON(status, payload)
}

func (s *Server) handleList(c *gin.Context) {
	kind, ok := feedKind(c)
	if !ok {
		return
	}
	items := s.Items(kind)
	if items == nil {
		items = []model.FeedItem{}
	}

	if c.Query("page") == "" {
		s.respond(c, http.StatusOK, items)
		return
	}

	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(model.DefaultPageSize)))
	if err != nil || size < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid pageSize"})
		return
	}

	slices.Reverse(items)
	start := (page - 1) * size
	if start >= len(items) {
		s.respond(c, http.StatusOK, []model.FeedItem{})
		return
	}
	end := min(start+size, len(items))
	s.respond(c, http.StatusOK, items[start:end])
}

func notFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	if model.FeedKind(c.Param("kind")) != model.FeedNotifications {
		notFound(c)
		return
	}
	id, err := strconv.ParseInt(c.Param("target"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.feeds[model.FeedNotifications]
	for i := range items {
		if items[i].ID == id {
			items[i].Read = true
			c.Status(http.StatusNoContent)
			return
		}
	}
	notFound(c)
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	kind, ok := feedKind(c)
	if !ok {
		return
	}
	if c.Param("target") != "read-all" {
		notFound(c)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.feeds[kind]
	for i := range items {
		items[i].Read = true
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDelete(c *gin.Context) {
	kind, ok := feedKind(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("target"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.feeds[kind])
	s.feeds[kind] = slices.DeleteFunc(s.feeds[kind], func(it model.FeedItem) bool {
		return it.ID == id
	})
	if len(s.feeds[kind]) == before {
		notFound(c)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteAll(c *gin.Context) {
	kind, ok := feedKind(c)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds[kind] = nil
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSend(c *gin.Context) {
	if model.FeedKind(c.Param("kind")) != model.FeedMessages {
		notFound(c)
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "body is required"})
		return
	}

	s.mu.Lock()
	item := s.addLocked(model.FeedMessages, model.FeedItem{
		Category: model.CategorySelf,
		Body:     req.Body,
		Sender:   s.opts.Sender,
		Read:     true,
	})
	s.mu.Unlock()

	s.respond(c, http.StatusCreated, item)
}

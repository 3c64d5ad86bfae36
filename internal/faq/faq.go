// Package faq serves the public FAQ read model from the backend, cached.
package faq

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"cursala-gateway/internal/cache"
	"cursala-gateway/internal/config"
	"cursala-gateway/internal/metrics"
	"cursala-gateway/internal/model"
)

// ErrUpstream is returned when the backend answers a FAQ read with an error status.
var ErrUpstream = errors.New("faq: backend request failed")

// Cache keys.
const (
	keyActive     = "faqs:active"
	keyCategories = "faqs:categories"
	keyCategory   = "faqs:category:"
)

const (
	pathActive     = "/faqs?activeOnly=true"
	pathCategories = "/faqs/categories"
)

// Forwarder sends a request through the legacy proxy route.
type Forwarder interface {
	Legacy(pr *model.ForwardRequest) (*model.Reply, error)
}

// Item is a FAQ entry as served to the site.
type Item struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// Response is the envelope returned by every FAQ read.
type Response struct {
	Success bool   `json:"success"`
	Data    []Item `json:"data"`
	Message string `json:"message"`
}

// CategoriesResponse lists the FAQ categories.
type CategoriesResponse struct {
	Success bool     `json:"success"`
	Data    []string `json:"data"`
	Message string   `json:"message"`
}

// backendFAQ is the FAQ document stored by the backend.
type backendFAQ struct {
	ID       string `json:"_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
	IsActive bool   `json:"isActive"`
	Order    int    `json:"order"`
}

type backendList struct {
	Data    []backendFAQ `json:"data"`
	Message string       `json:"message"`
}

type backendCategories struct {
	Data    []string `json:"data"`
	Message string   `json:"message"`
}

// Service reads FAQs through the legacy proxy and caches the converted lists.
type Service struct {
	fwd     Forwarder
	cache   cache.Cache
	ttl     time.Duration
	policy  *bluemonday.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService creates a FAQ Service. The metrics parameter is optional.
func NewService(fwd Forwarder, c cache.Cache, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		fwd:     fwd,
		cache:   c,
		ttl:     time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		policy:  bluemonday.UGCPolicy(),
		metrics: m,
		logger:  logger.With("component", "faq_service"),
	}
}

// Active returns every active FAQ.
func (s *Service) Active(ctx context.Context) (Response, error) {
	list, err := s.list(ctx, keyActive, pathActive, false)
	if err != nil {
		return failure("Error al obtener las preguntas frecuentes"), err
	}
	return Response{
		Success: true,
		Data:    list.items,
		Message: cmp.Or(list.message, "Preguntas frecuentes obtenidas exitosamente"),
	}, nil
}

// ByCategory returns the active FAQs of one category.
func (s *Service) ByCategory(ctx context.Context, category string) (Response, error) {
	path := "/faqs/category/" + url.PathEscape(category) + "?activeOnly=true"
	list, err := s.list(ctx, keyCategory+category, path, false)
	if err != nil {
		return failure(fmt.Sprintf("Error al obtener las preguntas frecuentes de la categoría \"%s\"", category)), err
	}
	return Response{
		Success: true,
		Data:    list.items,
		Message: cmp.Or(list.message, fmt.Sprintf("Preguntas frecuentes de la categoría \"%s\" obtenidas exitosamente", category)),
	}, nil
}

// Search filters the active FAQs by a case-insensitive substring of the
// question or the answer.
func (s *Service) Search(ctx context.Context, query string) (Response, error) {
	list, err := s.list(ctx, keyActive, pathActive, false)
	if err != nil {
		return failure(fmt.Sprintf("Error en la búsqueda de FAQ para: \"%s\"", query)), err
	}

	q := strings.ToLower(query)
	matches := make([]Item, 0, len(list.items))
	for _, it := range list.items {
		if strings.Contains(strings.ToLower(it.Question), q) || strings.Contains(strings.ToLower(it.Answer), q) {
			matches = append(matches, it)
		}
	}

	return Response{
		Success: true,
		Data:    matches,
		Message: fmt.Sprintf("Búsqueda de FAQ completada para: \"%s\"", query),
	}, nil
}

// Categories returns the distinct FAQ categories known to the backend.
func (s *Service) Categories(ctx context.Context) (CategoriesResponse, error) {
	return s.categories(ctx, false)
}

// Warm refetches the active FAQ list and category list. Cached copies are
// replaced only when the backend answers, so a failed refresh keeps serving
// the previous data until it expires.
func (s *Service) Warm(ctx context.Context) error {
	if _, err := s.list(ctx, keyActive, pathActive, true); err != nil {
		return err
	}
	if _, err := s.categories(ctx, true); err != nil {
		return err
	}
	return nil
}

func (s *Service) categories(ctx context.Context, refresh bool) (CategoriesResponse, error) {
	if !refresh {
		if data, ok := s.lookup(ctx, keyCategories); ok {
			var cached CategoriesResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	body, err := s.fetch(ctx, pathCategories)
	if err != nil {
		return CategoriesResponse{Data: []string{}, Message: "Error al obtener las categorías"}, err
	}
	var raw backendCategories
	if err := json.Unmarshal(body, &raw); err != nil {
		return CategoriesResponse{Data: []string{}, Message: "Error al obtener las categorías"},
			fmt.Errorf("faq: decode categories: %w", err)
	}

	out := CategoriesResponse{
		Success: true,
		Data:    raw.Data,
		Message: cmp.Or(raw.Message, "Categorías obtenidas exitosamente"),
	}
	if out.Data == nil {
		out.Data = []string{}
	}
	s.store(ctx, keyCategories, out)
	return out, nil
}

// cachedList is the cached form of a converted FAQ list.
type cachedList struct {
	Items   []Item `json:"items"`
	Message string `json:"message"`
}

type faqList struct {
	items   []Item
	message string
}

// list serves key from the cache unless refresh is set, then falls back to
// the backend. Only a successful fetch overwrites the cached entry.
func (s *Service) list(ctx context.Context, key, path string, refresh bool) (faqList, error) {
	if !refresh {
		if data, ok := s.lookup(ctx, key); ok {
			var cached cachedList
			if err := json.Unmarshal(data, &cached); err == nil {
				return faqList{items: cached.Items, message: cached.Message}, nil
			}
			s.logger.Warn("discarding undecodable cache entry", "key", key)
		}
	}

	body, err := s.fetch(ctx, path)
	if err != nil {
		return faqList{}, err
	}

	var raw backendList
	if err := json.Unmarshal(body, &raw); err != nil {
		return faqList{}, fmt.Errorf("faq: decode %s: %w", path, err)
	}

	items := make([]Item, 0, len(raw.Data))
	for _, f := range raw.Data {
		items = append(items, Item{
			ID:       f.ID,
			Question: f.Question,
			Answer:   s.policy.Sanitize(f.Answer),
			Category: f.Category,
		})
	}

	s.store(ctx, key, cachedList{Items: items, Message: raw.Message})
	return faqList{items: items, message: raw.Message}, nil
}

func (s *Service) fetch(ctx context.Context, path string) ([]byte, error) {
	reply, err := s.fwd.Legacy(&model.ForwardRequest{
		Ctx:    ctx,
		Method: http.MethodGet,
		Path:   path,
		Header: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("faq: fetch %s: %w", path, err)
	}
	defer func() { _ = reply.Body.Close() }()

	body, err := io.ReadAll(reply.Body)
	if err != nil {
		return nil, fmt.Errorf("faq: read %s: %w", path, err)
	}
	if reply.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUpstream, path, reply.StatusCode)
	}
	return body, nil
}

func (s *Service) lookup(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		s.countLookup("hit")
		return data, true
	case !errors.Is(err, cache.ErrCacheMiss):
		s.logger.Warn("cache get failed", "key", key, "error", err)
	}
	s.countLookup("miss")
	return nil, false
}

func (s *Service) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (s *Service) countLookup(result string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func failure(message string) Response {
	return Response{Success: false, Data: []Item{}, Message: message}
}

// Package characterai is a client for the character.ai chat service: it
// exchanges an access token for a session key, opens chat histories with a
// character, and decodes the multi-record reply body of the streaming endpoint.
package characterai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"ai-agent-character-demo/characterai-client/pkg/cache"
	"ai-agent-character-demo/characterai-client/pkg/config"
	"ai-agent-character-demo/characterai-client/pkg/errors"
	"ai-agent-character-demo/characterai-client/pkg/jwt"
	"ai-agent-character-demo/characterai-client/pkg/logger"
	"ai-agent-character-demo/characterai-client/pkg/transport"
	"ai-agent-character-demo/characterai-client/shared/observability"
)

// Remote endpoints
const (
	PathAuth                 = "/dj-rest-auth/auth0/"
	PathCategories           = "/chat/character/categories/"
	PathUserConfig           = "/chat/config/"
	PathUser                 = "/chat/user/"
	PathFeatured             = "/chat/characters/featured/"
	PathCharactersByCategory = "/chat/categories/characters/"
	PathCharactersByCurated  = "/chat/curated_categories/characters/"
	PathCharacterInfo        = "/chat/character/info/"
	PathContinueHistory      = "/chat/history/continue/"
	PathCreateHistory        = "/chat/history/create/"
	PathHistoryMessages      = "/chat/history/msgs/user/"
	PathStreaming            = "/chat/streaming/"
)

const (
	statusNoSuchHistory = "No Such History"
	defaultContentType  = "application/json"
)

// Client holds the session key for one user. The zero state is
// unauthenticated; a successful Authenticate moves it to authenticated.
// A Client is safe for concurrent use.
type Client struct {
	baseURL     string
	transport   transport.Doer
	log         *logger.Logger
	instruments *observability.Instruments
	cache       cache.Store
	cacheTTL    time.Duration
	stream      StreamOptions
	now         func() time.Time

	mu    sync.RWMutex
	token string
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at a different service root
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithTransport replaces the HTTP transport
func WithTransport(t transport.Doer) Option {
	return func(c *Client) { c.transport = t }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithInstruments sets the metric instruments
func WithInstruments(inst *observability.Instruments) Option {
	return func(c *Client) { c.instruments = inst }
}

// WithCache caches public lookups in store for ttl
func WithCache(store cache.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		c.cacheTTL = ttl
	}
}

// WithStreamOptions sets the reply parsing policy
func WithStreamOptions(opts StreamOptions) Option {
	return func(c *Client) { c.stream = opts }
}

// NewClient creates an unauthenticated client
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: config.DefaultBaseURL,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.instruments == nil {
		c.instruments = observability.DefaultInstruments()
	}
	if c.transport == nil {
		c.transport = transport.New(transport.WithLogger(c.log), transport.WithInstruments(c.instruments))
	}
	return c
}

// NewClientFromConfig builds a client from cfg. store may be nil.
func NewClientFromConfig(cfg *config.Config, log *logger.Logger, store cache.Store, opts ...Option) *Client {
	inst := observability.DefaultInstruments()
	base := []Option{
		WithBaseURL(cfg.Service.BaseURL),
		WithLogger(log),
		WithInstruments(inst),
		WithStreamOptions(StreamOptions{SkipMalformed: cfg.Stream.SkipMalformedLines}),
		WithTransport(transport.New(
			transport.WithTimeout(cfg.Service.Timeout),
			transport.WithUserAgent(cfg.Service.UserAgent),
			transport.WithLogger(log),
			transport.WithInstruments(inst),
		)),
	}
	if store != nil && cfg.Cache.Enabled {
		base = append(base, WithCache(store, cfg.Cache.TTL))
	}
	return NewClient(append(base, opts...)...)
}

// Authenticate exchanges an auth0 access token for a session key. On any
// failure the previously stored key, if any, is kept.
func (c *Client) Authenticate(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return errors.NewAuthenticationError("access token is empty", nil)
	}
	if err := jwt.CheckExpiry(accessToken, c.now()); err != nil {
		return errors.NewAuthenticationError("access token rejected before exchange", err)
	}

	body, err := marshalPayload(map[string]string{"access_token": accessToken})
	if err != nil {
		return errors.NewAuthenticationError("encode credentials", err)
	}
	resp, err := c.transport.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + PathAuth,
		Body:   body,
		Header: http.Header{"Content-Type": []string{defaultContentType}},
	})
	if err != nil {
		return errors.NewAuthenticationError("credential exchange failed", err)
	}
	if !resp.OK() {
		return errors.NewAuthenticationError("credential exchange rejected", errors.NewRemoteStatusError(resp.StatusCode, resp.Body)).
			WithStatus(resp.StatusCode)
	}

	var result struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return errors.NewAuthenticationError("credential response is not valid JSON", err)
	}
	if result.Key == "" {
		return errors.NewAuthenticationError("credential response has no key", nil)
	}

	c.mu.Lock()
	c.token = result.Key
	c.mu.Unlock()

	c.log.Info("authenticated")
	return nil
}

// Authenticated reports whether a session key is held
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// AuthHeaders merges extra with the content type and the Authorization
// header. It fails with an AuthenticationError before Authenticate succeeds.
func (c *Client) AuthHeaders(extra http.Header, contentType string) (http.Header, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token == "" {
		return nil, errors.NewAuthenticationError("client is not authenticated", nil)
	}

	if contentType == "" {
		contentType = defaultContentType
	}
	headers := extra.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("Content-Type", contentType)
	headers.Set("Authorization", "Token "+token)
	return headers, nil
}

// do issues one authenticated call and returns the raw response
func (c *Client) do(ctx context.Context, method, path string, payload any) (*transport.Response, error) {
	headers, err := c.AuthHeaders(nil, defaultContentType)
	if err != nil {
		return nil, err
	}

	var body []byte
	if payload != nil {
		if body, err = marshalPayload(payload); err != nil {
			return nil, errors.NewProtocolShapeError("encode request for "+path, err)
		}
	}
	return c.transport.Do(ctx, transport.Request{
		Method: method,
		URL:    c.baseURL + path,
		Body:   body,
		Header: headers,
	})
}

// call is do plus a 2xx check
func (c *Client) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, errors.NewRemoteStatusError(resp.StatusCode, resp.Body)
	}
	return resp.Body, nil
}

// ContinueOrCreateChat resumes the latest history with characterID, or
// creates one when the service reports there is none.
func (c *Client) ContinueOrCreateChat(ctx context.Context, characterID string) (*Chat, error) {
	payload := map[string]any{
		"character_external_id": characterID,
		"history_external_id":   nil,
	}

	resp, err := c.do(ctx, http.MethodPost, PathContinueHistory, payload)
	if err != nil {
		return nil, err
	}

	var probe struct {
		Status string `json:"status"`
	}
	body := resp.Body
	if json.Unmarshal(body, &probe) == nil && probe.Status == statusNoSuchHistory {
		c.log.Info("no history to continue, creating one", "character_id", characterID)
		if body, err = c.call(ctx, http.MethodPost, PathCreateHistory, payload); err != nil {
			return nil, err
		}
	} else if !resp.OK() {
		return nil, errors.NewRemoteStatusError(resp.StatusCode, resp.Body)
	}

	chat, err := newChat(c, characterID, body)
	if err != nil {
		return nil, err
	}
	chat.log.Info("chat ready")
	return chat, nil
}

// FetchCategories lists the public character categories. It does not
// require authentication.
func (c *Client) FetchCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := c.cached(ctx, "categories",
		func() ([]byte, error) {
			resp, err := c.transport.Do(ctx, transport.Request{Method: http.MethodGet, URL: c.baseURL + PathCategories})
			if err != nil {
				return nil, err
			}
			if !resp.OK() {
				return nil, errors.NewRemoteStatusError(resp.StatusCode, resp.Body)
			}
			return resp.Body, nil
		},
		func(body []byte) error {
			categories = nil
			if !json.Valid(body) {
				return errors.NewProtocolShapeError("categories response is not valid JSON", nil)
			}
			if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("[")) {
				return errors.NewProtocolShapeError("categories response is not a list", nil)
			}
			if err := json.Unmarshal(body, &categories); err != nil {
				return errors.NewProtocolShapeError("categories response is not a list", err)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

// FetchUserConfig returns the authenticated user's service configuration
func (c *Client) FetchUserConfig(ctx context.Context) (*UserConfig, error) {
	body, err := c.call(ctx, http.MethodGet, PathUserConfig, nil)
	if err != nil {
		return nil, err
	}
	var cfg UserConfig
	if err := extractProperty(body, "config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FetchUser returns the authenticated user
func (c *Client) FetchUser(ctx context.Context) (*User, error) {
	body, err := c.call(ctx, http.MethodGet, PathUser, nil)
	if err != nil {
		return nil, err
	}
	var user User
	if err := extractProperty(body, "user", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FetchFeatured returns the featured character groups
func (c *Client) FetchFeatured(ctx context.Context) ([]FeaturedCharacter, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	var featured []FeaturedCharacter
	err := c.cached(ctx, "featured",
		func() ([]byte, error) { return c.call(ctx, http.MethodGet, PathFeatured, nil) },
		func(body []byte) error {
			featured = nil
			return extractProperty(body, "featured_characters", &featured)
		},
	)
	if err != nil {
		return nil, err
	}
	return featured, nil
}

// FetchCharactersByCategory returns characters grouped by category, or by
// curated category when curated is set.
func (c *Client) FetchCharactersByCategory(ctx context.Context, curated bool) (CharactersByCategory, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	path, property := PathCharactersByCategory, "characters_by_category"
	if curated {
		path, property = PathCharactersByCurated, "characters_by_curated_category"
	}

	var characters CharactersByCategory
	err := c.cached(ctx, path,
		func() ([]byte, error) { return c.call(ctx, http.MethodGet, path, nil) },
		func(body []byte) error {
			characters = nil
			return extractProperty(body, property, &characters)
		},
	)
	if err != nil {
		return nil, err
	}
	return characters, nil
}

// FetchCharacterInfo returns the full description of one character
func (c *Client) FetchCharacterInfo(ctx context.Context, characterID string) (*CharacterInfo, error) {
	if err := c.requireAuth(); err != nil {
		return nil, err
	}
	var info CharacterInfo
	err := c.cached(ctx, "character:"+characterID,
		func() ([]byte, error) {
			return c.call(ctx, http.MethodPost, PathCharacterInfo, map[string]string{"external_id": characterID})
		},
		func(body []byte) error {
			info = CharacterInfo{}
			return extractProperty(body, "character", &info)
		},
	)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) requireAuth() error {
	if !c.Authenticated() {
		return errors.NewAuthenticationError("client is not authenticated", nil)
	}
	return nil
}

// cached decodes key from the lookup cache, or fetches and decodes it on a
// miss. decode must reset its destination, since a cached body that fails to
// decode is followed by a fresh fetch into the same value. Only bodies that
// decode are stored. Cache failures are logged and never fail the lookup.
func (c *Client) cached(ctx context.Context, key string, fetch func() ([]byte, error), decode func([]byte) error) error {
	if c.cache == nil {
		body, err := fetch()
		if err != nil {
			return err
		}
		return decode(body)
	}
	key = "lookup:" + c.baseURL + ":" + key

	body, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("lookup cache read failed", "key", key, "error", err.Error())
	}
	if ok && decode(body) == nil {
		return nil
	}

	if body, err = fetch(); err != nil {
		return err
	}
	if err := decode(body); err != nil {
		return err
	}
	if err := c.cache.Set(ctx, key, body, c.cacheTTL); err != nil {
		c.log.Warn("lookup cache write failed", "key", key, "error", err.Error())
	}
	return nil
}

// extractProperty decodes body[property] into out
func extractProperty(body []byte, property string, out any) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return errors.NewProtocolShapeError("response is not a JSON object", err)
	}
	raw, ok := envelope[property]
	if !ok {
		return errors.NewProtocolShapeError("response has no "+property, nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewProtocolShapeError("response field "+property+" has the wrong shape", err)
	}
	return nil
}

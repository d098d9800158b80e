package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"hls-downloader/internal/platform/httpx"
	"hls-downloader/internal/platform/logger"
	"hls-downloader/internal/platform/metrics"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultRetryInitial      = time.Second
	DefaultRetryMax          = 10 * time.Second
	// DefaultRetryWindow is used when the session does not state a
	// heartbeat lifetime.
	DefaultRetryWindow = 2 * time.Minute

	segmentDurationMillis = 6000
	defaultAuthType       = "ht2"
	serviceID             = "nicovideo"
)

// JSONSender sends a JSON request and decodes the JSON reply.
// *httpx.Client satisfies it.
type JSONSender interface {
	SendJSON(ctx context.Context, method, url string, in, out any) error
}

// Options tunes the heartbeat.
type Options struct {
	HeartbeatInterval time.Duration
	// RetryInitial and RetryMax bound the exponential backoff between
	// failed heartbeats.
	RetryInitial time.Duration
	RetryMax     time.Duration
	// RetryWindow is how long failed heartbeats are retried before the
	// session is given up. Zero uses the session's heartbeat lifetime.
	RetryWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = DefaultRetryInitial
	}
	if o.RetryMax <= 0 {
		o.RetryMax = DefaultRetryMax
	}
	return o
}

// Manager negotiates delivery sessions and keeps the current one alive.
type Manager struct {
	c       JSONSender
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	current *Heartbeat
}

// NewManager returns a Manager. log and m may be nil.
func NewManager(c JSONSender, opts Options, log *slog.Logger, m *metrics.Metrics) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{c: c, opts: opts.withDefaults(), log: log, metrics: m}
}

// Negotiate creates a delivery session for videoID and starts its
// heartbeat. It returns the master playlist URI and the running
// heartbeat. A heartbeat started by an earlier call is stopped first.
//
// The heartbeat outlives ctx; it ends with Stop on either the Manager or
// the returned Heartbeat.
func (m *Manager) Negotiate(ctx context.Context, videoID string, s DeliverySession) (string, *Heartbeat, error) {
	req, err := buildRequest(s)
	if err != nil {
		return "", nil, err
	}
	endpoint := s.URLs[0].URL

	var resp envelope
	if err := m.c.SendJSON(ctx, http.MethodPost, withQuery(endpoint, ""), req, &resp); err != nil {
		ne := &NegotiationError{Endpoint: httpx.Redact(endpoint), Err: err}
		var se *httpx.StatusError
		if errors.As(err, &se) {
			ne.Status = se.StatusCode
		}
		return "", nil, ne
	}
	if st := resp.Meta.Status; st != 0 && (st < 200 || st > 299) {
		return "", nil, &NegotiationError{
			Endpoint: httpx.Redact(endpoint),
			Status:   st,
			Err:      fmt.Errorf("rejected: %s", resp.Meta.Message),
		}
	}

	var info sessionInfo
	if len(resp.Data.Session) > 0 {
		if err := json.Unmarshal(resp.Data.Session, &info); err != nil {
			return "", nil, &NegotiationError{Endpoint: httpx.Redact(endpoint), Err: fmt.Errorf("decode session: %w", err)}
		}
	}
	if info.ID == "" || info.ContentURI == "" {
		return "", nil, &NegotiationError{Endpoint: httpx.Redact(endpoint), Err: errors.New("response lacks session id or content uri")}
	}

	target, err := heartbeatURL(endpoint, info.ID)
	if err != nil {
		return "", nil, &NegotiationError{Endpoint: httpx.Redact(endpoint), Err: fmt.Errorf("heartbeat url: %w", err)}
	}

	window := m.opts.RetryWindow
	if window <= 0 {
		window = time.Duration(s.HeartbeatLifetime) * time.Second
	}
	if window <= 0 {
		window = DefaultRetryWindow
	}

	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	hb := &Heartbeat{id: info.ID, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	prev := m.current
	m.current = hb
	m.mu.Unlock()
	prev.Stop()

	m.metrics.SessionStarted()
	m.log.Info("session negotiated",
		slog.String("video_id", videoID),
		slog.String("session_id", info.ID),
		slog.Duration("heartbeat_interval", m.opts.HeartbeatInterval),
	)
	go m.keepAlive(hbCtx, hb, target, resp.Data.Session, window)

	return info.ContentURI, hb, nil
}

// Stop halts the current heartbeat, if any. It is safe to call more than
// once and before any negotiation.
func (m *Manager) Stop() {
	m.mu.Lock()
	hb := m.current
	m.current = nil
	m.mu.Unlock()
	hb.Stop()
}

func (m *Manager) keepAlive(ctx context.Context, hb *Heartbeat, target string, session json.RawMessage, window time.Duration) {
	defer close(hb.done)
	defer m.metrics.SessionStopped()

	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := m.beat(ctx, hb.id, target, session, window)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			hb.fail(&HeartbeatError{SessionID: hb.id, Err: err})
			m.log.Error("heartbeat abandoned", slog.String("session_id", hb.id), slog.Any("error", err))
			return
		}
		if len(next) > 0 {
			session = next
		}
		m.log.Debug("heartbeat sent", slog.String("session_id", hb.id))
	}
}

// beat posts the session back to the server, retrying transient failures
// with exponential backoff until window has elapsed.
func (m *Manager) beat(ctx context.Context, id, target string, session json.RawMessage, window time.Duration) (json.RawMessage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.RetryInitial
	b.MaxInterval = m.opts.RetryMax

	op := func() (json.RawMessage, error) {
		var resp envelope
		err := m.c.SendJSON(ctx, http.MethodPost, target, heartbeatRequest{Session: session}, &resp)
		if err != nil {
			m.metrics.IncHeartbeatFailures()
			var se *httpx.StatusError
			if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			m.log.Warn("heartbeat failed, retrying", slog.String("session_id", id), slog.Any("error", err))
			return nil, err
		}
		m.metrics.IncHeartbeats()
		return resp.Data.Session, nil
	}
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(window))
}

// buildRequest maps a DeliverySession onto the creation request. The first
// video and first audio track are muxed together.
func buildRequest(s DeliverySession) (createRequest, error) {
	if len(s.URLs) == 0 || s.URLs[0].URL == "" {
		return createRequest{}, ErrNoEndpoint
	}
	if len(s.Videos) == 0 || len(s.Audios) == 0 {
		return createRequest{}, ErrNoTracks
	}
	authType := s.AuthTypes["http"]
	if authType == "" {
		authType = defaultAuthType
	}
	var preset string
	if len(s.TransferPresets) > 0 {
		preset = s.TransferPresets[0]
	}

	return createRequest{Session: sessionRequest{
		RecipeID:    s.RecipeID,
		ContentID:   s.ContentID,
		ContentType: "movie",
		ContentSrcIDSets: []contentSrcIDSet{{
			ContentSrcIDs: []contentSrcID{{
				SrcIDToMux: srcIDToMux{
					VideoSrcIDs: []string{s.Videos[0]},
					AudioSrcIDs: []string{s.Audios[0]},
				},
			}},
		}},
		TimingConstraint: "unlimited",
		KeepMethod:       keepMethod{Heartbeat: heartbeatMethod{Lifetime: s.HeartbeatLifetime}},
		Protocol: protocol{
			Name: "http",
			Parameters: protocolParameters{HTTPParameters: httpParameters{Parameters: httpInnerParameters{
				HLSParameters: hlsParameters{
					UseWellKnownPort: "yes",
					UseSSL:           "yes",
					TransferPreset:   preset,
					SegmentDuration:  segmentDurationMillis,
				},
			}}},
		},
		SessionOperationAuth: sessionOperationAuth{BySignature: signatureAuth{
			Token:     s.Token,
			Signature: s.Signature,
		}},
		ContentAuth: contentAuth{
			AuthType:          authType,
			ContentKeyTimeout: s.ContentKeyTimeout,
			ServiceID:         serviceID,
			ServiceUserID:     s.ServiceUserID,
		},
		ClientInfo: clientInfo{PlayerID: s.PlayerID},
		Priority:   s.Priority,
	}}, nil
}

// heartbeatURL appends the session id to the endpoint path, leaving any
// query the endpoint carries in place, and marks the request as a PUT.
func heartbeatURL(endpoint, id string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	return withQuery(u.JoinPath(id).String(), http.MethodPut), nil
}

// withQuery adds _format=json, and _method when set, to raw.
func withQuery(raw, method string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("_format", "json")
	if method != "" {
		q.Set("_method", method)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

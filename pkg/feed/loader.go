// Package feed provides a background loader that periodically refreshes a
// safetree.Tree from a remote newline-delimited CIDR list, with retry,
// backoff, and proactive bearer-token refresh.
package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ipradix/ipradix/pkg/logger"
	"github.com/ipradix/ipradix/pkg/patricia"
	"github.com/ipradix/ipradix/pkg/safetree"
)

// TokenSource supplies a fresh bearer token on demand. The loader treats
// the token as an opaque JWT and only inspects its exp claim; it never
// validates the signature, matching the rest of the pipeline's assumption
// that the issuer has already been authenticated upstream.
type TokenSource func(ctx context.Context) (string, error)

// Loader periodically fetches a CIDR list and installs it into a
// safetree.Tree. The zero value is not usable; construct with NewLoader.
type Loader struct {
	tree        *safetree.Tree
	client      *http.Client
	tokenSource TokenSource

	mu        sync.RWMutex
	url       string
	frequency time.Duration

	token       string
	tokenExpiry time.Time

	lastUpdate  time.Time
	lastError   error
	updateCount int64

	stopCh        chan struct{}
	reconfigureCh chan struct{}
}

// NewLoader returns a Loader that fetches url on the given frequency and
// installs the result into tree. tokenSource may be nil, in which case
// requests carry no Authorization header.
func NewLoader(url string, frequency time.Duration, tree *safetree.Tree, tokenSource TokenSource) *Loader {
	return &Loader{
		tree:        tree,
		tokenSource: tokenSource,
		url:         url,
		frequency:   frequency,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
		stopCh:        make(chan struct{}),
		reconfigureCh: make(chan struct{}, 1),
	}
}

// Start performs the initial fetch synchronously, returning an error if it
// fails. Call StartUpdateLoop afterwards to keep the tree refreshed.
func (l *Loader) Start(ctx context.Context) error {
	l.mu.RLock()
	url := l.url
	l.mu.RUnlock()
	if url == "" {
		return errors.New("feed: URL is empty")
	}

	logger.Debug("feed: loading initial prefix list...")
	if err := l.updateNow(ctx); err != nil {
		return fmt.Errorf("feed: initial fetch failed: %w", err)
	}
	return nil
}

// StartUpdateLoop runs the refresh loop until ctx is done or Stop is
// called. It reacts to three independent timers in one select, mirroring
// the teacher's EDLUpdater.StartUpdateLoop/TokenManager.StartRefreshLoop
// merged into a single loop: a fetch ticker, a token-refresh timer, and a
// reconfigure signal that restarts both with new settings.
func (l *Loader) StartUpdateLoop(ctx context.Context) {
	for {
		l.mu.RLock()
		freq := l.frequency
		l.mu.RUnlock()

		ticker := time.NewTicker(freq)
		refreshTimer := time.NewTimer(l.calculateRefreshInterval())

		running := true
		for running {
			select {
			case <-ctx.Done():
				ticker.Stop()
				refreshTimer.Stop()
				return
			case <-l.stopCh:
				ticker.Stop()
				refreshTimer.Stop()
				return
			case <-l.reconfigureCh:
				ticker.Stop()
				refreshTimer.Stop()
				running = false
				logger.Trace("feed: reconfiguring with new settings")
			case <-ticker.C:
				if err := l.updateNow(ctx); err != nil {
					logger.Errorf("feed: update failed: %v", err)
				}
			case <-refreshTimer.C:
				if l.tokenSource == nil {
					continue
				}
				if err := l.refreshToken(ctx); err != nil {
					logger.Warnf("feed: token refresh failed: %v", err)
					refreshTimer.Reset(30 * time.Second)
				} else {
					refreshTimer.Reset(l.calculateRefreshInterval())
				}
			}
		}
	}
}

// Reconfigure changes the feed URL and/or frequency, restarting the
// update loop's timers and triggering an immediate fetch.
func (l *Loader) Reconfigure(url string, frequency time.Duration) {
	l.mu.Lock()
	l.url = url
	l.frequency = frequency
	l.mu.Unlock()

	select {
	case l.reconfigureCh <- struct{}{}:
	default:
	}

	go func() {
		if err := l.updateNow(context.Background()); err != nil {
			logger.Errorf("feed: update after reconfiguration failed: %v", err)
		}
	}()
}

// Stop terminates the update loop.
func (l *Loader) Stop() {
	close(l.stopCh)
}

// GetStatus reports the last successful update time, the last error (if
// any), and the running count of successful updates.
func (l *Loader) GetStatus() (time.Time, error, int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUpdate, l.lastError, l.updateCount
}

func (l *Loader) updateNow(ctx context.Context) error {
	start := time.Now()

	tree, count, err := l.fetchWithRetry(ctx)
	if err != nil {
		l.mu.Lock()
		l.lastError = err
		l.mu.Unlock()
		return err
	}

	l.tree.Replace(tree)

	l.mu.Lock()
	l.lastUpdate = time.Now()
	l.lastError = nil
	l.updateCount++
	l.mu.Unlock()

	duration := time.Since(start)
	if count == 0 {
		logger.Infof("feed: updated with an empty list in %v", duration)
	} else {
		logger.Infof("feed: loaded %d prefixes in %v", count, duration)
	}
	return nil
}

// fetchWithRetry makes up to three fetch attempts, waiting attempt * 2s
// (2s, then 4s) before each retry, matching the teacher's fetchWithRetry.
func (l *Loader) fetchWithRetry(ctx context.Context) (*patricia.Tree, int64, error) {
	var lastErr error
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}

		tree, count, err := l.fetch(ctx)
		if err == nil {
			return tree, count, nil
		}
		lastErr = err
		logger.Warnf("feed: fetch attempt %d/%d failed: %v", attempt+1, maxAttempts, err)
	}
	return nil, 0, lastErr
}

func (l *Loader) fetch(ctx context.Context) (*patricia.Tree, int64, error) {
	l.mu.RLock()
	url := l.url
	l.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token := l.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, 0, fmt.Errorf("feed: unexpected status %d: %s", resp.StatusCode, body)
	}

	return parseCIDRList(resp.Body)
}

// parseCIDRList reads one CIDR per line (blank lines and lines starting
// with '#' are ignored) and builds a fresh Tree from them.
func parseCIDRList(r io.Reader) (*patricia.Tree, int64, error) {
	tree := patricia.New()
	var count int64

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p, err := netip.ParsePrefix(line)
		if err != nil {
			logger.Warnf("feed: skipping unparsable line %q: %v", line, err)
			continue
		}

		family := patricia.FamilyV4
		addr := p.Addr()
		var raw []byte
		if addr.Is4() {
			a := addr.As4()
			raw = a[:]
		} else {
			family = patricia.FamilyV6
			a := addr.As16()
			raw = a[:]
		}

		prefix, err := patricia.NewPrefix(family, raw, p.Bits())
		if err != nil {
			return nil, 0, fmt.Errorf("feed: building prefix for %q: %w", line, err)
		}
		if _, err := tree.Lookup(prefix); err != nil {
			return nil, 0, fmt.Errorf("feed: inserting %q: %w", line, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, err
	}
	if count == 0 {
		logger.Warn("feed: prefix list is empty")
	}
	return tree, count, nil
}

func (l *Loader) currentToken() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.token
}

// refreshToken asks tokenSource for a fresh token and records its exp
// claim for the next calculateRefreshInterval call. The token is parsed
// unverified: the issuer already validated its own signature, and the
// loader only needs the expiry it carries.
func (l *Loader) refreshToken(ctx context.Context) error {
	token, err := l.tokenSource(ctx)
	if err != nil {
		return err
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("feed: parsing token: %w", err)
	}
	expiry, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("feed: token has no usable exp claim: %w", err)
	}

	l.mu.Lock()
	l.token = token
	if expiry != nil {
		l.tokenExpiry = expiry.Time
	}
	l.mu.Unlock()

	logger.Trace("feed: token refreshed successfully")
	return nil
}

// calculateRefreshInterval schedules the next proactive token refresh at
// 80% of the token's remaining lifetime, floored at 30 seconds, matching
// the teacher's TokenManager.calculateRefreshInterval. With no tokenSource
// it returns a long interval so the refresh timer never fires
// meaningfully; with a tokenSource but no token expiry recorded yet, it
// returns one second so a first token is fetched promptly.
func (l *Loader) calculateRefreshInterval() time.Duration {
	if l.tokenSource == nil {
		return 24 * time.Hour
	}

	l.mu.RLock()
	expiry := l.tokenExpiry
	l.mu.RUnlock()

	if expiry.IsZero() {
		return time.Second // refresh immediately to obtain a first token
	}

	untilExpiry := time.Until(expiry)
	refreshAt := time.Duration(float64(untilExpiry) * 0.8)
	if refreshAt < 30*time.Second {
		refreshAt = 30 * time.Second
	}
	return refreshAt
}

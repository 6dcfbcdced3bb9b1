package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds Find when the context has no deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	// Logger receives diagnostics. Nil discards.
	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// answer is one resolved mDNS answer, independent of the mDNS library.
type answer struct {
	Instance string
	Host     string
	Port     int
	Text     []string
	Addrs    []string
}

// resolver runs a DNS-SD browse until ctx is done, sending resolved answers
// to entries and expirations to removed.
type resolver func(ctx context.Context, iface string, entries, removed chan<- answer) error

// Browser discovers arena servers.
type Browser struct {
	config  BrowserConfig
	logger  *slog.Logger
	resolve resolver

	mu      sync.Mutex
	stopped bool
	cancels map[int]context.CancelFunc
	nextID  int
}

// NewBrowser creates a browser backed by zeroconf.
func NewBrowser(config BrowserConfig) *Browser {
	return newBrowser(config, zeroconfResolver)
}

func newBrowser(config BrowserConfig, resolve resolver) *Browser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{
		config:  config,
		logger:  logger,
		resolve: resolve,
		cancels: make(map[int]context.CancelFunc),
	}
}

// Browse reports arena servers as they appear and disappear. Answers are
// aggregated by instance name: addresses from multiple interfaces are
// combined into a single server. The channel is closed when ctx is done or
// the browser is stopped.
func (b *Browser) Browse(ctx context.Context) (<-chan Event, error) {
	ctx, id, err := b.track(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Event)
	entries := make(chan answer)
	removed := make(chan answer)

	go func() {
		defer b.untrack(id)
		defer close(out)

		servers := make(map[string]*Server)
		emit := func(ev Event) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case a, ok := <-entries:
				if !ok {
					return
				}
				svc, err := answerToServer(a)
				if err != nil {
					b.logger.Debug("ignoring advertisement", "instance", a.Instance, "error", err)
					continue
				}
				if existing, found := servers[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				servers[svc.InstanceName] = svc
				if !emit(Event{Type: ServerAdded, Server: cloneServer(svc)}) {
					return
				}

			case a, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				existing, found := servers[a.Instance]
				if !found {
					continue
				}
				if len(a.Addrs) == 0 {
					existing.Addresses = nil
				} else {
					existing.Addresses = removeAddresses(existing.Addresses, a.Addrs)
				}
				if len(existing.Addresses) == 0 {
					delete(servers, a.Instance)
					if !emit(Event{Type: ServerRemoved, Server: cloneServer(existing)}) {
						return
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(entries)
		if err := b.resolve(ctx, b.config.Interface, entries, removed); err != nil && ctx.Err() == nil {
			b.logger.Warn("mDNS browse failed", "service", ServiceType, "error", err)
		}
	}()

	return out, nil
}

// Find returns the first server advertising gameID, or the first server at
// all when gameID is empty.
func (b *Browser) Find(ctx context.Context, gameID string) (*Server, error) {
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
	}
	defer cancel()

	events, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for ev := range events {
		if ev.Type != ServerAdded {
			continue
		}
		if gameID == "" || ev.Server.GameID == gameID {
			return ev.Server, nil
		}
	}
	if gameID != "" {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	return nil, ErrNotFound
}

// Stop cancels all active browsing operations. Later calls to Browse fail.
func (b *Browser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
}

func (b *Browser) track(ctx context.Context) (context.Context, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return nil, 0, ErrBrowserStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	b.nextID++
	b.cancels[b.nextID] = cancel
	return ctx, b.nextID, nil
}

func (b *Browser) untrack(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cancel, ok := b.cancels[id]; ok {
		cancel()
		delete(b.cancels, id)
	}
}

// answerToServer converts a resolved answer to a Server.
func answerToServer(a answer) (*Server, error) {
	info, err := DecodeArenaTXT(StringsToTXTRecords(a.Text))
	if err != nil {
		return nil, err
	}
	if info.Name == "" {
		info.Name = a.Instance
	}

	port := a.Port
	if port <= 0 || port > 0xffff {
		port = DefaultPort
	}

	return &Server{
		InstanceName: a.Instance,
		Host:         a.Host,
		Port:         uint16(port),
		Addresses:    slices.Clone(a.Addrs),
		ArenaInfo:    *info,
	}, nil
}

func cloneServer(s *Server) *Server {
	c := *s
	c.Addresses = slices.Clone(s.Addresses)
	return &c
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	for _, addr := range added {
		if !slices.Contains(existing, addr) {
			existing = append(existing, addr)
		}
	}
	return existing
}

// removeAddresses filters out the given addresses.
func removeAddresses(addresses, gone []string) []string {
	return slices.DeleteFunc(addresses, func(addr string) bool {
		return slices.Contains(gone, addr)
	})
}

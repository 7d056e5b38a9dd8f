package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eencloud/goeen/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTerminalPort is where terminals serve their network surface.
	DefaultTerminalPort = 8080
	// ProbeTimeout bounds each individual health probe.
	ProbeTimeout = 5 * time.Second
	// DefaultConcurrency caps in-flight probes per sweep. A /24 sweep is
	// 254 probes; running them all at once spikes sockets for no benefit.
	DefaultConcurrency = 64
)

// Prober answers whether a candidate address hosts a reachable terminal.
type Prober interface {
	Probe(ctx context.Context, address string) bool
}

// HTTPProber checks GET /health on the terminal port.
type HTTPProber struct {
	Port   int
	client *http.Client
}

func NewHTTPProber(port int) *HTTPProber {
	return &HTTPProber{
		Port:   port,
		client: &http.Client{Timeout: ProbeTimeout},
	}
}

func (p *HTTPProber) Probe(ctx context.Context, address string) bool {
	url := fmt.Sprintf("http://%s:%d/health", address, p.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.OK
}

// Scanner sweeps candidate private-network addresses for terminals.
// Sweeps are manually triggered only; there is no background rescan.
type Scanner struct {
	logger      *log.Logger
	registry    *Registry
	prober      Prober
	concurrency int

	// localPrefixes is swappable for tests.
	localPrefixes func() []string

	mu       sync.Mutex
	scanning bool
}

func NewScanner(logger *log.Logger, registry *Registry, prober Prober, concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scanner{
		logger:        logger,
		registry:      registry,
		prober:        prober,
		concurrency:   concurrency,
		localPrefixes: localNetworkPrefixes,
	}
}

// Scan probes every host suffix of every candidate prefix, updates the
// registry with each outcome and applies the selection policy. Probes
// run concurrently under a bounded group; the sweep returns only after
// every probe has finished. Returns the selected address, if any.
func (s *Scanner) Scan(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return "", false, fmt.Errorf("a sweep is already running")
	}
	s.scanning = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
	}()

	prefixes := s.localPrefixes()
	s.logger.Infof("Scanning network ranges: %s", strings.Join(prefixes, ", "))

	candidates := make([]string, 0, len(prefixes)*254)
	for _, prefix := range prefixes {
		for host := 1; host <= 254; host++ {
			candidates = append(candidates, fmt.Sprintf("%s.%d", prefix, host))
		}
	}

	// Online addresses in completion order; the first one is the
	// selection tie-breaker, deliberately subject to network timing.
	onlineCh := make(chan string, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, address := range candidates {
		address := address
		g.Go(func() error {
			if s.prober.Probe(gctx, address) {
				s.registry.Upsert(address, StatusOnline)
				onlineCh <- address
			} else {
				s.registry.Upsert(address, StatusOffline)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(onlineCh)

	var onlineOrder []string
	for address := range onlineCh {
		onlineOrder = append(onlineOrder, address)
	}
	s.logger.Infof("Sweep finished: %d candidates, %d online", len(candidates), len(onlineOrder))

	selected, ok := s.registry.Reselect(onlineOrder)
	return selected, ok, ctx.Err()
}

// localNetworkPrefixes derives /24 prefixes from this node's
// non-loopback private addresses, falling back to common home ranges
// when none are found.
func localNetworkPrefixes() []string {
	var prefixes []string
	seen := make(map[string]bool)

	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil {
				continue
			}
			if strings.HasPrefix(ip.String(), "192.168.") {
				parts := strings.Split(ip.String(), ".")
				prefix := strings.Join(parts[:3], ".")
				if !seen[prefix] {
					seen[prefix] = true
					prefixes = append(prefixes, prefix)
				}
			}
		}
	}

	if len(prefixes) == 0 {
		prefixes = []string{"192.168.1", "192.168.0", "192.168.100", "192.168.141"}
	}
	return prefixes
}

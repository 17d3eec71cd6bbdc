package scanners

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/allsafeASM/rmap/internal/common"
	"github.com/miekg/dns"
	"github.com/projectdiscovery/dnsx/libs/dnsx"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/ratelimit"
	"github.com/projectdiscovery/retryabledns"
)

// HostnameResolver maps an address to a hostname. An empty string means no
// name is known.
type HostnameResolver interface {
	LookupHostname(ctx context.Context, ip string) string
}

// DNSXResolver performs PTR lookups through dnsx. Each lookup is a single
// attempt and failures resolve to an empty hostname.
type DNSXResolver struct {
	resolvers []string

	client      *dnsx.DNSX
	clientMutex sync.RWMutex
	limiter     *ratelimit.Limiter

	// query replaces the dnsx lookup when set
	query func(ip string) (*retryabledns.DNSData, error)
}

// NewDNSXResolver creates a resolver paced at perSecond lookups
func NewDNSXResolver(resolvers []string, perSecond int) *DNSXResolver {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &DNSXResolver{
		resolvers: resolvers,
		limiter:   ratelimit.New(context.Background(), uint(perSecond), time.Second),
	}
}

// LookupHostname returns the first PTR name of ip without its trailing dot
func (r *DNSXResolver) LookupHostname(ctx context.Context, ip string) string {
	if ctx.Err() != nil {
		return ""
	}

	query := r.query
	if query == nil {
		client, err := r.getClient()
		if err != nil {
			gologger.Debug().Msgf("Reverse DNS unavailable: %v", err)
			return ""
		}
		query = client.QueryOne
	}

	// Take cannot be abandoned, so the scan may have ended while it waited.
	r.limiter.Take()
	if ctx.Err() != nil {
		return ""
	}

	type lookup struct {
		data *retryabledns.DNSData
		err  error
	}
	done := make(chan lookup, 1)
	go func() {
		data, err := query(ip)
		done <- lookup{data, err}
	}()

	select {
	case <-ctx.Done():
		return ""
	case res := <-done:
		if res.err != nil || res.data == nil || len(res.data.PTR) == 0 {
			return ""
		}
		return strings.TrimSuffix(res.data.PTR[0], ".")
	}
}

// getClient creates the dnsx client on first use
func (r *DNSXResolver) getClient() (*dnsx.DNSX, error) {
	r.clientMutex.RLock()
	if r.client != nil {
		defer r.clientMutex.RUnlock()
		return r.client, nil
	}
	r.clientMutex.RUnlock()

	r.clientMutex.Lock()
	defer r.clientMutex.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	options := dnsx.DefaultOptions
	if len(r.resolvers) > 0 {
		options.BaseResolvers = r.resolvers
	}
	options.MaxRetries = 1
	options.QuestionTypes = []uint16{dns.TypePTR}
	options.Hostsfile = true
	options.QueryAll = false

	client, err := dnsx.New(options)
	if err != nil {
		return nil, common.NewNetworkError("failed to create DNSX client", err)
	}
	r.client = client
	return r.client, nil
}

package drivers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/use-agent/harvest/fetch"
	"github.com/use-agent/harvest/models"
	"golang.org/x/sync/errgroup"
)

// DNSInfo is the result of the record lookups for one domain.
type DNSInfo struct {
	IPv4  []string
	IPv6  []string
	MX    []string
	NS    []string
	SPF   string
	DMARC string
}

// Resolver looks up a domain's DNS records.
type Resolver interface {
	Lookup(ctx context.Context, domain string) (DNSInfo, error)
}

// TLSProber reads a host's certificate.
type TLSProber interface {
	Probe(ctx context.Context, host string) (*fetch.TLSInfo, error)
}

// TLSProbeFunc adapts a function to TLSProber.
type TLSProbeFunc func(ctx context.Context, host string) (*fetch.TLSInfo, error)

func (f TLSProbeFunc) Probe(ctx context.Context, host string) (*fetch.TLSInfo, error) {
	return f(ctx, host)
}

// DNS probes domains concurrently. Each target owns one slot of the result
// slice, so workers share nothing but the token.
type DNS struct {
	// Concurrency bounds in-flight domains. 0 means 8.
	Concurrency int
}

func (*DNS) Mode() models.Mode { return models.ModeDNS }

func (d *DNS) Run(ctx context.Context, env *Env, targets []models.Target) ([]models.Record, error) {
	if env.Options.Performance && env.PageSpeed == nil {
		return nil, models.NewScrapeError(models.ErrCodeMissingCredential,
			"performance audits require a PageSpeed API key", nil)
	}

	limit := d.Concurrency
	if limit <= 0 {
		limit = 8
	}
	slots := make([]*models.DNSRecord, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, t := range targets {
		if env.Token.IsStopRequested() {
			env.Reporter.Statusf("stop requested, skipping %d remaining domain(s)", len(targets)-i)
			break
		}
		g.Go(func() error {
			if env.Token.IsStopRequested() {
				return nil
			}
			rec, err := probeDomain(gctx, env, t.Value)
			if err != nil {
				env.Reporter.Failure(fmt.Sprintf("dns target %q", t.Value), err)
				return nil
			}
			slots[i] = rec
			env.Reporter.Statusf("dns: %s probed (%d issue(s))", t.Value, len(rec.Errors))
			return nil
		})
	}
	_ = g.Wait()

	var recs []*models.DNSRecord
	for _, r := range slots {
		if r != nil {
			recs = append(recs, r)
		}
	}
	return valid(env, asRecords(recs)), nil
}

// probeDomain merges all probes. It fails only when the domain neither
// resolves nor answers HTTP.
func probeDomain(ctx context.Context, env *Env, domain string) (*models.DNSRecord, error) {
	rec := &models.DNSRecord{Domain: domain, PerformanceScore: -1, ProbedAt: time.Now()}
	note := func(what string, err error) {
		rec.Errors = append(rec.Errors, what+": "+err.Error())
	}

	var dnsErr error
	if env.DNS != nil {
		info, err := env.DNS.Lookup(ctx, domain)
		if err != nil {
			dnsErr = err
			note("dns", err)
		}
		rec.IPv4, rec.IPv6, rec.MX, rec.NS = info.IPv4, info.IPv6, info.MX, info.NS
		rec.SPF, rec.DMARC = info.SPF, info.DMARC
	}

	httpErr := probeHTTP(ctx, env, rec)
	if httpErr != nil {
		note("http", httpErr)
	}
	if httpErr != nil && (env.DNS == nil || dnsErr != nil || len(rec.IPv4)+len(rec.IPv6) == 0) {
		return nil, models.NewScrapeError(models.ErrCodeNavigation, "domain unreachable", errors.Join(dnsErr, httpErr))
	}

	if env.TLS != nil {
		if ti, err := env.TLS.Probe(ctx, domain); err != nil {
			note("tls", err)
		} else {
			rec.TLSIssuer, rec.TLSExpiry, rec.TLSVersion = ti.Issuer, ti.Expiry, ti.Version
		}
	}
	if env.Options.Performance && !env.Token.IsStopRequested() {
		target := rec.FinalURL
		if target == "" {
			target = "https://" + domain
		}
		if score, err := env.PageSpeed.Score(ctx, target); err != nil {
			note("performance", err)
		} else {
			rec.PerformanceScore = score
		}
	}
	if env.Options.Archive && env.Archive != nil && !env.Token.IsStopRequested() {
		if ai, err := env.Archive.Lookup(ctx, domain); err != nil {
			note("archive", err)
		} else {
			rec.ArchiveFirst, rec.ArchiveLast, rec.ArchiveSnapshots = ai.First, ai.Last, ai.Snapshots
		}
	}
	return rec, nil
}

// probeHTTP fetches the home page over https, falling back to http.
func probeHTTP(ctx context.Context, env *Env, rec *models.DNSRecord) error {
	if env.HTTP == nil {
		return errors.New("no http client")
	}
	resp, err := env.HTTP.Get(ctx, "https://"+rec.Domain)
	if err != nil {
		var plainErr error
		if resp, plainErr = env.HTTP.Get(ctx, "http://"+rec.Domain); plainErr != nil {
			return err
		}
	}
	rec.HTTPStatus = resp.StatusCode
	rec.FinalURL = resp.FinalURL
	rec.Server = resp.Header.Get("Server")
	rec.HSTS = resp.Header.Get("Strict-Transport-Security") != ""
	if fetch.IsHTML(resp.Header.Get("Content-Type")) {
		rec.Title = fetch.Title(resp.Body)
		if doc, err := parseHTML(string(resp.Body)); err == nil {
			rec.Description = attr(doc.Find(`meta[name="description"]`), "content")
		}
	}
	return nil
}

// MiekgResolver queries one upstream nameserver with miekg/dns.
type MiekgResolver struct {
	Server  string
	Timeout time.Duration
}

// Lookup implements Resolver. It fails only when the A query itself fails;
// other record types are best-effort.
func (r MiekgResolver) Lookup(ctx context.Context, domain string) (DNSInfo, error) {
	var info DNSInfo
	fqdn := dns.Fqdn(domain)

	a, err := r.query(ctx, fqdn, dns.TypeA)
	if err != nil {
		return info, err
	}
	for _, rr := range a {
		if v, ok := rr.(*dns.A); ok {
			info.IPv4 = append(info.IPv4, v.A.String())
		}
	}
	if rrs, err := r.query(ctx, fqdn, dns.TypeAAAA); err == nil {
		for _, rr := range rrs {
			if v, ok := rr.(*dns.AAAA); ok {
				info.IPv6 = append(info.IPv6, v.AAAA.String())
			}
		}
	}
	if rrs, err := r.query(ctx, fqdn, dns.TypeMX); err == nil {
		for _, rr := range rrs {
			if v, ok := rr.(*dns.MX); ok {
				info.MX = append(info.MX, strings.TrimSuffix(v.Mx, "."))
			}
		}
	}
	if rrs, err := r.query(ctx, fqdn, dns.TypeNS); err == nil {
		for _, rr := range rrs {
			if v, ok := rr.(*dns.NS); ok {
				info.NS = append(info.NS, strings.TrimSuffix(v.Ns, "."))
			}
		}
	}
	if rrs, err := r.query(ctx, fqdn, dns.TypeTXT); err == nil {
		info.SPF = txtWithPrefix(rrs, "v=spf1")
	}
	if rrs, err := r.query(ctx, "_dmarc."+fqdn, dns.TypeTXT); err == nil {
		info.DMARC = txtWithPrefix(rrs, "v=DMARC1")
	}
	return info, nil
}

func (r MiekgResolver) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	c := &dns.Client{Timeout: r.Timeout}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.RecursionDesired = true

	in, _, err := c.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[in.Rcode])
	}
	return in.Answer, nil
}

func txtWithPrefix(rrs []dns.RR, prefix string) string {
	for _, rr := range rrs {
		if v, ok := rr.(*dns.TXT); ok {
			joined := strings.Join(v.Txt, "")
			if strings.HasPrefix(strings.ToLower(joined), strings.ToLower(prefix)) {
				return joined
			}
		}
	}
	return ""
}

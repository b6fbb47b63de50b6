package models

import (
	"strconv"
	"strings"
	"time"
)

// DNSRecord merges DNS, HTTP and TLS probe results for one domain with
// optional external audit data.
type DNSRecord struct {
	Domain string

	IPv4  []string
	IPv6  []string
	MX    []string
	NS    []string
	SPF   string
	DMARC string

	HTTPStatus  int
	FinalURL    string
	Server      string
	HSTS        bool
	Title       string
	Description string

	TLSIssuer  string
	TLSExpiry  time.Time
	TLSVersion string

	// PerformanceScore is 0-100, or -1 when no audit ran.
	PerformanceScore int

	ArchiveFirst     time.Time
	ArchiveLast      time.Time
	ArchiveSnapshots int

	// Errors collects probe failures that did not prevent the record.
	Errors []string

	ProbedAt time.Time
}

var dnsColumns = []string{
	"id", "domain", "ipv4", "ipv6", "mx", "ns", "spf", "dmarc",
	"http_status", "final_url", "server", "hsts", "title", "description",
	"tls_issuer", "tls_expiry", "tls_version", "performance_score",
	"archive_first", "archive_last", "archive_snapshots", "errors", "probed_at",
}

func (r *DNSRecord) Mode() Mode { return ModeDNS }
func (r *DNSRecord) DedupKey() string { return compositeKey(r.Domain) }
func (r *DNSRecord) ID() string { return recordID(r.DedupKey()) }
func (r *DNSRecord) Columns() []string { return dnsColumns }

func (r *DNSRecord) Row() []string {
	perf := ""
	if r.PerformanceScore >= 0 {
		perf = strconv.Itoa(r.PerformanceScore)
	}
	status := ""
	if r.HTTPStatus > 0 {
		status = strconv.Itoa(r.HTTPStatus)
	}
	return []string{
		r.ID(),
		r.Domain,
		strings.Join(r.IPv4, "; "),
		strings.Join(r.IPv6, "; "),
		strings.Join(r.MX, "; "),
		strings.Join(r.NS, "; "),
		r.SPF,
		r.DMARC,
		status,
		r.FinalURL,
		r.Server,
		strconv.FormatBool(r.HSTS),
		r.Title,
		r.Description,
		r.TLSIssuer,
		formatTime(r.TLSExpiry),
		r.TLSVersion,
		perf,
		formatTime(r.ArchiveFirst),
		formatTime(r.ArchiveLast),
		strconv.Itoa(r.ArchiveSnapshots),
		strings.Join(r.Errors, "; "),
		formatTime(r.ProbedAt),
	}
}

func (r *DNSRecord) Validate() error {
	if strings.TrimSpace(r.Domain) == "" {
		return invalid(ModeDNS, "domain")
	}
	return nil
}

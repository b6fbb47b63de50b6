package fetch

import (
	"context"
	"fmt"
	"net"
	"time"

	tls "github.com/refraction-networking/utls"
)

// TLSInfo summarises a server certificate.
type TLSInfo struct {
	Issuer  string
	Subject string
	Expiry  time.Time
	Version string
}

// ProbeTLS performs a Chrome-fingerprinted handshake with host:443 and
// reports the leaf certificate.
func ProbeTLS(ctx context.Context, host string) (*TLSInfo, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "443"))
	if err != nil {
		return nil, fmt.Errorf("tls probe: dial: %w", err)
	}
	defer conn.Close()

	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloChrome_Auto)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tls probe: handshake: %w", err)
	}
	defer tlsConn.Close()

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("tls probe: no peer certificate")
	}
	leaf := state.PeerCertificates[0]
	return &TLSInfo{
		Issuer:  leaf.Issuer.CommonName,
		Subject: leaf.Subject.CommonName,
		Expiry:  leaf.NotAfter,
		Version: versionName(state.Version),
	}, nil
}

func versionName(v uint16) string {
	switch v {
	case tls.VersionTLS13:
		return "TLS 1.3"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS10:
		return "TLS 1.0"
	default:
		return fmt.Sprintf("0x%04x", v)
	}
}

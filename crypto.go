package fluent

import (
	"crypto/tls"
	"fmt"
)

// CryptoMethod selects the TLS protocol versions a request may negotiate.
type CryptoMethod string

// Supported crypto methods.
const (
	CryptoAny   CryptoMethod = "any"
	CryptoSSLv3 CryptoMethod = "sslv3"
	CryptoTLS   CryptoMethod = "tls"
	CryptoTLS10 CryptoMethod = "tls1.0"
	CryptoTLS11 CryptoMethod = "tls1.1"
	CryptoTLS12 CryptoMethod = "tls1.2"
)

// tlsVersions maps the version strings accepted by WithTLS.
var tlsVersions = map[string]CryptoMethod{
	"1.*": CryptoTLS,
	"1.0": CryptoTLS10,
	"1.1": CryptoTLS11,
	"1.2": CryptoTLS12,
}

// ParseCryptoMethod validates m.
func ParseCryptoMethod(m string) (CryptoMethod, error) {
	switch c := CryptoMethod(m); c {
	case CryptoAny, CryptoSSLv3, CryptoTLS, CryptoTLS10, CryptoTLS11, CryptoTLS12:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCryptoMethod, m)
	}
}

// ParseTLSVersion maps "1.*", "1.0", "1.1" or "1.2" to a CryptoMethod.
func ParseTLSVersion(v string) (CryptoMethod, error) {
	c, ok := tlsVersions[v]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTLSVersion, v)
	}
	return c, nil
}

// versions returns the tls.Config MinVersion/MaxVersion pair for the
// method. Zero means the crypto/tls default. SSLv3 is passed through as
// is; crypto/tls refuses it at handshake time, which surfaces as a
// ConnectionError.
func (c CryptoMethod) versions() (lo, hi uint16) {
	switch c {
	case CryptoSSLv3:
		//nolint:staticcheck // SSLv3 is requested explicitly.
		return tls.VersionSSL30, tls.VersionSSL30
	case CryptoTLS:
		return tls.VersionTLS10, 0
	case CryptoTLS10:
		return tls.VersionTLS10, tls.VersionTLS10
	case CryptoTLS11:
		return tls.VersionTLS11, tls.VersionTLS11
	case CryptoTLS12:
		return tls.VersionTLS12, tls.VersionTLS12
	default:
		return 0, 0
	}
}

// Package docker implements runner.Runtime against a local or remote Docker
// daemon via the Docker SDK, generalizing internal/docker/runner.go's
// bot-specific container lifecycle into the generic build/run/stop/remove/
// inspect/stats/logs/exec operation set the control plane needs.
package docker

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"strings"
)

// Config holds the connection parameters for a Docker daemon.
type Config struct {
	Host       string
	APIVersion string
	TLSVerify  bool
	CertPEM    string
	KeyPEM     string
	CAPEM      string
	Network    string
}

func loadTLSConfig(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	cert, err := tls.X509KeyPair([]byte(config.CertPEM), []byte(config.KeyPEM))
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	tlsConfig.Certificates = []tls.Certificate{cert}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM([]byte(config.CAPEM)) {
		return nil, fmt.Errorf("append CA certificate from PEM")
	}
	tlsConfig.RootCAs = caCertPool

	host := config.Host
	if strings.HasPrefix(host, "tcp://") {
		host = strings.TrimPrefix(host, "tcp://")
		if colonIdx := strings.Index(host, ":"); colonIdx > 0 {
			host = host[:colonIdx]
		}
		tlsConfig.ServerName = host
	}

	return tlsConfig, nil
}

func httpClientFor(config Config) (*http.Client, error) {
	if !config.TLSVerify {
		return nil, nil
	}
	tlsConfig, err := loadTLSConfig(config)
	if err != nil {
		return nil, fmt.Errorf("load TLS config: %w", err)
	}
	return &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}}, nil
}

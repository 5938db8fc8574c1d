package quicconn

import (
    "crypto/rand"
    "crypto/rsa"
    "crypto/tls"
    "crypto/x509"
    "math/big"
    "time"
)

func clientTLS() *tls.Config {
    return &tls.Config{
        InsecureSkipVerify: true, // peers authenticate at the application layer
        NextProtos:         []string{alpnProto},
        MinVersion:         tls.VersionTLS13,
    }
}

func serverTLS() (*tls.Config, error) {
    cert, err := selfSignedCert()
    if err != nil {
        return nil, err
    }
    return &tls.Config{
        Certificates: []tls.Certificate{cert},
        NextProtos:   []string{alpnProto},
        MinVersion:   tls.VersionTLS13,
    }, nil
}

// selfSignedCert generates a short-lived self-signed certificate; QUIC
// requires TLS even when peers do not rely on certificate identity.
func selfSignedCert() (tls.Certificate, error) {
    priv, err := rsa.GenerateKey(rand.Reader, 2048)
    if err != nil {
        return tls.Certificate{}, err
    }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        NotBefore:             time.Now().Add(-time.Minute),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
        BasicConstraintsValid: true,
        DNSNames:              []string{"localhost"},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
    if err != nil {
        return tls.Certificate{}, err
    }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}

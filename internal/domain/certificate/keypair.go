package certificate

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/9triver/opcgw/internal/domain/gateway/types"
)

// LoadInstanceCertificate 读取网关实例证书、私钥和颁发者证书
func LoadInstanceCertificate(certFile, keyFile string, chainFiles []string) (*types.InstanceCertificate, error) {
	certs, err := LoadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate %s: %w", certFile, err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificate in %s", certFile)
	}
	key, err := LoadPrivateKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key %s: %w", keyFile, err)
	}
	pub, ok := certs[0].PublicKey.(*rsa.PublicKey)
	if !ok || pub.N.Cmp(key.N) != 0 {
		return nil, errors.New("private key does not match certificate")
	}

	ic := &types.InstanceCertificate{Certificate: certs[0], PrivateKey: key}
	for _, c := range certs[1:] {
		ic.Chain = append(ic.Chain, c.Raw)
	}
	for _, f := range chainFiles {
		issuers, err := LoadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load issuer certificate %s: %w", f, err)
		}
		for _, c := range issuers {
			ic.Chain = append(ic.Chain, c.Raw)
		}
	}
	return ic, nil
}

// LoadPrivateKey 读取 PKCS#1 或 PKCS#8 RSA 私钥，支持 PEM 与 DER
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	der := data
	if block, _ := pem.Decode(data); block != nil {
		der = block.Bytes
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", parsed)
	}
	return key, nil
}

package certificate

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/awcullen/opcua/ua"
	"github.com/sirupsen/logrus"
)

// Validator 基于信任列表目录的证书链校验
type Validator struct {
	dir string
	now func() time.Time

	mu    sync.RWMutex
	roots *x509.CertPool
	count int
}

// NewValidator 加载信任列表目录，目录为空时不信任任何证书
func NewValidator(dir string) (*Validator, error) {
	v := &Validator{dir: dir, now: time.Now, roots: x509.NewCertPool()}
	if err := v.Reload(); err != nil {
		return nil, err
	}
	return v, nil
}

// NewValidatorWithRoots 使用给定根证书
func NewValidatorWithRoots(roots ...*x509.Certificate) *Validator {
	pool := x509.NewCertPool()
	for _, c := range roots {
		pool.AddCert(c)
	}
	return &Validator{now: time.Now, roots: pool, count: len(roots)}
}

// Reload 重新扫描信任列表目录
func (v *Validator) Reload() error {
	if v.dir == "" {
		logrus.Warn("No trust list directory configured, client certificates will be rejected")
		return nil
	}
	certs, err := LoadDir(v.dir)
	if err != nil {
		return err
	}
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}

	v.mu.Lock()
	v.roots = pool
	v.count = len(certs)
	v.mu.Unlock()

	logrus.Infof("Loaded %d trusted certificates from %s", len(certs), v.dir)
	return nil
}

// Count 信任证书数量
func (v *Validator) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.count
}

// Validate 校验证书链，chain[0] 为叶证书
func (v *Validator) Validate(ctx context.Context, chain []*x509.Certificate) error {
	if len(chain) == 0 {
		return ua.BadCertificateInvalid
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	leaf := chain[0]
	now := v.now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return ua.BadCertificateTimeInvalid
	}

	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}

	v.mu.RLock()
	roots := v.roots
	v.mu.RUnlock()

	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err == nil {
		return nil
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
		return ua.BadCertificateIssuerTimeInvalid
	}
	logrus.Debugf("Certificate %s rejected: %v", leaf.Subject.CommonName, err)
	return ua.BadCertificateUntrusted
}

// LoadDir 读取目录下的 DER/PEM 证书
func LoadDir(dir string) ([]*x509.Certificate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read trust list %s: %w", dir, err)
	}
	var certs []*x509.Certificate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".der", ".cer", ".crt", ".pem":
		default:
			continue
		}
		parsed, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			logrus.Warnf("Skipping %s: %v", e.Name(), err)
			continue
		}
		certs = append(certs, parsed...)
	}
	return certs, nil
}

// LoadFile 读取单个证书文件，支持 PEM 与 DER
func LoadFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse 解析 PEM（可含多个块）或 DER 证书
func Parse(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		c, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	if len(certs) > 0 {
		return certs, nil
	}
	return x509.ParseCertificates(data)
}

package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

// KeyMaterial is a parsed signing credential. Certificate is nil when only a
// bare private key was supplied.
type KeyMaterial struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
}

// PublicKey returns the verification key, preferring the certificate's.
func (k *KeyMaterial) PublicKey() *rsa.PublicKey {
	if k.Certificate != nil {
		if pub, ok := k.Certificate.PublicKey.(*rsa.PublicKey); ok {
			return pub
		}
	}
	return &k.PrivateKey.PublicKey
}

// ParseKeyMaterial accepts PEM (PKCS#1 or PKCS#8 key, optional certificate)
// or a PKCS#12 bundle protected by password.
func ParseKeyMaterial(data []byte, password string) (*KeyMaterial, error) {
	if block, _ := pem.Decode(data); block != nil {
		return parsePEM(data)
	}

	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PKCS#12 bundle: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PKCS#12 key is %T, want RSA", key)
	}
	return &KeyMaterial{PrivateKey: rsaKey, Certificate: cert}, nil
}

func parsePEM(data []byte) (*KeyMaterial, error) {
	km := &KeyMaterial{}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse PKCS#1 key: %w", err)
			}
			km.PrivateKey = key
		case "PRIVATE KEY":
			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
			}
			rsaKey, ok := key.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("PKCS#8 key is %T, want RSA", key)
			}
			km.PrivateKey = rsaKey
		case "CERTIFICATE":
			if km.Certificate != nil {
				continue // leaf first; chain certificates are ignored
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
			km.Certificate = cert
		}
	}
	if km.PrivateKey == nil {
		return nil, errors.New("no private key found in PEM data")
	}
	return km, nil
}

package signer

import (
	"context"
	"crypto/rsa"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2/log"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/app/repository"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

// loadedKey is an immutable handle to parsed key material.
type loadedKey struct {
	serial     string
	keyRef     string
	facilityID uint
	private    *rsa.PrivateKey
	public     *rsa.PublicKey
}

// keySet maps certificate serial to its loaded key. A published keySet is
// never mutated; writers copy it and swap the pointer.
type keySet map[string]*loadedKey

// CertificateStore resolves a facility's single active certificate and
// caches its key material.
type CertificateStore struct {
	repo   repository.CertificateRepository
	loader *KeyLoader

	keys atomic.Pointer[keySet]
	mu   sync.Mutex // serialises writers
}

func NewCertificateStore(repo repository.CertificateRepository, loader *KeyLoader) *CertificateStore {
	s := &CertificateStore{repo: repo, loader: loader}
	empty := keySet{}
	s.keys.Store(&empty)
	return s
}

// Active returns the facility's active certificate. Zero or several active
// rows are configuration errors.
func (s *CertificateStore) Active(ctx context.Context, facilityID uint) (*models.Certificate, error) {
	certs, err := s.repo.ListActive(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	switch len(certs) {
	case 0:
		return nil, claimerr.New(claimerr.KindNoActiveCertificate, "facility %d has no active certificate", facilityID)
	case 1:
		return &certs[0], nil
	default:
		return nil, claimerr.New(claimerr.KindAmbiguousCertificate, "facility %d has %d active certificates", facilityID, len(certs))
	}
}

// key returns the loaded key for cert, loading it on first use or when the
// row's key_ref no longer matches what was loaded.
func (s *CertificateStore) key(ctx context.Context, cert *models.Certificate) (*loadedKey, error) {
	if k, ok := s.cached(cert); ok {
		return k, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.cached(cert); ok {
		return k, nil
	}

	k, err := s.load(ctx, cert)
	if err != nil {
		return nil, err
	}
	s.publish(k, false)
	return k, nil
}

func (s *CertificateStore) cached(cert *models.Certificate) (*loadedKey, bool) {
	k, ok := (*s.keys.Load())[cert.SerialNumber]
	if !ok || k.keyRef != cert.KeyRef {
		return nil, false
	}
	return k, true
}

func (s *CertificateStore) load(ctx context.Context, cert *models.Certificate) (*loadedKey, error) {
	km, err := s.loader.Load(ctx, cert.KeyRef)
	if err != nil {
		return nil, claimerr.Wrap(claimerr.KindInternal, err, "key material for certificate %s", cert.SerialNumber)
	}
	if km.Certificate != nil && km.Certificate.SerialNumber.String() != cert.SerialNumber {
		log.Warnf("[CertStore] certificate %s: embedded serial is %s", cert.SerialNumber, km.Certificate.SerialNumber)
	}
	log.Infof("[CertStore] Loaded key material for certificate %s (facility %d)", cert.SerialNumber, cert.FacilityID)
	return &loadedKey{
		serial:     cert.SerialNumber,
		keyRef:     cert.KeyRef,
		facilityID: cert.FacilityID,
		private:    km.PrivateKey,
		public:     km.PublicKey(),
	}, nil
}

// publish swaps in a copy of the key set containing k. With evict, other
// keys of the same facility are dropped. Callers hold s.mu.
func (s *CertificateStore) publish(k *loadedKey, evict bool) {
	current := *s.keys.Load()
	next := make(keySet, len(current)+1)
	for serial, existing := range current {
		if evict && existing.facilityID == k.facilityID {
			continue
		}
		next[serial] = existing
	}
	next[k.serial] = k
	s.keys.Store(&next)
}

// Rotate makes serial the facility's active certificate. The key material
// is loaded before the database switch, so a broken key never becomes
// active; in-flight signers keep the handle they already hold.
func (s *CertificateStore) Rotate(ctx context.Context, facilityID uint, serial string) (*models.Certificate, error) {
	cert, err := s.repo.GetBySerial(ctx, facilityID, serial)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k, err := s.load(ctx, cert)
	if err != nil {
		return nil, err
	}
	activated, err := s.repo.Activate(ctx, facilityID, serial)
	if err != nil {
		return nil, err
	}
	s.publish(k, true)
	log.Infof("[CertStore] Rotated facility %d to certificate %s", facilityID, serial)
	return activated, nil
}

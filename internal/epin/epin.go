// Package epin is the admin-facing surface over the store's EPIN CAS
// primitives (spec.md §4.J): batch code generation, transfer,
// reservation and consumption. config.EPINToken is read only by
// Transfer; consumption does not check it. The store interfaces
// (CreateEPINs/TransferEPIN/ReserveEPIN/ConsumeEPIN) stay the low-level
// substrate and keep the transfer count; this package adds code
// generation ("transferable, unlimited times, before use").
// Code generation is grounded in the teacher's crypto package
// (internal/crypto/crypto.go: GenerateRandomBytes), swapped to a
// 31-character alphanumeric alphabet so codes stay readable when
// printed on physical cards.
package epin

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/logging"
	"github.com/r3e-network/mlm-compensation-engine/internal/metrics"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
	"github.com/r3e-network/mlm-compensation-engine/internal/store"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const codeLength = 12

// Service implements EPIN generation, transfer, and consumption.
type Service struct {
	store store.Store
	cfg   *config.Config
	log   *logging.Logger
}

// New constructs an epin Service.
func New(s store.Store, cfg *config.Config) *Service {
	return &Service{store: s, cfg: cfg, log: logging.Default()}
}

// Generate mints qty fresh, unassigned EPINs for packageCode and
// persists them in a single batch (spec.md §4.J: "non-expiring, no
// activation deadline").
func (s *Service) Generate(ctx context.Context, qty int, packageCode plan.PackageCode, createdBy string) ([]string, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: qty must be positive", domain.ErrValidation)
	}
	if _, err := plan.LookupPackage(packageCode); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownPackage, packageCode)
	}

	now := time.Now()
	epins := make([]*domain.EPIN, 0, qty)
	codes := make([]string, 0, qty)
	for i := 0; i < qty; i++ {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate epin code: %w", err)
		}
		epins = append(epins, &domain.EPIN{
			Code:        code,
			PackageCode: packageCode,
			CreatedBy:   createdBy,
			CreatedAt:   now,
		})
		codes = append(codes, code)
	}

	if err := s.store.CreateEPINs(ctx, epins); err != nil {
		return nil, err
	}

	metrics.EPINOpsTotal.WithLabelValues("generate").Add(float64(qty))
	s.log.WithFields(map[string]interface{}{
		"qty":          qty,
		"package_code": packageCode,
		"created_by":   createdBy,
	}).Info("epins generated")
	return codes, nil
}

// Transfer reassigns ownership of code to toUserID. Transfers are
// unlimited before use; a used EPIN can never be transferred again
// (spec.md §4.J).
func (s *Service) Transfer(ctx context.Context, code, toUserID string) error {
	if s.cfg.EPINToken {
		if _, err := s.store.GetEPIN(ctx, code); err != nil {
			return err
		}
	}
	if err := s.store.TransferEPIN(ctx, code, toUserID); err != nil {
		return err
	}
	metrics.EPINOpsTotal.WithLabelValues("transfer").Inc()
	return nil
}

// Reserve places a transient hold on code for userID, used during
// activation to prevent a double-spend race between reserve and
// consume (spec.md §4.J).
func (s *Service) Reserve(ctx context.Context, code, userID string) error {
	if err := s.store.ReserveEPIN(ctx, code, userID); err != nil {
		return err
	}
	metrics.EPINOpsTotal.WithLabelValues("reserve").Inc()
	return nil
}

// Consume marks code used, terminally. Activation does not go through
// this method: it reserves and consumes via the store's ReserveEPIN and
// ConsumeEPIN directly. Consume lets a caller burn a code without
// running a full activation.
func (s *Service) Consume(ctx context.Context, code, userID string) error {
	if err := s.store.ConsumeEPIN(ctx, code, userID, time.Now()); err != nil {
		return err
	}
	metrics.EPINOpsTotal.WithLabelValues("consume").Inc()
	return nil
}

// Get returns the current state of an EPIN.
func (s *Service) Get(ctx context.Context, code string) (*domain.EPIN, error) {
	return s.store.GetEPIN(ctx, code)
}

func generateCode() (string, error) {
	var sb strings.Builder
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for _, b := range buf {
		sb.WriteByte(codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return sb.String(), nil
}

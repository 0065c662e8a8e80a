// Package reports lists and fetches backend reports for users allowed to see them.
package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/and161185/lendclient/internal/access"
	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/model"
	"go.uber.org/zap"
)

// KindRisk reports expose risk scores and need the extra permission.
const KindRisk = "RISK"

// Backend is the subset of the API client used here.
type Backend interface {
	ListReports(ctx context.Context, page int, kind string) (*model.ReportPage, error)
	GetReport(ctx context.Context, id string) (*model.Report, error)
}

// Service gates report access on the current grants.
type Service struct {
	backend Backend
	grants  func() access.Grants
	log     *zap.Logger
}

// New builds a service. grants is consulted on every call.
func New(b Backend, grants func() access.Grants, log *zap.Logger) *Service {
	return &Service{backend: b, grants: grants, log: logger.OrNop(log)}
}

func isRisk(kind string) bool { return strings.EqualFold(kind, KindRisk) }

// List returns one page. Without risk permissions RISK reports are dropped
// from unfiltered listings and a RISK filter is refused.
func (s *Service) List(ctx context.Context, page int, kind string) (*model.ReportPage, error) {
	g := s.grants()
	if err := access.GateViewReports.Check(g); err != nil {
		return nil, err
	}
	riskOK := access.GateViewRiskScores.Check(g) == nil
	if isRisk(kind) && !riskOK {
		return nil, access.GateViewRiskScores.Check(g)
	}
	p, err := s.backend.ListReports(ctx, page, strings.ToUpper(kind))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if !riskOK {
		kept := p.Results[:0]
		for _, r := range p.Results {
			if !isRisk(r.Kind) {
				kept = append(kept, r)
			}
		}
		if dropped := len(p.Results) - len(kept); dropped > 0 {
			s.log.Debug("hid risk reports", zap.Int("count", dropped))
		}
		p.Results = kept
	}
	return p, nil
}

// Get fetches one report.
func (s *Service) Get(ctx context.Context, id string) (*model.Report, error) {
	g := s.grants()
	if err := access.GateViewReports.Check(g); err != nil {
		return nil, err
	}
	r, err := s.backend.GetReport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	if isRisk(r.Kind) {
		if err := access.GateViewRiskScores.Check(g); err != nil {
			return nil, err
		}
	}
	return r, nil
}

package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"buildledger/internal/caching"
	"buildledger/internal/models"
	"buildledger/internal/repositories"
	"buildledger/internal/services"

	"github.com/google/uuid"
)

const dashboardCacheTTL = 5 * time.Minute

// Service computes and caches the per-user dashboard summary.
type Service struct {
	invoiceRepo     repositories.InvoiceRepository
	quoteRepo       repositories.QuoteRepository
	subscriptionSvc services.SubscriptionService
	cacheSvc        caching.CacheService
}

func NewService(
	invoiceRepo repositories.InvoiceRepository,
	quoteRepo repositories.QuoteRepository,
	subscriptionSvc services.SubscriptionService,
	cacheSvc caching.CacheService,
) *Service {
	return &Service{
		invoiceRepo:     invoiceRepo,
		quoteRepo:       quoteRepo,
		subscriptionSvc: subscriptionSvc,
		cacheSvc:        cacheSvc,
	}
}

// GetDashboard returns the user's summary, from cache when fresh.
func (s *Service) GetDashboard(ctx context.Context, userID uuid.UUID) (map[string]interface{}, error) {
	if cached, err := s.cacheSvc.GetDashboard(ctx, userID); err == nil && cached != nil {
		return cached, nil
	}

	summary, err := s.computeSummary(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.cacheSvc.SetDashboard(ctx, userID, summary, dashboardCacheTTL); err != nil {
		log.Printf("WARN: failed to cache dashboard for user %s: %v", userID, err)
	}
	return summary, nil
}

func (s *Service) computeSummary(ctx context.Context, userID uuid.UUID) (map[string]interface{}, error) {
	invoices, err := s.listAllInvoices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	quotes, err := s.listAllQuotes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}

	invoiceCounts := map[string]int{}
	invoiceTotals := map[string]float64{}
	outstanding := 0.0
	revenue := 0.0
	for _, invoice := range invoices {
		invoiceCounts[invoice.Status]++
		invoiceTotals[invoice.Status] += invoice.Total
		switch invoice.Status {
		case "sent", "overdue":
			outstanding += invoice.Total
		case "paid":
			revenue += invoice.Total
		}
	}

	quoteCounts := map[string]int{}
	decided := 0
	accepted := 0
	for _, quote := range quotes {
		quoteCounts[quote.Status]++
		switch quote.Status {
		case "accepted", "converted":
			accepted++
			decided++
		case "declined", "expired":
			decided++
		}
	}
	acceptanceRate := 0.0
	if decided > 0 {
		acceptanceRate = float64(accepted) / float64(decided)
	}

	summary := map[string]interface{}{
		"invoice_counts":        invoiceCounts,
		"invoice_totals":        invoiceTotals,
		"total_invoices":        len(invoices),
		"outstanding_amount":    outstanding,
		"paid_revenue":          revenue,
		"quote_counts":          quoteCounts,
		"total_quotes":          len(quotes),
		"quote_acceptance_rate": acceptanceRate,
		"generated_at":          time.Now().UTC(),
	}

	s.attachUsage(ctx, userID, summary)
	return summary, nil
}

// attachUsage adds current usage against plan limits. Failures here do not
// fail the dashboard.
func (s *Service) attachUsage(ctx context.Context, userID uuid.UUID, summary map[string]interface{}) {
	subscription, err := s.subscriptionSvc.GetSubscription(ctx, userID)
	if err != nil {
		return
	}
	summary["plan_name"] = subscription.PlanName
	summary["subscription_status"] = subscription.Status

	plan, err := s.subscriptionSvc.GetPlanByName(ctx, subscription.PlanName)
	if err != nil {
		return
	}

	metrics, err := s.subscriptionSvc.GetUsage(ctx, userID, subscription.ID)
	if err != nil {
		log.Printf("WARN: failed to load usage for user %s: %v", userID, err)
		return
	}

	usage := map[string]interface{}{}
	for _, metric := range metrics {
		usage[metric.Feature] = map[string]interface{}{
			"used":  metric.UsageCount,
			"limit": plan.LimitFor(metric.Feature),
		}
	}
	summary["usage"] = usage
}

func (s *Service) listAllInvoices(ctx context.Context, userID uuid.UUID) ([]*models.Invoice, error) {
	const pageSize = 500
	var all []*models.Invoice
	for offset := 0; ; offset += pageSize {
		page, err := s.invoiceRepo.List(ctx, userID, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func (s *Service) listAllQuotes(ctx context.Context, userID uuid.UUID) ([]*models.Quote, error) {
	const pageSize = 500
	var all []*models.Quote
	for offset := 0; ; offset += pageSize {
		page, err := s.quoteRepo.List(ctx, userID, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

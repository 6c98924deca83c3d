package background

import (
	"context"
	"log"
	"sync"
	"time"

	"buildledger/internal/services"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages background jobs
type JobScheduler struct {
	scheduler       gocron.Scheduler
	subscriptionSvc services.SubscriptionService
	invoiceSvc      services.InvoiceService
	jobs            map[string]gocron.Job
	mu              sync.RWMutex
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(subscriptionSvc services.SubscriptionService, invoiceSvc services.InvoiceService) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:       scheduler,
		subscriptionSvc: subscriptionSvc,
		invoiceSvc:      invoiceSvc,
		jobs:            make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Billing reconciliation sweep - every 15 minutes
	reconcileJob, err := js.scheduler.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(js.reconcileSubscriptions),
		gocron.WithName("billing-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create reconcile job: %v", err)
	} else {
		js.addJob("billing-reconcile", reconcileJob)
	}

	// Overdue invoice marking - every hour
	overdueJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.markOverdueInvoices),
		gocron.WithName("invoice-overdue"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create overdue job: %v", err)
	} else {
		js.addJob("invoice-overdue", overdueJob)
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

func (js *JobScheduler) addJob(name string, job gocron.Job) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.jobs[name] = job
}

// reconcileSubscriptions syncs local subscription rows with the billing
// provider, picking up anything webhooks missed.
func (js *JobScheduler) reconcileSubscriptions() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := js.subscriptionSvc.Reconcile(ctx); err != nil {
		log.Printf("billing reconcile run failed: %v", err)
	}
}

// markOverdueInvoices flips sent invoices past their due date to overdue.
func (js *JobScheduler) markOverdueInvoices() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	marked, err := js.invoiceSvc.MarkOverdue(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("overdue invoice run failed: %v", err)
		return
	}
	if marked > 0 {
		log.Printf("marked %d invoices overdue", marked)
	}
}

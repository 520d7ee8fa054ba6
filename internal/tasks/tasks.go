package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"greendrake/haggle/internal/config"
	"greendrake/haggle/internal/services"
	"greendrake/haggle/internal/utils"
)

// TaskType defines the type of a background task.
const (
	TypeListingSold      = "listing:sold"
	TypeResolveCompeting = "offer:resolve_competing"
	TypePaymentSweep     = "payment:sweep_stale"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	opts := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// IAsynqClient is the part of *asynq.Client the enqueuer needs.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ListingTaskPayload identifies the listing a task works on.
type ListingTaskPayload struct {
	ListingID string `json:"listing_id"`
}

// ResolveCompetingPayload names the accepted offer whose siblings must be declined.
type ResolveCompetingPayload struct {
	ListingID       string `json:"listing_id"`
	AcceptedOfferID string `json:"accepted_offer_id"`
}

// Enqueuer hands work to the background worker. It satisfies services.SoldListingNotifier
// and services.CompetingOfferRetrier.
type Enqueuer struct {
	client IAsynqClient
}

func NewEnqueuer(client IAsynqClient) *Enqueuer {
	return &Enqueuer{client: client}
}

// ListingSold enqueues the wishlist fan-out. The task id is derived from the listing so a
// second enqueue while the first is still pending is dropped.
func (e *Enqueuer) ListingSold(ctx context.Context, listingID utils.SixID) error {
	payload, err := json.Marshal(ListingTaskPayload{ListingID: listingID.String()})
	if err != nil {
		return fmt.Errorf("failed to marshal listing sold payload: %w", err)
	}
	task := asynq.NewTask(TypeListingSold, payload)
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.TaskID(TypeListingSold+":"+listingID.String()),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(10),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Printf("Listing sold task for %s already queued", listingID.String())
			return nil
		}
		return fmt.Errorf("failed to enqueue listing sold task for %s: %w", listingID.String(), err)
	}
	log.Printf("Enqueued listing sold task %s for listing %s", info.ID, listingID.String())
	return nil
}

func (e *Enqueuer) RetryDeclineCompeting(ctx context.Context, listingID, acceptedOfferID utils.SixID) error {
	payload, err := json.Marshal(ResolveCompetingPayload{
		ListingID:       listingID.String(),
		AcceptedOfferID: acceptedOfferID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal resolve competing payload: %w", err)
	}
	task := asynq.NewTask(TypeResolveCompeting, payload)
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.TaskID(TypeResolveCompeting+":"+acceptedOfferID.String()),
		asynq.Queue(QueueDefault),
		asynq.ProcessIn(5*time.Second),
		asynq.MaxRetry(10),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("failed to enqueue competing offer cleanup for listing %s: %w", listingID.String(), err)
	}
	log.Printf("Enqueued competing offer cleanup %s for listing %s", info.ID, listingID.String())
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	offerService    services.IOfferService
	paymentService  services.IPaymentReconciler
	wishlistService services.IWishlistService
}

func NewTaskProcessor(offerService services.IOfferService, paymentService services.IPaymentReconciler, wishlistService services.IWishlistService) *TaskProcessor {
	return &TaskProcessor{
		offerService:    offerService,
		paymentService:  paymentService,
		wishlistService: wishlistService,
	}
}

// SetupServer configures the Asynq server and its handlers. The caller runs and stops it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeListingSold, processor.HandleListingSoldTask)
	mux.HandleFunc(TypeResolveCompeting, processor.HandleResolveCompetingTask)
	mux.HandleFunc(TypePaymentSweep, processor.HandlePaymentSweepTask)
	fmt.Println("Registered background task handlers (wishlist fan-out, competing offers, payment sweep).")

	return srv, mux
}

// NewScheduler registers the periodic stale checkout sweep.
func NewScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt(rdb), &asynq.SchedulerOpts{
		Location: time.UTC,
	})
	entryID, err := scheduler.Register(cfg.PaymentSweepCronspec, asynq.NewTask(TypePaymentSweep, nil),
		asynq.Queue(QueueLow),
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register payment sweep (%s): %w", cfg.PaymentSweepCronspec, err)
	}
	log.Printf("Payment sweep scheduled (%s), entry %s", cfg.PaymentSweepCronspec, entryID)
	return scheduler, nil
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleListingSoldTask(ctx context.Context, t *asynq.Task) error {
	var payload ListingTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal listing sold payload: %v: %w", err, asynq.SkipRetry)
	}
	listingID, err := utils.ParseSixID(payload.ListingID)
	if err != nil {
		log.Printf("Invalid ListingID in listing sold payload: %s", payload.ListingID)
		return fmt.Errorf("invalid listing ID in payload: %w", asynq.SkipRetry)
	}

	n, err := p.wishlistService.NotifyListingSold(ctx, listingID)
	if err != nil {
		return fmt.Errorf("failed to notify wishlists for listing %s: %w", payload.ListingID, err)
	}
	log.Printf("Listing sold task processed: listing=%s notified=%d", payload.ListingID, n)
	return nil
}

func (p *TaskProcessor) HandleResolveCompetingTask(ctx context.Context, t *asynq.Task) error {
	var payload ResolveCompetingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal resolve competing payload: %v: %w", err, asynq.SkipRetry)
	}
	listingID, err := utils.ParseSixID(payload.ListingID)
	if err != nil {
		return fmt.Errorf("invalid listing ID in payload: %w", asynq.SkipRetry)
	}
	offerID, err := utils.ParseSixID(payload.AcceptedOfferID)
	if err != nil {
		return fmt.Errorf("invalid offer ID in payload: %w", asynq.SkipRetry)
	}

	n, err := p.offerService.DeclineCompeting(ctx, listingID, offerID)
	if err != nil {
		return fmt.Errorf("failed to decline competing offers on listing %s: %w", payload.ListingID, err)
	}
	log.Printf("Competing offer cleanup processed: listing=%s declined=%d", payload.ListingID, n)
	return nil
}

func (p *TaskProcessor) HandlePaymentSweepTask(ctx context.Context, t *asynq.Task) error {
	log.Println("Starting stale checkout sweep...")
	n, err := p.paymentService.SweepStaleCheckouts(ctx)
	if err != nil {
		// The next scheduled run picks up whatever is left.
		log.Printf("Stale checkout sweep finished with errors after reconciling %d: %v", n, err)
		return nil
	}
	log.Printf("Stale checkout sweep finished. Reconciled %d checkout(s).", n)
	return nil
}

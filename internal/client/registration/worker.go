package registration

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-service-admin/pkg/config"
)

// deregisterTimeout bounds deregistration on shutdown
const deregisterTimeout = 10 * time.Second

// RegistrationWorker periodically (re-)registers the instance so the admin
// server learns about it again after a restart of either side.
type RegistrationWorker struct {
	config      config.ClientConfig
	registrator *Registrator
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistrationWorker creates a new registration worker
func NewRegistrationWorker(cfg config.ClientConfig, registrator *Registrator, logger *zap.Logger) *RegistrationWorker {
	if cfg.Period <= 0 {
		cfg.Period = 10 * time.Second
	}
	return &RegistrationWorker{
		config:      cfg,
		registrator: registrator,
		logger:      logger.Named("registration-worker"),
	}
}

// Start begins periodic registration in the background
func (w *RegistrationWorker) Start() {
	if !w.config.Enabled || !w.config.AutoRegistration {
		w.logger.Info("Automatic registration disabled")
		return
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wg.Add(1)

	go w.run()

	w.logger.Info("Registration worker started", zap.Duration("period", w.config.Period))
}

// Stop stops the worker and deregisters when auto_deregistration is set
func (w *RegistrationWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	if w.config.AutoDeregistration {
		ctx, cancel := context.WithTimeout(context.Background(), deregisterTimeout)
		defer cancel()
		w.registrator.Deregister(ctx)
	}
	w.logger.Info("Registration worker stopped")
}

func (w *RegistrationWorker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Period)
	defer ticker.Stop()

	w.registrator.Register(w.ctx)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.registrator.Register(w.ctx)
		}
	}
}

// RunOnce performs a single registration attempt
func (w *RegistrationWorker) RunOnce(ctx context.Context) bool {
	return w.registrator.Register(ctx)
}

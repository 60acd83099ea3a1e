package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"taphouse-backend/internal/domain"
	"taphouse-backend/internal/repository"
	"taphouse-backend/internal/store"
)

const controllerPresencePrefix = "controller:presence:"

// ControllerService edge controller registry and liveness tracking.
// Presence lives in Redis with a TTL; a controller that stops checking in
// and stops answering probes simply ages out.
type ControllerService interface {
	Register(ctx context.Context, req RegisterControllerRequest) (*domain.Controller, error)
	List(ctx context.Context) ([]ControllerStatus, error)

	// RunProber polls each registered controller's health endpoint until
	// the context is cancelled.
	RunProber(ctx context.Context)
}

// RegisterControllerRequest controller check-in payload
type RegisterControllerRequest struct {
	ControllerID    string `json:"controller_id"`
	IPAddress       string `json:"ip_address"`
	FirmwareVersion string `json:"firmware_version"`
}

// ControllerStatus controller row plus live presence
type ControllerStatus struct {
	domain.Controller
	Online bool `json:"online"`
}

type controllerService struct {
	repo          *repository.PostgresControllersRepository
	kv            store.KV
	client        *resty.Client
	probeInterval time.Duration
	presenceTTL   time.Duration
	logger        *zap.Logger
}

// NewControllerService creates the controller service
func NewControllerService(
	repo *repository.PostgresControllersRepository,
	kv store.KV,
	probeInterval, presenceTTL time.Duration,
	logger *zap.Logger,
) ControllerService {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(1)
	return &controllerService{
		repo:          repo,
		kv:            kv,
		client:        client,
		probeInterval: probeInterval,
		presenceTTL:   presenceTTL,
		logger:        logger,
	}
}

func (s *controllerService) Register(ctx context.Context, req RegisterControllerRequest) (*domain.Controller, error) {
	controllerID := strings.TrimSpace(req.ControllerID)
	if controllerID == "" {
		return nil, NewValidation("controller_id", "must not be empty")
	}
	if req.IPAddress == "" {
		return nil, NewValidation("ip_address", "must not be empty")
	}

	controller, err := s.repo.Upsert(ctx, controllerID, req.IPAddress, nullString(req.FirmwareVersion))
	if err != nil {
		return nil, err
	}
	s.markOnline(ctx, controllerID)

	s.logger.Info("controller checked in",
		zap.String("controller_id", controllerID),
		zap.String("ip", req.IPAddress))
	return controller, nil
}

func (s *controllerService) List(ctx context.Context) ([]ControllerStatus, error) {
	controllers, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make([]ControllerStatus, 0, len(controllers))
	for _, c := range controllers {
		online := false
		if _, err := s.kv.Get(ctx, controllerPresencePrefix+c.ControllerID); err == nil {
			online = true
		}
		statuses = append(statuses, ControllerStatus{Controller: c, Online: online})
	}
	return statuses, nil
}

func (s *controllerService) RunProber(ctx context.Context) {
	ticker := time.NewTicker(s.probeInterval)
	defer ticker.Stop()

	s.logger.Info("controller prober started", zap.Duration("interval", s.probeInterval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("controller prober stopped")
			return
		case <-ticker.C:
			s.probeAll(ctx)
		}
	}
}

func (s *controllerService) probeAll(ctx context.Context) {
	controllers, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("prober failed to list controllers", zap.Error(err))
		return
	}
	for _, c := range controllers {
		if err := s.probe(ctx, &c); err != nil {
			s.logger.Debug("controller probe failed",
				zap.String("controller_id", c.ControllerID),
				zap.Error(err))
		}
	}
}

func (s *controllerService) probe(ctx context.Context, c *domain.Controller) error {
	url := fmt.Sprintf("http://%s/health", c.IPAddress)
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return err
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	s.markOnline(ctx, c.ControllerID)
	if err := s.repo.TouchLastSeen(ctx, c.ControllerID); err != nil {
		return err
	}
	return nil
}

func (s *controllerService) markOnline(ctx context.Context, controllerID string) {
	key := controllerPresencePrefix + controllerID
	if err := s.kv.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), s.presenceTTL); err != nil {
		s.logger.Debug("failed to set controller presence", zap.Error(err))
	}
}

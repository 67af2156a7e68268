package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/canteen/quota"
	"github.com/BrandonDHaskell/canteen/internal/canteen/store"
	"github.com/BrandonDHaskell/canteen/internal/canteen/types"
)

// EventPublisher receives committed events. Publish must not block.
type EventPublisher interface {
	Publish(ev types.CommittedEvent) bool
}

// AdmissionObserver is the metrics hook for admission outcomes.
type AdmissionObserver interface {
	ObserveAdmission(status, reason string, d time.Duration)
}

type AdmissionOption func(*AdmissionService)

func WithPublisher(p EventPublisher) AdmissionOption {
	return func(s *AdmissionService) { s.publisher = p }
}

func WithObserver(o AdmissionObserver) AdmissionOption {
	return func(s *AdmissionService) { s.observer = o }
}

func WithDeviceRegistry(r *DeviceRegistry) AdmissionOption {
	return func(s *AdmissionService) { s.devices = r }
}

// AdmissionService decides and records consumption events.
type AdmissionService struct {
	dir       store.DirectoryStore
	ledger    store.Ledger
	norm      *Normalizer
	devices   *DeviceRegistry
	publisher EventPublisher
	observer  AdmissionObserver
	log       *zap.Logger
	validate  *validator.Validate
}

func NewAdmissionService(dir store.DirectoryStore, ledger store.Ledger, norm *Normalizer, log *zap.Logger, opts ...AdmissionOption) *AdmissionService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &AdmissionService{
		dir:      dir,
		ledger:   ledger,
		norm:     norm,
		log:      log.Named("admission"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.devices == nil {
		s.devices = NewDeviceRegistry(dir, nil, log)
	}
	return s
}

// outcome is what the write scope decided.
type outcome struct {
	reason  string
	verdict quota.Verdict
	rec     store.EventRecord
}

// errSnapshotMissingTenant aborts the write scope when the target tenant
// vanished between lookup and lock.
var errSnapshotMissingTenant = errors.New("tenant missing from ledger snapshot")

// Admit runs one admission attempt.
//
// Business rejections come back as a response with a nil error. Invalid
// input returns an error before the ledger is touched. A db_busy response
// is returned together with ErrBusy; any other storage failure returns
// ErrInternal and nothing is committed.
func (s *AdmissionService) Admit(ctx context.Context, req types.AdmissionRequest) (resp types.AdmissionResponse, err error) {
	start := time.Now()
	received := s.norm.now()
	defer func() {
		s.observe(resp, err, time.Since(start))
	}()

	req.CardNumber = strings.TrimSpace(req.CardNumber)
	req.DeviceCode = strings.TrimSpace(req.DeviceCode)
	req.ClientRequestID = strings.TrimSpace(req.ClientRequestID)
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	req.MenuLabel = strings.TrimSpace(req.MenuLabel)

	if req.CardNumber == "" {
		return types.AdmissionResponse{}, ErrInvalidCardNumber
	}
	if req.TenantID <= 0 && req.DeviceCode == "" {
		return types.AdmissionResponse{}, ErrInvalidTenant
	}
	if err := s.validate.Struct(req); err != nil {
		return types.AdmissionResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Source == "" {
		req.Source = types.SourceTap
	}

	at, err := s.norm.Normalize(req.EventTimestamp)
	if err != nil {
		return types.AdmissionResponse{}, err
	}

	if req.ClientRequestID == "" {
		req.ClientRequestID = synthesizeRequestID(req.CardNumber, received)
	}

	log := s.log.With(
		zap.String("client_request_id", req.ClientRequestID),
		zap.String("card_number", req.CardNumber),
		zap.String("day_key", at.DayKey),
	)
	reject := func(reason string) types.AdmissionResponse {
		return types.AdmissionResponse{
			Status:          types.StatusRejected,
			Reason:          reason,
			ClientRequestID: req.ClientRequestID,
		}
	}

	if req.DeviceCode != "" {
		s.devices.NoteSeen(req.DeviceCode, received)
	}

	// Lookups run before the write scope; the directory is read-only here.
	emp, err := s.dir.EmployeeByCard(ctx, req.CardNumber)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debug("admission rejected", zap.String("reason", types.ReasonUnknownCard))
		return reject(types.ReasonUnknownCard), nil
	case err != nil:
		log.Error("employee lookup failed", zap.Error(err))
		return types.AdmissionResponse{}, fmt.Errorf("%w: employee lookup: %w", ErrInternal, err)
	case !emp.Eligible():
		log.Debug("admission rejected", zap.String("reason", types.ReasonUnknownCard),
			zap.Bool("disabled", emp.Disabled), zap.Bool("blocked", emp.Blocked))
		return reject(types.ReasonUnknownCard), nil
	}

	tenantID := req.TenantID
	if tenantID <= 0 {
		id, ok, err := s.devices.TenantFor(ctx, req.DeviceCode)
		if err != nil {
			log.Error("device lookup failed", zap.Error(err))
			return types.AdmissionResponse{}, fmt.Errorf("%w: device lookup: %w", ErrInternal, err)
		}
		if !ok {
			log.Debug("admission rejected", zap.String("reason", types.ReasonUnknownTenant),
				zap.String("device_code", req.DeviceCode))
			return reject(types.ReasonUnknownTenant), nil
		}
		tenantID = id
	}

	if _, err := s.dir.TenantByID(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("admission rejected", zap.String("reason", types.ReasonUnknownTenant),
				zap.Int64("tenant_id", tenantID))
			return reject(types.ReasonUnknownTenant), nil
		}
		log.Error("tenant lookup failed", zap.Error(err))
		return types.AdmissionResponse{}, fmt.Errorf("%w: tenant lookup: %w", ErrInternal, err)
	}
	log = log.With(zap.Int64("tenant_id", tenantID))

	var out outcome
	err = s.ledger.WithWriteLock(ctx, func(ctx context.Context, tx store.LedgerTx) error {
		out = outcome{}

		dup, err := tx.HasEvent(ctx, req.CardNumber, at.DayKey)
		if err != nil {
			return err
		}
		if dup {
			out.reason = types.ReasonDuplicateDaily
			return nil
		}

		// Tenant configuration comes from the same snapshot as the counts.
		counts, err := tx.TenantCounts(ctx, at.DayKey)
		if err != nil {
			return err
		}
		target, loads, found := splitCounts(counts, tenantID)
		if !found {
			return errSnapshotMissingTenant
		}

		v, err := quota.Evaluate(tenantID, loads)
		if err != nil {
			return err
		}
		out.verdict = v
		if !v.Admit {
			out.reason = v.Reason
			return nil
		}

		n := target.Count + 1
		rec := store.EventRecord{
			CardNumber:      req.CardNumber,
			EmployeeID:      emp.EmployeeID,
			EmployeeName:    emp.Name,
			EmployeeGroup:   emp.Group,
			TenantID:        target.TenantID,
			TenantName:      target.Name,
			Source:          req.Source,
			MenuLabel:       req.MenuLabel,
			DeviceCode:      req.DeviceCode,
			ClientRequestID: req.ClientRequestID,
			EventTime:       at.Local,
			DayKey:          at.DayKey,
			QueueNumber:     quota.QueueNumber(target.DailyCapacity, n, target.Capacitated()),
			Ticket:          quota.Ticket(target.TicketPrefix, at.DayKey, n),
			CommittedAt:     s.norm.now(),
		}
		id, err := tx.InsertEvent(ctx, rec)
		if err != nil {
			return err
		}
		rec.EventID = id
		out.rec = rec
		out.reason = v.Reason
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, store.ErrDuplicateEvent):
		// The unique index caught what the point check missed.
		log.Warn("duplicate caught by unique index", zap.Error(err))
		out = outcome{reason: types.ReasonDuplicateDaily}
	case errors.Is(err, errSnapshotMissingTenant):
		out = outcome{reason: types.ReasonUnknownTenant}
	case errors.Is(err, store.ErrBusy), errors.Is(err, context.DeadlineExceeded):
		log.Warn("write scope busy", zap.Error(err))
		return reject(types.ReasonDBBusy), fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, context.Canceled):
		return types.AdmissionResponse{}, err
	default:
		log.Error("admission failed, rolled back", zap.Error(err))
		return types.AdmissionResponse{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	if out.rec.EventID == 0 {
		r := reject(out.reason)
		if out.reason == types.ReasonQuotaExceeded {
			r.RemainingForTarget = out.verdict.RemainingPtr()
			r.MaxRemainingAny = intPtr(out.verdict.MaxRemainingAny)
		}
		log.Debug("admission rejected", zap.String("reason", out.reason))
		return r, nil
	}

	resp = s.accepted(req.ClientRequestID, out)
	log.Info("admission accepted",
		zap.String("reason", out.reason),
		zap.Int64("event_id", out.rec.EventID),
		zap.String("ticket", out.rec.Ticket),
		zap.Int("queue_number", out.rec.QueueNumber),
	)

	if s.publisher != nil {
		s.publisher.Publish(committedEvent(out, resp.CommitTimestamp))
	}
	return resp, nil
}

func (s *AdmissionService) accepted(clientRequestID string, out outcome) types.AdmissionResponse {
	rec := out.rec
	return types.AdmissionResponse{
		Status:          types.StatusAccepted,
		Reason:          out.reason,
		ClientRequestID: clientRequestID,
		CommitTimestamp: rec.CommittedAt.In(s.norm.Location()).Format(time.RFC3339Nano),
		Ticket:          rec.Ticket,
		QueueNumber:     intPtr(rec.QueueNumber),
		TransactionSummary: &types.TransactionSummary{
			EventID:       rec.EventID,
			CardNumber:    rec.CardNumber,
			EmployeeID:    rec.EmployeeID,
			EmployeeName:  rec.EmployeeName,
			EmployeeGroup: rec.EmployeeGroup,
			TenantID:      rec.TenantID,
			TenantName:    rec.TenantName,
			EventTime:     rec.EventTime,
			DayKey:        rec.DayKey,
			Source:        rec.Source,
			MenuLabel:     rec.MenuLabel,
		},
		RemainingForTarget: out.verdict.RemainingPtr(),
		MaxRemainingAny:    intPtr(out.verdict.MaxRemainingAny),
	}
}

func (s *AdmissionService) observe(resp types.AdmissionResponse, err error, d time.Duration) {
	if s.observer == nil {
		return
	}
	switch {
	case resp.Status != "":
		s.observer.ObserveAdmission(resp.Status, resp.Reason, d)
	case IsInvalidInput(err):
		s.observer.ObserveAdmission("error", "invalid_input", d)
	default:
		s.observer.ObserveAdmission("error", "internal_error", d)
	}
}

func committedEvent(out outcome, committedAt string) types.CommittedEvent {
	rec := out.rec
	return types.CommittedEvent{
		EventID:         rec.EventID,
		ClientRequestID: rec.ClientRequestID,
		CardNumber:      rec.CardNumber,
		EmployeeID:      rec.EmployeeID,
		EmployeeName:    rec.EmployeeName,
		TenantID:        rec.TenantID,
		TenantName:      rec.TenantName,
		DayKey:          rec.DayKey,
		EventTime:       rec.EventTime,
		Source:          rec.Source,
		Reason:          out.reason,
		QueueNumber:     rec.QueueNumber,
		Ticket:          rec.Ticket,
		CommittedAt:     committedAt,
	}
}

// splitCounts finds the target row and converts the snapshot for the
// evaluator.
func splitCounts(counts []store.TenantCount, tenantID int64) (store.TenantCount, []quota.Load, bool) {
	var (
		target store.TenantCount
		found  bool
	)
	loads := make([]quota.Load, 0, len(counts))
	for _, c := range counts {
		if c.TenantID == tenantID {
			target, found = c, true
		}
		loads = append(loads, toLoad(c))
	}
	return target, loads, found
}

func toLoad(c store.TenantCount) quota.Load {
	return quota.Load{
		TenantID: c.TenantID,
		Capacity: c.DailyCapacity,
		Enforced: c.CapacityEnforced,
		Ordered:  c.Count,
	}
}

// synthesizeRequestID derives a correlation id from the card and the time
// the request arrived. It is for logs only and plays no part in dedup.
func synthesizeRequestID(card string, at time.Time) string {
	name := fmt.Sprintf("%s|%d", card, at.UnixNano())
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func intPtr(n int) *int { return &n }

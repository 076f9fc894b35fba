package dnsverify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/clock"
	domainbindingdomain "github.com/smallbiznis/storefront/internal/domainbinding/domain"
	obscontext "github.com/smallbiznis/storefront/internal/observability/context"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/internal/ratelimit"
	"github.com/smallbiznis/storefront/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	jobName = "verify_domains"
	lockName = "verifier"
)

var ErrInvalidConfig = errors.New("invalid_verifier_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Registry domainbindingdomain.Registry
	Resolver TXTResolver
	Locker   *ratelimit.Locker `optional:"true"`
	Clock    clock.Clock
	Config   Config
}

type Verifier struct {
	log      *zap.Logger
	cfg      Config
	registry domainbindingdomain.Registry
	resolver TXTResolver
	locker   *ratelimit.Locker
	clock    clock.Clock
}

// Outcome is the verdict for one binding.
type Outcome struct {
	Hostname string
	Status   domainbindingdomain.Status
	DNSError string
}

func New(p Params) (*Verifier, error) {
	if p.Log == nil || p.Registry == nil || p.Resolver == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Verifier{
		log:      p.Log.Named("verifier").With(zap.String("component", "verifier")),
		cfg:      p.Config.withDefaults(),
		registry: p.Registry,
		resolver: p.Resolver,
		locker:   p.Locker,
		clock:    p.Clock,
	}, nil
}

func (v *Verifier) RunForever(ctx context.Context) {
	ticker := time.NewTicker(v.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := v.clock.Now().Add(v.cfg.RunInterval)
	verifierMetrics := obsmetrics.Verifier()

	for {
		if lag := v.clock.Now().Sub(nextRun); lag > 0 {
			verifierMetrics.ObserveRunLoopLag(lag)
		}
		if err := v.RunOnce(ctx); err != nil {
			v.log.Warn("verifier run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(v.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce checks one batch of due bindings. With several instances only the
// holder of the redis lock runs.
func (v *Verifier) RunOnce(parent context.Context) error {
	verifierMetrics := obsmetrics.Verifier()

	if v.locker != nil {
		token, ok, err := v.locker.TryLock(parent, lockName, v.cfg.LockTTL)
		if err != nil {
			verifierMetrics.IncJobError(jobName, err)
			return fmt.Errorf("%s: acquire lock: %w", jobName, err)
		}
		if !ok {
			verifierMetrics.IncLockSkipped()
			return nil
		}
		defer func() {
			if err := v.locker.Release(context.WithoutCancel(parent), lockName, token); err != nil {
				v.log.Warn("verifier lock release failed", zap.Error(err))
			}
		}()
	}

	start := v.clock.Now()
	ctx, cancel := context.WithTimeout(parent, v.cfg.JobTimeout)
	defer cancel()

	ctx, runID := correlation.EnsureCorrelationID(ctx)
	ctx = obscontext.WithActor(ctx, "system", "verifier")
	log := obslogger.WithContext(ctx, v.log).With(zap.String("job", jobName), zap.String("run_id", runID))

	verifierMetrics.IncJobRun(jobName)
	log.Info("verifier.job.start", zap.Int("batch_size", v.cfg.BatchSize))

	processed, errCount, err := v.runBatch(ctx, log)
	verifierMetrics.ObserveJobDuration(jobName, v.clock.Now().Sub(start))

	fields := []zap.Field{
		zap.Int64("duration_ms", v.clock.Now().Sub(start).Milliseconds()),
		zap.Int("processed_count", processed),
		zap.Int("error_count", errCount),
	}
	if err == nil {
		if errCount > 0 {
			log.Warn("verifier.job.finish", fields...)
		} else {
			log.Info("verifier.job.finish", fields...)
		}
		return nil
	}

	verifierMetrics.IncJobError(jobName, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		verifierMetrics.IncJobTimeout(jobName)
		log.Warn("verifier job timed out", append(fields, zap.Error(err))...)
		return nil
	}
	log.Error("verifier.job.finish", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", jobName, err)
}

func (v *Verifier) runBatch(ctx context.Context, log *zap.Logger) (int, int, error) {
	due, err := v.registry.ListDueForVerification(ctx, v.clock.Now(), v.cfg.RecheckAfter, v.cfg.BatchSize)
	if err != nil {
		return 0, 0, err
	}

	processed, errCount := 0, 0
	var jobErr error
	for _, binding := range due {
		if ctx.Err() != nil {
			return processed, errCount, errors.Join(jobErr, ctx.Err())
		}
		if _, err := v.verify(ctx, binding); err != nil {
			errCount++
			if !errors.Is(err, domainbindingdomain.ErrNotFound) {
				jobErr = errors.Join(jobErr, err)
			}
			log.Warn("verifier.binding.failed",
				zap.String("business_id", binding.BusinessID.String()),
				zap.String("binding_id", binding.ID.String()),
				zap.String("reason", obsmetrics.ClassifyVerifierJobReason(err)),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	return processed, errCount, jobErr
}

// VerifyHost checks a single hostname immediately.
func (v *Verifier) VerifyHost(ctx context.Context, hostname string) (Outcome, error) {
	binding, err := v.registry.Lookup(ctx, hostname)
	if err != nil {
		return Outcome{}, err
	}
	return v.verify(ctx, binding)
}

func (v *Verifier) verify(ctx context.Context, binding domainbindingdomain.DomainBinding) (Outcome, error) {
	outcome := v.Check(ctx, binding)
	obsmetrics.Verifier().IncCheck(string(outcome.Status))

	_, err := v.registry.RecordVerification(ctx, domainbindingdomain.RecordVerificationRequest{
		Hostname:  binding.Hostname,
		Status:    string(outcome.Status),
		CheckedAt: v.clock.Now(),
		DNSError:  outcome.DNSError,
	})
	if err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// Check looks for the binding's token at <prefix>.<hostname>. A transient DNS
// failure keeps the current status and only records the error.
func (v *Verifier) Check(ctx context.Context, binding domainbindingdomain.DomainBinding) Outcome {
	lookupCtx, cancel := context.WithTimeout(ctx, v.cfg.LookupTimeout)
	defer cancel()

	outcome := Outcome{Hostname: binding.Hostname}
	records, err := v.resolver.LookupTXT(lookupCtx, v.cfg.RecordName(binding.Hostname))
	if err != nil {
		var dnsErr *net.DNSError
		switch {
		case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
			outcome.Status = domainbindingdomain.StatusFailed
			outcome.DNSError = "verification record not found"
		case errors.As(err, &dnsErr) && (dnsErr.IsTimeout || dnsErr.IsTemporary):
			outcome.Status = binding.Status
			outcome.DNSError = "transient dns error: " + dnsErr.Err
		case errors.Is(err, context.DeadlineExceeded):
			outcome.Status = binding.Status
			outcome.DNSError = "dns lookup timed out"
		default:
			outcome.Status = domainbindingdomain.StatusFailed
			outcome.DNSError = (&obsmetrics.DNSError{Err: err}).Error()
		}
		return outcome
	}

	for _, record := range records {
		if strings.TrimSpace(record) == binding.VerificationToken {
			outcome.Status = domainbindingdomain.StatusVerified
			return outcome
		}
	}
	outcome.Status = domainbindingdomain.StatusFailed
	outcome.DNSError = "verification token mismatch"
	return outcome
}

package reporting

import (
	"context"
	stderrors "errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
	"github.com/clearledger/compliance-backend/internal/domain/report"
	"github.com/clearledger/compliance-backend/internal/infrastructure/telemetry"
	"github.com/clearledger/compliance-backend/internal/service/delivery"
	"github.com/clearledger/compliance-backend/internal/service/export"
)

// Pipeline step names recorded on failed executions.
const (
	stepStart    = "start"
	stepGenerate = "generate"
	stepEncode   = "encode"
	stepDeliver  = "deliver"
	stepFinalize = "finalize"
)

// Executor drives one execution through the pipeline:
// generate -> encode -> deliver -> finalize. Every status write is a
// compare-and-swap on the previous state, so two workers picking up the
// same execution cannot both run it.
type Executor struct {
	executions report.ExecutionRepository
	generator  *Generator
	encoder    *export.Encoder
	dispatcher *delivery.Dispatcher
	timeout    time.Duration
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewExecutor creates an execution pipeline. timeout bounds a single
// execution end to end.
func NewExecutor(executions report.ExecutionRepository, generator *Generator,
	encoder *export.Encoder, dispatcher *delivery.Dispatcher,
	timeout time.Duration, logger *zap.Logger) *Executor {

	return &Executor{
		executions: executions,
		generator:  generator,
		encoder:    encoder,
		dispatcher: dispatcher,
		timeout:    timeout,
		logger:     logger,
		tracer:     otel.Tracer("reporting.executor"),
	}
}

// Execute runs a pending execution to a terminal state. The returned
// error reflects the pipeline outcome; the execution record itself is
// always moved to a terminal state and persisted.
func (e *Executor) Execute(ctx context.Context, cfg *report.Config, exec *report.Execution) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := e.tracer.Start(ctx, "Executor.Execute",
		trace.WithAttributes(
			attribute.String("execution.id", exec.ID.String()),
			attribute.String("organization.id", exec.OrganizationID.String()),
			attribute.String("execution.trigger", string(exec.TriggeredBy)),
			attribute.String("report.type", string(cfg.ReportType)),
		),
	)
	defer span.End()

	logger := e.logger.With(
		zap.String("execution_id", exec.ID.String()),
		zap.String("org_id", exec.OrganizationID.String()),
		zap.String("trigger", string(exec.TriggeredBy)))

	if err := exec.Start(); err != nil {
		return err
	}
	if err := e.executions.UpdateStatus(ctx, exec, report.StatusPending); err != nil {
		if errors.IsType(err, errors.ErrorTypeConcurrency) {
			logger.Debug("execution already claimed by another worker")
			return nil
		}
		return errors.Wrap(err, "claiming execution")
	}
	logger.Info("execution started", zap.String("period_key", exec.PeriodKey))

	rpt, err := e.generator.Generate(ctx, cfg)
	if err != nil {
		return e.terminate(ctx, exec, stepGenerate, err, logger)
	}
	span.AddEvent("report generated",
		trace.WithAttributes(attribute.Int("event_count", len(rpt.Events))))

	artifact, err := e.encoder.Encode(ctx, cfg.Name, rpt, cfg.Export)
	if err != nil {
		return e.terminate(ctx, exec, stepEncode, err, logger)
	}
	span.AddEvent("artifact encoded",
		trace.WithAttributes(attribute.Int("data_size", len(artifact.Data))))

	receipt, err := e.dispatcher.Deliver(ctx, cfg.Delivery, &delivery.Request{
		ReportName:  cfg.Name,
		ReportType:  cfg.ReportType,
		OrgID:       exec.OrganizationID.String(),
		ExecutionID: exec.ID.String(),
		Artifact:    artifact,
	})
	if err != nil {
		return e.terminate(ctx, exec, stepDeliver, err, logger)
	}

	result := &report.ExportResult{
		Filename:    artifact.Filename,
		DataSize:    int64(len(artifact.Data)),
		RecordCount: artifact.RecordCount,
	}
	if err := exec.Complete(result, receipt.Location); err != nil {
		return err
	}
	if err := e.executions.UpdateStatus(ctx, exec, report.StatusRunning); err != nil {
		return errors.Wrap(err, "finalizing execution")
	}

	logger.Info("execution completed",
		zap.String("filename", artifact.Filename),
		zap.Int64("data_size", result.DataSize),
		zap.Int("record_count", result.RecordCount),
		zap.String("location", receipt.Location))
	return nil
}

// terminate moves a running execution to its terminal state. Expiry of
// the execution deadline is a FAILED outcome with a timeout error;
// CANCELLED is reserved for an external cancel of the parent context.
// The persisting write uses a fresh context: the pipeline context may be
// the thing that died.
func (e *Executor) terminate(ctx context.Context, exec *report.Execution, step string, cause error, logger *zap.Logger) error {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("execution.failed_step", step))
	telemetry.RecordError(span, cause)

	switch {
	case stderrors.Is(cause, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		timeoutErr := errors.NewInternalError("execution deadline exceeded").WithCause(cause)
		if err := exec.Fail(step, timeoutErr); err != nil {
			return err
		}
		logger.Error("execution timed out",
			zap.String("step", step),
			zap.Duration("timeout", e.timeout),
			zap.Error(cause))
		cause = timeoutErr
	case stderrors.Is(cause, context.Canceled) || stderrors.Is(ctx.Err(), context.Canceled):
		if err := exec.Cancel(); err != nil {
			return err
		}
		logger.Warn("execution cancelled",
			zap.String("step", step),
			zap.Error(cause))
	default:
		if err := exec.Fail(step, cause); err != nil {
			return err
		}
		logger.Error("execution failed",
			zap.String("step", step),
			zap.Error(cause))
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.executions.UpdateStatus(persistCtx, exec, report.StatusRunning); err != nil {
		logger.Error("failed to persist terminal execution state", zap.Error(err))
	}
	return cause
}

package server

import (
	"context"
	"errors"

	"github.com/bnema/waycore/internal/logger"
	"github.com/thejerf/suture/v4"
)

// Service is a supervised component. String names it in logs.
type Service interface {
	String() string
	suture.Service
}

func newSupervisor(name string) *suture.Supervisor {
	return suture.New(name, suture.Spec{
		EventHook: eventHook,
	})
}

func eventHook(ei suture.Event) {
	switch e := ei.(type) {
	case suture.EventStopTimeout:
		logger.Warn("Service failed to terminate in a timely manner", "supervisor", e.SupervisorName, "service", e.ServiceName)
	case suture.EventServicePanic:
		logger.Error("Caught a service panic", "supervisor", e.SupervisorName, "service", e.ServiceName, "panic", e.PanicMsg)
		logger.Debug(e.Stacktrace)
	case suture.EventServiceTerminate:
		logger.Error("Service failed", "supervisor", e.SupervisorName, "service", e.ServiceName, "err", e.Err, "restarting", e.Restarting)
	case suture.EventBackoff:
		logger.Warn("Too many service failures, backing off", "supervisor", e.SupervisorName)
	case suture.EventResume:
		logger.Info("Resuming after backoff", "supervisor", e.SupervisorName)
	default:
		logger.Warn("Unknown supervisor event", "type", int(ei.Type()))
	}
}

// addService adds s to sup with its errors sanitized.
func addService(sup *suture.Supervisor, s Service) suture.ServiceToken {
	return sup.Add(sanitizedService{Service: s})
}

type sanitizedService struct {
	Service
}

func (s sanitizedService) Serve(ctx context.Context) error {
	return sanitizeError(ctx, s.Service.Serve(ctx))
}

// sanitizeError keeps suture from reading a service's own context errors
// as the supervisor shutting down, which would stop it from restarting.
func sanitizeError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var errs []error
	if errors.Is(err, suture.ErrDoNotRestart) {
		errs = append(errs, suture.ErrDoNotRestart)
	}
	if errors.Is(err, suture.ErrTerminateSupervisorTree) {
		errs = append(errs, suture.ErrTerminateSupervisorTree)
	}
	errs = append(errs, errors.New(err.Error()))
	return errors.Join(errs...)
}

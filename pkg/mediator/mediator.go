// Package mediator routes a request to the one handler registered for it. The handler is wrapped by
// an ordered chain of behaviors, each of which may short-circuit the request by returning an error
// without calling the next link.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhis2-sre/im-activities/internal/errdef"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dhis2-sre/im-activities/pkg/mediator"

// Request is a command or query. RequestName must return a constant unique to the request type as
// it is called on the zero value during registration.
type Request interface {
	RequestName() string
}

// Next invokes the rest of the chain.
type Next func(ctx context.Context, request Request) (any, error)

// Behavior wraps handler execution. It either calls next or returns an error.
type Behavior func(ctx context.Context, request Request, next Next) (any, error)

// Registration associates a request type with its handler. Create one using Handle.
type Registration struct {
	name   string
	handle Next
}

// Handle creates the registration of handler for requests of type Req.
func Handle[Req Request, Res any](handler func(ctx context.Context, request Req) (Res, error)) Registration {
	var zero Req
	name := zero.RequestName()
	return Registration{
		name: name,
		handle: func(ctx context.Context, request Request) (any, error) {
			r, ok := request.(Req)
			if !ok {
				return nil, errdef.NewNoHandlerFound("handler of %q can't handle %T", name, request)
			}
			return handler(ctx, r)
		},
	}
}

// Dispatcher sends requests through the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, request Request) (any, error)
}

// Pipeline dispatches requests. It holds no state besides the handler table built by New.
type Pipeline struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	handlers map[string]Next
}

// New builds a pipeline. behaviors wrap every handler in the given order, the first behavior being
// the outermost. Registering two handlers for the same request is an error.
func New(logger *slog.Logger, behaviors []Behavior, registrations ...Registration) (*Pipeline, error) {
	handlers := make(map[string]Next, len(registrations))
	for _, registration := range registrations {
		if registration.name == "" || registration.handle == nil {
			return nil, errors.New("invalid registration: use mediator.Handle to create registrations")
		}
		if _, exists := handlers[registration.name]; exists {
			return nil, fmt.Errorf("duplicate handler registered for %q", registration.name)
		}
		handlers[registration.name] = chain(behaviors, registration.handle)
	}

	return &Pipeline{
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		handlers: handlers,
	}, nil
}

func chain(behaviors []Behavior, handler Next) Next {
	next := handler
	for i := len(behaviors) - 1; i >= 0; i-- {
		behavior := behaviors[i]
		inner := next
		next = func(ctx context.Context, request Request) (any, error) {
			return behavior(ctx, request, inner)
		}
	}
	return next
}

// Verify returns an error naming every given request without a registered handler. Call it at
// startup with the requests the transports send so a missing registration fails fast.
func (p *Pipeline) Verify(requests ...Request) error {
	var errs []error
	for _, request := range requests {
		if _, ok := p.handlers[request.RequestName()]; !ok {
			errs = append(errs, errdef.NewNoHandlerFound("no handler registered for %q", request.RequestName()))
		}
	}
	return errors.Join(errs...)
}

// Dispatch sends request through the behaviors to its handler. Errors not defined by errdef and
// panics are logged and replaced by an errdef.Unavailable error wrapping the original cause.
func (p *Pipeline) Dispatch(ctx context.Context, request Request) (response any, err error) {
	if request == nil {
		return nil, errdef.NewNoHandlerFound("no handler registered for nil request")
	}

	name := request.RequestName()
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()

	handler, ok := p.handlers[name]
	if !ok {
		err := errdef.NewNoHandlerFound("no handler registered for %q", name)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			response = nil
			err = errdef.NewUnavailable(fmt.Errorf("panic: %v", r), "failed to process %s", name)
			p.logger.ErrorContext(ctx, "Recovered from panic in request handler", "request", name, "panic", r)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	response, err = handler(ctx, request)
	if err != nil {
		err = p.classify(ctx, name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return response, nil
}

func (p *Pipeline) classify(ctx context.Context, name string, err error) error {
	if errdef.IsClassified(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		p.logger.WarnContext(ctx, "Request timed out", "request", name, "error", err)
		return errdef.NewUnavailable(err, "%s timed out", name)
	}

	p.logger.ErrorContext(ctx, "Request failed", "request", name, "error", err)
	return errdef.NewUnavailable(err, "failed to process %s", name)
}

// Send dispatches request and asserts the response to be of type Res.
func Send[Res any](ctx context.Context, dispatcher Dispatcher, request Request) (Res, error) {
	var zero Res

	response, err := dispatcher.Dispatch(ctx, request)
	if err != nil {
		return zero, err
	}

	res, ok := response.(Res)
	if !ok {
		return zero, errdef.NewUnavailable(fmt.Errorf("unexpected response of type %T", response), "failed to process %s", request.RequestName())
	}
	return res, nil
}

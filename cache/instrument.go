package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/agentuity/go-memocache/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation is a single instrumentable call.
type Operation[In, Out any] func(ctx context.Context, in In) (Out, error)

// HistoryMode controls how Recorded appends to the call history.
type HistoryMode int

const (
	// HistoryPaired appends the input and the result (or error) together
	// once the call completes, so the inputs and outputs lists always have
	// the same length.
	HistoryPaired HistoryMode = iota
	// HistoryInputFirst appends the input before the call runs and the
	// output only when it succeeds. A failed call leaves an input with no
	// matching output.
	HistoryInputFirst
)

const tracerName = "github.com/agentuity/go-memocache/cache"

// InputsKey is the list holding the inputs recorded for an operation.
func InputsKey(name string) string { return name + ":inputs" }

// OutputsKey is the list holding the outputs recorded for an operation.
func OutputsKey(name string) string { return name + ":outputs" }

// Recorder owns the counters and call history for a set of operations.
type Recorder struct {
	store  Store
	mode   HistoryMode
	tracer trace.Tracer
	logger logger.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithHistoryMode selects how history is appended. Defaults to HistoryPaired.
func WithHistoryMode(mode HistoryMode) RecorderOption {
	return func(r *Recorder) { r.mode = mode }
}

// WithTracer sets the tracer used to open a span per instrumented call.
func WithTracer(t trace.Tracer) RecorderOption {
	return func(r *Recorder) { r.tracer = t }
}

// WithRecorderLogger sets the logger used by the Recorder.
func WithRecorderLogger(l logger.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder returns a Recorder writing into store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  store,
		mode:   HistoryPaired,
		tracer: otel.Tracer(tracerName),
		logger: logger.NewConsoleLogger(logger.LevelNone),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Mode returns the configured HistoryMode.
func (r *Recorder) Mode() HistoryMode { return r.mode }

// CountOf returns how many times name was invoked, or 0 if never.
func (r *Recorder) CountOf(ctx context.Context, name string) (int64, error) {
	return r.store.Counter(ctx, name)
}

// Replay returns the recorded call trace for name.
func (r *Recorder) Replay(ctx context.Context, name string) (*Trace, error) {
	return Replay(ctx, r.store, name)
}

// Counted wraps op so that every invocation increments the counter for name
// before op runs, whether or not op later fails.
func Counted[In, Out any](r *Recorder, name string, op Operation[In, Out]) Operation[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		if _, err := r.store.Incr(ctx, name); err != nil {
			var zero Out
			return zero, err
		}
		return op(ctx, in)
	}
}

// Recorded wraps op so that its input and output are appended to the
// history lists for name according to the Recorder's HistoryMode.
func Recorded[In, Out any](r *Recorder, name string, op Operation[In, Out]) Operation[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		input := Display(in)
		if r.mode == HistoryInputFirst {
			if err := r.store.Push(ctx, ListPush{Key: InputsKey(name), Value: input}); err != nil {
				var zero Out
				return zero, err
			}
			out, err := op(ctx, in)
			if err != nil {
				return out, err
			}
			if err := r.store.Push(ctx, ListPush{Key: OutputsKey(name), Value: Display(out)}); err != nil {
				return out, err
			}
			return out, nil
		}
		out, err := op(ctx, in)
		output := "error: " + errorText(err)
		if err == nil {
			output = Display(out)
		}
		// the history write uses a context that survives cancellation of the
		// call so a finished call is never left half recorded
		if perr := r.store.Push(context.WithoutCancel(ctx),
			ListPush{Key: InputsKey(name), Value: input},
			ListPush{Key: OutputsKey(name), Value: output},
		); perr != nil {
			if err != nil {
				r.logger.WithContext(ctx).Warn("history for %s not recorded: %s", name, perr)
				return out, err
			}
			return out, perr
		}
		return out, err
	}
}

// Traced wraps op in a span named cache.<name>.
func Traced[In, Out any](r *Recorder, name string, op Operation[In, Out]) Operation[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		ctx, span := r.tracer.Start(ctx, "cache."+name,
			trace.WithAttributes(attribute.String("cache.operation", name)))
		defer span.End()
		out, err := op(ctx, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}

// Instrument applies tracing, counting and history recording to op, in that
// order from the outside in.
func Instrument[In, Out any](r *Recorder, name string, op Operation[In, Out]) Operation[In, Out] {
	return Traced(r, name, Counted(r, name, Recorded(r, name, op)))
}

// Display renders a call argument or result for the call history.
func Display(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case error:
		return "error: " + x.Error()
	case fmt.Stringer:
		return x.String()
	case string:
		return strconv.Quote(x)
	case []byte:
		return "b" + strconv.Quote(string(x))
	default:
		return fmt.Sprintf("%v", x)
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

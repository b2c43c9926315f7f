package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/nv-mldev/emr/internal/observe"
	"github.com/nv-mldev/emr/pkg/provider/llm"
	"github.com/nv-mldev/emr/pkg/provider/stt"
)

// instrumentedSTT records request counts and errors for one STT provider.
// Latency is recorded per upload by the caller, since one upload may be
// several provider calls.
type instrumentedSTT struct {
	name     string
	provider stt.Provider
	metrics  *observe.Metrics
}

var _ stt.Provider = (*instrumentedSTT)(nil)

func (i *instrumentedSTT) Transcribe(ctx context.Context, a stt.Audio) (stt.Transcript, error) {
	t, err := i.provider.Transcribe(ctx, a)
	recordProvider(ctx, i.metrics, i.name, "stt", err)
	return t, err
}

// instrumentedLLM records latency, request counts and errors for one LLM
// provider.
type instrumentedLLM struct {
	name     string
	provider llm.Provider
	metrics  *observe.Metrics
}

var _ llm.Provider = (*instrumentedLLM)(nil)

func (i *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := i.provider.Complete(ctx, req)
	i.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", i.name)))
	recordProvider(ctx, i.metrics, i.name, "llm", err)
	return resp, err
}

func recordProvider(ctx context.Context, m *observe.Metrics, name, kind string, err error) {
	status := observe.StatusOK
	if err != nil {
		status = observe.StatusError
		m.RecordProviderError(ctx, name, kind)
	}
	m.RecordProviderRequest(ctx, name, kind, status)
}

package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	emailAdapter "alphagate/internal/adapters/email"
	"alphagate/internal/domain/dispatch"
	"alphagate/internal/domain/mailbody"
	"alphagate/internal/pkg/redact"
)

// Dispatch defaults.
const (
	DefaultChunkSize     = 45
	DefaultProviderLimit = 50
	DefaultSendTimeout   = 15 * time.Second
)

// RecipientSource lists every accepted signup address.
type RecipientSource interface {
	ListEmails(ctx context.Context) ([]string, error)
}

// DispatchInput carries one batch notification.
type DispatchInput struct {
	Subject    string
	Body       string
	TextBody   string
	Format     string
	Recipients []string // nil means every accepted signup
}

// DispatchDeps holds dependencies and tuning for Dispatch.
type DispatchDeps struct {
	Sender        emailAdapter.Sender // nil means no provider is configured
	Recipients    RecipientSource
	From          string
	ReplyTo       string
	Brand         mailbody.Brand
	ChunkSize     int
	ProviderLimit int
	Granularity   dispatch.Granularity
	Concurrency   int
	SendTimeout   time.Duration
}

// message is the rendered content shared by every send of one dispatch.
type message struct {
	from, replyTo string
	rendered      mailbody.Rendered
}

func (m message) request(to ...string) emailAdapter.SendRequest {
	return emailAdapter.SendRequest{
		To:      to,
		From:    m.from,
		Subject: m.rendered.Subject,
		HTML:    m.rendered.HTML,
		Text:    m.rendered.Text,
		ReplyTo: m.replyTo,
	}
}

// ExecuteDispatch sends one message to every valid recipient in provider-sized chunks.
// PRE: Caller is authorized
// POST: Returns a HardFailure result and an error if nothing could be sent
// POST: Otherwise every valid recipient is either counted in Succeeded or listed in Failures
// INVARIANT: No provider call is made before every pre-check passes
func ExecuteDispatch(ctx context.Context, input DispatchInput, deps DispatchDeps) (dispatch.Result, error) {
	if deps.Sender == nil {
		return dispatch.HardFailure(), ErrProviderMissing
	}
	if strings.TrimSpace(deps.From) == "" {
		return dispatch.HardFailure(), ErrSenderAddressMissing
	}

	chunkSize := deps.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	providerLimit := deps.ProviderLimit
	if providerLimit == 0 {
		providerLimit = DefaultProviderLimit
	}
	if chunkSize < 1 || chunkSize >= providerLimit {
		return dispatch.HardFailure(), fmt.Errorf("%w: chunk size %d must be below the provider limit %d", ErrConfiguration, chunkSize, providerLimit)
	}

	req := dispatch.Request{
		Subject:    input.Subject,
		Body:       input.Body,
		TextBody:   input.TextBody,
		Recipients: input.Recipients,
		Format:     input.Format,
	}
	if err := req.Validate(); err != nil {
		return dispatch.HardFailure(), fmt.Errorf("%w: %w", ErrValidation, err)
	}

	addrs := req.Recipients
	if addrs == nil {
		if deps.Recipients == nil {
			return dispatch.HardFailure(), fmt.Errorf("%w: no recipient source", ErrConfiguration)
		}
		var err error
		addrs, err = deps.Recipients.ListEmails(ctx)
		if err != nil {
			slog.Error("dispatch_event", "event", "recipients_failed", "error", err)
			return dispatch.HardFailure(), fmt.Errorf("%w: %w", ErrStore, err)
		}
	}

	valid, skipped := dispatch.NormalizeRecipients(addrs)
	if len(valid) == 0 {
		result := dispatch.HardFailure()
		result.Skipped = skipped
		return result, ErrNoValidRecipients
	}

	rendered, err := mailbody.Render(req.Subject, req.Body, req.Format, req.TextBody, deps.Brand)
	if err != nil {
		return dispatch.HardFailure(), fmt.Errorf("render message: %w", err)
	}
	msg := message{from: deps.From, replyTo: deps.ReplyTo, rendered: rendered}

	chunks := dispatch.Chunk(valid, chunkSize)
	slog.Info("dispatch_event", "event", "started",
		"recipients", len(valid), "skipped", len(skipped), "chunks", len(chunks),
		"granularity", string(granularity(deps)))

	var (
		mu     sync.Mutex
		result = dispatch.Result{Skipped: skipped}
	)
	merge := func(part dispatch.Result) {
		mu.Lock()
		result.Merge(part)
		mu.Unlock()
	}

	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			for _, rest := range chunks[i:] {
				merge(notAttempted(rest, ctx.Err()))
			}
			break
		}
		g.Go(func() error {
			merge(sendChunk(ctx, i, chunk, msg, deps))
			return nil
		})
	}
	g.Wait()

	result.Finalize()
	slog.Info("dispatch_event", "event", "finished",
		"status", string(result.Status), "attempted", result.Attempted,
		"succeeded", result.Succeeded, "failed", len(result.Failures), "provider_calls", result.Calls)
	return result, nil
}

func granularity(deps DispatchDeps) dispatch.Granularity {
	if deps.Granularity == dispatch.GranularityChunk {
		return dispatch.GranularityChunk
	}
	return dispatch.GranularityAddress
}

// sendChunk sends one chunk and returns its partial result.
// Work not started before ctx is done is recorded as not attempted.
func sendChunk(ctx context.Context, index int, chunk []string, msg message, deps DispatchDeps) dispatch.Result {
	if ctx.Err() != nil {
		return notAttempted(chunk, ctx.Err())
	}

	if granularity(deps) == dispatch.GranularityChunk {
		reqs := make([]emailAdapter.SendRequest, len(chunk))
		for i, addr := range chunk {
			reqs[i] = msg.request(addr)
		}
		part := dispatch.Result{Attempted: len(chunk), Calls: 1}
		err := withSendTimeout(ctx, deps.SendTimeout, func(ctx context.Context) error {
			_, err := deps.Sender.SendBatch(ctx, reqs)
			return err
		})
		if err != nil {
			slog.Warn("dispatch_chunk_failed", "chunk", index, "size", len(chunk), "error", err)
			for _, addr := range chunk {
				part.Failures = append(part.Failures, dispatch.Failure{Recipient: addr, Reason: err.Error()})
			}
			return part
		}
		part.Succeeded = len(chunk)
		return part
	}

	part := dispatch.Result{Attempted: len(chunk)}
	for i, addr := range chunk {
		if ctx.Err() != nil {
			rest := notAttempted(chunk[i:], ctx.Err())
			part.Failures = append(part.Failures, rest.Failures...)
			break
		}
		part.Calls++
		err := withSendTimeout(ctx, deps.SendTimeout, func(ctx context.Context) error {
			_, err := deps.Sender.Send(ctx, msg.request(addr))
			return err
		})
		if err != nil {
			slog.Warn("dispatch_send_failed", "chunk", index, "recipient", redact.Email(addr), "error", err)
			part.Failures = append(part.Failures, dispatch.Failure{Recipient: addr, Reason: err.Error()})
			continue
		}
		part.Succeeded++
	}
	return part
}

// withSendTimeout runs fn under its own deadline. An in-flight call is not
// aborted when the dispatch context is cancelled.
func withSendTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	err := fn(sendCtx)
	if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("send timed out after %s: %w", timeout, err)
	}
	return err
}

func notAttempted(addrs []string, cause error) dispatch.Result {
	part := dispatch.Result{Attempted: len(addrs)}
	for _, addr := range addrs {
		part.Failures = append(part.Failures, dispatch.Failure{
			Recipient: addr,
			Reason:    "not attempted: " + cause.Error(),
		})
	}
	return part
}

//go:build property
// +build property

package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"alphagate/internal/domain/dispatch"
)

// TestSequentialCeilingProperty verifies the hard ceiling for sequential submissions.
// Property: accepted == min(limit, distinct emails) and every rejection is a capacity or duplicate error
func TestSequentialCeilingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	for _, mode := range allModes {
		properties.Property(fmt.Sprintf("%s mode never admits past the ceiling", mode), prop.ForAll(
			func(limit int, picks []int) bool {
				store := &fakeSignupStore{}
				deps := signupDeps(store, limit, mode)
				distinct := map[int]bool{}
				for _, p := range picks {
					_, err := ExecuteSubmitSignup(context.Background(), validInput(fmt.Sprintf("P%d@example.com", p)), deps)
					switch {
					case err == nil:
						distinct[p] = true
					case errors.Is(err, ErrCapacityExceeded):
						if store.size() < limit {
							return false
						}
					case errors.Is(err, ErrDuplicateIdentity):
						if !distinct[p] {
							return false
						}
					default:
						return false
					}
					if store.size() > limit {
						return false
					}
				}
				return store.size() == len(distinct) && store.size() <= limit
			},
			gen.IntRange(1, 20),
			gen.SliceOf(gen.IntRange(0, 30)),
		))
	}

	properties.TestingRun(t)
}

// TestDispatchAccountingProperty verifies that every valid recipient is accounted for.
// Property: Succeeded + len(Failures) == Attempted and chunk mode makes ceil(n/size) calls
func TestDispatchAccountingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("dispatch accounts for every recipient", prop.ForAll(
		func(n, size, concurrency int, failing []int) bool {
			to := recipients(n)
			fail := map[string]bool{}
			for _, f := range failing {
				if f < n {
					fail[to[f]] = true
				}
			}
			sender := &recordingSender{failFor: fail}
			deps := dispatchDeps(sender)
			deps.ChunkSize = size
			deps.Granularity = dispatch.GranularityChunk
			deps.Concurrency = concurrency

			res, err := ExecuteDispatch(context.Background(), dispatchInput(to), deps)
			if err != nil {
				return false
			}
			wantCalls := (n + size - 1) / size
			if sender.calls() != wantCalls || res.Calls != wantCalls {
				return false
			}
			if res.Attempted != n || res.Succeeded+len(res.Failures) != n {
				return false
			}
			if len(fail) == 0 {
				return res.Status == dispatch.StatusAllSucceeded
			}
			return res.Status == dispatch.StatusPartialFailure
		},
		gen.IntRange(1, 300),
		gen.IntRange(1, 49),
		gen.IntRange(1, 4),
		gen.SliceOf(gen.IntRange(0, 300)),
	))

	properties.TestingRun(t)
}

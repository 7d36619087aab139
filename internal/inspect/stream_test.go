//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package inspect

import (
	"context"
	"testing"
	"time"

	"github.com/bassosimone/inspectproxy/internal/ioprim"
	"github.com/bassosimone/inspectproxy/internal/taskctx"
	"github.com/stretchr/testify/require"
)

func newTestContext(maxDepth int) *taskctx.InspectionContext {
	wheel := ioprim.NewIdleWheel(10 * time.Millisecond)
	return taskctx.NewRootContext(taskctx.DefaultLimits(), taskctx.PolicyKnobs{}, wheel, maxDepth, "test-span")
}

func TestDriverAdvancesThroughVariantsToEnd(t *testing.T) {
	ictx := newTestContext(8)
	calls := 0
	d := &Driver{Dispatch: Dispatch{
		TlsModern: func(ctx context.Context, ictx *taskctx.InspectionContext, in StreamInspection) (StreamInspection, bool, error) {
			calls++
			return StreamInspection{Variant: H1}, false, nil
		},
		H1: func(ctx context.Context, ictx *taskctx.InspectionContext, in StreamInspection) (StreamInspection, bool, error) {
			calls++
			return StreamInspection{Variant: End}, false, nil
		},
	}}
	err := d.Run(context.Background(), ictx, StreamInspection{Variant: TlsModern})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, ictx.Depth())
}

func TestDriverEnforcesMaxDepth(t *testing.T) {
	ictx := newTestContext(1)
	d := &Driver{Dispatch: Dispatch{
		TlsModern: func(ctx context.Context, ictx *taskctx.InspectionContext, in StreamInspection) (StreamInspection, bool, error) {
			return StreamInspection{Variant: H1}, false, nil
		},
		H1: func(ctx context.Context, ictx *taskctx.InspectionContext, in StreamInspection) (StreamInspection, bool, error) {
			return StreamInspection{Variant: TlsModern}, false, nil
		},
	}}
	err := d.Run(context.Background(), ictx, StreamInspection{Variant: TlsModern})
	require.Error(t, err)
}

func TestDriverBypassesUnknownUnlessForbidden(t *testing.T) {
	ictx := newTestContext(8)
	var bypassed bool
	d := &Driver{BypassFunc: func(ctx context.Context, ictx *taskctx.InspectionContext, in StreamInspection) error {
		bypassed = true
		return nil
	}}
	err := d.Run(context.Background(), ictx, StreamInspection{Variant: StreamUnknown})
	require.NoError(t, err)
	require.True(t, bypassed)

	ictx2 := newTestContext(8)
	ictx2.Policy.ProhibitUnknownProtocol = true
	err = d.Run(context.Background(), ictx2, StreamInspection{Variant: StreamUnknown})
	require.ErrorIs(t, err, ErrForbiddenProtocol)
}

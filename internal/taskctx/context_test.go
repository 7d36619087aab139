//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package taskctx

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bassosimone/inspectproxy/internal/ioprim"
)

func TestInspectionContextCloneSharesDepthAndQuit(t *testing.T) {
	root := NewRootContext(DefaultLimits(), PolicyKnobs{}, ioprim.NewIdleWheel(time.Second), 2, "span-1")
	root.Host = "example.com"

	clone := root.Clone()
	require.Equal(t, root.SpanID, clone.SpanID)
	require.Equal(t, root.Host, clone.Host)

	require.NoError(t, clone.IncreaseInspectionDepth())
	require.Equal(t, 1, root.Depth(), "depth counter is shared across clones")

	root.RequestQuit()
	select {
	case <-clone.QuitSignal():
	default:
		t.Fatal("clone did not observe the shared quit signal")
	}
}

func TestInspectionContextIncreaseInspectionDepthEnforcesMax(t *testing.T) {
	ictx := NewRootContext(DefaultLimits(), PolicyKnobs{}, nil, 1, "span-2")
	require.NoError(t, ictx.IncreaseInspectionDepth())
	require.ErrorIs(t, ictx.IncreaseInspectionDepth(), ErrMaxDepthExceeded)
}

func TestInspectionContextRequestQuitIsIdempotent(t *testing.T) {
	ictx := NewRootContext(DefaultLimits(), PolicyKnobs{}, nil, 4, "span-3")
	ictx.RequestQuit()
	require.NotPanics(t, ictx.RequestQuit)
}

func TestInspectionContextWatchFiresOnServerQuit(t *testing.T) {
	ictx := NewRootContext(DefaultLimits(), PolicyKnobs{}, nil, 4, "span-4")
	child, trigger := ictx.Watch(context.Background(), nil)

	ictx.RequestQuit()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("Watch did not cancel on RequestQuit")
	}
	require.Equal(t, TriggerServerQuit, trigger())
}

func TestInspectionContextWatchFiresOnBlocked(t *testing.T) {
	ictx := NewRootContext(DefaultLimits(), PolicyKnobs{}, nil, 4, "span-5")
	var blocked atomic.Bool
	child, trigger := ictx.Watch(context.Background(), blocked.Load)

	blocked.Store(true)

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("Watch did not cancel once blocked() returned true")
	}
	require.Equal(t, TriggerUserBlocked, trigger())
}

func TestInspectionContextWatchFollowsParentContext(t *testing.T) {
	ictx := NewRootContext(DefaultLimits(), PolicyKnobs{}, nil, 4, "span-6")
	parent, cancel := context.WithCancel(context.Background())
	child, trigger := ictx.Watch(parent, nil)

	cancel()

	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("Watch did not cancel when the parent context was cancelled")
	}
	require.Equal(t, TriggerNone, trigger())
}

func TestTaskNotesTransitionRecordsTimestamps(t *testing.T) {
	n := NewTaskNotes()
	require.Equal(t, StagePreparing, n.Stage)
	require.Contains(t, n.StageWallTimes, StagePreparing)

	n.Transition(StageConnecting)
	require.Equal(t, StageConnecting, n.Stage)
	require.Contains(t, n.StageWallTimes, StageConnecting)
	require.Contains(t, n.StageMonoTimes, StageConnecting)
}

package camera

import (
	"testing"

	"vigil/internal/geometry"
	"vigil/internal/vision"
)

const (
	frameW = 1280
	frameH = 720
)

func apply(t *testing.T, st editState, rois []vision.ROI, cmds ...EditCommand) (editState, []vision.ROI, editResult) {
	t.Helper()
	var res editResult
	for _, cmd := range cmds {
		st, rois, res = applyEdit(st, rois, cmd, frameW, frameH)
	}
	return st, rois, res
}

func TestAddPointSnapsToFrameBoundary(t *testing.T) {
	st, _, _ := apply(t, editState{}, nil,
		EditCommand{Op: OpAddPoint, X: 30, Y: 25}, // near origin corner
		EditCommand{Op: OpAddPoint, X: 600, Y: 20}, // near top edge
		EditCommand{Op: OpAddPoint, X: 600, Y: 400},
	)

	if !st.editing {
		t.Fatal("editor not active after adding points")
	}
	if len(st.points) != 3 {
		t.Fatalf("got %d points, want 3", len(st.points))
	}
	if st.points[0] != (geometry.Point{X: 0, Y: 0}) {
		t.Errorf("corner snap gave %v, want (0,0)", st.points[0])
	}
	if st.points[1] != (geometry.Point{X: 600, Y: 0}) {
		t.Errorf("edge snap gave %v, want (600,0)", st.points[1])
	}
	if st.points[2] != (geometry.Point{X: 600, Y: 400}) {
		t.Errorf("interior point moved: %v", st.points[2])
	}
}

func TestCommitRejectsDegeneratePolygon(t *testing.T) {
	st, rois, res := apply(t, editState{}, nil,
		EditCommand{Op: OpAddPoint, X: 200, Y: 200},
		EditCommand{Op: OpAddPoint, X: 400, Y: 200},
		EditCommand{Op: OpCommitROI, Name: "gate"},
	)

	if !res.rejected {
		t.Error("two-point commit not rejected")
	}
	if len(rois) != 0 {
		t.Errorf("%d rois created from a rejected commit", len(rois))
	}
	if !st.editing {
		t.Error("rejected commit discarded the in-progress points")
	}
}

func TestCommitCreatesROIAndResetsBackground(t *testing.T) {
	st, rois, res := apply(t, editState{}, nil,
		EditCommand{Op: OpAddPoint, X: 200, Y: 200},
		EditCommand{Op: OpAddPoint, X: 500, Y: 200},
		EditCommand{Op: OpAddPoint, X: 350, Y: 450},
		EditCommand{Op: OpCommitROI, Name: "gate"},
	)

	if res.committed == nil {
		t.Fatal("commit produced no ROI")
	}
	if res.committed.Name != "gate" || len(res.committed.Points) != 3 {
		t.Errorf("committed %+v", res.committed)
	}
	if !res.resetBackground {
		t.Error("commit did not request a background reset")
	}
	if len(rois) != 1 {
		t.Fatalf("working set has %d rois, want 1", len(rois))
	}
	if st.editing || len(st.points) != 0 {
		t.Error("editor state not cleared after commit")
	}
}

func TestCommitClosesOntoSharedCorner(t *testing.T) {
	// First and last points both hug the origin corner, so the commit
	// appends the corner itself.
	_, rois, res := apply(t, editState{}, nil,
		EditCommand{Op: OpAddPoint, X: 95, Y: 10},  // snaps to (95, 0)
		EditCommand{Op: OpAddPoint, X: 600, Y: 60},
		EditCommand{Op: OpAddPoint, X: 600, Y: 300},
		EditCommand{Op: OpAddPoint, X: 10, Y: 95}, // snaps to (0, 95)
		EditCommand{Op: OpCommitROI, Name: "gate"},
	)

	if res.committed == nil {
		t.Fatal("commit produced no ROI")
	}
	pts := rois[0].Points
	last := pts[len(pts)-1]
	if last != (geometry.Point{X: 0, Y: 0}) {
		t.Errorf("closing corner = %v, want (0,0)", last)
	}
	if len(pts) != 5 {
		t.Errorf("got %d points, want 5 (4 placed + corner)", len(pts))
	}
}

func TestCommitGeneratesDefaultName(t *testing.T) {
	existing := []vision.ROI{{Name: "gate", Points: geometry.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}}
	_, rois, res := apply(t, editState{}, existing,
		EditCommand{Op: OpAddPoint, X: 200, Y: 200},
		EditCommand{Op: OpAddPoint, X: 500, Y: 200},
		EditCommand{Op: OpAddPoint, X: 350, Y: 450},
		EditCommand{Op: OpCommitROI},
	)

	if res.committed == nil || res.committed.Name != "ROI_1" {
		t.Errorf("committed %+v, want name ROI_1", res.committed)
	}
	if len(rois) != 2 {
		t.Errorf("working set has %d rois, want 2", len(rois))
	}
}

func TestDefaultNameSkipsSurvivorsAfterDelete(t *testing.T) {
	existing := []vision.ROI{
		{Name: "ROI_1", Points: geometry.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}},
		{Name: "ROI_2", Points: geometry.Polygon{{X: 5, Y: 5}, {X: 9, Y: 5}, {X: 9, Y: 9}}},
	}

	// Deleting ROI_1 leaves ROI_2; the next unnamed commit must not take
	// ROI_2 and silently replace the survivor.
	_, rois, res := apply(t, editState{}, existing,
		EditCommand{Op: OpDeleteROI, Name: "ROI_1"},
		EditCommand{Op: OpAddPoint, X: 200, Y: 200},
		EditCommand{Op: OpAddPoint, X: 500, Y: 200},
		EditCommand{Op: OpAddPoint, X: 350, Y: 450},
		EditCommand{Op: OpCommitROI},
	)

	if res.committed == nil || res.committed.Name != "ROI_1" {
		t.Fatalf("committed %+v, want name ROI_1", res.committed)
	}
	if len(rois) != 2 {
		t.Errorf("working set has %d rois, want 2", len(rois))
	}
	for _, r := range rois {
		if r.Name == "ROI_2" && len(r.Points) != 3 {
			t.Errorf("survivor ROI_2 was replaced: %+v", r)
		}
	}
}

func TestSelectEditCommitReplacesROI(t *testing.T) {
	existing := []vision.ROI{{
		Name:   "gate",
		Points: geometry.Polygon{{X: 200, Y: 200}, {X: 500, Y: 200}, {X: 350, Y: 450}},
	}}

	st, rois, _ := apply(t, editState{}, existing,
		EditCommand{Op: OpSelectROI, Name: "gate"})
	if !st.editing || st.name != "gate" || len(st.points) != 3 {
		t.Fatalf("select gave state %+v", st)
	}

	st, rois, res := apply(t, st, rois,
		EditCommand{Op: OpMovePoint, Index: 2, X: 350, Y: 600},
		EditCommand{Op: OpCommitROI},
	)
	if res.committed == nil || res.committed.Name != "gate" {
		t.Fatalf("commit gave %+v", res.committed)
	}
	if len(rois) != 1 {
		t.Fatalf("replace produced %d rois, want 1", len(rois))
	}
	if rois[0].Points[2] != (geometry.Point{X: 350, Y: 600}) {
		t.Errorf("moved point not committed: %v", rois[0].Points[2])
	}
}

func TestDeletePointAndCancel(t *testing.T) {
	st, _, _ := apply(t, editState{}, nil,
		EditCommand{Op: OpAddPoint, X: 200, Y: 200},
		EditCommand{Op: OpAddPoint, X: 500, Y: 200},
		EditCommand{Op: OpDeletePoint, Index: 0},
	)
	if len(st.points) != 1 || st.points[0] != (geometry.Point{X: 500, Y: 200}) {
		t.Errorf("after delete: %v", st.points)
	}

	st, _, _ = apply(t, st, nil, EditCommand{Op: OpCancelEdit})
	if st.editing || len(st.points) != 0 {
		t.Errorf("cancel left state %+v", st)
	}
}

func TestDeleteROI(t *testing.T) {
	existing := []vision.ROI{
		{Name: "gate", Points: geometry.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}},
		{Name: "driveway", Points: geometry.Polygon{{X: 5, Y: 5}, {X: 9, Y: 5}, {X: 9, Y: 9}}},
	}

	_, rois, res := apply(t, editState{}, existing,
		EditCommand{Op: OpDeleteROI, Name: "gate"})

	if res.deleted != "gate" || !res.resetBackground {
		t.Errorf("result %+v", res)
	}
	if len(rois) != 1 || rois[0].Name != "driveway" {
		t.Errorf("remaining rois: %+v", rois)
	}
}

func TestSetROIsReplacesWorkingSet(t *testing.T) {
	existing := []vision.ROI{{Name: "old", Points: geometry.Polygon{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}}}
	replacement := []vision.ROI{
		{Name: "a", Points: geometry.Polygon{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}},
		{Name: "b", Points: geometry.Polygon{{X: 20, Y: 20}, {X: 30, Y: 20}, {X: 30, Y: 30}}},
	}

	_, rois, res := apply(t, editState{}, existing,
		EditCommand{Op: OpSetROIs, ROIs: replacement})

	if !res.resetBackground {
		t.Error("wholesale replacement did not request a background reset")
	}
	if len(rois) != 2 || rois[0].Name != "a" || rois[1].Name != "b" {
		t.Errorf("working set: %+v", rois)
	}
}

func TestMtxPathFromOutput(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"rtsp://localhost:8554/live/cam1", "live/cam1"},
		{"rtsp://10.0.0.5:8554/front", "front"},
		{"live/cam1", "live/cam1"},
	}
	for _, tt := range tests {
		if got := mtxPathFromOutput(tt.output); got != tt.want {
			t.Errorf("mtxPathFromOutput(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}

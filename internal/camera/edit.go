package camera

import (
	"fmt"

	"vigil/internal/geometry"
	"vigil/internal/vision"
)

// EditOp identifies one ROI editing command.
type EditOp string

const (
	// OpAddPoint places a vertex at (X, Y), snapping to the frame
	// boundary and to already-placed vertices.
	OpAddPoint EditOp = "add_point"
	// OpMovePoint drags the vertex at Index to (X, Y).
	OpMovePoint EditOp = "move_point"
	// OpDeletePoint removes the vertex at Index.
	OpDeletePoint EditOp = "delete_point"
	// OpCommitROI finalizes the in-progress polygon under Name.
	OpCommitROI EditOp = "commit_roi"
	// OpCancelEdit discards the in-progress polygon.
	OpCancelEdit EditOp = "cancel_edit"
	// OpSelectROI loads an existing ROI named Name into the editor.
	OpSelectROI EditOp = "select_roi"
	// OpDeleteROI removes the ROI named Name from the working set.
	OpDeleteROI EditOp = "delete_roi"
	// OpSetROIs replaces the working set with ROIs wholesale.
	OpSetROIs EditOp = "set_rois"
)

// EditCommand is one discrete editing message sent to a camera loop.
type EditCommand struct {
	Op    EditOp
	X, Y  int
	Index int
	Name  string
	ROIs  []vision.ROI
}

// editState is the per-camera polygon editor. Owned by the camera loop;
// commands mutate it only through applyEdit.
type editState struct {
	editing bool
	// name is set when an existing ROI was loaded for editing.
	name   string
	points geometry.Polygon
}

// editResult tells the camera loop what a command changed.
type editResult struct {
	// committed holds the finalized ROI to persist.
	committed *vision.ROI
	// deleted names the ROI removed from the working set.
	deleted string
	// resetBackground is set whenever ROI geometry changed.
	resetBackground bool
	// rejected is set when a commit failed validation.
	rejected bool
}

// applyEdit applies one command to the editor and the working ROI set and
// returns the successor state. Pure except for slice reuse; no camera state
// outside the arguments is touched.
func applyEdit(st editState, rois []vision.ROI, cmd EditCommand, frameW, frameH int) (editState, []vision.ROI, editResult) {
	var res editResult

	switch cmd.Op {
	case OpAddPoint:
		x, y := geometry.SnapToFrameBoundary(cmd.X, cmd.Y, frameW, frameH, geometry.DefaultSnapDistance)
		st.points = geometry.AddPoint(st.points, x, y, geometry.DefaultSnapDistance)
		st.editing = true

	case OpMovePoint:
		st.points = geometry.MovePoint(st.points, cmd.Index, cmd.X, cmd.Y)

	case OpDeletePoint:
		st.points = geometry.DeletePoint(st.points, cmd.Index)

	case OpCommitROI:
		if len(st.points) < 3 {
			res.rejected = true
			return st, rois, res
		}
		name := cmd.Name
		if name == "" {
			name = st.name
		}
		if name == "" {
			name = defaultROIName(rois)
		}
		closed := geometry.ClosePolygon(st.points,
			geometry.FrameCorners(frameW, frameH), geometry.DefaultCornerThreshold)
		roi := vision.ROI{Name: name, Points: closed}
		rois = upsertROI(rois, roi)
		res.committed = &roi
		res.resetBackground = true
		st = editState{}

	case OpCancelEdit:
		st = editState{}

	case OpSelectROI:
		for _, r := range rois {
			if r.Name == cmd.Name {
				st = editState{
					editing: true,
					name:    r.Name,
					points:  append(geometry.Polygon(nil), r.Points...),
				}
				break
			}
		}

	case OpDeleteROI:
		kept := rois[:0]
		for _, r := range rois {
			if r.Name == cmd.Name {
				res.deleted = r.Name
				res.resetBackground = true
				continue
			}
			kept = append(kept, r)
		}
		rois = kept
		if st.name == cmd.Name {
			st = editState{}
		}

	case OpSetROIs:
		rois = append([]vision.ROI(nil), cmd.ROIs...)
		res.resetBackground = true
	}

	return st, rois, res
}

// upsertROI replaces an ROI with the same name or appends.
func upsertROI(rois []vision.ROI, roi vision.ROI) []vision.ROI {
	for i, r := range rois {
		if r.Name == roi.Name {
			rois[i] = roi
			return rois
		}
	}
	return append(rois, roi)
}

// defaultROIName picks the first unused ROI_<n>, so deletions that leave
// gaps in the numbering never cause a new commit to overwrite a survivor.
func defaultROIName(rois []vision.ROI) string {
	used := make(map[string]bool, len(rois))
	for _, r := range rois {
		used[r.Name] = true
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("ROI_%d", i)
		if !used[name] {
			return name
		}
	}
}

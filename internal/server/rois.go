package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vigil/internal/geometry"
	"vigil/internal/store"
	"vigil/internal/vision"
)

// Wire format: points travel as [x, y] pairs, matching persistence.
type roiPayload struct {
	Name   string   `json:"name"`
	Points [][2]int `json:"points"`
}

type roiView struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Points [][2]int `json:"points"`
}

type cameraView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RTSPLink   string `json:"rtsp_link"`
	RTSPOutput string `json:"rtsp_output,omitempty"`
	Running    bool   `json:"running"`
}

func pairsToPolygon(pairs [][2]int) geometry.Polygon {
	poly := make(geometry.Polygon, len(pairs))
	for i, p := range pairs {
		poly[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return poly
}

func polygonToPairs(poly geometry.Polygon) [][2]int {
	pairs := make([][2]int, len(poly))
	for i, p := range poly {
		pairs[i] = [2]int{p.X, p.Y}
	}
	return pairs
}

func roiViews(records []store.ROIRecord) []roiView {
	views := make([]roiView, len(records))
	for i, rec := range records {
		views[i] = roiView{ID: rec.ID, Name: rec.Name, Points: polygonToPairs(rec.Points)}
	}
	return views
}

func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListCameras()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]cameraView, len(records))
	for i, rec := range records {
		views[i] = cameraView{
			ID:         rec.ID,
			Name:       rec.Name,
			RTSPLink:   rec.RTSPLink,
			RTSPOutput: rec.RTSPOutput,
			Running:    s.manager.Running(rec.Name),
		}
	}
	respondOK(w, fmt.Sprintf("%d cameras", len(views)), views)
}

// cameraByName resolves the path parameter; a miss writes the error.
func (s *Server) cameraByName(w http.ResponseWriter, r *http.Request) *store.CameraRecord {
	name := chi.URLParam(r, "name")
	rec, err := s.store.GetCameraByName(name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("camera %s not found", name))
		return nil
	}
	return rec
}

func (s *Server) handleListROIs(w http.ResponseWriter, r *http.Request) {
	cam := s.cameraByName(w, r)
	if cam == nil {
		return
	}
	records, err := s.store.ListROIs(cam.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, fmt.Sprintf("%d rois", len(records)), roiViews(records))
}

func (s *Server) handleAddROI(w http.ResponseWriter, r *http.Request) {
	cam := s.cameraByName(w, r)
	if cam == nil {
		return
	}

	var req roiPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "roi name is required")
		return
	}

	rec, err := s.store.AddROI(cam.ID, req.Name, pairsToPolygon(req.Points))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.refreshCameraROIs(cam)
	respondOK(w, "roi created", roiView{ID: rec.ID, Name: rec.Name, Points: polygonToPairs(rec.Points)})
}

func (s *Server) handleUpdateROI(w http.ResponseWriter, r *http.Request) {
	cam := s.cameraByName(w, r)
	if cam == nil {
		return
	}

	var req roiPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.UpdateROI(id, req.Name, pairsToPolygon(req.Points)); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.refreshCameraROIs(cam)
	respondOK(w, "roi updated", nil)
}

func (s *Server) handleDeleteROI(w http.ResponseWriter, r *http.Request) {
	cam := s.cameraByName(w, r)
	if cam == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.DeleteROI(id); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	s.refreshCameraROIs(cam)
	respondOK(w, "roi deleted", nil)
}

// refreshCameraROIs pushes the persisted ROI set into the running camera
// loop so API changes apply without a restart.
func (s *Server) refreshCameraROIs(cam *store.CameraRecord) {
	records, err := s.store.ListROIs(cam.ID)
	if err != nil {
		fmt.Printf("Warning: reloading rois for %s: %v\n", cam.Name, err)
		return
	}
	rois := make([]vision.ROI, len(records))
	for i, rec := range records {
		rois[i] = vision.ROI{Name: rec.Name, Points: rec.Points}
	}
	if err := s.manager.SetROIs(cam.Name, rois); err != nil {
		// Camera not running; it picks the set up on next start.
		fmt.Printf("Warning: roi refresh for %s: %v\n", cam.Name, err)
	}
}

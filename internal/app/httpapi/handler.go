package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	app "github.com/blockfix/backend/internal/app"
	"github.com/blockfix/backend/internal/app/domain/complaint"
	"github.com/blockfix/backend/internal/app/domain/fund"
	"github.com/blockfix/backend/internal/app/metrics"
	"github.com/blockfix/backend/internal/app/services/complaints"
	"github.com/blockfix/backend/internal/app/services/funds"
	"github.com/blockfix/backend/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the complaint and fund REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/complaints", h.complaints)
	mux.HandleFunc("/api/complaints/", h.complaintResources)
	mux.HandleFunc("/api/funds", h.funds)
	mux.HandleFunc("/api/funds/", h.fundResources)
	mux.HandleFunc("/api/fund-pool", h.fundPool)
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (h *handler) complaints(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Subject     string `json:"subject"`
			Description string `json:"description"`
			Category    string `json:"category"`
			Location    string `json:"location"`
			Photo       string `json:"photo"`
			Name        string `json:"name"`
			RegNo       string `json:"regNo"`
			Sensitive   bool   `json:"sensitive"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		c, err := h.app.Complaints.Submit(r.Context(), complaints.SubmitInput{
			Subject:     payload.Subject,
			Description: payload.Description,
			Category:    payload.Category,
			Location:    payload.Location,
			PhotoRef:    payload.Photo,
			Name:        payload.Name,
			RegNo:       payload.RegNo,
			Sensitive:   payload.Sensitive,
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, c)

	case http.MethodGet:
		list, err := h.app.Complaints.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) complaintResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/complaints"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	complaintID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			c, err := h.app.Complaints.Get(r.Context(), complaintID)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, c)
		case http.MethodPut:
			h.updateComplaint(w, r, complaintID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(parts) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "vote":
		h.voteComplaint(w, r, complaintID)
	case "proof":
		h.attachProof(w, r, complaintID)
	case "confirm":
		h.confirmComplaint(w, r, complaintID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) updateComplaint(w http.ResponseWriter, r *http.Request, complaintID string) {
	var payload struct {
		Status         *string  `json:"status"`
		AdminSetAmount *float64 `json:"adminSetAmount"`
		VendorAssigned *string  `json:"vendorAssigned"`
		VendorName     *string  `json:"vendorName"`
		VendorNote     *string  `json:"vendorNote"`
		Sensitive      *bool    `json:"sensitive"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	upd := complaint.Update{
		AdminSetAmount: payload.AdminSetAmount,
		VendorAssigned: payload.VendorAssigned,
		VendorName:     payload.VendorName,
		VendorNote:     payload.VendorNote,
		Sensitive:      payload.Sensitive,
	}
	if payload.Status != nil {
		status := complaint.Status(strings.TrimSpace(*payload.Status))
		upd.Status = &status
	}

	c, err := h.app.Complaints.Update(r.Context(), complaintID, upd)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) voteComplaint(w http.ResponseWriter, r *http.Request, complaintID string) {
	var payload struct {
		RegNo string `json:"regNo"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	votes, c, err := h.app.Complaints.Vote(r.Context(), complaintID, payload.RegNo)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Votes     int                 `json:"votes"`
		Complaint complaint.Complaint `json:"complaint"`
	}{
		Votes:     votes,
		Complaint: c,
	})
}

func (h *handler) attachProof(w http.ResponseWriter, r *http.Request, complaintID string) {
	var payload struct {
		Proof      string `json:"proof"`
		Note       string `json:"note"`
		VendorName string `json:"vendorName"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	c, err := h.app.Complaints.AttachProof(r.Context(), complaintID, payload.Proof, payload.Note, payload.VendorName)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) confirmComplaint(w http.ResponseWriter, r *http.Request, complaintID string) {
	result, err := h.app.Complaints.Confirm(r.Context(), complaintID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Complaint complaint.Complaint `json:"complaint"`
		Request   *fund.Request       `json:"request,omitempty"`
		Pool      fund.Pool           `json:"pool"`
		Released  bool                `json:"released"`
	}{
		Complaint: result.Complaint,
		Request:   result.Request,
		Pool:      result.Pool,
		Released:  result.Released,
	})
}

func (h *handler) funds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ComplaintID string  `json:"complaintId"`
			Amount      float64 `json:"amount"`
			Note        string  `json:"note"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		req, err := h.app.Funds.CreateRequest(r.Context(), payload.ComplaintID, payload.Amount, payload.Note)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, req)

	case http.MethodGet:
		reqs, err := h.app.Funds.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) fundResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/funds"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	requestID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		req, err := h.app.Funds.Get(r.Context(), requestID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, req)
		return
	}

	if len(parts) == 2 && parts[1] == "status" {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		req, err := h.app.Funds.SetStatus(r.Context(), requestID, fund.RequestStatus(strings.TrimSpace(payload.Status)))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, req)
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) fundPool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pool, err := h.app.Funds.Pool(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors to HTTP statuses: lookup misses to 404,
// domain-rule conflicts to 409, validation sentinels to 400. Anything else
// is an unexpected failure (storage, connection) and surfaces as 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, complaint.ErrAlreadyVoted),
		errors.Is(err, complaint.ErrAlreadyConfirmed),
		errors.Is(err, complaint.ErrNotYetSolved),
		errors.Is(err, complaint.ErrInvalidTransition),
		errors.Is(err, fund.ErrInvalidTransition),
		errors.Is(err, fund.ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, complaints.ErrMissingRegNo),
		errors.Is(err, complaints.ErrMissingProof),
		errors.Is(err, complaints.ErrNegativeAmount),
		errors.Is(err, complaints.ErrUnknownStatus),
		errors.Is(err, funds.ErrMissingComplaintID),
		errors.Is(err, funds.ErrUnknownStatus),
		errors.Is(err, fund.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

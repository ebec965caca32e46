package server

import (
	"encoding/json"
	"net/http"

	"onionctl/internal/bridges"
	"onionctl/internal/circuits"
	"onionctl/internal/connection"
	"onionctl/internal/ctlerr"
	"onionctl/internal/tunnel"
)

type statusResponse struct {
	State          connection.State `json:"state"`
	Display        string           `json:"display"`
	Transport      string           `json:"transport"`
	UnsavedChanges bool             `json:"unsavedChanges"`
	ActiveLog      string           `json:"activeLog,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

type transportResponse struct {
	Kind        bridges.TransportKind `json:"kind"`
	DisplayName string                `json:"displayName"`
}

type bridgesPayload struct {
	Transport     bridges.TransportKind `json:"transport"`
	CustomBridges []string              `json:"customBridges"`
}

type bridgesResponse struct {
	Saved          bridgesPayload `json:"saved"`
	Draft          bridgesPayload `json:"draft"`
	UnsavedChanges bool           `json:"unsavedChanges"`
}

type saveResponse struct {
	Saved             bridgesPayload `json:"saved"`
	ReconnectRequired bool           `json:"reconnectRequired"`
}

type progressResponse struct {
	Step          circuits.Step `json:"step"`
	Fraction      float64       `json:"fraction"`
	Count         int           `json:"count,omitempty"`
	Error         string        `json:"error,omitempty"`
	CorrelationID string        `json:"correlationId,omitempty"`
}

func toPayload(cfg bridges.BridgeConfig) bridgesPayload {
	lines := cfg.CustomLines
	if lines == nil {
		lines = []string{}
	}
	return bridgesPayload{Transport: cfg.ActiveTransport, CustomBridges: lines}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.facade.State()
	writeJSON(w, http.StatusOK, statusResponse{
		State:          st,
		Display:        st.String(),
		Transport:      s.facade.DisplayName(s.facade.BridgeConfig().ActiveTransport),
		UnsavedChanges: s.facade.HasUnsavedChanges(),
		ActiveLog:      s.facade.ActiveLog(),
		Warnings:       s.facade.Warnings(),
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	st, err := s.facade.Connect(s.baseCtx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": st, "display": st.String()})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	st, err := s.facade.Disconnect(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": st, "display": st.String()})
}

func (s *Server) handleTransports(w http.ResponseWriter, r *http.Request) {
	kinds := s.facade.AvailableTransports()
	out := make([]transportResponse, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, transportResponse{Kind: k, DisplayName: s.facade.DisplayName(k)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBridges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bridgesResponse{
		Saved:          toPayload(s.facade.BridgeConfig()),
		Draft:          toPayload(s.facade.DraftConfig()),
		UnsavedChanges: s.facade.HasUnsavedChanges(),
	})
}

// handlePutBridges replaces the draft with the request body and saves it. A rejected save
// leaves the draft holding the submitted values.
func (s *Server) handlePutBridges(w http.ResponseWriter, r *http.Request) {
	var req bridgesPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	kind, err := bridges.ParseTransportKind(string(req.Transport))
	if err != nil {
		writeError(w, &ctlerr.ValidationError{Field: "transport", Reason: err.Error()})
		return
	}
	if err := s.facade.SelectTransport(kind); err != nil {
		writeError(w, err)
		return
	}
	s.facade.SetCustomBridges(req.CustomBridges)

	res, err := s.facade.SaveBridges()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse{Saved: toPayload(res.Config), ReconnectRequired: res.ReconnectRequired})
}

func (s *Server) handleDiscardBridges(w http.ResponseWriter, r *http.Request) {
	s.facade.DiscardChanges()
	s.handleGetBridges(w, r)
}

func (s *Server) handleListCircuits(w http.ResponseWriter, r *http.Request) {
	list, err := s.facade.Circuits(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []tunnel.CircuitDescriptor{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleRefreshCircuits runs a refresh to completion and returns every step it went through.
// The refresh itself is bound to the server's lifetime, not the request's.
func (s *Server) handleRefreshCircuits(w http.ResponseWriter, r *http.Request) {
	ch, err := s.facade.RefreshCircuits(s.baseCtx)
	if err != nil {
		writeError(w, err)
		return
	}
	var steps []progressResponse
	status := http.StatusOK
	for p := range ch {
		pr := progressResponse{Step: p.Step, Fraction: p.Fraction, Count: p.Count, CorrelationID: p.CorrelationID}
		if p.Err != nil {
			pr.Error = p.Err.Error()
			status = statusFor(p.Err)
		}
		steps = append(steps, pr)
	}
	writeJSON(w, status, steps)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"sources": s.facade.LogSources(),
		"active":  s.facade.ActiveLog(),
	})
}

func statusFor(err error) int {
	switch {
	case ctlerr.IsValidation(err):
		return http.StatusBadRequest
	case ctlerr.IsBusy(err):
		return http.StatusConflict
	case ctlerr.IsTunnel(err):
		return http.StatusBadGateway
	case ctlerr.IsStorage(err):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mhartig/idmbridge/internal/heatpump"
	"github.com/mhartig/idmbridge/internal/modbusio"
	"github.com/mhartig/idmbridge/internal/ports"
	"github.com/mhartig/idmbridge/internal/registers"
)

type Server struct {
	svcs  map[string]ports.HeatPumpService
	order []string
	srv   *http.Server
}

// New returns a runnable server over the given device services. metricsHandler
// is mounted at /metrics when non-nil.
func New(svcs []ports.HeatPumpService, addr string, metricsHandler http.Handler) *Server {
	s := &Server{svcs: make(map[string]ports.HeatPumpService, len(svcs))}
	for _, svc := range svcs {
		s.svcs[svc.ID()] = svc
		s.order = append(s.order, svc.ID())
	}

	mux := http.NewServeMux()

	// Read
	mux.HandleFunc("GET /v1/devices", s.handleList)
	mux.HandleFunc("GET /v1/devices/{id}", s.handleGet)

	// Write: one endpoint per command
	mux.HandleFunc("POST /v1/devices/{id}/hvac_mode", s.handlePostHVACMode)
	mux.HandleFunc("POST /v1/devices/{id}/target_temperature", s.handlePostTargetTemperature)
	mux.HandleFunc("POST /v1/devices/{id}/numbers/{name}", s.handlePostNumber)
	mux.HandleFunc("POST /v1/devices/{id}/switches/{name}", s.handlePostSwitch)
	mux.HandleFunc("POST /v1/devices/{id}/switches/{name}/toggle", s.handlePostToggle)
	mux.HandleFunc("POST /v1/devices/{id}/reset_error", s.handlePostResetError)
	mux.HandleFunc("POST /v1/devices/{id}/boost", s.handlePostBoost)
	mux.HandleFunc("POST /v1/devices/{id}/refresh", s.handlePostRefresh)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type snapshotDTO struct {
	DeviceID          string         `json:"device_id"`
	Available         bool           `json:"available"`
	UpdatedAt         time.Time      `json:"updated_at"`
	HVACMode          string         `json:"hvac_mode"`
	Action            string         `json:"action"`
	SystemMode        string         `json:"system_mode"`
	TargetTemperature float64        `json:"target_temperature"`
	ErrorCode         uint16         `json:"error_code"`
	Sensors           map[string]any `json:"sensors"`
}

func toDTO(id string, s heatpump.Snapshot) snapshotDTO {
	dto := snapshotDTO{
		DeviceID:          id,
		Available:         s.Available,
		UpdatedAt:         s.UpdatedAt,
		HVACMode:          s.HVACMode.String(),
		Action:            s.Action,
		SystemMode:        s.SystemMode,
		TargetTemperature: s.TargetTemperature,
		ErrorCode:         s.ErrorCode,
		Sensors:           make(map[string]any, len(s.Values)),
	}
	for q, v := range s.Values {
		if !v.Valid {
			continue
		}
		if v.Type == registers.TypeBool {
			dto.Sensors[string(q)] = v.Flag
		} else {
			dto.Sensors[string(q)] = v.Num
		}
	}
	return dto
}

// ---- Handlers ----

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	out := make([]snapshotDTO, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, toDTO(id, s.svcs[id].Snapshot()))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.device(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDTO(svc.ID(), svc.Snapshot()))
}

func (s *Server) handlePostHVACMode(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "off"}
	postValue(s, w, r, func(ctx context.Context, svc ports.HeatPumpService, v string) error {
		m, err := heatpump.ParseHVACMode(v)
		if err != nil {
			return err
		}
		return svc.SetHVACMode(ctx, m)
	})
}

func (s *Server) handlePostTargetTemperature(w http.ResponseWriter, r *http.Request) {
	postValue(s, w, r, func(ctx context.Context, svc ports.HeatPumpService, v float64) error {
		return svc.SetTargetTemperature(ctx, v)
	})
}

func (s *Server) handlePostNumber(w http.ResponseWriter, r *http.Request) {
	name := registers.Quantity(r.PathValue("name"))
	postValue(s, w, r, func(ctx context.Context, svc ports.HeatPumpService, v float64) error {
		return svc.SetNumber(ctx, name, v)
	})
}

func (s *Server) handlePostSwitch(w http.ResponseWriter, r *http.Request) {
	name := registers.Quantity(r.PathValue("name"))
	postValue(s, w, r, func(ctx context.Context, svc ports.HeatPumpService, v bool) error {
		return svc.SetSwitch(ctx, name, v)
	})
}

func (s *Server) handlePostToggle(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.device(w, r)
	if !ok {
		return
	}
	name := registers.Quantity(r.PathValue("name"))
	if err := svc.ToggleSwitch(r.Context(), name); err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDTO(svc.ID(), svc.Snapshot()))
}

func (s *Server) handlePostResetError(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.device(w, r)
	if !ok {
		return
	}
	if err := svc.ResetError(r.Context()); err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDTO(svc.ID(), svc.Snapshot()))
}

func (s *Server) handlePostBoost(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.device(w, r)
	if !ok {
		return
	}
	var req struct {
		Temperature *float64 `json:"temperature"`
		Duration    *int     `json:"duration"` // minutes
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Temperature == nil || req.Duration == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'temperature' or 'duration'")
		return
	}
	err := svc.Boost(r.Context(), *req.Temperature, time.Duration(*req.Duration)*time.Minute)
	if err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDTO(svc.ID(), svc.Snapshot()))
}

func (s *Server) handlePostRefresh(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.device(w, r)
	if !ok {
		return
	}
	if err := svc.Refresh(r.Context()); err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDTO(svc.ID(), svc.Snapshot()))
}

// ---- generic helpers ----

func (s *Server) device(w http.ResponseWriter, r *http.Request) (ports.HeatPumpService, bool) {
	svc, ok := s.svcs[r.PathValue("id")]
	if !ok {
		writeErr(w, http.StatusNotFound, "unknown device")
	}
	return svc, ok
}

// postValue decodes {"value": ...}, applies it, and responds with the fresh
// snapshot.
func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(context.Context, ports.HeatPumpService, T) error) {
	svc, ok := s.device(w, r)
	if !ok {
		return
	}
	var req struct {
		Value *T `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}
	if err := apply(r.Context(), svc, *req.Value); err != nil {
		writeErr(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDTO(svc.ID(), svc.Snapshot()))
}

// statusFor maps the error taxonomy onto response codes: user validation
// failures are 422, device refusals 409, transport trouble 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, modbusio.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, heatpump.ErrDeviceRejected):
		return http.StatusConflict
	case errors.Is(err, heatpump.ErrUnsupportedMode),
		errors.Is(err, heatpump.ErrSetpointOutOfRange),
		errors.Is(err, heatpump.ErrBoostDuration),
		errors.Is(err, heatpump.ErrNotASwitch),
		errors.Is(err, heatpump.ErrNotANumber),
		errors.Is(err, heatpump.ErrValueUnknown),
		errors.Is(err, registers.ErrUnknownQuantity):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Package server exposes the scrape pipeline over a small json http
// api consumed by the mobile client.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"

	"auattend-backend/lib/scrapers/adamas"
	"auattend-backend/services/attendance"
	"auattend-backend/services/keystore"
	"auattend-backend/services/notify"
)

type Config struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// Server keys everything by the portal registration number: the
// username on the wire is the same identifier the portal knows.
type Server struct {
	config   Config
	service  attendance.Service
	keys     keystore.Service
	notifier *notify.Notifier
}

func New(config Config, service attendance.Service, keys keystore.Service, notifier *notify.Notifier) *Server {
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	return &Server{
		config:   config,
		service:  service,
		keys:     keys,
		notifier: notifier,
	}
}

func (s *Server) Router(logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level: slog.LevelInfo,
	}))
	r.Use(chimiddleware.CleanPath)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Heartbeat("/"))

	r.Post("/attendance", s.handleAttendance)
	r.Post("/routine", s.handleRoutine)
	r.Post("/register-user", s.handleRegisterUser)
	r.Post("/save-fcm-token", s.handleSaveFCMToken)
	r.Post("/save-notify-email", s.handleSaveNotifyEmail)
	r.Post("/clear-credentials", s.handleClearCredentials)

	return r
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		badRequest(w, "request body is not valid json")
		return false
	}
	return true
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (req credentialsRequest) validate(w http.ResponseWriter) bool {
	if req.Username == "" || req.Password == "" {
		badRequest(w, "username and password are required")
		return false
	}
	return true
}

func (req credentialsRequest) credentials() keystore.Credentials {
	return keystore.Credentials{
		RegistrationNo: req.Username,
		Password:       req.Password,
	}
}

type attendanceResponse struct {
	Success       bool                      `json:"success"`
	Message       string                    `json:"message,omitempty"`
	Attendance    []adamas.AttendanceRecord `json:"attendance"`
	TotalSubjects int                       `json:"total_subjects"`
}

func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) || !req.validate(w) {
		return
	}

	records, err := s.service.GetAttendance(r.Context(), req.credentials())
	if err != nil {
		handleError(w, err)
		return
	}

	res := attendanceResponse{
		Success:       true,
		Attendance:    records,
		TotalSubjects: len(records),
	}
	if len(records) == 0 {
		// could be "no classes held yet" or a silently expired session,
		// the client applies its own heuristics
		res.Attendance = []adamas.AttendanceRecord{}
		res.Message = "no attendance records were found, this may simply mean no classes have been held yet"
	}
	writeJSON(w, http.StatusOK, res)
}

type routineRequest struct {
	credentialsRequest
	// DD-MM-YYYY, empty means today
	Date string `json:"date"`
}

type routineResponse struct {
	Success bool            `json:"success"`
	DayName string          `json:"dayName"`
	DayDate string          `json:"dayDate"`
	Periods []adamas.Period `json:"periods"`
}

func (s *Server) handleRoutine(w http.ResponseWriter, r *http.Request) {
	var req routineRequest
	if !decode(w, r, &req) || !req.validate(w) {
		return
	}

	schedule, err := s.service.GetRoutine(r.Context(), req.credentials(), req.Date)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routineResponse{
		Success: true,
		DayName: schedule.DayName,
		DayDate: schedule.DayDate,
		Periods: schedule.Periods,
	})
}

type okResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type registerUserRequest struct {
	credentialsRequest
	FcmToken string `json:"fcmToken"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if !decode(w, r, &req) || !req.validate(w) {
		return
	}

	err := s.service.RegisterUser(r.Context(), req.Username, req.credentials())
	if err != nil {
		handleError(w, err)
		return
	}
	if req.FcmToken != "" {
		if err := s.keys.SaveFCMToken(r.Context(), req.Username, req.FcmToken); err != nil {
			handleError(w, err)
			return
		}
		s.notifier.InvalidateTarget(req.Username)
	}
	writeJSON(w, http.StatusOK, okResponse{Success: true, Message: "credentials saved"})
}

type saveFCMTokenRequest struct {
	Username string `json:"username"`
	FcmToken string `json:"fcmToken"`
}

func (s *Server) handleSaveFCMToken(w http.ResponseWriter, r *http.Request) {
	var req saveFCMTokenRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.FcmToken == "" {
		badRequest(w, "username and fcmToken are required")
		return
	}

	if err := s.keys.SaveFCMToken(r.Context(), req.Username, req.FcmToken); err != nil {
		handleError(w, err)
		return
	}
	s.notifier.InvalidateTarget(req.Username)
	writeJSON(w, http.StatusOK, okResponse{Success: true, Message: "token saved"})
}

type saveNotifyEmailRequest struct {
	Username    string `json:"username"`
	NotifyEmail string `json:"notifyEmail"`
}

func (s *Server) handleSaveNotifyEmail(w http.ResponseWriter, r *http.Request) {
	var req saveNotifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.NotifyEmail == "" {
		badRequest(w, "username and notifyEmail are required")
		return
	}

	if err := s.keys.SaveNotifyEmail(r.Context(), req.Username, req.NotifyEmail); err != nil {
		handleError(w, err)
		return
	}
	s.notifier.InvalidateTarget(req.Username)
	writeJSON(w, http.StatusOK, okResponse{Success: true, Message: "email saved"})
}

type clearCredentialsRequest struct {
	Username string `json:"username"`
}

func (s *Server) handleClearCredentials(w http.ResponseWriter, r *http.Request) {
	var req clearCredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Username == "" {
		badRequest(w, "username is required")
		return
	}

	if err := s.service.ClearUser(r.Context(), req.Username); err != nil {
		handleError(w, err)
		return
	}
	s.notifier.InvalidateTarget(req.Username)
	writeJSON(w, http.StatusOK, okResponse{Success: true, Message: "credentials cleared"})
}

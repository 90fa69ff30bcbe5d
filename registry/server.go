// Package registry serves recorded contract deployments over HTTP.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/gorilla/mux"
	"github.com/metafi/lending-deploy/framework"
	"github.com/sirupsen/logrus"
)

const (
	pathNetworks   = "/deployments"
	pathNetwork    = "/deployments/{network}"
	pathDeployment = "/deployments/{network}/{contract}"
)

var errServerAlreadyRunning = errors.New("server already running")

// Service is a read-only view of a deployments directory.
type Service struct {
	listenAddr string
	log        *logrus.Entry
	records    *framework.RecordStore
	srv        *http.Server
}

func NewService(log *logrus.Entry, listenAddr string, records *framework.RecordStore) *Service {
	return &Service{
		listenAddr: listenAddr,
		log:        log,
		records:    records,
	}
}

// StartHTTPServer serves requests until ctx is cancelled.
func (s *Service) StartHTTPServer(ctx context.Context) error {
	if s.srv != nil {
		return errServerAlreadyRunning
	}

	s.srv = &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("server shutdown")
		}
	}()

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Service) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc(pathNetworks, s.handleNetworks).Methods(http.MethodGet)
	r.HandleFunc(pathNetwork, s.handleNetwork).Methods(http.MethodGet)
	r.HandleFunc(pathDeployment, s.handleDeployment).Methods(http.MethodGet)

	r.Use(mux.CORSMethodMiddleware(r))
	return httplogger.LoggingMiddlewareLogrus(s.log, r)
}

func (s *Service) handleRoot(w http.ResponseWriter, req *http.Request) {
	s.respondOK(w, nilResponse)
}

func (s *Service) handleNetworks(w http.ResponseWriter, req *http.Request) {
	networks, err := s.records.Networks()
	if err != nil {
		s.log.WithError(err).Error("failed listing networks")
		s.respondError(w, http.StatusInternalServerError, "failed listing networks")
		return
	}
	s.respondOK(w, networks)
}

func (s *Service) handleNetwork(w http.ResponseWriter, req *http.Request) {
	network := mux.Vars(req)["network"]

	records, err := s.records.List(network)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondOK(w, records)
}

func (s *Service) handleDeployment(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	log := s.log.WithFields(logrus.Fields{
		"network":  vars["network"],
		"contract": vars["contract"],
	})
	log.Debug("deployment lookup")

	record, err := s.records.Load(vars["network"], vars["contract"])
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondOK(w, record)
}

func (s *Service) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, framework.ErrRecordNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, framework.ErrInvalidName):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.WithError(err).Error("failed reading deployment records")
		s.respondError(w, http.StatusInternalServerError, "failed reading deployment records")
	}
}

func (s *Service) respondError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := httpErrorResp{code, message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WithField("response", resp).WithError(err).Error("Couldn't write error response")
		http.Error(w, "", http.StatusInternalServerError)
	}
}

func (s *Service) respondOK(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.WithField("response", response).WithError(err).Error("Couldn't write OK response")
		http.Error(w, "", http.StatusInternalServerError)
	}
}

type httpErrorResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var nilResponse = struct{}{}

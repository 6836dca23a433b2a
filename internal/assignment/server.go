package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kroma-network/prover-assignment-server/internal/logging"
	"github.com/kroma-network/prover-assignment-server/internal/policy"
)

const (
	maxRequestBodySize = 1 << 20
	// retryAfterSeconds is one L1 slot.
	retryAfterSeconds = 12
)

type Server struct {
	service *Service
	logger  *zap.Logger
	handler http.Handler
}

func NewServer(service *Service, logger *zap.Logger) *Server {
	s := &Server{service: service, logger: logger}

	r := chi.NewRouter()
	r.Use(s.withRequestId)
	r.Get("/", s.health)
	r.Get("/healthz", s.health)
	r.Get("/status", s.status)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/assignment", func(r chi.Router) {
		r.Post("/", s.createAssignment)
		r.Post("/{txListHash}/complete", s.completeAssignment)
	})

	s.handler = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
	return s
}

func (s *Server) ServeHTTP(writer http.ResponseWriter, httpRequest *http.Request) {
	s.handler.ServeHTTP(writer, httpRequest)
}

func (s *Server) withRequestId(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, httpRequest *http.Request) {
		requestId := "req_" + uuid.NewString()
		writer.Header().Set("X-Request-Id", requestId)
		l := s.logger.With(zap.String("requestId", requestId), zap.String("remoteAddr", httpRequest.RemoteAddr))
		next.ServeHTTP(writer, httpRequest.WithContext(logging.NewContext(httpRequest.Context(), l)))
	})
}

func (s *Server) health(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, s.service.Status())
}

func (s *Server) createAssignment(writer http.ResponseWriter, httpRequest *http.Request) {
	var request policy.Request
	decoder := json.NewDecoder(http.MaxBytesReader(writer, httpRequest.Body, maxRequestBodySize))
	if err := decoder.Decode(&request); err != nil {
		http.Error(writer, "failed to decode JSON request", http.StatusBadRequest)
		return
	}

	assignment, err := s.service.Assign(httpRequest.Context(), &request)
	if err != nil {
		s.writeError(writer, httpRequest, err)
		return
	}
	writeJSON(writer, http.StatusOK, newAssignmentResponse(assignment))
}

func (s *Server) completeAssignment(writer http.ResponseWriter, httpRequest *http.Request) {
	raw, err := hexutil.Decode(chi.URLParam(httpRequest, "txListHash"))
	if err != nil || len(raw) != common.HashLength {
		http.Error(writer, "invalid txList hash", http.StatusBadRequest)
		return
	}
	released := s.service.Complete(common.BytesToHash(raw))
	writeJSON(writer, http.StatusOK, &CompleteResponse{Released: released})
}

func (s *Server) writeError(writer http.ResponseWriter, httpRequest *http.Request, err error) {
	switch {
	case policy.IsRejection(err):
		http.Error(writer, rejectionReason(err), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrProverAtCapacity):
		writer.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		http.Error(writer, ErrProverAtCapacity.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ErrUpstreamUnavailable):
		writer.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		http.Error(writer, ErrUpstreamUnavailable.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The proposer is most likely gone; the status is best effort.
		logging.FromContextOr(httpRequest.Context(), s.logger).Sugar().Infow("Assignment request cancelled", "error", err)
		http.Error(writer, ErrUpstreamUnavailable.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(writer, ErrInternal.Error(), http.StatusInternalServerError)
	}
}

// rejectionReason maps a rejection to its fixed reason, dropping any detail.
func rejectionReason(err error) string {
	for _, reason := range []error{
		policy.ErrInvalidTxListHash,
		policy.ErrUnsupportedFeeToken,
		policy.ErrProofFeeTooLow,
		policy.ErrExpiryTooLong,
		policy.ErrInvalidTier,
	} {
		if errors.Is(err, reason) {
			return reason.Error()
		}
	}
	return err.Error()
}

func writeJSON(writer http.ResponseWriter, status int, v any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(v)
}

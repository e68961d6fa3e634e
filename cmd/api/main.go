package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"loanbook/pkg/cache"
	"loanbook/pkg/events"
	"loanbook/pkg/events/kafka"
	"loanbook/pkg/loans"
	"loanbook/pkg/models"
	"loanbook/pkg/store"
)

const dateLayout = "2006-01-02"

// Server holds the loan service and its collaborators.
type Server struct {
	loans   *loans.Service
	storage store.Storage // Keep a reference to the storage to close it
	cache   cache.Cache
}

func NewServer(s store.Storage, pub events.Publisher, c cache.Cache) *Server {
	if c == nil {
		c = cache.NewMockCache()
	}
	return &Server{
		loans:   loans.NewService(s, pub),
		storage: s,
		cache:   c,
	}
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerKey  string          `json:"customer_key"`
		Amount       decimal.Decimal `json:"amount"`
		CurrencyCode string          `json:"currency_code"`
		Terms        int             `json:"terms"`
		ProcessedAt  string          `json:"processed_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	processedAt, err := time.Parse(dateLayout, req.ProcessedAt)
	if err != nil {
		http.Error(w, "Invalid processed_at date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	loan, err := s.loans.CreateLoan(req.CustomerKey, req.Amount, req.CurrencyCode, req.Terms, processedAt)
	if err != nil {
		if errors.Is(err, loans.ErrInvalidAmount) || errors.Is(err, loans.ErrInvalidTerms) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Error creating loan: %v\n", err)
		http.Error(w, fmt.Sprintf("Failed to create loan: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFromRequest(w, r)
	if !ok {
		return
	}

	loan, err := s.loans.GetLoan(loanID)
	if err != nil {
		if errors.Is(err, store.ErrLoanNotFound) {
			http.Error(w, "Loan not found", http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	allLoans, err := s.loans.GetAllLoans()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(allLoans)
}

func (s *Server) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFromRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")

	cacheKey := scheduleCacheKey(loanID)
	if cached, ok := s.cache.Get(cacheKey); ok {
		w.Write([]byte(cached))
		return
	}

	schedule, err := s.loans.ScheduleForLoan(loanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(schedule) == 0 {
		http.Error(w, "Loan not found", http.StatusNotFound)
		return
	}

	body, err := json.Marshal(schedule)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.cache.Set(cacheKey, string(body)); err != nil {
		log.Printf("Warning: failed to cache schedule for loan %s: %v", loanID, err)
	}
	w.Write(body)
}

func (s *Server) repayLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount       decimal.Decimal `json:"amount"`
		CurrencyCode string          `json:"currency_code"`
		ReceivedAt   string          `json:"received_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	receivedAt, err := time.Parse(dateLayout, req.ReceivedAt)
	if err != nil {
		http.Error(w, "Invalid received_at date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	received, err := s.loans.RepayLoan(loanID, req.Amount, req.CurrencyCode, receivedAt)
	if err != nil {
		switch {
		case errors.Is(err, loans.ErrInvalidAmount):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrLoanNotFound):
			http.Error(w, "Loan not found", http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// The schedule changed; drop the cached copy.
	if err := s.cache.Delete(scheduleCacheKey(loanID)); err != nil {
		log.Printf("Warning: failed to invalidate schedule cache for loan %s: %v", loanID, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(received)
}

func (s *Server) listRepaymentsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFromRequest(w, r)
	if !ok {
		return
	}

	repayments, err := s.loans.RepaymentsForLoan(loanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if repayments == nil {
		repayments = []*models.ReceivedRepayment{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(repayments)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func loanIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return loanID, true
}

func scheduleCacheKey(loanID uuid.UUID) string {
	return "schedule:" + loanID.String()
}

func newRouter(s *Server) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/schedule", s.getScheduleHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/repayments", s.listRepaymentsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/repayments", s.repayLoanHandler).Methods("POST")

	return router
}

func newStorage() (store.Storage, error) {
	driver := os.Getenv("DB_DRIVER")
	dsn := os.Getenv("DB_DSN")

	switch driver {
	case "postgres":
		return store.NewPostgresStore(dsn)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		if dsn == "" {
			dsn = "loanbook.db"
		}
		return store.NewSQLiteStore(dsn)
	}
}

func main() {
	// Optional .env file; real env vars win.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	storage, err := newStorage()
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer storage.Close()

	var publisher events.Publisher = events.Nop{}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		kafkaPublisher := kafka.NewPublisher(strings.Split(brokers, ","))
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Printf("Publishing events to Kafka brokers %s", brokers)
	}

	var responseCache cache.Cache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		responseCache = cache.NewRedisCache(addr)
		log.Printf("Caching schedule responses in Redis at %s", addr)
	}

	server := NewServer(storage, publisher, responseCache)
	router := newRouter(server)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("Server starting on %s", addr)
	log.Fatal(http.ListenAndServe(addr, router))
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cinebook/booking/internal/adapters/crdb"
	mongoadapter "github.com/cinebook/booking/internal/adapters/mongo"
	"github.com/cinebook/booking/internal/booking"
	"github.com/cinebook/booking/internal/config"
	"github.com/cinebook/booking/internal/domain"
	"github.com/cinebook/booking/internal/idempotency"
	"github.com/cinebook/booking/internal/schedule"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	cfg       *config.Config
	svc       *booking.Service
	validator *schedule.Validator
	users     *mongoadapter.UserRepository
	idemp     *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, svc *booking.Service, validator *schedule.Validator, users *mongoadapter.UserRepository, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		cfg:       cfg,
		svc:       svc,
		validator: validator,
		users:     users,
		idemp:     idemp,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, domain.ErrSerializationFailure):
		status = http.StatusConflict
		msg = "conflict, try again"
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, domain.ErrUnprocessable):
		status = http.StatusUnprocessableEntity
		msg = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Wrap(domain.ErrInvalidInput, "invalid id")
	}
	return id, nil
}

type orderItemResponse struct {
	ID       int64               `json:"id"`
	Status   domain.ItemStatus   `json:"status"`
	SeatID   int64               `json:"seat_id"`
	Price    float64             `json:"price"`
	Subtotal float64             `json:"subtotal"`
	Snapshot domain.ItemSnapshot `json:"snapshot"`
}

type orderResponse struct {
	ID            int64               `json:"id"`
	Number        string              `json:"number"`
	Status        domain.OrderStatus  `json:"status"`
	PaymentMethod string              `json:"payment_method"`
	TotalPrice    float64             `json:"total_price"`
	CreatedAt     time.Time           `json:"created_at"`
	ExpiresAt     time.Time           `json:"expires_at"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	User          *userResponse       `json:"user,omitempty"`
	Items         []orderItemResponse `json:"items"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handlers) composeOrder(ctx context.Context, order *domain.Order) orderResponse {
	resp := orderResponse{
		ID:            order.ID,
		Number:        order.Number,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		TotalPrice:    order.TotalPrice,
		CreatedAt:     order.CreatedAt,
		ExpiresAt:     order.ExpiresAt,
		PaidAt:        order.PaidAt,
		Items:         make([]orderItemResponse, len(order.Items)),
	}
	for i, item := range order.Items {
		resp.Items[i] = orderItemResponse{
			ID:       item.ID,
			Status:   item.Status,
			SeatID:   item.SeatID,
			Price:    item.Price,
			Subtotal: item.Subtotal,
			Snapshot: item.Snapshot,
		}
	}
	// User lookup is best-effort response decoration.
	if user, err := h.users.GetUser(ctx, order.UserID); err == nil {
		resp.User = &userResponse{ID: user.ID, Name: user.Name, Email: user.Email}
	}
	return resp
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		ShowtimeID    int64   `json:"showtime_id"`
		SeatIDs       []int64 `json:"seat_ids"`
		UserID        int64   `json:"user_id"`
		PaymentMethod string  `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(domain.ErrInvalidInput, "malformed body"))
		return
	}
	if req.ShowtimeID <= 0 || req.UserID <= 0 {
		writeError(w, errors.Wrap(domain.ErrInvalidInput, "ids must be positive"))
		return
	}
	if len(req.SeatIDs) == 0 {
		writeError(w, errors.Wrap(domain.ErrInvalidInput, "seat_ids must not be empty"))
		return
	}
	for _, id := range req.SeatIDs {
		if id <= 0 {
			writeError(w, errors.Wrap(domain.ErrInvalidInput, "ids must be positive"))
			return
		}
	}
	if req.PaymentMethod == "" {
		writeError(w, errors.Wrap(domain.ErrInvalidInput, "payment_method required"))
		return
	}

	order, err := h.svc.CreateOrder(r.Context(), req.UserID, req.ShowtimeID, req.SeatIDs, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, h.composeOrder(r.Context(), order))
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.composeOrder(r.Context(), order))
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	var f crdb.OrderFilter
	q := r.URL.Query()
	if v := q.Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, errors.Wrap(domain.ErrInvalidInput, "invalid user_id"))
			return
		}
		f.UserID = id
	}
	if v := q.Get("status"); v != "" {
		status, ok := domain.ParseOrderStatus(v)
		if !ok {
			writeError(w, errors.Wrapf(domain.ErrInvalidInput, "unknown status %q", v))
			return
		}
		f.Status = status
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	orders, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = h.composeOrder(r.Context(), &orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": resp})
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(domain.ErrInvalidInput, "malformed body"))
		return
	}
	target, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		writeError(w, errors.Wrapf(domain.ErrInvalidInput, "unknown status %q", req.Status))
		return
	}

	order, err := h.svc.Transition(r.Context(), id, target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.composeOrder(r.Context(), order))
}

func (h *Handlers) AvailableSeats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	seats, err := h.svc.AvailableSeats(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"seats": seats})
}

type showtimeRequest struct {
	MovieID   int64   `json:"movie_id"`
	StudioID  int64   `json:"studio_id"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Price     float64 `json:"price"`
}

func (req showtimeRequest) toInput() (schedule.ShowtimeInput, error) {
	var in schedule.ShowtimeInput
	if req.MovieID <= 0 || req.StudioID <= 0 {
		return in, errors.Wrap(domain.ErrInvalidInput, "ids must be positive")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return in, errors.Wrap(domain.ErrInvalidInput, "invalid date, want YYYY-MM-DD")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return in, errors.Wrap(domain.ErrInvalidInput, "invalid start_time, want RFC3339")
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return in, errors.Wrap(domain.ErrInvalidInput, "invalid end_time, want RFC3339")
	}
	return schedule.ShowtimeInput{
		MovieID:   req.MovieID,
		StudioID:  req.StudioID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Price:     req.Price,
	}, nil
}

type showtimeResponse struct {
	ID          int64     `json:"id"`
	MovieID     int64     `json:"movie_id"`
	StudioID    int64     `json:"studio_id"`
	Date        string    `json:"date"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Price       float64   `json:"price"`
	BookedSeats int       `json:"booked_seats"`
}

func composeShowtime(st *domain.Showtime) showtimeResponse {
	return showtimeResponse{
		ID:          st.ID,
		MovieID:     st.MovieID,
		StudioID:    st.StudioID,
		Date:        st.Date.Format("2006-01-02"),
		StartTime:   st.StartTime,
		EndTime:     st.EndTime,
		Price:       st.Price,
		BookedSeats: st.BookedSeats,
	}
}

func (h *Handlers) CreateShowtime(w http.ResponseWriter, r *http.Request) {
	var req showtimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(domain.ErrInvalidInput, "malformed body"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.validator.CreateShowtime(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, composeShowtime(st))
}

func (h *Handlers) UpdateShowtime(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req showtimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(domain.ErrInvalidInput, "malformed body"))
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.validator.UpdateShowtime(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, composeShowtime(st))
}

func (h *Handlers) DeleteShowtime(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.validator.DeleteShowtime(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

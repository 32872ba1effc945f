package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID            int64
	Number        string
	UserID        int64
	PaymentMethod string
	Status        OrderStatus
	TotalPrice    float64
	CreatedAt     time.Time
	ExpiresAt     time.Time
	PaidAt        *time.Time
	Items         []OrderItem
}

type OrderItem struct {
	ID         int64
	OrderID    int64
	ShowtimeID int64
	SeatID     int64
	Quantity   int
	Price      float64
	Subtotal   float64
	Status     ItemStatus
	Snapshot   ItemSnapshot
}

// ItemSnapshot freezes the catalog fields at purchase time so later
// movie or schedule edits never corrupt historical orders.
type ItemSnapshot struct {
	MovieTitle   string    `json:"movie_title"`
	MoviePoster  string    `json:"movie_poster"`
	StudioNumber int       `json:"studio_number"`
	Date         time.Time `json:"date"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Price        float64   `json:"price"`
	SeatLabel    string    `json:"seat_label"`
}

// NewOrder assembles a PENDING order for the given seats, one item per
// seat, with the expiry deadline fixed at creation.
func NewOrder(userID int64, paymentMethod string, st *Showtime, movie *Movie, seats []Seat, now time.Time, window time.Duration) *Order {
	now = now.UTC()
	order := &Order{
		Number:        NewOrderNumber(),
		UserID:        userID,
		PaymentMethod: paymentMethod,
		Status:        OrderPending,
		TotalPrice:    st.Price * float64(len(seats)),
		CreatedAt:     now,
		ExpiresAt:     now.Add(window),
		Items:         make([]OrderItem, len(seats)),
	}
	for i, seat := range seats {
		order.Items[i] = OrderItem{
			ShowtimeID: st.ID,
			SeatID:     seat.ID,
			Quantity:   1,
			Price:      st.Price,
			Subtotal:   st.Price,
			Status:     ItemPending,
			Snapshot: ItemSnapshot{
				MovieTitle:   movie.Title,
				MoviePoster:  movie.PosterURL,
				StudioNumber: st.StudioNumber,
				Date:         st.Date,
				StartTime:    st.StartTime,
				EndTime:      st.EndTime,
				Price:        st.Price,
				SeatLabel:    seat.Label(),
			},
		}
	}
	return order
}

// NewOrderNumber generates a public order code, e.g. "ORD-9F2C41AB".
func NewOrderNumber() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "ORD-" + raw[:8]
}

// ActiveSeatsByShowtime counts the distinct seats this order still holds
// against each showtime. Only PENDING and CONFIRMED items hold capacity.
func (o *Order) ActiveSeatsByShowtime() map[int64]int {
	counts := make(map[int64]int)
	seen := make(map[[2]int64]struct{})
	for _, it := range o.Items {
		if it.Status != ItemPending && it.Status != ItemConfirmed {
			continue
		}
		key := [2]int64{it.ShowtimeID, it.SeatID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		counts[it.ShowtimeID]++
	}
	return counts
}

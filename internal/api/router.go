package api

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/example/order-fulfillment/internal/api/middleware"
)

// NewRouter wires the HTTP surface. Nested paths dispatch on segment
// shape; the handlers parse the ids out of the path themselves.
func NewRouter(handlers *Handlers, logger *logrus.Logger) http.Handler {
	mux := http.NewServeMux()

	// Orders
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetOrders(w, r)
		case http.MethodPost:
			handlers.CreateOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		parts := segments(r.URL.Path)
		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			handlers.GetOrder(w, r)
		case len(parts) == 2 && r.Method == http.MethodDelete:
			handlers.ArchiveOrder(w, r)
		case len(parts) == 3 && parts[2] == "reservations" && r.Method == http.MethodGet:
			handlers.GetOrderReservations(w, r)
		case len(parts) == 3 && parts[2] == "discount" && r.Method == http.MethodPut:
			handlers.SetDiscount(w, r)
		case len(parts) == 3 && r.Method == http.MethodPost:
			switch parts[2] {
			case "lines":
				handlers.AddLine(w, r)
			case "confirm":
				handlers.ConfirmOrder(w, r)
			case "cancel":
				handlers.CancelOrder(w, r)
			case "prepare":
				handlers.StartPreparation(w, r)
			case "ready":
				handlers.MarkReady(w, r)
			case "ship":
				handlers.ShipOrder(w, r)
			case "deliver":
				handlers.DeliverOrder(w, r)
			case "invoice":
				handlers.InvoiceOrder(w, r)
			default:
				http.NotFound(w, r)
			}
		case len(parts) == 4 && parts[2] == "lines" && r.Method == http.MethodDelete:
			handlers.RemoveLine(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Stock
	mux.HandleFunc("/stock/entries", func(w http.ResponseWriter, r *http.Request) {
		requirePost(w, r, handlers.ReceiveStock)
	})
	mux.HandleFunc("/stock/withdrawals", func(w http.ResponseWriter, r *http.Request) {
		requirePost(w, r, handlers.WithdrawStock)
	})
	mux.HandleFunc("/stock/transfers", func(w http.ResponseWriter, r *http.Request) {
		requirePost(w, r, handlers.TransferStock)
	})
	mux.HandleFunc("/stock/adjustments", func(w http.ResponseWriter, r *http.Request) {
		requirePost(w, r, handlers.AdjustStock)
	})

	mux.HandleFunc("/stock/levels", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetStockLevels(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/stock/items/", func(w http.ResponseWriter, r *http.Request) {
		parts := segments(r.URL.Path)
		switch {
		case len(parts) == 4 && parts[3] == "movements" && r.Method == http.MethodGet:
			handlers.GetItemMovements(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Locations
	mux.HandleFunc("/locations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.ListLocations(w, r)
		case http.MethodPost:
			handlers.CreateLocation(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/locations/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetLocation(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Outbox (operator surface)
	mux.HandleFunc("/outbox/stats", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetOutboxStats(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/outbox/dead", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.ListDeadEvents(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/outbox/dead/", func(w http.ResponseWriter, r *http.Request) {
		parts := segments(r.URL.Path)
		switch {
		case len(parts) == 4 && parts[3] == "requeue" && r.Method == http.MethodPost:
			handlers.RequeueDeadEvent(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/health", handlers.Health)

	return middleware.WithLogging(logger, middleware.WithActor(mux))
}

func requirePost(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fn(w, r)
}

func segments(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

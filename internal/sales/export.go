package sales

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.flush()
	}
	return nil
}

func (s *csvStreamer) flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

// exportOrdersCSV streams the filtered order list as a CSV download.
func (h *Handler) exportOrdersCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	customerID, _ := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	filters := ListFilters{
		Status:     q.Get("status"),
		CustomerID: customerID,
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortDir:    q.Get("sort_dir"),
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="sales_orders.csv"`)

	streamer := newCSVStreamer(w)
	if err := streamer.writeRow([]string{"Number", "Customer", "Status", "Order Date", "Total"}); err != nil {
		h.logger.Error("export sales orders", slog.Any("error", err))
		return
	}
	const pageSize = 200
	for page := 1; ; page++ {
		items, total, err := h.service.ListOrders(r.Context(), page, pageSize, filters)
		if err != nil {
			h.logger.Error("export sales orders", slog.Any("error", err))
			return
		}
		for _, item := range items {
			row := []string{
				item.Number,
				item.CustomerName,
				string(item.Status),
				item.OrderDate.Format(time.DateOnly),
				item.TotalAmount.StringFixed(2),
			}
			if err := streamer.writeRow(row); err != nil {
				h.logger.Error("export sales orders", slog.Any("error", err))
				return
			}
		}
		if page*pageSize >= total || len(items) == 0 {
			break
		}
	}
	if err := streamer.flush(); err != nil {
		h.logger.Error("export sales orders", slog.Any("error", err))
	}
}

// Package journal provides the append-only order outcome log. Every terminal
// order outcome is recorded with a full parameter snapshot before it is
// returned to the caller, so the file is a complete audit trail of what was
// sent to the broker and what came back.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Outcome kinds recorded in the journal.
const (
	KindSuccess           = "SUCCESS"
	KindPlacedButRejected = "PLACED_BUT_REJECTED"
	KindRejected          = "REJECTED"
	KindError             = "ERROR"
)

// Entry is the parameter snapshot for one order outcome line.
type Entry struct {
	Kind         string
	Side         string
	Symbol       string
	Quantity     int
	Exchange     string
	Product      string
	OrderType    string
	Price        float64
	TriggerPrice float64
	OrderID      string
	Status       string
	Reason       string
	ErrorCode    string
	ErrorMessage string
}

// Journal appends order outcomes to a rotating log file. Writes are best
// effort: a journaling failure must never change the outcome returned to the
// caller, so write errors are logged and swallowed.
type Journal struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// New creates a journal writing to path, creating parent directories as needed.
func New(path string) *Journal {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warnf("journal: failed to create directory %s: %v", dir, err)
		}
	}
	return &Journal{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10,
			MaxBackups: 0,
			MaxAge:     0,
			Compress:   false,
		},
	}
}

// SetPath repoints the journal at a new file after a config reload, closing
// the previous one. No-op when the path is unchanged.
func (j *Journal) SetPath(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if path == "" || j.writer.Filename == path {
		return
	}
	if err := j.writer.Close(); err != nil {
		log.Warnf("journal: failed to close previous file: %v", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Warnf("journal: failed to create directory %s: %v", dir, err)
		}
	}
	j.writer = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 0,
		MaxAge:     0,
		Compress:   false,
	}
}

// Record appends one outcome line.
func (j *Journal) Record(e Entry) {
	line := formatLine(time.Now(), e)

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.writer.Write([]byte(line + "\n")); err != nil {
		log.Warnf("journal: failed to write outcome: %v", err)
	}
}

// Close releases the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writer.Close()
}

// formatLine renders the pipe-delimited journal line, for example:
//
//	2026-08-21 14:05:11 | SUCCESS | BUY | RELIANCE | Qty: 1 | NSE | CNC | MARKET | OrderID: 250821000123456
//
// Price and trigger fields appear only when set. The tail depends on the
// outcome kind.
func formatLine(ts time.Time, e Entry) string {
	fields := []string{
		ts.Format("2006-01-02 15:04:05"),
		e.Kind,
		e.Side,
		e.Symbol,
		fmt.Sprintf("Qty: %d", e.Quantity),
		e.Exchange,
		e.Product,
		e.OrderType,
	}
	if e.Price > 0 {
		fields = append(fields, "Price: "+formatPrice(e.Price))
	}
	if e.TriggerPrice > 0 {
		fields = append(fields, "Trigger: "+formatPrice(e.TriggerPrice))
	}

	switch e.Kind {
	case KindSuccess:
		fields = append(fields, "OrderID: "+e.OrderID)
	case KindPlacedButRejected:
		fields = append(fields,
			"OrderID: "+e.OrderID,
			"OrderStatus: "+e.Status,
			"Reason: "+e.Reason,
		)
	case KindRejected:
		fields = append(fields,
			"OrderID: NOT_CREATED",
			"Status: REJECTED_BEFORE_PLACEMENT",
			"ErrorCode: "+e.ErrorCode,
			"ErrorMsg: "+e.ErrorMessage,
			"Reason: "+e.Reason,
		)
	case KindError:
		fields = append(fields,
			"OrderID: NOT_CREATED",
			"Error: "+e.ErrorMessage,
		)
	}

	return strings.Join(fields, " | ")
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

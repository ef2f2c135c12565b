package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"options-trading-bot/internal/types"
)

var mu sync.Mutex

// market timezone for daily file rollover
var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// TradeEntry records one position open or close.
type TradeEntry struct {
	Time       string             `json:"time"`
	Event      string             `json:"event"` // OPEN or CLOSE
	PositionID string             `json:"position_id"`
	Symbol     string             `json:"symbol"`
	Strategy   types.StrategyType `json:"strategy"`
	Cost       float64            `json:"cost"`
	PnL        float64            `json:"pnl,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
}

// DecisionEntry records one advisory or policy decision.
type DecisionEntry struct {
	Time       string  `json:"time"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold,omitempty"`
	Accepted   bool    `json:"accepted"`
	Reason     string  `json:"reason"`
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time, sub string) string {
	d := t.In(eastern).Format("2006-01-02")
	if sub == "" {
		return filepath.Join(logDir(), d+".txt")
	}
	return filepath.Join(logDir(), sub, d+".txt")
}

func appendLine(path string, v any) error {
	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// Append writes a trade entry to today's trade file.
func Append(e TradeEntry) error {
	now := time.Now().In(eastern)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(dailyFilepath(now, ""), e)
}

// AppendDecision writes a decision entry to today's decisions file.
func AppendDecision(e DecisionEntry) error {
	now := time.Now().In(eastern)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(dailyFilepath(now, "decisions"), e)
}

// AppendOutcome writes a cycle outcome to today's outcomes file. The
// reporting side renders these; the trading loop only ever appends.
func AppendOutcome(o types.CycleOutcome) error {
	now := time.Now().In(eastern)
	return appendLine(dailyFilepath(now, "outcomes"), o)
}

// CompressOlder gzips daily files older than retentionDays.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	root := logDir()
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil {
			return nil
		}
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()
		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/go-events-sync/internal/domain"
)

// lockedWriter serialises writes from the page goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printEvents(out io.Writer, events []domain.Event) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREV\tSTART\tCATEGORY\tTITLE")
	for i := range events {
		e := &events[i]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", e.EventID, e.Revision, formatDate(e.StartDate), e.Category, e.DisplayTitle())
	}
	return tw.Flush()
}

func printNotifications(out io.Writer, list []domain.Notification) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tREAD\tTITLE\tMESSAGE")
	for _, n := range list {
		when := time.UnixMilli(n.Timestamp).Format(time.DateTime)
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", n.ID, when, n.Read, n.Title, n.Message)
	}
	return tw.Flush()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

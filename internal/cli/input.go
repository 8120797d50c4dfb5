package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/go-events-sync/internal/domain"
	"github.com/go-events-sync/internal/pkg/validate"
	"github.com/spf13/cobra"
)

// filterFlags are the list options shared by watch and events list.
type filterFlags struct {
	limit    int
	upcoming bool
	category string
	query    string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of events (0 for all)")
	cmd.Flags().BoolVar(&f.upcoming, "upcoming", false, "only events that have not started")
	cmd.Flags().StringVar(&f.category, "category", "", "only events in this category")
	cmd.Flags().StringVar(&f.query, "q", "", "search titles")
}

func (f *filterFlags) filter() domain.EventFilter {
	return domain.EventFilter{Limit: f.limit, Upcoming: f.upcoming, Category: f.category, Query: f.query}
}

// readJSONFile decodes path, or stdin when path is "-".
func readJSONFile(cmd *cobra.Command, path string, v interface{}) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readEventInput(cmd *cobra.Command, path string) (domain.EventInput, error) {
	var in domain.EventInput
	if err := readJSONFile(cmd, path, &in); err != nil {
		return in, err
	}
	return in, validate.Struct(in)
}

func readEventInputs(cmd *cobra.Command, path string) ([]domain.EventInput, error) {
	var in []domain.EventInput
	if err := readJSONFile(cmd, path, &in); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, fmt.Errorf("no events in %s: %w", path, domain.ErrBadRequest)
	}
	for i := range in {
		if err := validate.Struct(in[i]); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return in, nil
}

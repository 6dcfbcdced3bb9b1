package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/NuttakitDW/zk-shroud-arena-sub000/pkg/log"
)

// errSameFile is returned when the filter output would append to its own
// input.
var errSameFile = errors.New("output must differ from input")

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output      string
	ConnID      string
	PlayerID    string
	ZoneID      string
	MessageType string
	TimeStart   string
	TimeEnd     string
	Layer       string
	Direction   string
	Category    string
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s format: %w", name, err)
	}
	return &t, nil
}

// parseEnumFlag applies parse to a non-empty flag value.
func parseEnumFlag[T any](value string, parse func(string) (T, error)) (*T, error) {
	if value == "" {
		return nil, nil
	}
	v, err := parse(value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (opts FilterOptions) toLogFilter() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: opts.ConnID,
		PlayerID:     opts.PlayerID,
		ZoneID:       opts.ZoneID,
		MessageType:  opts.MessageType,
	}

	var err error
	if filter.TimeStart, err = parseTimeFlag("time-start", opts.TimeStart); err != nil {
		return log.Filter{}, err
	}
	if filter.TimeEnd, err = parseTimeFlag("time-end", opts.TimeEnd); err != nil {
		return log.Filter{}, err
	}
	if filter.Layer, err = parseEnumFlag(opts.Layer, ParseLayerFlag); err != nil {
		return log.Filter{}, err
	}
	if filter.Direction, err = parseEnumFlag(opts.Direction, ParseDirectionFlag); err != nil {
		return log.Filter{}, err
	}
	if filter.Category, err = parseEnumFlag(opts.Category, ParseCategoryFlag); err != nil {
		return log.Filter{}, err
	}
	return filter, nil
}

// RunFilter copies the events of path matching opts into opts.Output and
// reports the count on w.
func RunFilter(path string, opts FilterOptions, w io.Writer) error {
	filter, err := opts.toLogFilter()
	if err != nil {
		return err
	}
	if sameFile(path, opts.Output) {
		return errSameFile
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := log.NewFileLogger(opts.Output, log.WithClient("arena-log"))
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}

	var readErr error
	for {
		event, err := reader.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = fmt.Errorf("failed to read event: %w", err)
			}
			break
		}
		out.Log(event)
	}
	if err := errors.Join(readErr, out.Close()); err != nil {
		return err
	}

	fmt.Fprintf(w, "Filtered %d events to %s\n", out.Written(), opts.Output)
	if reader.Truncated() {
		fmt.Fprintln(w, "Warning: input ends in a partial record")
	}
	return nil
}

func sameFile(a, b string) bool {
	ca, errA := filepath.Abs(a)
	cb, errB := filepath.Abs(b)
	return errA == nil && errB == nil && ca == cb
}

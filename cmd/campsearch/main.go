// Command campsearch runs one availability search and prints the report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"campwatch.dev/worker"
	"campwatch.dev/worker/availability"
	"campwatch.dev/worker/logging"
	"campwatch.dev/worker/scraper"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	start      string
	end        string
	parks      string
	nights     int
	jsonOut    bool
	calendar   bool
	parkInfo   int
	discover   string
	radius     float64
	find       string
	scriptPath string
	pythonPath string
	rcBaseURL  string
	logLevel   string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("campsearch", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.start, "start-date", "", "first night, YYYY-MM-DD")
	fs.StringVar(&o.end, "end-date", "", "checkout day, YYYY-MM-DD")
	fs.StringVar(&o.parks, "parks", "", "comma separated facility IDs, e.g. 232447,rc:718")
	fs.IntVar(&o.nights, "nights", 1, "consecutive nights required")
	fs.BoolVar(&o.jsonOut, "json", false, "print the report as JSON")
	fs.BoolVar(&o.calendar, "calendar", false, "print the per-night calendar as JSON")
	fs.IntVar(&o.parkInfo, "park-info", 0, "print California State Parks page metadata for this page_id and exit")
	fs.StringVar(&o.discover, "discover", "", "list ReserveCalifornia campgrounds near \"lat,lng\" and exit")
	fs.Float64Var(&o.radius, "radius", 100, "discovery radius in miles")
	fs.StringVar(&o.find, "find", "", "list ReserveCalifornia campgrounds matching a name and exit")
	fs.StringVar(&o.scriptPath, "script", envOr("CAMPING_SCRIPT", "./camping.py"), "Recreation.gov availability script")
	fs.StringVar(&o.pythonPath, "python", envOr("VENV_PYTHON", "python3"), "python interpreter path")
	fs.StringVar(&o.rcBaseURL, "rc-base-url", envOr("RC_BASE_URL", scraper.DefaultReserveCalBaseURL), "ReserveCalifornia API base URL")
	fs.StringVar(&o.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// request turns the flags into a validated search. Unparseable dates are left
// zero and reported together with every validation problem.
func (o *options) request() (worker.SearchRequest, error) {
	req := worker.SearchRequest{Nights: o.nights}
	for _, id := range strings.Split(o.parks, ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.FacilityIDs = append(req.FacilityIDs, id)
		}
	}

	var errs []error
	if o.start != "" {
		d, err := availability.ParseDate(o.start)
		if err != nil {
			errs = append(errs, fmt.Errorf("start date: %w", err))
		}
		req.Start = d
	}
	if o.end != "" {
		d, err := availability.ParseDate(o.end)
		if err != nil {
			errs = append(errs, fmt.Errorf("end date: %w", err))
		}
		req.End = d
	}
	if err := req.Validate(); err != nil {
		errs = append(errs, err)
	}
	return req, errors.Join(errs...)
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	slog.SetDefault(logging.New(stderr, os.Getenv("APP_ENV"), o.logLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if o.parkInfo > 0 {
		return printParkInfo(ctx, o, stdout, stderr)
	}
	if o.discover != "" || o.find != "" {
		rc := scraper.NewReserveCal(o.rcBaseURL, scraper.NewRateLimiter(worker.ReserveCalInterval))
		return discover(ctx, rc, o, stdout, stderr)
	}

	registry := scraper.NewRegistry(
		scraper.NewRecGov(o.scriptPath, o.pythonPath),
		scraper.NewReserveCal(o.rcBaseURL, scraper.NewRateLimiter(worker.ReserveCalInterval)),
	)
	return search(ctx, worker.NewSearcher(registry), o, stdout, stderr)
}

func search(ctx context.Context, s *worker.Searcher, o *options, stdout, stderr io.Writer) int {
	req, err := o.request()
	if err == nil {
		var report availability.Report
		report, err = s.Search(ctx, req)
		if err == nil {
			return printReport(report, o, stdout, stderr)
		}
	}

	slog.Error("search failed", "error", err)
	if o.jsonOut || o.calendar {
		if werr := writeJSON(stdout, availability.ErrorPayload{Error: safeMessage(err)}); werr != nil {
			fmt.Fprintf(stderr, "error: write output: %v\n", werr)
		}
	} else {
		fmt.Fprintf(stderr, "error: %s\n", safeMessage(err))
	}
	return 1
}

// safeMessage keeps upstream detail out of user-facing output.
func safeMessage(err error) string {
	var verr *availability.ValidationError
	var ferr *availability.FormatError
	switch {
	case errors.As(err, &verr), errors.As(err, &ferr):
		return err.Error()
	case errors.Is(err, worker.ErrAllBatchesFailed):
		return "all upstream requests failed; try again later"
	case errors.Is(err, context.Canceled):
		return "search cancelled"
	default:
		return "search failed"
	}
}

func printReport(report availability.Report, o *options, stdout, stderr io.Writer) int {
	var err error
	switch {
	case o.calendar:
		err = writeJSON(stdout, worker.BuildCalendar(report))
	case o.jsonOut:
		err = writeJSON(stdout, report)
	default:
		if len(report) == 0 {
			_, err = fmt.Fprintln(stdout, "No campsites available for the requested dates.")
		} else {
			err = report.WriteText(stdout)
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: write output: %v\n", err)
		return 1
	}
	return 0
}

func printParkInfo(ctx context.Context, o *options, stdout, stderr io.Writer) int {
	pages := scraper.NewParkPages(envOr("PARK_PAGES_BASE_URL", scraper.DefaultParkPagesBaseURL),
		scraper.NewRateLimiter(worker.ParkPageInterval))
	page, err := pages.Fetch(ctx, o.parkInfo)
	if err != nil {
		slog.Error("park page fetch failed", "page_id", o.parkInfo, "error", err)
		fmt.Fprintf(stderr, "error: park page %d unavailable\n", o.parkInfo)
		return 1
	}
	if err := writeJSON(stdout, page); err != nil {
		fmt.Fprintf(stderr, "error: write output: %v\n", err)
		return 1
	}
	return 0
}

// parseLatLng reads a "lat,lng" pair.
func parseLatLng(s string) (lat, lng float64, err error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("location %q: expected lat,lng", s)
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(latStr), 64); err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("location %q: invalid latitude", s)
	}
	if lng, err = strconv.ParseFloat(strings.TrimSpace(lngStr), 64); err != nil || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("location %q: invalid longitude", s)
	}
	return lat, lng, nil
}

func discover(ctx context.Context, rc *scraper.ReserveCal, o *options, stdout, stderr io.Writer) int {
	var (
		found []scraper.Campground
		err   error
	)
	if o.discover != "" {
		lat, lng, perr := parseLatLng(o.discover)
		if perr != nil {
			fmt.Fprintf(stderr, "error: %v\n", perr)
			return 2
		}
		if o.radius <= 0 {
			fmt.Fprintln(stderr, "error: radius must be positive")
			return 2
		}
		found, err = rc.Discover(ctx, lat, lng, o.radius)
	} else {
		found, err = rc.SearchByName(ctx, o.find)
	}
	if errors.Is(err, scraper.ErrEmptyQuery) {
		fmt.Fprintln(stderr, "error: campground name must not be empty")
		return 2
	}
	if err != nil {
		slog.Error("campground discovery failed", "error", err)
		fmt.Fprintln(stderr, "error: ReserveCalifornia listings unavailable")
		return 1
	}

	if o.jsonOut {
		if found == nil {
			found = []scraper.Campground{}
		}
		err = writeJSON(stdout, found)
	} else if len(found) == 0 {
		_, err = fmt.Fprintln(stdout, "No campgrounds found.")
	} else {
		for _, c := range found {
			line := fmt.Sprintf("%-8s %s", c.ID, c.Name)
			if c.DistanceMiles > 0 {
				line += fmt.Sprintf("  (%.1f mi)", c.DistanceMiles)
			}
			if _, err = fmt.Fprintln(stdout, line); err != nil {
				break
			}
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: write output: %v\n", err)
		return 1
	}
	return 0
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/localstore"
	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/dmitrijs2005/catchkeeper/internal/client/syncer"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// catchFlags are the record fields shared by log and update.
type catchFlags struct {
	species  string
	weight   float64
	length   float64
	lat      float64
	lon      float64
	location string
	bait     string
	method   string
	notes    string
	photos   []string
	caughtAt string

	weather  string
	temp     float64
	wind     float64
	pressure float64
	moon     string
	tide     string
}

var conditionFlags = []string{"weather", "temp", "wind", "pressure", "moon", "tide"}

func (f *catchFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.species, "species", "", "species caught")
	fs.Float64Var(&f.weight, "weight", 0, "weight in kg")
	fs.Float64Var(&f.length, "length", 0, "length in cm")
	fs.Float64Var(&f.lat, "lat", 0, "latitude")
	fs.Float64Var(&f.lon, "lon", 0, "longitude")
	fs.StringVar(&f.location, "location", "", "spot name")
	fs.StringVar(&f.bait, "bait", "", "bait or lure")
	fs.StringVar(&f.method, "method", "", "fishing method")
	fs.StringVar(&f.notes, "notes", "", "free-form notes")
	fs.StringSliceVar(&f.photos, "photo", nil, "photo URI (repeatable)")

	fs.StringVar(&f.weather, "weather", "", "weather description")
	fs.Float64Var(&f.temp, "temp", 0, "air temperature in °C")
	fs.Float64Var(&f.wind, "wind", 0, "wind speed in km/h")
	fs.Float64Var(&f.pressure, "pressure", 0, "pressure in hPa")
	fs.StringVar(&f.moon, "moon", "", "moon phase")
	fs.StringVar(&f.tide, "tide", "", "tide state")
}

// conditions builds Conditions from the flags that were set, or nil.
func (f *catchFlags) conditions(fs *pflag.FlagSet) *models.Conditions {
	changed := false
	for _, name := range conditionFlags {
		changed = changed || fs.Changed(name)
	}
	if !changed {
		return nil
	}

	c := &models.Conditions{Weather: f.weather, MoonPhase: f.moon, Tide: f.tide}
	if fs.Changed("temp") {
		c.TemperatureC = float64Ptr(f.temp)
	}
	if fs.Changed("wind") {
		c.WindSpeedKmh = float64Ptr(f.wind)
	}
	if fs.Changed("pressure") {
		c.PressureHPa = float64Ptr(f.pressure)
	}
	return c
}

func (f *catchFlags) input(fs *pflag.FlagSet) (models.CatchInput, error) {
	in := models.CatchInput{
		Species:    f.species,
		WeightKg:   f.weight,
		LengthCm:   f.length,
		Location:   f.location,
		Bait:       f.bait,
		Method:     f.method,
		Notes:      f.notes,
		PhotoURIs:  f.photos,
		Conditions: f.conditions(fs),
	}
	if fs.Changed("lat") {
		in.Latitude = float64Ptr(f.lat)
	}
	if fs.Changed("lon") {
		in.Longitude = float64Ptr(f.lon)
	}
	if f.caughtAt != "" {
		t, err := parseTime(f.caughtAt)
		if err != nil {
			return models.CatchInput{}, err
		}
		in.CaughtAt = t
	}
	return in, nil
}

// patch carries only the flags given on the command line. Any condition
// flag replaces the stored conditions as a whole.
func (f *catchFlags) patch(fs *pflag.FlagSet) models.CatchPatch {
	var p models.CatchPatch
	str := func(name string, v string, dst **string) {
		if fs.Changed(name) {
			*dst = &v
		}
	}
	num := func(name string, v float64, dst **float64) {
		if fs.Changed(name) {
			*dst = &v
		}
	}
	str("species", f.species, &p.Species)
	num("weight", f.weight, &p.WeightKg)
	num("length", f.length, &p.LengthCm)
	num("lat", f.lat, &p.Latitude)
	num("lon", f.lon, &p.Longitude)
	str("location", f.location, &p.Location)
	str("bait", f.bait, &p.Bait)
	str("method", f.method, &p.Method)
	str("notes", f.notes, &p.Notes)
	if fs.Changed("photo") {
		photos := append([]string(nil), f.photos...)
		p.PhotoURIs = &photos
	}
	p.Conditions = f.conditions(fs)
	return p
}

func float64Ptr(v float64) *float64 { return &v }

// parseTime accepts RFC 3339 or "2006-01-02 15:04" in local time.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(timeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or %q", s, timeLayout)
	}
	return t.UTC(), nil
}

type logResult struct {
	Catch models.Catch       `json:"catch"`
	Push  *syncer.PushResult `json:"push,omitempty"`
}

func newLogCommand(opts *RootOptions) *cobra.Command {
	var (
		f    catchFlags
		wait bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a new catch",
		Long: `Store a new catch on this device and queue it for the server.

Examples:
  catchkeeper log --species pike --weight 3.2 --length 71 --lat 59.43 --lon 24.75
  catchkeeper log --species perch --caught-at "2024-07-01 05:30" --wait`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			in, err := f.input(cmd.Flags())
			if err != nil {
				return err
			}

			res := logResult{}
			if wait {
				c, push, err := app.catches.LogCatchAndWait(ctx, in)
				if err != nil {
					return err
				}
				res.Catch, res.Push = c, &push
			} else {
				if res.Catch, err = app.catches.LogCatch(ctx, in); err != nil {
					return err
				}
			}

			return opts.printer(cmd).print(res, func(w io.Writer) error {
				fmt.Fprintf(w, "logged %s (%s)\n", res.Catch.ID, res.Catch.Species)
				if res.Push != nil {
					writePushResult(w, *res.Push)
				}
				return nil
			})
		}),
	}

	f.bind(cmd.Flags())
	cmd.Flags().StringVar(&f.caughtAt, "caught-at", "", "when it was caught (default now)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the push to the server")
	_ = cmd.MarkFlagRequired("species")
	return cmd
}

// encodeCursor renders a page cursor as "<RFC3339Nano>/<id>".
func encodeCursor(c localstore.Cursor) string {
	return c.CreatedAt.UTC().Format(time.RFC3339Nano) + "/" + c.ID
}

func decodeCursor(s string) (*localstore.Cursor, error) {
	ts, id, _ := strings.Cut(s, "/")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor %q", s)
	}
	return &localstore.Cursor{CreatedAt: t, ID: id}, nil
}

type listResult struct {
	Items []models.Catch `json:"items"`
	Total int            `json:"total"`
	Next  string         `json:"next,omitempty"`
}

func newListCommand(opts *RootOptions) *cobra.Command {
	var (
		species string
		limit   int
		offset  int
		after   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catches, newest first",
		Long: `List catches stored on this device, newest first.

Use --after with the "next" value of the previous page to continue; it is
stable against catches logged in between.`,
		Args: cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			lo := localstore.ListOptions{Species: species, Limit: limit, Offset: offset}
			if after != "" {
				cur, err := decodeCursor(after)
				if err != nil {
					return err
				}
				lo.Cursor = cur
			}

			page, err := app.catches.List(ctx, lo)
			if err != nil {
				return err
			}
			res := listResult{Items: page.Items, Total: page.Total}
			if page.Next != nil {
				res.Next = encodeCursor(*page.Next)
			}
			if res.Items == nil {
				res.Items = []models.Catch{}
			}

			return opts.printer(cmd).print(res, func(w io.Writer) error {
				if len(res.Items) == 0 {
					fmt.Fprintln(w, "no catches")
					return nil
				}
				if err := writeCatchTable(w, res.Items); err != nil {
					return err
				}
				fmt.Fprintf(w, "\n%d of %d\n", len(res.Items), res.Total)
				if res.Next != "" {
					fmt.Fprintf(w, "next: %s\n", res.Next)
				}
				return nil
			})
		}),
	}

	cmd.Flags().StringVar(&species, "species", "", "only this species (case-insensitive)")
	cmd.Flags().IntVarP(&limit, "limit", "n", localstore.DefaultPageSize, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many catches")
	cmd.Flags().StringVar(&after, "after", "", "continue after this cursor")
	return cmd
}

func newShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one catch",
		Args:  cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, args []string, app *App) error {
			c, err := app.catches.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(c, func(w io.Writer) error {
				return writeCatch(w, c)
			})
		}),
	}
}

func newUpdateCommand(opts *RootOptions) *cobra.Command {
	var f catchFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a catch",
		Long: `Change the given fields of a catch; fields without a flag keep their value.

Examples:
  catchkeeper update 5f0c... --weight 3.4 --notes "released"`,
		Args: cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, args []string, app *App) error {
			c, err := app.catches.Update(ctx, args[0], f.patch(cmd.Flags()))
			if err != nil {
				return err
			}
			return opts.printer(cmd).print(c, func(w io.Writer) error {
				fmt.Fprintf(w, "updated %s\n", c.ID)
				return nil
			})
		}),
	}

	f.bind(cmd.Flags())
	return cmd
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a catch",
		Args:    cobra.ExactArgs(1),
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, args []string, app *App) error {
			if err := app.catches.Delete(ctx, args[0]); err != nil {
				return err
			}
			res := map[string]string{"deleted": args[0]}
			return opts.printer(cmd).print(res, func(w io.Writer) error {
				fmt.Fprintf(w, "deleted %s\n", args[0])
				return nil
			})
		}),
	}
}

type stats struct {
	Total     int `json:"total"`
	ThisMonth int `json:"thisMonth"`
	Pending   int `json:"pending"`
}

func newStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catch counts and pending sync operations",
		Args:  cobra.NoArgs,
		RunE: opts.run(func(ctx context.Context, cmd *cobra.Command, _ []string, app *App) error {
			var (
				s   stats
				err error
			)
			if s.Total, err = app.catches.Count(ctx); err != nil {
				return err
			}
			if s.ThisMonth, err = app.catches.CountThisMonth(ctx); err != nil {
				return err
			}
			if s.Pending, err = app.catches.PendingCount(ctx); err != nil {
				return err
			}
			return opts.printer(cmd).print(s, func(w io.Writer) error {
				fmt.Fprintf(w, "catches:    %d\nthis month: %d\npending:    %d\n", s.Total, s.ThisMonth, s.Pending)
				return nil
			})
		}),
	}
}

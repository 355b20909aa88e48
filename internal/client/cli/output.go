package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var ValidFormats = []string{FormatText, FormatJSON, FormatYAML}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// printer renders a command result. Structured formats print v; text
// calls the command's own renderer.
type printer struct {
	format string
	w      io.Writer
}

func (p printer) print(v any, text func(w io.Writer) error) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		return writeYAML(p.w, v)
	}
	return text(p.w)
}

// writeYAML goes through JSON so keys keep their json tag names and order.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return err
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func syncState(c models.Catch) string {
	switch {
	case c.SyncError:
		return "error"
	case c.Synced:
		return "synced"
	}
	return "pending"
}

func formatMeasure(v float64, unit string) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + unit
}

const timeLayout = "2006-01-02 15:04"

func writeCatchTable(w io.Writer, items []models.Catch) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCAUGHT\tSPECIES\tWEIGHT\tLENGTH\tLOCATION\tSYNC")
	for _, c := range items {
		loc := c.Location
		if loc == "" {
			loc = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.CreatedAt.Local().Format(timeLayout), c.Species,
			formatMeasure(c.WeightKg, "kg"), formatMeasure(c.LengthCm, "cm"),
			loc, syncState(c))
	}
	return tw.Flush()
}

func writeCatch(w io.Writer, c models.Catch) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", name, value)
		}
	}
	field("id", c.ID)
	field("species", c.Species)
	field("caught", c.CreatedAt.Local().Format(time.RFC3339))
	if c.UpdatedAt != nil {
		field("updated", c.UpdatedAt.Local().Format(time.RFC3339))
	}
	if c.WeightKg != 0 {
		field("weight", formatMeasure(c.WeightKg, " kg"))
	}
	if c.LengthCm != 0 {
		field("length", formatMeasure(c.LengthCm, " cm"))
	}
	if c.Latitude != nil && c.Longitude != nil {
		field("position", fmt.Sprintf("%.5f, %.5f", *c.Latitude, *c.Longitude))
	}
	field("location", c.Location)
	field("bait", c.Bait)
	field("method", c.Method)
	field("notes", c.Notes)
	field("photos", strings.Join(c.PhotoURIs, ", "))
	if cond := c.Conditions; cond != nil {
		var parts []string
		if cond.Weather != "" {
			parts = append(parts, cond.Weather)
		}
		if cond.TemperatureC != nil {
			parts = append(parts, formatMeasure(*cond.TemperatureC, "°C"))
		}
		if cond.WindSpeedKmh != nil {
			parts = append(parts, "wind "+formatMeasure(*cond.WindSpeedKmh, " km/h"))
		}
		if cond.PressureHPa != nil {
			parts = append(parts, formatMeasure(*cond.PressureHPa, " hPa"))
		}
		if cond.MoonPhase != "" {
			parts = append(parts, "moon "+cond.MoonPhase)
		}
		if cond.Tide != "" {
			parts = append(parts, "tide "+cond.Tide)
		}
		field("conditions", strings.Join(parts, ", "))
	}
	field("sync", syncState(c))
	return tw.Flush()
}

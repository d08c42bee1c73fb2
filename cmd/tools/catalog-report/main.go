// Command catalog-report renders a standalone HTML report of the event
// catalog: event counts over time and a magnitude/depth scatter.
package main

import (
	"flag"
	"log"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/cangyeone/seismox-system/internal/db"
)

var (
	dbFile = flag.String("db", "seismic_data.db", "Path to the sqlite database")
	out    = flag.String("out", "catalog_report.html", "Output HTML file")
	limit  = flag.Int("limit", 2000, "Maximum number of events to include")
)

func main() {
	flag.Parse()

	catalog, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer catalog.Close()

	events, err := catalog.ListEvents(*limit)
	if err != nil {
		log.Fatalf("Failed to list events: %v", err)
	}
	if len(events) == 0 {
		log.Fatal("No events in catalog; nothing to report")
	}

	page := components.NewPage()
	page.SetPageTitle("Event Catalog Report")
	page.AddCharts(eventsPerDayChart(events), magnitudeDepthChart(events))

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	log.Printf("wrote report for %d events to %s", len(events), *out)
}

func eventsPerDayChart(events []db.Event) *charts.Bar {
	counts := make(map[string]int)
	for _, ev := range events {
		counts[ev.OriginTime.UTC().Format("2006-01-02")]++
	}
	days := make([]string, 0, len(counts))
	for day := range counts {
		days = append(days, day)
	}
	sort.Strings(days)

	values := make([]opts.BarData, len(days))
	for i, day := range days {
		values[i] = opts.BarData{Value: counts[day]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Events per day"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(days).AddSeries("events", values)
	return bar
}

func magnitudeDepthChart(events []db.Event) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(events))
	for _, ev := range events {
		data = append(data, opts.ScatterData{Value: []interface{}{ev.Magnitude, ev.DepthKm}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Magnitude vs depth"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "magnitude"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "depth (km)"}),
	)
	scatter.AddSeries("events", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))
	return scatter
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gridforge-lab/gridforge/internal/catalog"
	"github.com/gridforge-lab/gridforge/internal/config"
	"github.com/gridforge-lab/gridforge/internal/consumption"
	"github.com/gridforge-lab/gridforge/internal/delivery"
	"github.com/gridforge-lab/gridforge/internal/document"
	"github.com/gridforge-lab/gridforge/internal/series"
)

// shell drives single-point generation interactively. Settings accumulate
// through set commands; generate runs with whatever is currently set.
type shell struct {
	cfg *config.Config
	gen *consumption.Generator

	apoint    string
	point     catalog.AccountingPoint
	startdate string
	days      int
	hours     int
	starttime string
	quality   string
	metric    string

	lastDocument string
}

func runShell(cfg *config.Config, gen *consumption.Generator) {
	sh := &shell{cfg: cfg, gen: gen, days: 1, hours: 24, starttime: "00:00", metric: "kwh"}

	fmt.Println("loadgen interactive mode. Type help for commands, exit to quit.")
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(sh.promptString())
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "exit", "quit":
			return
		case "help", "?":
			sh.printHelp()
		case "set":
			sh.handleSet(fields[1:])
		case "list":
			sh.handleList()
		case "generate":
			sh.handleGenerate()
		case "generate-all":
			sh.handleGenerateAll()
		case "send":
			sh.handleSend()
		case "reset":
			sh.handleReset()
		default:
			fmt.Printf("unknown command %q, type help\n", fields[0])
		}
	}
}

func (sh *shell) promptString() string {
	if sh.apoint != "" {
		return fmt.Sprintf("<loadgen %s> ", sh.apoint)
	}
	return "<loadgen> "
}

func (sh *shell) printHelp() {
	fmt.Println(`Commands:
  set apoint <id>        select an accounting point from the catalog
  set startdate <d.m.y>  generation start date
  set days <n>           number of days
  set hours <n>          hours per day (default 24)
  set starttime <hh:mm>  first hour of each day (default 00:00)
  set quality <code>     observation quality ("", Z01, Z02, 99)
  set metric <kwh|varh>  reported product (active or reactive energy)
  set                    show current settings
  list                   list catalog accounting points
  generate               generate for the selected point
  generate-all           generate for every catalog point
  send                   deliver the last generated document
  reset                  restore default settings
  exit                   leave the shell`)
}

func (sh *shell) handleSet(args []string) {
	if len(args) == 0 {
		sh.showSettings()
		return
	}
	if len(args) < 2 {
		fmt.Printf("missing value for %q\n", args[0])
		return
	}
	key, value := args[0], args[1]
	switch key {
	case "apoint":
		point, err := catalog.FindAccountingPoint(sh.cfg.Paths.APCatalog, value)
		if err != nil {
			fmt.Printf("cannot select %s: %v\n", value, err)
			return
		}
		sh.apoint, sh.point = value, point
		fmt.Printf("selected %s (DSO %s, MGA %s, supplier %s)\n",
			point.ID, point.DSO, point.MGA, point.Supplier)
	case "startdate":
		if _, err := series.ParseStart(value, "00:00"); err != nil {
			fmt.Printf("bad date %q: %v\n", value, err)
			return
		}
		sh.startdate = value
	case "days":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			fmt.Printf("days must be a positive number, got %q\n", value)
			return
		}
		sh.days = n
	case "hours":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 24 {
			fmt.Printf("hours must be 1-24, got %q\n", value)
			return
		}
		sh.hours = n
	case "starttime":
		if _, err := series.ParseStart("1.7.2024", value); err != nil {
			fmt.Printf("bad time %q: %v\n", value, err)
			return
		}
		sh.starttime = value
	case "quality":
		switch value {
		case "OK", "ok":
			sh.quality = ""
		case "Z01", "Z02", "99":
			sh.quality = value
		default:
			fmt.Printf("quality must be OK, Z01, Z02 or 99, got %q\n", value)
		}
	case "metric":
		switch value {
		case "kwh":
			sh.gen.SetMetric(document.MetricActiveEnergy, document.UnitActiveEnergy)
			sh.metric = value
		case "varh":
			sh.gen.SetMetric(document.MetricReactiveEnergy, document.UnitReactiveEnergy)
			sh.metric = value
		default:
			fmt.Printf("metric must be kwh or varh, got %q\n", value)
		}
	default:
		fmt.Printf("unknown setting %q\n", key)
	}
}

func (sh *shell) showSettings() {
	apoint := sh.apoint
	if apoint == "" {
		apoint = "not set"
	}
	startdate := sh.startdate
	if startdate == "" {
		startdate = "not set"
	}
	quality := sh.quality
	if quality == "" {
		quality = "OK"
	}
	fmt.Printf("  apoint:    %s\n  startdate: %s\n  days:      %d\n  hours:     %d\n  starttime: %s\n  quality:   %s\n  metric:    %s\n",
		apoint, startdate, sh.days, sh.hours, sh.starttime, quality, sh.metric)
}

func (sh *shell) handleList() {
	points, err := catalog.ReadAccountingPoints(sh.cfg.Paths.APCatalog)
	if err != nil {
		fmt.Printf("cannot read catalog: %v\n", err)
		return
	}
	for _, p := range points {
		fmt.Printf("  %s  DSO %s  MGA %s\n", p.ID, p.DSO, p.MGA)
	}
	fmt.Printf("total: %d\n", len(points))
}

func (sh *shell) window() (*series.Series, bool) {
	if sh.startdate == "" {
		fmt.Println("set startdate first")
		return nil, false
	}
	origin, err := series.ParseStart(sh.startdate, sh.starttime)
	if err != nil {
		fmt.Printf("bad window: %v\n", err)
		return nil, false
	}
	s, err := series.Hourly(origin, sh.days, sh.hours)
	if err != nil {
		fmt.Printf("bad window: %v\n", err)
		return nil, false
	}
	return s, true
}

func (sh *shell) handleGenerate() {
	if sh.apoint == "" {
		fmt.Println("set apoint first")
		return
	}
	s, ok := sh.window()
	if !ok {
		return
	}
	path, err := sh.gen.GenerateAccounting(context.Background(), sh.point, s, sh.quality)
	if err != nil {
		fmt.Printf("generation failed: %v\n", err)
		return
	}
	sh.lastDocument = path
	fmt.Printf("generated %s\n", path)
}

func (sh *shell) handleGenerateAll() {
	s, ok := sh.window()
	if !ok {
		return
	}
	generated, err := generateAll(context.Background(), sh.cfg, sh.gen, s, sh.quality)
	if err != nil {
		fmt.Printf("generation failed: %v\n", err)
		return
	}
	fmt.Printf("generated %d documents\n", generated)
}

func (sh *shell) handleSend() {
	if sh.lastDocument == "" {
		fmt.Println("nothing generated yet")
		return
	}
	router := delivery.NewRouter(sh.cfg.BaseURL, sh.cfg.Routing.DSO, sh.cfg.Routing.DDQ)
	sender, err := delivery.NewSender(router, sh.cfg.TLS.CertFile, sh.cfg.TLS.KeyFile, sh.cfg.Paths.LogDir)
	if err != nil {
		fmt.Printf("cannot build sender: %v\n", err)
		return
	}
	result, err := sender.SendFile(context.Background(), delivery.RoleDSO, sh.lastDocument)
	if err != nil {
		fmt.Printf("delivery failed: %v\n", err)
		return
	}
	switch result.Outcome {
	case delivery.OutcomeSuccess:
		fmt.Println("document accepted")
		sh.lastDocument = ""
	default:
		fmt.Printf("delivery %s: %s %s\n", result.Outcome, result.Code, result.Reason)
	}
}

func (sh *shell) handleReset() {
	sh.gen.SetMetric(document.MetricActiveEnergy, document.UnitActiveEnergy)
	*sh = shell{cfg: sh.cfg, gen: sh.gen, days: 1, hours: 24, starttime: "00:00", metric: "kwh"}
	fmt.Println("settings reset")
}

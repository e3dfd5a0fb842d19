// main.go - batch CLI for goal evaluation and usage rollups
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tagstats/internal"
	"tagstats/internal/timeseries"
)

func main() {
	mode := flag.String("mode", "daily", "daily | range | usage")
	date := flag.String("date", "", "evaluation date YYYY-MM-DD (daily mode, default yesterday)")
	tid := flag.String("tid", "", "container id (range mode)")
	goalID := flag.String("goal", "", "goal id (range mode, default all goals of the container)")
	from := flag.String("from", "", "range start YYYY-MM-DD (range mode)")
	to := flag.String("to", "", "range end YYYY-MM-DD (range mode)")
	flag.Parse()

	app, err := internal.NewApp(context.Background())
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	ctx := context.Background()
	switch *mode {
	case "daily":
		err = runDaily(ctx, app, *date)
	case "range":
		err = runRange(ctx, app, *tid, *goalID, *from, *to)
	case "usage":
		err = app.UsageJob.Run()
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func parseDate(value string) (time.Time, error) {
	day, err := time.Parse(timeseries.DateFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return day.UTC(), nil
}

func runDaily(ctx context.Context, app *internal.Application, date string) error {
	if date == "" {
		return app.GoalJob.Run()
	}

	day, err := parseDate(date)
	if err != nil {
		return err
	}
	return app.Evaluator.EvaluateAllForDate(ctx, day)
}

func runRange(ctx context.Context, app *internal.Application, tid, goalID, from, to string) error {
	if tid == "" || from == "" || to == "" {
		return fmt.Errorf("range mode requires -tid, -from and -to")
	}

	start, err := parseDate(from)
	if err != nil {
		return err
	}
	end, err := parseDate(to)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("range end %s is before start %s", to, from)
	}

	c, err := app.Containers.Get(ctx, tid)
	if err != nil {
		return err
	}

	goals := c.Goals
	if goalID != "" {
		g, err := c.FindGoal(goalID)
		if err != nil {
			return err
		}
		goals = goals[:0:0]
		goals = append(goals, g)
	}
	if len(goals) == 0 {
		return fmt.Errorf("container %s has no goals", tid)
	}

	for _, g := range goals {
		log.Printf("Evaluating goal %s over %s..%s", g.ID, from, to)
		if err := app.Evaluator.EvaluateRange(ctx, c, g, start, end); err != nil {
			return err
		}
	}
	return nil
}

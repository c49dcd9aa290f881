// ABOUTME: Subcommand implementations for the para-sync CLI
// ABOUTME: Each command opens a session, acts through the data service and closes it

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/2389/para-sync/internal/auth"
	"github.com/2389/para-sync/internal/bus"
	"github.com/2389/para-sync/internal/entity"
	"github.com/2389/para-sync/internal/metrics"
	"github.com/2389/para-sync/internal/mutation"
	"github.com/2389/para-sync/internal/render"
)

type commonFlags struct {
	user    string
	token   string
	verbose bool
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c := &commonFlags{}
	fs.StringVar(&c.user, "user", "", "User id to act as")
	fs.StringVar(&c.token, "token", "", "Session token (overrides --user)")
	fs.BoolVar(&c.verbose, "v", false, "Debug logging")
	return fs, c
}

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.String("user", "", "User id the token is for")
	device := fs.String("device", "", "Device name recorded in the token")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	sessions, err := auth.NewSessions([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("auth.jwt_secret: %w", err)
	}
	token, err := sessions.Issue(*userID, *device, *ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Println(token)
	return nil
}

// runSeed creates a small linked workspace through the mutation gateway.
func runSeed(ctx context.Context, args []string) error {
	fs, common := newFlagSet("seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(ctx, common, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	svc := s.service

	area, err := svc.CreateArea(ctx, &entity.Entity{Title: "Health", Description: "Body and mind."})
	if err != nil {
		return err
	}
	project, err := svc.CreateProject(ctx, &entity.Entity{
		Title:       "Run a half marathon",
		Description: "Train for the **spring** race.",
		Status:      "active",
		AreaID:      area.ID,
	})
	if err != nil {
		return err
	}
	due := time.Now().AddDate(0, 0, 7).UTC().Truncate(24 * time.Hour)
	for _, title := range []string{"Buy running shoes", "Plan weekly mileage", "Register for the race"} {
		if _, err := svc.CreateTask(ctx, &entity.Entity{
			Title:     title,
			Status:    "todo",
			Priority:  "medium",
			DueDate:   &due,
			ProjectID: project.ID,
		}); err != nil {
			return err
		}
	}
	if _, err := svc.CreateResource(ctx, &entity.Entity{
		Title:       "Training plan",
		Description: "- Week 1: 3 x 5k\n- Week 2: 3 x 6k",
		AreaID:      area.ID,
		Extra:       map[string]any{"url": "https://example.com/plan"},
	}); err != nil {
		return err
	}
	goal, err := svc.CreateGoal(ctx, &entity.Entity{Title: "Finish under 2 hours", AreaID: area.ID})
	if err != nil {
		return err
	}
	if _, err := svc.CreateHabit(ctx, &entity.Entity{
		Title:  "Stretch after runs",
		GoalID: goal.ID,
		Extra:  map[string]any{"frequency": "daily"},
	}); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("    ✓ ")
	fmt.Printf("Seeded workspace for %s (area %s, project %s)\n", svc.UserID(), area.ID, project.ID)
	return nil
}

func runSnapshot(ctx context.Context, args []string) error {
	fs, common := newFlagSet("snapshot")
	asJSON := fs.Bool("json", false, "Print the full snapshot as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := openSession(ctx, common, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	data := s.service.GetAllData()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tCOUNT\tNEWEST")
	for _, c := range entity.Collections {
		rows := data[c]
		newest := "-"
		if len(rows) > 0 {
			newest = rows[0].Title
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", c, len(rows), newest)
	}
	return w.Flush()
}

func runShow(ctx context.Context, args []string) error {
	fs, common := newFlagSet("show")
	typeName := fs.String("type", "", "Entity type (area, project, task, ...)")
	id := fs.String("id", "", "Entity id")
	asHTML := fs.Bool("html", false, "Render HTML instead of Markdown")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := entity.ParseType(*typeName)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, common, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	e, ok := s.service.Find(t.Collection(), *id)
	if !ok {
		return fmt.Errorf("%s %q not found", t, *id)
	}
	related := s.service.GetRelatedData(e.ID, t)
	page := render.Markdown(e, t,
		render.Section{Title: "Projects", Items: related.Projects},
		render.Section{Title: "Resources", Items: related.Resources},
		render.Section{Title: "Tasks", Items: related.Tasks},
	)

	if !*asHTML {
		_, err := os.Stdout.Write(page)
		return err
	}
	html, err := render.HTML(page)
	if err != nil {
		return err
	}
	fmt.Print(html)
	return nil
}

func runArchive(ctx context.Context, args []string) error {
	fs, common := newFlagSet("archive")
	typeName := fs.String("type", "", "Entity type (area, project, task, ...)")
	id := fs.String("id", "", "Entity id")
	reason := fs.String("reason", "", "Why the item is archived")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := entity.ParseType(*typeName)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, common, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	record, err := s.service.ArchiveItem(ctx, *id, t, *reason)
	var partial *mutation.PartialArchiveError
	if errors.As(err, &partial) {
		yellow := color.New(color.FgYellow)
		yellow.Print("    ! ")
		fmt.Printf("Archived as %s but the original %s %s is still present; delete it manually\n",
			partial.ArchiveID, partial.Type, partial.OriginalID)
		return err
	}
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("    ✓ ")
	fmt.Printf("Archived %s %s as %s\n", t, *id, record.ID)
	return nil
}

// runWatch follows every topic until interrupted, optionally reloading on
// an interval to pick up writes from other processes.
func runWatch(ctx context.Context, args []string) error {
	fs, common := newFlagSet("watch")
	refresh := fs.Duration("refresh", 0, "Reload everything on this interval (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	printBanner()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	s, err := openSession(ctx, common, m)
	if err != nil {
		return err
	}
	defer s.Close()
	svc := s.service

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("User:      %s\n", svc.UserID())
	green.Print("    ▶ ")
	fmt.Printf("Store:     %s\n", s.cfg.Database.Path)

	if s.cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   http://%s%s\n", s.cfg.Metrics.Addr, s.cfg.Metrics.Path)
		mux := http.NewServeMux()
		mux.Handle(s.cfg.Metrics.Path, m.Handler())
		srv := &http.Server{Addr: s.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
	fmt.Println()

	for _, topic := range watchTopics() {
		svc.Subscribe(topic, func(ev bus.Event) { logEvent(s.logger, ev) })
	}
	s.logger.Info("watching", "entities", svc.GetAllData().Len())

	var tick <-chan time.Time
	if *refresh > 0 {
		ticker := time.NewTicker(*refresh)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping")
			return nil
		case <-tick:
			if err := svc.LoadAllData(ctx); err != nil {
				s.logger.Warn("refresh failed", "error", err)
			}
		}
	}
}

func watchTopics() []bus.Topic {
	topics := []bus.Topic{bus.TopicLoaded, bus.TopicDataChanged}
	for _, c := range entity.Collections {
		t := c.Type()
		topics = append(topics, bus.CreatedTopic(t), bus.UpdatedTopic(t), bus.DeletedTopic(t))
	}
	return topics
}

func logEvent(logger *slog.Logger, ev bus.Event) {
	topic := ev.Topic().String()
	switch e := ev.(type) {
	case bus.Loaded:
		logger.Info(topic, "entities", e.Data.Len())
	case bus.DataChanged:
		logger.Info(topic, "collection", e.Collection, "count", len(e.Data))
	case bus.Created:
		logger.Info(topic, "id", e.Entity.ID, "title", e.Entity.Title)
	case bus.Updated:
		logger.Info(topic, "id", e.Entity.ID, "title", e.Entity.Title)
	case bus.Deleted:
		logger.Info(topic, "id", e.ID)
	}
}

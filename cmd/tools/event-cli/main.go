package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/overlay-sync/internal/eventbus"
)

const (
	defaultServerAddr = nats.DefaultURL
	timeFormat        = "2006-01-02T15:04:05Z"
	idleTimeout       = 2 * time.Second
)

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "NATS server address")
		stream     = flag.String("stream", "OVERLAY", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		viewers    = flag.String("viewers", "", "Viewer IDs filter (comma-separated)")
		worldID    = flag.String("world", "", "World filter")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m) or RFC3339 time")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
	)
	flag.Parse()

	if *command == "types" {
		showTypes()
		return
	}

	nc, err := nats.Connect(*serverAddr, nats.Name("overlay-event-cli"))
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("JetStream unavailable: %v", err)
	}

	opts := &TailOptions{
		Stream:     *stream,
		EventTypes: parseStringList(*eventTypes),
		Viewers:    parseStringList(*viewers),
		World:      *worldID,
		Since:      *since,
		Limit:      *limit,
		Follow:     *follow,
	}

	switch *command {
	case "tail":
		if err := tailEvents(js, opts); err != nil {
			log.Fatalf("Tail failed: %v", err)
		}
	case "stats":
		if err := showStats(js, opts); err != nil {
			log.Fatalf("Stats failed: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
}

type TailOptions struct {
	Stream     string
	EventTypes []string
	Viewers    []string
	World      string
	Since      string
	Limit      int
	Follow     bool
}

// subscribe создаёт упорядоченного потребителя с начала окна since
func subscribe(js nats.JetStreamContext, opts *TailOptions) (*nats.Subscription, error) {
	start, err := parseSinceTime(opts.Since, time.Now())
	if err != nil {
		return nil, fmt.Errorf("invalid since time: %w", err)
	}

	subject := eventbus.Subject(">")
	if len(opts.EventTypes) == 1 {
		subject = eventbus.Subject(opts.EventTypes[0])
	}
	return js.SubscribeSync(subject, nats.BindStream(opts.Stream), nats.OrderedConsumer(), nats.StartTime(start))
}

// nextEvent возвращает следующее событие, подходящее под фильтры.
// Без follow ожидание ограничено idleTimeout.
func nextEvent(sub *nats.Subscription, opts *TailOptions) (*eventbus.Envelope, *eventbus.SessionEvent, error) {
	for {
		timeout := idleTimeout
		if opts.Follow {
			timeout = time.Hour
		}
		msg, err := sub.NextMsg(timeout)
		if err != nil {
			return nil, nil, err
		}

		var ev eventbus.Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			continue
		}
		var payload eventbus.SessionEvent
		_ = ev.Decode(&payload)

		if !matches(&ev, &payload, opts) {
			continue
		}
		return &ev, &payload, nil
	}
}

func matches(ev *eventbus.Envelope, payload *eventbus.SessionEvent, opts *TailOptions) bool {
	if len(opts.EventTypes) > 0 && !contains(opts.EventTypes, ev.EventType) {
		return false
	}
	if len(opts.Viewers) > 0 && !contains(opts.Viewers, payload.Viewer) {
		return false
	}
	if opts.World != "" && payload.World != opts.World {
		return false
	}
	return true
}

// tailEvents выводит события (и новые при -follow)
func tailEvents(js nats.JetStreamContext, opts *TailOptions) error {
	fmt.Printf("Tailing %s (limit: %d, follow: %v)\n", opts.Stream, opts.Limit, opts.Follow)

	sub, err := subscribe(js, opts)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	count := 0
	for opts.Follow || count < opts.Limit {
		ev, payload, err := nextEvent(sub, opts)
		if errors.Is(err, nats.ErrTimeout) {
			break
		}
		if err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		printEvent(ev, payload)
		count++
	}

	fmt.Printf("\nTotal events: %d\n", count)
	return nil
}

// showStats считает события по типам за окно since
func showStats(js nats.JetStreamContext, opts *TailOptions) error {
	fmt.Println("Event statistics")

	opts.Follow = false
	sub, err := subscribe(js, opts)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	counts := make(map[string]int)
	viewers := make(map[string]struct{})
	total := 0
	for {
		ev, payload, err := nextEvent(sub, opts)
		if errors.Is(err, nats.ErrTimeout) {
			break
		}
		if err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		counts[ev.EventType]++
		if payload.Viewer != "" {
			viewers[payload.Viewer] = struct{}{}
		}
		total++
	}

	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	fmt.Printf("Since: %s\n", opts.Since)
	fmt.Printf("Total events: %d, viewers: %d\n", total, len(viewers))
	fmt.Println("\nBy event type:")
	for _, t := range types {
		fmt.Printf("  %s: %d events\n", t, counts[t])
	}
	return nil
}

// showTypes выводит известные типы событий
func showTypes() {
	fmt.Println("Available event types")
	for _, t := range []struct{ name, description string }{
		{eventbus.EventViewerConnected, "viewer connected (world)"},
		{eventbus.EventViewerDisconnected, "viewer disconnected"},
		{eventbus.EventSessionStarted, "build session started"},
		{eventbus.EventSessionEnded, "build session ended"},
		{eventbus.EventSelectionChanged, "selection marker sent (min, max)"},
		{eventbus.EventPreviewChanged, "block preview shown (block, cells)"},
	} {
		fmt.Printf("  %-30s %s\n", t.name, t.description)
	}
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope, payload *eventbus.SessionEvent) {
	fmt.Printf("[%s] %s [%s] %s\n", ev.Timestamp.Format("15:04:05"), ev.Source, ev.EventType, ev.ID)

	switch ev.EventType {
	case eventbus.EventSelectionChanged:
		if payload.Min != nil && payload.Max != nil {
			fmt.Printf("  Viewer: %s Box: %v..%v\n", payload.Viewer, *payload.Min, *payload.Max)
		}
	case eventbus.EventPreviewChanged:
		fmt.Printf("  Viewer: %s Block: %s Cells: %d\n", payload.Viewer, payload.Block, payload.Cells)
	default:
		fmt.Printf("  Viewer: %s World: %s\n", payload.Viewer, payload.World)
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m" или абсолютное
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream vesting events from the event bus",
	GroupID: "schedules",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("VESTING_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemote().NATSURL
		}
		if natsURL == "" {
			return fmt.Errorf("no NATS URL: pass --nats, set VESTING_NATS_URL or add one to the remote")
		}
		topic, _ := cmd.Flags().GetString("topic")
		var schedule *uint64
		if s, _ := cmd.Flags().GetString("schedule"); s != "" {
			id, err := parseID(s)
			if err != nil {
				return err
			}
			schedule = &id
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return watchNATS(ctx, cmd.OutOrStdout(), natsURL, topic, schedule)
	},
}

func watchNATS(ctx context.Context, w io.Writer, natsURL, topic string, schedule *uint64) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !eventForSchedule(msg.Data, schedule) {
				continue
			}
			printMessage(w, msg, time.Now())
		}
	}
}

// eventForSchedule reports whether an event payload concerns schedule. A nil
// schedule matches everything.
func eventForSchedule(data []byte, schedule *uint64) bool {
	if schedule == nil {
		return true
	}
	var ev struct {
		ScheduleID *uint64 `json:"schedule_id"`
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.ScheduleID == nil {
		return false
	}
	return *ev.ScheduleID == *schedule
}

func printMessage(w io.Writer, msg events.Message, at time.Time) {
	if jsonOutput {
		fmt.Fprintf(w, "{\"topic\":%q,\"data\":%s}\n", msg.Topic, msg.Data)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", ui.RenderMuted(at.UTC().Format(time.TimeOnly)), ui.RenderAccent(msg.Topic), msg.Data)
}

func init() {
	watchCmd.Flags().String("nats", "", "NATS URL (default: VESTING_NATS_URL or the active remote)")
	watchCmd.Flags().String("topic", events.TopicAll, "subject to subscribe to; NATS wildcards allowed")
	watchCmd.Flags().String("schedule", "", "only events for this schedule id")
}

package cli

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"crowdfund.ledger/cfl/internal/amount"
	"crowdfund.ledger/cfl/internal/ledger"
)

// amountAttrs are event attributes carrying base units.
var amountAttrs = map[string]bool{
	"amount":    true,
	"new-total": true,
	"goal":      true,
	"payout":    true,
	"fee":       true,
}

type EventsCmd struct {
	Gateway  string `default:"http://localhost:8080" env:"CFL_GATEWAY" help:"Node gateway base URL."`
	Campaign uint64 `help:"Only show events of this campaign."`
	History  int    `default:"20" help:"Replay this many stored events first."`
	Count    int    `help:"Exit after this many events; 0 streams until interrupted."`
}

func (cmd *EventsCmd) Run(env *Environment) error {
	u, err := url.Parse(cmd.Gateway)
	if err != nil {
		return fmt.Errorf("invalid gateway url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/events"
	q := url.Values{}
	if cmd.Campaign != 0 {
		q.Set("campaign", fmt.Sprint(cmd.Campaign))
	}
	if cmd.History > 0 {
		q.Set("history", fmt.Sprint(cmd.History))
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", u.Redacted(), err)
	}
	defer conn.Close()

	for seen := 0; cmd.Count == 0 || seen < cmd.Count; seen++ {
		var ev ledger.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		printEvent(env.Stdout, ev)
	}
	return nil
}

func printEvent(w io.Writer, ev ledger.Event) {
	title := cases.Title(language.English).String(strings.ReplaceAll(ev.Type, "-", " "))
	if ev.CampaignID != 0 {
		fmt.Fprintf(w, "[%d] %s (campaign %d)", ev.Height, title, ev.CampaignID)
	} else {
		fmt.Fprintf(w, "[%d] %s", ev.Height, title)
	}
	for _, a := range ev.Attributes {
		value := a.Value
		if amountAttrs[a.Key] {
			if units, err := amount.ParseUnits(value); err == nil {
				value = amount.Format(units)
			}
		}
		fmt.Fprintf(w, " %s=%s", a.Key, value)
	}
	fmt.Fprintln(w)
}

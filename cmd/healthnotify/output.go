package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/dukerupert/healthnotify/internal/model"
)

func writeNotification(w io.Writer, n model.DomainNotification, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(n)
	}

	var flags []string
	if !n.Read {
		flags = append(flags, "unread")
	}
	if n.ActionRequired {
		flags = append(flags, "action")
	}
	if n.Degraded {
		flags = append(flags, "degraded")
	}
	line := fmt.Sprintf("#%d [%s] %-19s %s", n.ID, n.Priority, n.Type, n.Title)
	if n.Age != "" {
		line += " (" + n.Age + ")"
	}
	if len(flags) > 0 {
		line += " {" + strings.Join(flags, ",") + "}"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func writeRestock(w io.Writer, u model.RestockUpdate, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(u)
	}
	_, err := fmt.Fprintf(w, "restock #%d %s: %s x%s\n", u.RequestID, u.Status, u.SupplyName, humanize.Comma(int64(u.Quantity)))
	return err
}

package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/roster/internal/history"
	"github.com/wolfeidau/roster/internal/models"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printInterval(w io.Writer, iv *models.Interval) error {
	if iv == nil {
		_, err := fmt.Fprintln(w, "no interval")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tKIND\tPOSITION\tPERSON\tSTARTED\tENDED")
	fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
		iv.ID, iv.Kind(), idOrDash(iv.PositionID()), idOrDash(iv.PersonID()),
		formatTime(&iv.StartedAt), formatTime(iv.EndedAt))
	return tw.Flush()
}

func printHistory(w io.Writer, h history.History) error {
	fmt.Fprintf(w, "%s\n", h.Subject)

	if len(h.Episodes) == 0 {
		_, err := fmt.Fprintln(w, "  no history")
		return err
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  ID\tKIND\tPOSITION\tPERSON\tSTARTED\tENDED\tCURRENT")
	for _, ep := range h.Episodes {
		current := ""
		if ep.Current {
			current = "*"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ep.ID, ep.Kind(), idOrDash(ep.PositionID()), idOrDash(ep.PersonID()),
			formatTime(&ep.StartedAt), formatTime(ep.EndedAt), current)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, warning := range h.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
	return nil
}

func printPositions(w io.Writer, positions []*models.Position) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tORGANIZATION")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.PositionID, p.Name, p.Type, p.Status, p.OrganizationID)
	}
	return tw.Flush()
}

func idOrDash(id uuid.UUID) string {
	if id == uuid.Nil {
		return "-"
	}
	return id.String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

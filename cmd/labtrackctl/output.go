package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/labtrack/labtrack-client/internal/domain"
	"github.com/labtrack/labtrack-client/internal/inventory"
)

const barWidth = 30

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printInventory(w io.Writer, items []inventory.Classified) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tBATCH\tMATERIAL\tQTY\tEXPIRY\tDAYS\tSTATUS")
	for _, c := range items {
		status := c.Expiry.Label
		if c.Depleted() {
			status += " (depleted)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%s\t%d\t%s\n",
			c.ID, c.BatchNo, c.MaterialName(), c.CurrentQty, c.InitialQty,
			c.ExpiryDate.String(), c.Expiry.DaysRemaining, status)
	}
	_ = tw.Flush()
}

func printMaterials(w io.Writer, items []domain.Material, defaultAlertDays int) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tCODE\tNAME\tSPEC\tUNIT\tALERT DAYS")
	for _, m := range items {
		alert := fmt.Sprintf("%d (default)", defaultAlertDays)
		if days, ok := m.AlertWindow(); ok {
			alert = fmt.Sprintf("%d", days)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", m.ID, m.Code, m.Name, m.Spec, m.Unit, alert)
	}
	_ = tw.Flush()
}

func printOutbound(w io.Writer, items []domain.OutboundItem) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tNO\tMATERIAL\tBATCH\tQTY\tSTATUS\tAPPROVAL\tAPPLICANT")
	for _, o := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			o.ID, o.OutboundNo, outboundMaterial(o), outboundBatch(o), o.Quantity,
			o.Status, o.ApprovalStatus, applicant(o))
	}
	_ = tw.Flush()
}

// Older servers send flat fields instead of the embedded snapshots.
func outboundMaterial(o domain.OutboundItem) string {
	if o.Inventory != nil {
		if name := o.Inventory.MaterialName(); name != "" {
			return name
		}
	}
	return o.MaterialName
}

func outboundBatch(o domain.OutboundItem) string {
	if o.Inventory != nil && o.Inventory.BatchNo != "" {
		return o.Inventory.BatchNo
	}
	return o.BatchNo
}

func applicant(o domain.OutboundItem) string {
	if o.User != nil {
		if o.User.RealName != "" {
			return o.User.RealName
		}
		return o.User.Username
	}
	return o.ApplicantName
}

func printImportResult(w io.Writer, res domain.BatchImportResult) {
	fmt.Fprintf(w, "imported %d of %d rows, %d failed\n", res.Success, res.Total, res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func printStats(w io.Writer, s domain.StatsSummary, trend []domain.TrendBar) {
	fmt.Fprintf(w, "batches: %d  expiring soon: %d  expired: %d  (%s)\n", s.Total, s.Warning, s.Expired, s.Source)

	peak := 0
	for _, b := range trend {
		if b.Value > peak {
			peak = b.Value
		}
	}

	tw := table(w)
	for _, b := range trend {
		n := 0
		if peak > 0 {
			n = b.Value * barWidth / peak
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", b.Label, strings.Repeat("#", n), b.Value)
	}
	_ = tw.Flush()
}

package bench

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Print writes a human-readable table of rep to w.
func (rep *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "phase\trequests\terrors\tmin\tmax\tmean\tmedian\treq/s\t")
	for _, p := range rep.Phases {
		writeRow(tw, p.Name, p.Stats)
	}
	writeRow(tw, "overall", rep.Overall)
	if err := tw.Flush(); err != nil {
		return err
	}

	if rep.Server == nil {
		_, err := fmt.Fprintln(w, "\nserver metrics: unavailable")
		return err
	}
	_, err := fmt.Fprintf(w, "\nserver metrics: stored=%.0f ingested=%.0f rejected=%.0f\n",
		rep.Server.Stored, rep.Server.Ingested, rep.Server.Rejected)
	return err
}

func writeRow(w io.Writer, name string, s Stats) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%.1f\t\n",
		name, s.Requests, s.Errors, ms(s.Min), ms(s.Max), ms(s.Mean), ms(s.Median), s.RPS)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"tvwebhook/internal/storage"
)

// Show prints the most recent stored records.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	return a.show(ctx, os.Stdout, opts)
}

func (a *App) show(_ context.Context, out io.Writer, opts ShowOptions) error {
	records, err := storage.ReadRecent(a.Config.Storage.Dir, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no records found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Key\tSource\tTicker\tInterval\tOpen\tClose\tBuy\tSell")

	for _, rec := range records {
		raw := rec.Record.Raw
		p := raw.Payload()
		parsed := rec.Record.Parsed
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Key.Name,
			sanitizeInline(raw.Source()),
			sanitizeInline(p.Get("ticker").Text()),
			sanitizeInline(p.Get("interval").Text()),
			parsed.Get("open").Text(),
			parsed.Get("close").Text(),
			parsed.Get("buy").Text(),
			parsed.Get("sell").Text(),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
